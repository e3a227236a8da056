//go:build rp2040

package main

import (
	"runtime/volatile"
	"time"
	"unsafe"
)

// RP2040 Timer peripheral memory map
const (
	timerBase     = 0x40054000
	timerTIMERAWH = timerBase + 0x24 // Raw timer high word
	timerTIMERAWL = timerBase + 0x28 // Raw timer low word

	// Sleeps shorter than this busy-wait on the timer instead of yielding
	spinThreshold = 200 * time.Microsecond
)

var (
	timerRAWH = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWH)))
	timerRAWL = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWL)))
)

// InitClock is kept for symmetry with the other peripherals.
// The RP2040 has a free-running 64-bit microsecond timer at 1MHz
func InitClock() {}

// GetHardwareUptime reads the full 64-bit RP2040 hardware timer
func GetHardwareUptime() uint64 {
	// Read high, low, high again to detect rollover
	for {
		high1 := timerRAWH.Get()
		low := timerRAWL.Get()
		high2 := timerRAWH.Get()

		if high1 == high2 {
			return (uint64(high1) << 32) | uint64(low)
		}
	}
}

// hardwareClock implements core.Clock on the microsecond timer. Short
// sleeps spin so step pulses keep their width.
type hardwareClock struct{}

func (hardwareClock) Now() time.Time {
	return time.Unix(0, int64(GetHardwareUptime())*int64(time.Microsecond))
}

func (hardwareClock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	if d >= spinThreshold {
		time.Sleep(d)
		return
	}
	deadline := GetHardwareUptime() + uint64(d/time.Microsecond)
	for GetHardwareUptime() < deadline {
	}
}
