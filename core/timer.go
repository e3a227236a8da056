package core

import "time"

// Driver timing defaults for A4988-class drivers.
// The datasheet asks for >= 1us high and >= 1us low on STEP and 200ns
// DIR setup, so the defaults leave some margin.
const (
	DefaultMinPulseWidth = 2 * time.Microsecond
	DefaultDirSetupTime  = 1 * time.Microsecond
)

// Clock abstracts time so pulse timing and sensor sampling can be driven
// by a fake in tests
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// SystemClock is the real-time Clock
type SystemClock struct{}

// Now returns the current wall time
func (SystemClock) Now() time.Time { return time.Now() }

// Sleep blocks for d; non-positive durations return immediately
func (SystemClock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	time.Sleep(d)
}

// UsToDuration converts microseconds to a time.Duration
func UsToDuration(us uint32) time.Duration {
	return time.Duration(us) * time.Microsecond
}

// PeriodFromFrequency returns the period of a waveform at freqHz
func PeriodFromFrequency(freqHz float64) time.Duration {
	if freqHz <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / freqHz)
}
