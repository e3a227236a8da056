//go:build rp2040

package main

import (
	_ "embed"
	"machine"
	"time"

	"stepctl/core"
	"stepctl/protocol"
	smachine "stepctl/standalone/machine"
)

// machineConfig is the board wiring, edited before flashing
//
//go:embed machine.json
var machineConfig []byte

var (
	manager *smachine.Manager

	// Debug counters
	messagesReceived uint32
	msgerrors        uint32

	usbWasDisconnected       bool
	consecutiveWriteFailures uint32
)

func main() {
	// Clear any watchdog state left over from a previous reset
	err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})
	if err != nil {
		return
	}

	InitUSB()
	InitClock()

	manager, err = smachine.NewManager(machineConfig)
	if err != nil {
		fatalBlink()
	}

	gpioDriver := NewRPGPIODriver()
	err = manager.Initialize(smachine.Hardware{
		GPIO:       gpioDriver,
		Pulses:     NewRP2040PWMDriver(gpioDriver),
		PIOBackend: NewPIOStepperBackend(0, 0),
		Distance:   NewVL53L1XSensor(0),
		ADC:        NewRPAdcDriver(),
		Clock:      hardwareClock{},
		Logger:     core.NewDebugLogger(usbLog, manager.Config().Verbose),
	})
	if err != nil {
		fatalBlink()
	}

	if err := manager.Start(); err != nil {
		fatalBlink()
	}
	ledBlink(3)

	go usbReaderLoop()

	for {
		// Recover from panics in the main loop to prevent a firmware crash
		func() {
			defer func() {
				if r := recover(); r != nil {
					msgerrors++
				}
			}()
			writeUSB()
		}()

		time.Sleep(100 * time.Microsecond)
	}
}

// usbReaderLoop feeds received bytes to the line assembler
func usbReaderLoop() {
	defer func() {
		if r := recover(); r != nil {
			msgerrors++
			time.Sleep(100 * time.Millisecond)
			go usbReaderLoop()
		}
	}()

	var buf [64]byte
	for {
		n := 0
		for n < len(buf) && USBAvailable() > 0 {
			b, err := USBRead()
			if err != nil {
				msgerrors++
				break
			}
			buf[n] = b
			n++
		}
		if n > 0 {
			// A host coming back after a disconnect starts a fresh session
			if usbWasDisconnected {
				usbWasDisconnected = false
				consecutiveWriteFailures = 0
				manager.GetOutput()
			}
			manager.Feed(buf[:n])
			messagesReceived++
		}
		time.Sleep(100 * time.Microsecond)
	}
}

// writeUSB sends pending responses, dropping them once the host has gone
func writeUSB() {
	result := manager.GetOutput()
	written := 0
	for written < len(result) {
		n, err := USBWriteBytes(result[written:])
		if err != nil || n == 0 {
			consecutiveWriteFailures++
			if consecutiveWriteFailures > 10 {
				usbWasDisconnected = true
				consecutiveWriteFailures = 0
			}
			return
		}
		written += n
	}
	if written > 0 {
		consecutiveWriteFailures = 0
	}
}

// usbLog sends log messages to the host as comment lines
func usbLog(msg string) {
	manager.SendResponse(protocol.CommentPrefix + " " + msg + "\n")
}

// ledBlink blinks the LED a specific number of times for diagnostics
func ledBlink(count int) {
	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	for i := 0; i < count; i++ {
		led.High()
		time.Sleep(200 * time.Millisecond)
		led.Low()
		time.Sleep(200 * time.Millisecond)
	}
}

// fatalBlink flashes the LED rapidly forever
func fatalBlink() {
	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	for {
		led.High()
		time.Sleep(100 * time.Millisecond)
		led.Low()
		time.Sleep(100 * time.Millisecond)
	}
}
