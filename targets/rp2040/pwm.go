//go:build rp2040

package main

import (
	"errors"
	"machine"
	"sync"

	"stepctl/core"
)

// pwmPeripheral is an interface for PWM hardware peripherals.
// This abstracts over TinyGo's unexported *pwmGroup type
type pwmPeripheral interface {
	Configure(config machine.PWMConfig) error
	SetPeriod(period uint64) error
	Channel(pin machine.Pin) (uint8, error)
	Top() uint32
	Set(channel uint8, value uint32)
}

// RP2040PWMDriver implements core.PulseGenerator on the RP2040's 8 PWM
// slices. Frequencies the slice cannot reach fall back to software PWM.
type RP2040PWMDriver struct {
	mu sync.Mutex

	// Key: slice number (0-7)
	peripherals map[uint8]pwmPeripheral
	// Key: pin number, Value: PWM channel
	channels map[core.GPIOPin]uint8

	soft     *core.SoftPWM
	softPins map[core.GPIOPin]bool
}

// NewRP2040PWMDriver creates a new RP2040 PWM driver. gpio drives the
// software fallback
func NewRP2040PWMDriver(gpio core.GPIODriver) *RP2040PWMDriver {
	return &RP2040PWMDriver{
		peripherals: make(map[uint8]pwmPeripheral),
		channels:    make(map[core.GPIOPin]uint8),
		soft:        core.NewSoftPWM(gpio, hardwareClock{}),
		softPins:    make(map[core.GPIOPin]bool),
	}
}

// StartContinuous starts or retunes the step waveform on pin
func (d *RP2040PWMDriver) StartContinuous(pin core.GPIOPin, freqHz float64, duty float64) error {
	if freqHz <= 0 {
		return errors.New("pwm: frequency must be positive")
	}
	if pin > maxGPIO {
		return errInvalidPin
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	period := uint64(1e9 / freqHz)
	if d.softPins[pin] {
		delete(d.softPins, pin)
		d.soft.Stop(pin)
	}
	if err := d.startHardware(pin, period, duty); err != nil {
		// Below the slice's lowest frequency
		d.stopHardware(pin)
		d.softPins[pin] = true
		return d.soft.StartContinuous(pin, freqHz, duty)
	}
	return nil
}

func (d *RP2040PWMDriver) startHardware(pin core.GPIOPin, period uint64, duty float64) error {
	// GPIO pin N maps to slice (N >> 1) & 0x7, channel N & 1
	sliceNum := uint8((pin >> 1) & 0x7)

	pwm, exists := d.peripherals[sliceNum]
	if !exists {
		pwm = getPWMPeripheral(sliceNum)
		if err := pwm.Configure(machine.PWMConfig{Period: period}); err != nil {
			return err
		}
		d.peripherals[sliceNum] = pwm
	} else if err := pwm.SetPeriod(period); err != nil {
		return err
	}

	channel, ok := d.channels[pin]
	if !ok {
		var err error
		if channel, err = pwm.Channel(machine.Pin(pin)); err != nil {
			return err
		}
		d.channels[pin] = channel
	}

	pwm.Set(channel, uint32(float64(pwm.Top())*duty))
	return nil
}

func (d *RP2040PWMDriver) stopHardware(pin core.GPIOPin) {
	channel, ok := d.channels[pin]
	if !ok {
		return
	}
	// A zero duty holds the output low
	d.peripherals[uint8((pin>>1)&0x7)].Set(channel, 0)
	delete(d.channels, pin)
	machine.Pin(pin).Configure(machine.PinConfig{Mode: machine.PinOutput})
	machine.Pin(pin).Low()
}

// Stop halts the waveform and leaves the pin low
func (d *RP2040PWMDriver) Stop(pin core.GPIOPin) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.softPins[pin] {
		delete(d.softPins, pin)
		return d.soft.Stop(pin)
	}
	d.stopHardware(pin)
	return nil
}

// getPWMPeripheral returns the PWM peripheral for a given slice number
func getPWMPeripheral(sliceNum uint8) pwmPeripheral {
	switch sliceNum {
	case 1:
		return machine.PWM1
	case 2:
		return machine.PWM2
	case 3:
		return machine.PWM3
	case 4:
		return machine.PWM4
	case 5:
		return machine.PWM5
	case 6:
		return machine.PWM6
	case 7:
		return machine.PWM7
	}
	return machine.PWM0
}
