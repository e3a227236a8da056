//go:build rp2040

package main

import (
	"errors"
	"machine"
	"sync"

	"stepctl/core"
)

// maxGPIO is the highest user GPIO on the RP2040
const maxGPIO = 29

var (
	errInvalidPin       = errors.New("gpio: pin out of range")
	errPinNotConfigured = errors.New("gpio: pin not configured")
)

// RPGPIODriver implements core.GPIODriver on the RP2040 pins
type RPGPIODriver struct {
	mu sync.Mutex
	// Track configured pins so repeated configuration is harmless
	configuredPins map[core.GPIOPin]machine.Pin
}

// NewRPGPIODriver creates a new RP2040 GPIO driver
func NewRPGPIODriver() *RPGPIODriver {
	return &RPGPIODriver{
		configuredPins: make(map[core.GPIOPin]machine.Pin),
	}
}

func (d *RPGPIODriver) configure(pin core.GPIOPin, mode machine.PinMode) error {
	if pin > maxGPIO {
		return errInvalidPin
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	// GPIO numbers map directly to machine.Pin
	machinePin := machine.Pin(pin)
	machinePin.Configure(machine.PinConfig{Mode: mode})
	d.configuredPins[pin] = machinePin
	return nil
}

// ConfigureOutput configures a pin as a digital output, initially low
func (d *RPGPIODriver) ConfigureOutput(pin core.GPIOPin) error {
	if err := d.configure(pin, machine.PinOutput); err != nil {
		return err
	}
	machine.Pin(pin).Low()
	return nil
}

func (d *RPGPIODriver) ConfigureInputPullUp(pin core.GPIOPin) error {
	return d.configure(pin, machine.PinInputPullup)
}

func (d *RPGPIODriver) ConfigureInputPullDown(pin core.GPIOPin) error {
	return d.configure(pin, machine.PinInputPulldown)
}

// SetPin sets the pin to high (true) or low (false)
func (d *RPGPIODriver) SetPin(pin core.GPIOPin, value bool) error {
	d.mu.Lock()
	machinePin, exists := d.configuredPins[pin]
	d.mu.Unlock()
	if !exists {
		// Pin isn't configured, make it an output first
		if err := d.ConfigureOutput(pin); err != nil {
			return err
		}
		machinePin = machine.Pin(pin)
	}

	machinePin.Set(value)
	return nil
}

// GetPin reads the current pin state
func (d *RPGPIODriver) GetPin(pin core.GPIOPin) (bool, error) {
	d.mu.Lock()
	machinePin, exists := d.configuredPins[pin]
	d.mu.Unlock()
	if !exists {
		return false, errPinNotConfigured
	}
	return machinePin.Get(), nil
}

func (d *RPGPIODriver) ReadPin(pin core.GPIOPin) bool {
	value, _ := d.GetPin(pin)
	return value
}
