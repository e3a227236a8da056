//go:build linux

// Package linuxgpio drives GPIO lines through the Linux character device,
// so the controller core can run directly on a Raspberry Pi or similar
// single-board computer.
package linuxgpio

import (
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"

	"stepctl/core"
)

// DefaultChip is the first GPIO controller
const DefaultChip = "gpiochip0"

// Driver implements core.GPIODriver over go-gpiocdev. Each pin is requested
// on first configuration and reconfigured in place afterwards.
type Driver struct {
	chip     string
	consumer string

	mu    sync.Mutex
	lines map[core.GPIOPin]*gpiocdev.Line
}

// New returns a driver for chip ("" selects DefaultChip)
func New(chip string) *Driver {
	if chip == "" {
		chip = DefaultChip
	}
	return &Driver{
		chip:     chip,
		consumer: "stepctl",
		lines:    make(map[core.GPIOPin]*gpiocdev.Line),
	}
}

// ConfigureOutput configures a pin as an output driven low
func (d *Driver) ConfigureOutput(pin core.GPIOPin) error {
	return d.configure(pin,
		[]gpiocdev.LineReqOption{gpiocdev.AsOutput(0)},
		[]gpiocdev.LineConfigOption{gpiocdev.AsOutput(0)})
}

// ConfigureInputPullUp configures a pin as an input with the pull-up bias
func (d *Driver) ConfigureInputPullUp(pin core.GPIOPin) error {
	return d.configure(pin,
		[]gpiocdev.LineReqOption{gpiocdev.AsInput, gpiocdev.WithPullUp},
		[]gpiocdev.LineConfigOption{gpiocdev.AsInput, gpiocdev.WithPullUp})
}

// ConfigureInputPullDown configures a pin as an input with the pull-down bias
func (d *Driver) ConfigureInputPullDown(pin core.GPIOPin) error {
	return d.configure(pin,
		[]gpiocdev.LineReqOption{gpiocdev.AsInput, gpiocdev.WithPullDown},
		[]gpiocdev.LineConfigOption{gpiocdev.AsInput, gpiocdev.WithPullDown})
}

func (d *Driver) configure(pin core.GPIOPin, req []gpiocdev.LineReqOption, cfg []gpiocdev.LineConfigOption) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if line, ok := d.lines[pin]; ok {
		if err := line.Reconfigure(cfg...); err != nil {
			return fmt.Errorf("reconfigure %s line %d: %w", d.chip, pin, err)
		}
		return nil
	}

	req = append(req, gpiocdev.WithConsumer(d.consumer))
	line, err := gpiocdev.RequestLine(d.chip, int(pin), req...)
	if err != nil {
		return fmt.Errorf("request %s line %d: %w", d.chip, pin, err)
	}
	d.lines[pin] = line
	return nil
}

func (d *Driver) line(pin core.GPIOPin) (*gpiocdev.Line, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	line, ok := d.lines[pin]
	if !ok {
		return nil, fmt.Errorf("%s line %d is not configured", d.chip, pin)
	}
	return line, nil
}

// SetPin drives an output high (true) or low (false)
func (d *Driver) SetPin(pin core.GPIOPin, value bool) error {
	line, err := d.line(pin)
	if err != nil {
		return err
	}
	v := 0
	if value {
		v = 1
	}
	return line.SetValue(v)
}

// GetPin reads the current line level
func (d *Driver) GetPin(pin core.GPIOPin) (bool, error) {
	line, err := d.line(pin)
	if err != nil {
		return false, err
	}
	v, err := line.Value()
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// ReadPin reads the line level, treating errors as low
func (d *Driver) ReadPin(pin core.GPIOPin) bool {
	v, _ := d.GetPin(pin)
	return v
}

// Close releases every requested line
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var first error
	for pin, line := range d.lines {
		if err := line.Close(); err != nil && first == nil {
			first = err
		}
		delete(d.lines, pin)
	}
	return first
}
