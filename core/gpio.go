// Digital output support for the driver control lines (STEP, DIR, EN)
package core

// DigitalOut flags
const (
	DF_ON         = 1 << 0 // Current pin state (1=high, 0=low)
	DF_DEFAULT_ON = 1 << 1 // Default state for shutdown/power-loss
)

// DigitalOut represents a configured GPIO output pin and remembers the
// level it was last driven to
type DigitalOut struct {
	Pin   GPIOPin // Hardware pin
	Flags uint8   // State flags (DF_*)

	drv GPIODriver
}

// NewDigitalOut configures pin as an output, drives it to value and records
// defaultValue as the level Shutdown returns it to
func NewDigitalOut(drv GPIODriver, pin GPIOPin, value, defaultValue bool) (*DigitalOut, error) {
	dout := &DigitalOut{
		Pin: pin,
		drv: drv,
	}

	if defaultValue {
		dout.Flags |= DF_DEFAULT_ON
	}

	if err := drv.ConfigureOutput(pin); err != nil {
		return nil, err
	}

	if err := dout.Set(value); err != nil {
		return nil, err
	}

	return dout, nil
}

// Set drives the pin and updates the state flag.
// The flag only changes when the driver accepted the write.
func (d *DigitalOut) Set(value bool) error {
	if err := d.drv.SetPin(d.Pin, value); err != nil {
		return err
	}

	if value {
		d.Flags |= DF_ON
	} else {
		d.Flags &^= DF_ON
	}
	return nil
}

// IsOn reports the last level written
func (d *DigitalOut) IsOn() bool {
	return d.Flags&DF_ON != 0
}

// Shutdown returns the pin to its default state
func (d *DigitalOut) Shutdown() error {
	return d.Set(d.Flags&DF_DEFAULT_ON != 0)
}
