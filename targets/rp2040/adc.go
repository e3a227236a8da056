//go:build rp2040

package main

import (
	"device/rp"
	"errors"
	"machine"
	"sync"

	"stepctl/core"
)

// tempChannel is the internal temperature sensor input
const tempChannel = 4

// RpAdcDriver implements core.ADCDriver using TinyGo's machine.ADC.
// Channels 0-3 are GPIO26-29, channel 4 the temperature sensor.
type RpAdcDriver struct {
	mu       sync.Mutex
	once     sync.Once
	channels map[core.ADCChannel]*machine.ADC
}

// NewRPAdcDriver constructs the driver; the ADC block is started on first use
func NewRPAdcDriver() *RpAdcDriver {
	return &RpAdcDriver{
		channels: make(map[core.ADCChannel]*machine.ADC),
	}
}

// rawInternalTemp returns the 12-bit raw ADC value from the internal temp sensor (0-4095).
func rawInternalTemp() uint16 {
	rp.ADC.CS.SetBits(rp.ADC_CS_TS_EN)
	rp.ADC.CS.ReplaceBits(
		uint32(tempChannel)<<rp.ADC_CS_AINSEL_Pos,
		rp.ADC_CS_AINSEL_Msk,
		0,
	)
	rp.ADC.CS.SetBits(rp.ADC_CS_START_ONCE)
	for !rp.ADC.CS.HasBits(rp.ADC_CS_READY) {
	}
	return uint16(rp.ADC.RESULT.Get())
}

// ConfigureChannel sets up a specific ADC channel (pin mux, etc.).
func (d *RpAdcDriver) ConfigureChannel(ch core.ADCChannel) error {
	d.once.Do(machine.InitADC)

	d.mu.Lock()
	defer d.mu.Unlock()

	if ch == tempChannel {
		return nil
	}
	if _, ok := d.channels[ch]; ok {
		return nil
	}

	var adc machine.ADC
	switch ch {
	case 0:
		adc = machine.ADC{Pin: machine.ADC0}
	case 1:
		adc = machine.ADC{Pin: machine.ADC1}
	case 2:
		adc = machine.ADC{Pin: machine.ADC2}
	case 3:
		adc = machine.ADC{Pin: machine.ADC3}
	default:
		return errors.New("adc: unsupported channel")
	}

	if err := adc.Configure(machine.ADCConfig{}); err != nil {
		return err
	}
	d.channels[ch] = &adc
	return nil
}

// ReadRaw returns a 16-bit scaled sample. TinyGo already left-aligns the
// 12-bit conversion; the temperature sensor is shifted to match
func (d *RpAdcDriver) ReadRaw(ch core.ADCChannel) (core.ADCValue, error) {
	if ch == tempChannel {
		d.once.Do(machine.InitADC)
		return core.ADCValue(rawInternalTemp() << 4), nil
	}

	d.mu.Lock()
	adc, ok := d.channels[ch]
	d.mu.Unlock()
	if !ok {
		if err := d.ConfigureChannel(ch); err != nil {
			return 0, err
		}
		d.mu.Lock()
		adc = d.channels[ch]
		d.mu.Unlock()
	}
	return core.ADCValue(adc.Get()), nil
}
