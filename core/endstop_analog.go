// Analog endstop handling for ADC-based sensors
// Supports hall effect sensors, pressure sensors, and other analog sensors
package core

import (
	"strconv"
	"sync"
)

// AnalogEndstop triggers when an ADC reading crosses Threshold.
// Once triggered it only releases after the reading moves Hysteresis
// counts back past the threshold.
type AnalogEndstop struct {
	Channel      ADCChannel
	Threshold    ADCValue // Trigger threshold value (ADC counts)
	TriggerAbove bool     // True if trigger when value > threshold, false if value < threshold
	Hysteresis   ADCValue // Hysteresis value to prevent oscillation

	drv ADCDriver

	mu        sync.Mutex
	triggered bool
	lastValue ADCValue
}

// NewAnalogEndstop creates an analog endstop on ch
func NewAnalogEndstop(drv ADCDriver, ch ADCChannel, threshold ADCValue, triggerAbove bool, hysteresis ADCValue) *AnalogEndstop {
	return &AnalogEndstop{
		Channel:      ch,
		Threshold:    threshold,
		TriggerAbove: triggerAbove,
		Hysteresis:   hysteresis,
		drv:          drv,
	}
}

// Configure puts the channel in analog mode
func (ae *AnalogEndstop) Configure() error {
	return ae.drv.ConfigureChannel(ae.Channel)
}

// Triggered takes one sample
func (ae *AnalogEndstop) Triggered() (bool, error) {
	value, err := ae.drv.ReadRaw(ae.Channel)
	if err != nil {
		return false, err
	}

	ae.mu.Lock()
	defer ae.mu.Unlock()

	ae.lastValue = value
	ae.triggered = ae.checkThreshold(value)
	return ae.triggered, nil
}

// checkThreshold checks if the ADC value crosses the threshold (with hysteresis)
func (ae *AnalogEndstop) checkThreshold(value ADCValue) bool {
	if ae.TriggerAbove {
		if ae.triggered {
			if ae.Threshold < ae.Hysteresis {
				return true
			}
			return value > ae.Threshold-ae.Hysteresis
		}
		return value > ae.Threshold
	}

	if ae.triggered {
		return uint32(value) < uint32(ae.Threshold)+uint32(ae.Hysteresis)
	}
	return value < ae.Threshold
}

// LastValue returns the most recent reading
func (ae *AnalogEndstop) LastValue() ADCValue {
	ae.mu.Lock()
	defer ae.mu.Unlock()
	return ae.lastValue
}

// Name returns "adc<N>"
func (ae *AnalogEndstop) Name() string {
	return "adc" + strconv.Itoa(int(ae.Channel))
}
