// Endstop handling for homing sensors
// A trigger is only reported after SampleCount consecutive matching samples,
// which filters contact bounce and electrical noise on long sensor leads.
package core

import (
	"context"
	"strconv"
	"time"
)

// Endstop flags
const (
	ESF_PIN_HIGH = 1 << 0 // Expected pin state when triggered (1=high, 0=low)
)

// Default sampling parameters
const (
	DefaultSampleTime  = 100 * time.Microsecond
	DefaultSampleCount = 4
	DefaultRestTime    = 1 * time.Millisecond
)

// HomingSensor is anything that can report a homing trigger
type HomingSensor interface {
	// Configure prepares the sensor hardware
	Configure() error

	// Triggered takes one sample
	Triggered() (bool, error)

	// Name identifies the sensor in status reports
	Name() string
}

// Sampling controls how a HomingSensor is polled while homing
type Sampling struct {
	SampleTime  time.Duration // Time between oversamples once a trigger is seen
	SampleCount uint8         // Number of consecutive samples required
	RestTime    time.Duration // Time between check cycles while not triggered
}

// withDefaults fills zero fields
func (s Sampling) withDefaults() Sampling {
	if s.SampleTime <= 0 {
		s.SampleTime = DefaultSampleTime
	}
	if s.SampleCount == 0 {
		s.SampleCount = DefaultSampleCount
	}
	if s.RestTime <= 0 {
		s.RestTime = DefaultRestTime
	}
	return s
}

// Endstop represents a GPIO switch or hall sensor used for homing
type Endstop struct {
	Pin   GPIOPin // GPIO pin for endstop input
	Flags uint8   // State flags (ESF_*)

	drv    GPIODriver
	pullUp bool
}

// NewEndstop creates an endstop on pin. With pullUp the input is biased
// high and the switch is expected to pull it low when triggered, unless
// triggerHigh says otherwise.
func NewEndstop(drv GPIODriver, pin GPIOPin, pullUp bool, triggerHigh bool) *Endstop {
	es := &Endstop{
		Pin:    pin,
		drv:    drv,
		pullUp: pullUp,
	}
	if triggerHigh {
		es.Flags |= ESF_PIN_HIGH
	}
	return es
}

// Configure sets up the input bias
func (es *Endstop) Configure() error {
	if es.pullUp {
		return es.drv.ConfigureInputPullUp(es.Pin)
	}
	return es.drv.ConfigureInputPullDown(es.Pin)
}

// Triggered reads the pin and compares it with the trigger level
func (es *Endstop) Triggered() (bool, error) {
	pinHigh, err := es.drv.GetPin(es.Pin)
	if err != nil {
		return false, err
	}
	expectHigh := (es.Flags & ESF_PIN_HIGH) != 0
	return pinHigh == expectHigh, nil
}

// Name returns "gpio<N>"
func (es *Endstop) Name() string {
	return "gpio" + strconv.Itoa(int(es.Pin))
}

// WaitForTrigger polls sensor until a confirmed trigger or ctx is done.
// A first matching sample starts oversampling; any non-matching sample
// during oversampling restarts the rest cycle.
func WaitForTrigger(ctx context.Context, sensor HomingSensor, sampling Sampling, clock Clock) error {
	if clock == nil {
		clock = SystemClock{}
	}
	sampling = sampling.withDefaults()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		triggered, err := sensor.Triggered()
		if err != nil {
			return err
		}
		if !triggered {
			clock.Sleep(sampling.RestTime)
			continue
		}

		// Potential trigger detected - confirm the remaining samples
		confirmed := true
		for count := sampling.SampleCount - 1; count > 0; count-- {
			clock.Sleep(sampling.SampleTime)
			if err := ctx.Err(); err != nil {
				return err
			}
			triggered, err = sensor.Triggered()
			if err != nil {
				return err
			}
			if !triggered {
				confirmed = false
				break
			}
		}
		if confirmed {
			return nil
		}
		clock.Sleep(sampling.RestTime)
	}
}
