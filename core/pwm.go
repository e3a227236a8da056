// Software PWM for continuous step waveforms on hosts without a
// hardware waveform generator
package core

import (
	"errors"
	"sync"
	"time"
)

// SoftPWM implements PulseGenerator by toggling a GPIO pin from a
// goroutine. One waveform per pin; StartContinuous on a running pin
// retunes it.
type SoftPWM struct {
	drv   GPIODriver
	clock Clock

	mu      sync.Mutex
	running map[GPIOPin]*softWave
}

type softWave struct {
	onDuration  time.Duration
	offDuration time.Duration
	stop        chan struct{}
	done        chan struct{}
}

// NewSoftPWM creates a software pulse generator over drv
func NewSoftPWM(drv GPIODriver, clock Clock) *SoftPWM {
	if clock == nil {
		clock = SystemClock{}
	}
	return &SoftPWM{
		drv:     drv,
		clock:   clock,
		running: make(map[GPIOPin]*softWave),
	}
}

// StartContinuous starts toggling pin at freqHz
func (p *SoftPWM) StartContinuous(pin GPIOPin, freqHz float64, duty float64) error {
	if freqHz <= 0 {
		return errors.New("pwm: frequency must be positive")
	}
	if duty <= 0 || duty >= 1 {
		return errors.New("pwm: duty must be between 0 and 1")
	}

	period := PeriodFromFrequency(freqHz)
	onDuration := time.Duration(float64(period) * duty)

	// Replace any running waveform so the pin has a single writer
	if err := p.Stop(pin); err != nil {
		return err
	}

	w := &softWave{
		onDuration:  onDuration,
		offDuration: period - onDuration,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}

	p.mu.Lock()
	p.running[pin] = w
	p.mu.Unlock()

	go p.toggle(pin, w)
	return nil
}

// toggle drives the pin until the wave is stopped or a write fails
func (p *SoftPWM) toggle(pin GPIOPin, w *softWave) {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			return
		default:
		}

		if err := p.drv.SetPin(pin, LevelHigh); err != nil {
			return
		}
		p.clock.Sleep(w.onDuration)
		if err := p.drv.SetPin(pin, LevelLow); err != nil {
			return
		}
		p.clock.Sleep(w.offDuration)
	}
}

// Stop halts the waveform on pin, waits for the toggling goroutine to exit
// and leaves the pin low. Stopping an idle pin only drives it low.
func (p *SoftPWM) Stop(pin GPIOPin) error {
	p.mu.Lock()
	w, ok := p.running[pin]
	delete(p.running, pin)
	p.mu.Unlock()

	if ok {
		close(w.stop)
		<-w.done
	}
	return p.drv.SetPin(pin, LevelLow)
}

// Running reports whether a waveform is active on pin
func (p *SoftPWM) Running(pin GPIOPin) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.running[pin]
	return ok
}
