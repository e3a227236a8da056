package core

import (
	"errors"
	"testing"
)

func TestDigitalOutBasic(t *testing.T) {
	gpio := newFakeGPIO()

	dout, err := NewDigitalOut(gpio, 25, LevelHigh, LevelLow)
	if err != nil {
		t.Fatalf("NewDigitalOut failed: %v", err)
	}
	if gpio.mode(25) != modeOutput {
		t.Errorf("expected pin 25 configured as output")
	}
	if !gpio.level(25) || !dout.IsOn() {
		t.Errorf("expected pin to be high")
	}

	if err := dout.Set(LevelLow); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if gpio.level(25) || dout.IsOn() {
		t.Errorf("expected pin to be low")
	}

	dout.Set(LevelHigh)
	if err := dout.Shutdown(); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if gpio.level(25) {
		t.Errorf("Shutdown should return the pin to its default low level")
	}
}

func TestDigitalOutFailedWriteKeepsFlag(t *testing.T) {
	gpio := newFakeGPIO()
	dout, _ := NewDigitalOut(gpio, 7, LevelHigh, LevelHigh)

	gpio.failPin = 7
	gpio.failSets = true
	if err := dout.Set(LevelLow); !errors.Is(err, errFakePin) {
		t.Fatalf("expected pin failure, got %v", err)
	}
	if !dout.IsOn() {
		t.Errorf("failed write should not change the recorded level")
	}
}

func TestGPIOStepperBackendDirectionSetup(t *testing.T) {
	gpio := newFakeGPIO()
	clock := newFakeClock()
	b := NewGPIOStepperBackend(gpio, clock, 0)
	if err := b.Init(17, 16, false); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	// Same level: no setup delay
	b.SetDirection(false)
	if clock.total() != 0 {
		t.Errorf("unchanged direction should not wait, slept %v", clock.total())
	}

	b.SetDirection(true)
	if !gpio.level(16) {
		t.Errorf("reverse should drive DIR high")
	}
	if clock.total() != DefaultDirSetupTime {
		t.Errorf("expected %v setup time, got %v", DefaultDirSetupTime, clock.total())
	}

	info := b.Info()
	if info.Name != "GPIO" || info.MinPulseNs != 2000 || info.MaxStepRate != 250000 {
		t.Errorf("unexpected backend info %+v", info)
	}
}
