//go:build linux

package linuxgpio

import (
	"testing"

	"stepctl/core"
)

var _ core.GPIODriver = (*Driver)(nil)

func TestUnconfiguredPin(t *testing.T) {
	d := New("")
	if d.chip != DefaultChip {
		t.Errorf("expected default chip, got %s", d.chip)
	}

	if err := d.SetPin(17, true); err == nil {
		t.Errorf("SetPin on an unconfigured line should fail")
	}
	if _, err := d.GetPin(4); err == nil {
		t.Errorf("GetPin on an unconfigured line should fail")
	}
	if d.ReadPin(4) {
		t.Errorf("ReadPin should report low on error")
	}
	if err := d.Close(); err != nil {
		t.Errorf("Close with no lines failed: %v", err)
	}
}

func TestMissingChip(t *testing.T) {
	d := New("gpiochip-does-not-exist")
	if err := d.ConfigureOutput(17); err == nil {
		t.Errorf("expected an error for a missing chip")
	}
}
