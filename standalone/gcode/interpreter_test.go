package gcode

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"

	"stepctl/core"
	"stepctl/standalone"
	"stepctl/standalone/config"
)

// mockMotor records the calls made by the interpreter
type mockMotor struct {
	calls     []string
	status    core.Status
	triggered bool
	err       error
}

func newMockMotor() *mockMotor {
	return &mockMotor{status: core.Status{Direction: 1, MicrostepDivider: 1, HomingConfigured: true}}
}

func (m *mockMotor) record(call string) error {
	m.calls = append(m.calls, call)
	return m.err
}

func (m *mockMotor) Enable() error  { m.status.Enabled = true; return m.record("enable") }
func (m *mockMotor) Disable() error { m.status.Enabled = false; return m.record("disable") }
func (m *mockMotor) ReverseDirection() {
	m.status.Direction = -m.status.Direction
	m.record("reverse")
}
func (m *mockMotor) SetMicroStep(d int) error {
	m.status.MicrostepDivider = d
	return m.record("microstep " + itoa(int64(d)))
}
func (m *mockMotor) MoveSteps(_ context.Context, steps int64) error {
	m.status.Position += steps * int64(m.status.Direction)
	return m.record("move " + itoa(steps))
}
func (m *mockMotor) SetSpeed(rpm float64) error {
	return m.record("speed " + itoa(int64(rpm)))
}
func (m *mockMotor) Stop() error { return m.record("stop") }
func (m *mockMotor) HomeReverse(_ context.Context, rpm float64) error {
	return m.record("home reverse " + itoa(int64(rpm)))
}
func (m *mockMotor) HomeForward(rpm float64) error {
	return m.record("home forward " + itoa(int64(rpm)))
}
func (m *mockMotor) QuickStop() error { return m.record("quickstop") }
func (m *mockMotor) ResetPosition() {
	m.status.Position = 0
	m.record("reset")
}
func (m *mockMotor) HomingTriggered() (bool, error) { return m.triggered, nil }
func (m *mockMotor) Status() core.Status            { return m.status }

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}

type interpRig struct {
	interp  *Interpreter
	motor   *mockMotor
	reports []string
}

func newInterpRig() *interpRig {
	rig := &interpRig{motor: newMockMotor()}
	rig.interp = NewInterpreter(config.DefaultConfig(), rig.motor, func(line string) {
		rig.reports = append(rig.reports, line)
	})
	return rig
}

func (rig *interpRig) run(t *testing.T, line string) error {
	t.Helper()
	cmd, err := NewParser().ParseLine(line)
	if err != nil {
		t.Fatalf("Failed to parse '%s': %v", line, err)
	}
	return rig.interp.Execute(context.Background(), cmd)
}

func TestInterpreterCommands(t *testing.T) {
	tests := []struct {
		line string
		call string
	}{
		{"G1 X200", "move 200"},
		{"G0 X-50", "move -50"},
		{"G28", "home reverse -60"},
		{"G28 S-30", "home reverse -30"},
		{"G28 D1", "home forward 60"},
		{"G92", "reset"},
		{"G92 X0", "reset"},
		{"M3 S300", "speed 300"},
		{"M4 S300", "speed -300"},
		{"M5", "stop"},
		{"M17", "enable"},
		{"M18", "disable"},
		{"M84", "disable"},
		{"M112", "disable"},
		{"M350 S8", "microstep 8"},
		{"M410", "quickstop"},
		{"M569", "reverse"},
	}

	for _, test := range tests {
		rig := newInterpRig()
		if err := rig.run(t, test.line); err != nil {
			t.Errorf("'%s' failed: %v", test.line, err)
			continue
		}
		if len(rig.motor.calls) != 1 || rig.motor.calls[0] != test.call {
			t.Errorf("'%s': expected call %q, got %q", test.line, test.call, rig.motor.calls)
		}
	}
}

func TestInterpreterDirection(t *testing.T) {
	rig := newInterpRig()

	rig.run(t, "M569 S1")
	if rig.motor.status.Direction != -1 {
		t.Fatalf("M569 S1 should reverse")
	}
	rig.run(t, "M569 S1")
	if rig.motor.status.Direction != -1 {
		t.Errorf("M569 S1 twice should stay reversed")
	}
	rig.run(t, "M569 S0")
	if rig.motor.status.Direction != 1 {
		t.Errorf("M569 S0 should restore normal direction")
	}
	if err := rig.run(t, "M569 S2"); err == nil {
		t.Errorf("M569 S2 should fail")
	}
}

func TestInterpreterReports(t *testing.T) {
	rig := newInterpRig()
	rig.motor.status.Position = 1600
	rig.motor.status.MicrostepDivider = 8
	rig.motor.status.HasSpeed = true
	rig.motor.status.SpeedRPM = 300
	rig.motor.status.Enabled = true

	rig.run(t, "M114")
	want := "X:1600 DIR:1 MS:8 RPM:300 EN:1 MODE:discrete HOMING:idle"
	if len(rig.reports) != 1 || rig.reports[0] != want {
		t.Errorf("expected %q, got %q", want, rig.reports)
	}

	rig.reports = nil
	rig.motor.triggered = true
	rig.run(t, "M119")
	if len(rig.reports) != 1 || rig.reports[0] != "homing: TRIGGERED" {
		t.Errorf("unexpected M119 report %q", rig.reports)
	}

	rig.reports = nil
	rig.motor.status.HomingConfigured = false
	rig.run(t, "M119")
	if len(rig.reports) != 1 || rig.reports[0] != "homing: not configured" {
		t.Errorf("unexpected M119 report %q", rig.reports)
	}

	rig.reports = nil
	rig.run(t, "M115")
	if len(rig.reports) != 1 || !strings.HasPrefix(rig.reports[0], "FIRMWARE_NAME:stepctl") {
		t.Errorf("unexpected M115 report %q", rig.reports)
	}
}

func TestInterpreterRejects(t *testing.T) {
	tests := []struct {
		line string
		err  error
	}{
		{"G1 X1.5", ErrNotInteger},
		{"M3", ErrMissingParameter},
		{"M350", ErrMissingParameter},
		{"M350 S2.5", core.ErrInvalidMicrostep},
		{"G2 X10", ErrUnsupported},
		{"M104 S200", ErrUnsupported},
		{"T1", ErrUnsupported},
	}

	for _, test := range tests {
		rig := newInterpRig()
		err := rig.run(t, test.line)
		if !errors.Is(err, test.err) {
			t.Errorf("'%s': expected %v, got %v", test.line, test.err, err)
		}
		if len(rig.motor.calls) != 0 {
			t.Errorf("'%s': rejected command reached the motor: %q", test.line, rig.motor.calls)
		}
	}
}

func TestInterpreterFractionalMicrostep(t *testing.T) {
	rig := newInterpRig()
	err := rig.run(t, "M350 S8.5")
	if !errors.Is(err, core.ErrInvalidMicrostep) {
		t.Fatalf("expected ErrInvalidMicrostep, got %v", err)
	}
	if want := "M350 S8.5: invalid microstep divider"; err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestInterpreterPropagatesMotorErrors(t *testing.T) {
	rig := newInterpRig()
	rig.motor.err = core.ErrHomingNotConfigured

	if err := rig.run(t, "G28"); !errors.Is(err, core.ErrHomingNotConfigured) {
		t.Errorf("expected ErrHomingNotConfigured, got %v", err)
	}
}

func TestInterpreterIgnoresEmpty(t *testing.T) {
	rig := newInterpRig()
	if err := rig.run(t, "; just a comment"); err != nil {
		t.Errorf("comment line failed: %v", err)
	}
	if err := rig.interp.Execute(context.Background(), nil); err != nil {
		t.Errorf("nil command failed: %v", err)
	}
	if len(rig.motor.calls) != 0 {
		t.Errorf("empty lines reached the motor")
	}
}

func TestIsImmediate(t *testing.T) {
	for _, test := range []struct {
		line string
		want bool
	}{
		{"M410", true},
		{"M112", true},
		{"M114", false},
		{"G410", false},
	} {
		cmd, _ := NewParser().ParseLine(test.line)
		if IsImmediate(cmd) != test.want {
			t.Errorf("IsImmediate('%s') = %v", test.line, !test.want)
		}
	}
	if IsImmediate((*standalone.GCodeCommand)(nil)) {
		t.Errorf("nil command is not immediate")
	}
}
