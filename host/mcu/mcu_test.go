package mcu

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"stepctl/core"
	"stepctl/protocol"
	"stepctl/standalone/config"
	"stepctl/standalone/machine"
)

type fakeGPIO struct {
	mu     sync.Mutex
	levels map[core.GPIOPin]bool
}

func (f *fakeGPIO) ConfigureOutput(core.GPIOPin) error            { return nil }
func (f *fakeGPIO) ConfigureInputPullUp(pin core.GPIOPin) error   { return f.SetPin(pin, true) }
func (f *fakeGPIO) ConfigureInputPullDown(pin core.GPIOPin) error { return f.SetPin(pin, false) }
func (f *fakeGPIO) GetPin(pin core.GPIOPin) (bool, error)         { return f.ReadPin(pin), nil }

func (f *fakeGPIO) SetPin(pin core.GPIOPin, value bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.levels[pin] = value
	return nil
}

func (f *fakeGPIO) ReadPin(pin core.GPIOPin) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.levels[pin]
}

type nopPulses struct{}

func (nopPulses) StartContinuous(core.GPIOPin, float64, float64) error { return nil }
func (nopPulses) Stop(core.GPIOPin) error                              { return nil }

type fastClock struct{}

func (fastClock) Now() time.Time      { return time.Now() }
func (fastClock) Sleep(time.Duration) {}

// hostPort is the host end of a pipe pair
type hostPort struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (p *hostPort) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p *hostPort) Write(b []byte) (int, error) { return p.w.Write(b) }
func (p *hostPort) Close() error {
	p.w.Close()
	return p.r.Close()
}

// connectController runs a Manager on fake pins behind a pipe and attaches
// an MCU to it
func connectController(t *testing.T) (*MCU, *fakeGPIO) {
	t.Helper()

	mgr, err := machine.NewManagerWithConfig(config.DefaultConfig())
	if err != nil {
		t.Fatalf("NewManagerWithConfig failed: %v", err)
	}
	gpio := &fakeGPIO{levels: make(map[core.GPIOPin]bool)}
	if err := mgr.Initialize(machine.Hardware{GPIO: gpio, Pulses: nopPulses{}, Clock: fastClock{}}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	hostR, devW := io.Pipe()
	devR, hostW := io.Pipe()
	mgr.SetWriter(devW)
	go func() {
		buf := make([]byte, 64)
		for {
			n, err := devR.Read(buf)
			if n > 0 {
				mgr.Feed(buf[:n])
			}
			if err != nil {
				devW.Close()
				return
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	m := NewMCU(protocol.HostOptions{})
	if err := m.Attach(ctx, &hostPort{r: hostR, w: hostW}); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m, gpio
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestMCUSession(t *testing.T) {
	m, _ := connectController(t)
	ctx := testContext(t)

	info, err := m.Identify(ctx)
	if err != nil {
		t.Fatalf("Identify failed: %v", err)
	}
	if info.Name != "stepctl" || info.Version != protocol.Version {
		t.Errorf("unexpected firmware info %+v", info)
	}

	steps := []func() error{
		func() error { return m.Enable(ctx) },
		func() error { return m.SetMicrostep(ctx, 8) },
		func() error { return m.Move(ctx, 1600) },
		func() error { return m.SetDirection(ctx, true) },
		func() error { return m.Move(ctx, 100) },
		func() error { return m.SetSpeed(ctx, 300) },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d failed: %v", i, err)
		}
	}

	st, err := m.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	want := Status{Position: 1500, Direction: -1, Microstep: 8, SpeedRPM: 300, HasSpeed: true,
		Enabled: true, Mode: "continuous", Homing: "idle"}
	if *st != want {
		t.Errorf("unexpected status %+v, want %+v", *st, want)
	}
}

func TestMCUDeviceErrors(t *testing.T) {
	m, _ := connectController(t)
	ctx := testContext(t)

	err := m.SetSpeed(ctx, 700)
	var devErr *protocol.DeviceError
	if !errors.As(err, &devErr) {
		t.Fatalf("expected DeviceError, got %v", err)
	}
	if devErr.Message != "config: speed 700 RPM exceeds max speed (600 RPM)" {
		t.Errorf("unexpected message %q", devErr.Message)
	}

	// The link stays usable after a rejected command
	if err := m.Stop(ctx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}

func TestMCUHoming(t *testing.T) {
	m, gpio := connectController(t)
	ctx := testContext(t)

	state, err := m.Endstop(ctx)
	if err != nil || state != "open" {
		t.Fatalf("expected open endstop, got %q, %v", state, err)
	}

	m.Move(ctx, 50)
	gpio.SetPin(4, false)
	if err := m.Home(ctx, 0); err != nil {
		t.Fatalf("Home failed: %v", err)
	}
	st, _ := m.Status(ctx)
	if st.Position != 0 || st.Homing != "idle" || st.Mode != "discrete" {
		t.Errorf("unexpected status after homing %+v", st)
	}

	m.Move(ctx, 20)
	if err := m.HomeForward(ctx); err != nil {
		t.Fatalf("HomeForward failed: %v", err)
	}
	if st, _ := m.Status(ctx); st.Position != 0 {
		t.Errorf("HomeForward should zero the position, got %d", st.Position)
	}
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus("X:-42 DIR:1 MS:16 RPM:- EN:0 MODE:discrete HOMING:homing")
	if err != nil {
		t.Fatalf("ParseStatus failed: %v", err)
	}
	if st.Position != -42 || st.Microstep != 16 || st.HasSpeed || st.Enabled || st.Homing != "homing" {
		t.Errorf("unexpected status %+v", st)
	}

	for _, bad := range []string{"X:abc", "X:1 DIR", "MS:x"} {
		if _, err := ParseStatus(bad); err == nil {
			t.Errorf("ParseStatus(%q) should fail", bad)
		}
	}
}

func TestMCUNotConnected(t *testing.T) {
	m := NewMCU(protocol.HostOptions{})
	if err := m.Enable(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}
