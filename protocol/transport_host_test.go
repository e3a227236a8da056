package protocol

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// pipePort joins the host side of two pipes into one ReadWriteCloser
type pipePort struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (p *pipePort) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p *pipePort) Write(b []byte) (int, error) { return p.w.Write(b) }
func (p *pipePort) Close() error {
	p.w.Close()
	return p.r.Close()
}

// fakeDevice answers framed lines the way the firmware does
type fakeDevice struct {
	mu       sync.Mutex
	received []Line
	tracker  LineTracker
	reply    func(line Line) []string
}

func newFakeLink(t *testing.T, dev *fakeDevice) *HostTransport {
	t.Helper()
	hostR, devW := io.Pipe()
	devR, hostW := io.Pipe()

	go func() {
		scanner := bufio.NewScanner(devR)
		for scanner.Scan() {
			line, err := ParseLine(scanner.Text())
			var out []string
			switch {
			case err != nil:
				out = []string{ResendPrefix + strconv.Itoa(int(dev.tracker.Expected())), "error: " + err.Error()}
			case line.Command == "M110":
				dev.tracker.Reset(line.Number)
				out = []string{ResponseOK}
			default:
				if err := dev.tracker.Accept(line); err != nil {
					out = []string{ResendPrefix + strconv.Itoa(int(dev.tracker.Expected())), "error: " + err.Error()}
					break
				}
				dev.mu.Lock()
				dev.received = append(dev.received, line)
				dev.mu.Unlock()
				out = dev.reply(line)
			}
			for _, o := range out {
				if _, err := devW.Write([]byte(o + "\n")); err != nil {
					return
				}
			}
		}
		devW.Close()
	}()

	tr := NewHostTransport(&pipePort{r: hostR, w: hostW}, HostOptions{})
	t.Cleanup(func() { tr.Close() })
	return tr
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestHostTransportSendCommand(t *testing.T) {
	dev := &fakeDevice{reply: func(line Line) []string {
		if line.Command == "M114" {
			return []string{"X:10 DIR:1", ResponseOK}
		}
		return []string{ResponseOK}
	}}
	tr := newFakeLink(t, dev)
	ctx := testContext(t)

	if err := tr.Sync(ctx); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if _, err := tr.SendCommand(ctx, "G1 X10"); err != nil {
		t.Fatalf("SendCommand failed: %v", err)
	}
	resp, err := tr.SendCommand(ctx, "M114")
	if err != nil {
		t.Fatalf("SendCommand failed: %v", err)
	}
	if len(resp.Lines) != 1 || resp.Lines[0] != "X:10 DIR:1" {
		t.Errorf("unexpected report lines %q", resp.Lines)
	}

	dev.mu.Lock()
	defer dev.mu.Unlock()
	if len(dev.received) != 2 || dev.received[0].Number != 1 || dev.received[1].Number != 2 {
		t.Errorf("unexpected lines at device: %+v", dev.received)
	}
	if tr.NextLineNumber() != 3 {
		t.Errorf("expected next line 3, got %d", tr.NextLineNumber())
	}
}

func TestHostTransportDeviceError(t *testing.T) {
	dev := &fakeDevice{reply: func(line Line) []string {
		return []string{"error: speed exceeds limit"}
	}}
	tr := newFakeLink(t, dev)
	ctx := testContext(t)
	tr.Sync(ctx)

	_, err := tr.SendCommand(ctx, "M3 S700")
	var devErr *DeviceError
	if !errors.As(err, &devErr) {
		t.Fatalf("expected DeviceError, got %v", err)
	}
	if devErr.Message != "speed exceeds limit" || devErr.Command != "M3 S700" || devErr.Line != 1 {
		t.Errorf("unexpected device error %+v", devErr)
	}
}

func TestHostTransportResend(t *testing.T) {
	dev := &fakeDevice{reply: func(Line) []string { return []string{ResponseOK} }}
	tr := newFakeLink(t, dev)
	ctx := testContext(t)

	// Without Sync the device already expects 0; skip ahead to force a resend
	atomic.StoreUint32(&tr.nextLine, 4)
	_, err := tr.SendCommand(ctx, "M17")
	if err == nil {
		t.Fatalf("expected out-of-sequence error")
	}
	if tr.NextLineNumber() != 0 {
		t.Fatalf("resend should rewind to 0, got %d", tr.NextLineNumber())
	}
	if _, err := tr.SendCommand(ctx, "M17"); err != nil {
		t.Errorf("command after resend failed: %v", err)
	}
}

func TestHostTransportLineHandler(t *testing.T) {
	dev := &fakeDevice{reply: func(Line) []string {
		return []string{"// debug: move 5", "warning: motor disabled", ResponseOK}
	}}
	tr := newFakeLink(t, dev)
	ctx := testContext(t)

	var mu sync.Mutex
	var seen []string
	tr.SetLineHandler(func(line string) {
		mu.Lock()
		seen = append(seen, line)
		mu.Unlock()
	})

	tr.Sync(ctx)
	resp, err := tr.SendCommand(ctx, "G1 X5")
	if err != nil {
		t.Fatalf("SendCommand failed: %v", err)
	}
	if len(resp.Lines) != 1 || resp.Lines[0] != "warning: motor disabled" {
		t.Errorf("comment lines should stay out of the report: %q", resp.Lines)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != "// debug: move 5" {
		t.Errorf("unexpected handled lines %q", seen)
	}
}

func TestHostTransportTimeout(t *testing.T) {
	dev := &fakeDevice{reply: func(Line) []string { return nil }}
	tr := newFakeLink(t, dev)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := tr.SendCommand(ctx, "G28"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestHostTransportRateLimit(t *testing.T) {
	hostR, _ := io.Pipe()
	_, hostW := io.Pipe()
	tr := NewHostTransport(&pipePort{r: hostR, w: hostW}, HostOptions{LinesPerSecond: 1, Burst: 1})
	defer tr.Close()

	if tr.limiter == nil || tr.limiter.Burst() != 1 {
		t.Fatalf("expected a limiter with burst 1")
	}
}
