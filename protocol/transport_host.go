package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// ErrTransportClosed is returned by calls on a closed transport
var ErrTransportClosed = errors.New("transport stopped")

// LineHandler receives report lines as they arrive
type LineHandler func(line string)

// DeviceError is an "error:" answer from the firmware
type DeviceError struct {
	Line    uint32
	Command string
	Message string
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("N%d %s: %s", e.Line, e.Command, e.Message)
}

// Response holds the report lines that preceded a command's "ok"
type Response struct {
	Lines []string
}

// HostOptions tunes a HostTransport
type HostOptions struct {
	// LinesPerSecond caps the command rate; 0 means unlimited
	LinesPerSecond float64
	Burst          int
}

type result struct {
	lines   []string
	errMsg  string
	failed  bool
	resend  uint32
	hasRsnd bool
}

// HostTransport handles the line protocol from the host side:
// numbers and checksums commands, sends one at a time and waits for
// the firmware's ok/error answer
type HostTransport struct {
	// Serial I/O
	port io.ReadWriteCloser

	// Next line number to send
	nextLine uint32 // atomic

	limiter *rate.Limiter

	inputBuffer *FifoBuffer

	// Report lines since the last result
	pendingMutex sync.Mutex
	pending      []string
	resend       uint32
	hasResend    bool

	resultChan  chan result
	lineHandler LineHandler

	// One command in flight
	sendMutex  sync.Mutex
	writeMutex sync.Mutex

	// Stop channel for graceful shutdown
	stopChan  chan struct{}
	doneChan  chan struct{}
	closeOnce sync.Once
}

// NewHostTransport creates a new host-side transport and starts its reader
func NewHostTransport(port io.ReadWriteCloser, opts HostOptions) *HostTransport {
	t := &HostTransport{
		port:        port,
		inputBuffer: NewFifoBuffer(512),
		resultChan:  make(chan result, 1),
		stopChan:    make(chan struct{}),
		doneChan:    make(chan struct{}),
	}
	if opts.LinesPerSecond > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(opts.LinesPerSecond), burst)
	}

	// Start background reader
	go t.readLoop()

	return t
}

// SetLineHandler sets a callback for report lines (M114 output, warnings, ...)
func (t *HostTransport) SetLineHandler(handler LineHandler) {
	t.pendingMutex.Lock()
	t.lineHandler = handler
	t.pendingMutex.Unlock()
}

// Sync resets the firmware line counter with "N0 M110"
func (t *HostTransport) Sync(ctx context.Context) error {
	atomic.StoreUint32(&t.nextLine, 0)
	_, err := t.SendCommand(ctx, "M110")
	return err
}

// SendCommand sends cmd and waits for its result. A firmware "error:"
// answer is returned as *DeviceError.
func (t *HostTransport) SendCommand(ctx context.Context, cmd string) (*Response, error) {
	t.sendMutex.Lock()
	defer t.sendMutex.Unlock()

	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	// Drop a stale result left over from a cancelled command
	select {
	case <-t.resultChan:
	default:
	}

	n := atomic.LoadUint32(&t.nextLine)
	if err := t.writeLine(FormatLine(n, cmd)); err != nil {
		return nil, fmt.Errorf("failed to write line: %w", err)
	}
	atomic.StoreUint32(&t.nextLine, n+1)

	select {
	case res := <-t.resultChan:
		if res.hasRsnd {
			atomic.StoreUint32(&t.nextLine, res.resend)
		}
		if res.failed {
			return nil, &DeviceError{Line: n, Command: cmd, Message: res.errMsg}
		}
		return &Response{Lines: res.lines}, nil

	case <-ctx.Done():
		return nil, ctx.Err()

	case <-t.stopChan:
		return nil, ErrTransportClosed
	}
}

// NextLineNumber returns the number the next command will carry
func (t *HostTransport) NextLineNumber() uint32 {
	return atomic.LoadUint32(&t.nextLine)
}

// writeLine sends one framed line to the serial port
func (t *HostTransport) writeLine(line string) error {
	t.writeMutex.Lock()
	defer t.writeMutex.Unlock()

	msg := []byte(line + "\n")
	n, err := t.port.Write(msg)
	if err != nil {
		return err
	}
	if n != len(msg) {
		return fmt.Errorf("incomplete write: %d/%d bytes", n, len(msg))
	}
	return nil
}

// readLoop continuously reads from serial port and processes lines
func (t *HostTransport) readLoop() {
	defer close(t.doneChan)

	buffer := make([]byte, 256)

	for {
		select {
		case <-t.stopChan:
			return
		default:
		}

		n, err := t.port.Read(buffer)
		if n > 0 {
			t.inputBuffer.Write(buffer[:n])
			t.processLines()
		}
		if err != nil {
			if err == io.EOF || errors.Is(err, io.ErrClosedPipe) {
				return
			}
			select {
			case <-t.stopChan:
				return
			case <-time.After(10 * time.Millisecond):
			}
		}
	}
}

// processLines dispatches every complete line in the input buffer
func (t *HostTransport) processLines() {
	for {
		line, ok := t.inputBuffer.NextLine()
		if !ok {
			return
		}
		t.dispatchLine(strings.TrimSpace(line))
	}
}

// dispatchLine sorts a line into results and report lines
func (t *HostTransport) dispatchLine(line string) {
	t.pendingMutex.Lock()

	switch {
	case line == ResponseOK || strings.HasPrefix(line, ResponseOK+" "):
		res := result{lines: t.pending, resend: t.resend, hasRsnd: t.hasResend}
		t.clearPendingLocked()
		t.pendingMutex.Unlock()
		t.deliver(res)
		return

	case strings.HasPrefix(line, ResponseErrorPrefix):
		res := result{
			lines:   t.pending,
			errMsg:  strings.TrimSpace(strings.TrimPrefix(line, ResponseErrorPrefix)),
			failed:  true,
			resend:  t.resend,
			hasRsnd: t.hasResend,
		}
		t.clearPendingLocked()
		t.pendingMutex.Unlock()
		t.deliver(res)
		return

	case strings.HasPrefix(line, ResendPrefix):
		if n, err := strconv.ParseUint(strings.TrimSpace(line[len(ResendPrefix):]), 10, 32); err == nil {
			t.resend = uint32(n)
			t.hasResend = true
		}
		t.pendingMutex.Unlock()
		return
	}

	if !strings.HasPrefix(line, CommentPrefix) {
		t.pending = append(t.pending, line)
	}
	handler := t.lineHandler
	t.pendingMutex.Unlock()

	if handler != nil {
		handler(line)
	}
}

func (t *HostTransport) clearPendingLocked() {
	t.pending = nil
	t.resend = 0
	t.hasResend = false
}

// deliver hands a result to the waiting sender, replacing an unread one
func (t *HostTransport) deliver(res result) {
	select {
	case t.resultChan <- res:
	default:
		select {
		case <-t.resultChan:
		default:
		}
		t.resultChan <- res
	}
}

// Close stops the transport and closes the serial port
func (t *HostTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.stopChan)
		if t.port != nil {
			err = t.port.Close()
		}
		<-t.doneChan // Wait for read loop to finish
	})
	return err
}
