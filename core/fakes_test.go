package core

import (
	"errors"
	"runtime"
	"sync"
	"time"
)

type pinMode uint8

const (
	modeUnset pinMode = iota
	modeOutput
	modePullUp
	modePullDown
)

// fakeGPIO records pin modes, levels and rising edges
type fakeGPIO struct {
	mu       sync.Mutex
	modes    map[GPIOPin]pinMode
	levels   map[GPIOPin]bool
	rises    map[GPIOPin]int
	failPin  GPIOPin
	failSets bool
}

func newFakeGPIO() *fakeGPIO {
	return &fakeGPIO{
		modes:  make(map[GPIOPin]pinMode),
		levels: make(map[GPIOPin]bool),
		rises:  make(map[GPIOPin]int),
	}
}

var errFakePin = errors.New("fake pin failure")

func (f *fakeGPIO) ConfigureOutput(pin GPIOPin) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modes[pin] = modeOutput
	return nil
}

func (f *fakeGPIO) ConfigureInputPullUp(pin GPIOPin) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modes[pin] = modePullUp
	f.levels[pin] = true
	return nil
}

func (f *fakeGPIO) ConfigureInputPullDown(pin GPIOPin) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modes[pin] = modePullDown
	f.levels[pin] = false
	return nil
}

func (f *fakeGPIO) SetPin(pin GPIOPin, value bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSets && pin == f.failPin {
		return errFakePin
	}
	if value && !f.levels[pin] {
		f.rises[pin]++
	}
	f.levels[pin] = value
	return nil
}

func (f *fakeGPIO) GetPin(pin GPIOPin) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.levels[pin], nil
}

func (f *fakeGPIO) ReadPin(pin GPIOPin) bool {
	v, _ := f.GetPin(pin)
	return v
}

func (f *fakeGPIO) level(pin GPIOPin) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.levels[pin]
}

func (f *fakeGPIO) mode(pin GPIOPin) pinMode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.modes[pin]
}

func (f *fakeGPIO) risingEdges(pin GPIOPin) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rises[pin]
}

// drive sets an input level as if from outside
func (f *fakeGPIO) drive(pin GPIOPin, value bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.levels[pin] = value
}

// fakeClock advances virtual time on Sleep without blocking
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	slept time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(0, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.slept += d
	c.mu.Unlock()
	// Let goroutines polling with the fake clock make progress
	runtime.Gosched()
}

func (c *fakeClock) total() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slept
}

// fakePulses records continuous waveform requests
type fakePulses struct {
	mu       sync.Mutex
	running  map[GPIOPin]float64
	starts   int
	stops    int
	lastFreq float64
	lastDuty float64
}

func newFakePulses() *fakePulses {
	return &fakePulses{running: make(map[GPIOPin]float64)}
}

func (p *fakePulses) StartContinuous(pin GPIOPin, freqHz float64, duty float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running[pin] = freqHz
	p.starts++
	p.lastFreq = freqHz
	p.lastDuty = duty
	return nil
}

func (p *fakePulses) Stop(pin GPIOPin) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.running, pin)
	p.stops++
	return nil
}

func (p *fakePulses) isRunning(pin GPIOPin) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.running[pin]
	return ok
}

func (p *fakePulses) startCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.starts
}

// fakeSensor triggers once it has been read after calls times
type fakeSensor struct {
	mu      sync.Mutex
	after   int // -1 never triggers
	pattern []bool
	reads   int
}

func (s *fakeSensor) Configure() error { return nil }

func (s *fakeSensor) Triggered() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.reads
	s.reads++
	if i < len(s.pattern) {
		return s.pattern[i], nil
	}
	if s.after < 0 {
		return false, nil
	}
	return i >= s.after, nil
}

func (s *fakeSensor) Name() string { return "fake" }

func (s *fakeSensor) readCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// recordingLogger keeps formatted warnings for assertions
type recordingLogger struct {
	mu    sync.Mutex
	warns int
	infos int
}

func (l *recordingLogger) Debugf(string, ...interface{}) {}

func (l *recordingLogger) Infof(string, ...interface{}) {
	l.mu.Lock()
	l.infos++
	l.mu.Unlock()
}

func (l *recordingLogger) Warnf(string, ...interface{}) {
	l.mu.Lock()
	l.warns++
	l.mu.Unlock()
}

func (l *recordingLogger) warnCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.warns
}
