// Package machine runs the standalone controller: it assembles host lines,
// checks their framing, queues G-code for the motion worker and produces
// the ok/error responses.
package machine

import (
	"context"
	"errors"
	"io"
	"strconv"
	"sync"

	"stepctl/core"
	"stepctl/protocol"
	"stepctl/standalone"
	"stepctl/standalone/config"
	"stepctl/standalone/gcode"
)

var (
	// ErrBusy is answered when the command queue is full
	ErrBusy = errors.New("busy")
	// ErrDropped answers each queued line discarded by a stop
	ErrDropped = errors.New("dropped by stop")
)

// Hardware carries the platform collaborators the stepper is built on.
// GPIO is required; the rest depend on the configuration.
type Hardware struct {
	GPIO       core.GPIODriver
	Pulses     core.PulseGenerator // nil selects SoftPWM
	PIOBackend core.StepperBackend // used when step_backend is "pio"
	Distance   core.DistanceSensor // used when the homing sensor is "distance"
	ADC        core.ADCDriver      // used when the homing sensor is "analog"
	Clock      core.Clock
	Logger     core.Logger
}

// Manager coordinates the standalone mode components
type Manager struct {
	config      *standalone.MachineConfig
	parser      *gcode.Parser
	interpreter *gcode.Interpreter
	motor       *core.Stepper
	log         core.Logger

	// Serial input, only touched by the feeding goroutine
	inputBuffer *protocol.FifoBuffer
	tracker     protocol.LineTracker

	queue chan *standalone.GCodeCommand

	outMu        sync.Mutex
	outputBuffer []byte
	writer       io.Writer

	stateMu     sync.Mutex
	initialized bool
	running     bool
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewManager creates a manager from a JSON configuration
func NewManager(configData []byte) (*Manager, error) {
	cfg, err := config.LoadConfig(configData)
	if err != nil {
		return nil, err
	}

	return NewManagerWithConfig(cfg)
}

// NewManagerWithConfig creates a manager with an existing config
func NewManagerWithConfig(cfg *standalone.MachineConfig) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	depth := cfg.QueueDepth
	if depth < 1 {
		depth = 1
	}

	return &Manager{
		config:       cfg,
		parser:       gcode.NewParser(),
		log:          core.NewDebugLogger(nil, false),
		inputBuffer:  protocol.NewFifoBuffer(protocol.LineMax + 2),
		queue:        make(chan *standalone.GCodeCommand, depth),
		outputBuffer: make([]byte, 0, 256),
	}, nil
}

// Initialize builds the stepper on hw
func (m *Manager) Initialize(hw Hardware) error {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	if m.initialized {
		return errors.New("already initialized")
	}

	stepperCfg, err := config.StepperConfig(m.config)
	if err != nil {
		return err
	}
	stepperCfg.GPIO = hw.GPIO
	stepperCfg.Pulses = hw.Pulses
	stepperCfg.Clock = hw.Clock
	stepperCfg.Logger = hw.Logger

	if m.config.Motor.StepBackend == "pio" {
		if hw.PIOBackend == nil {
			return errors.New("step backend pio is not available on this platform")
		}
		stepperCfg.Backend = hw.PIOBackend
	}

	homing := m.config.Homing
	switch homing.Sensor {
	case standalone.SensorDistance:
		if hw.Distance == nil {
			return errors.New("homing sensor distance is not available on this platform")
		}
		stepperCfg.HomingSensor = &core.DistanceEndstop{
			Sensor:            hw.Distance,
			DistanceThreshold: homing.DistanceThresholdMM,
			TriggerBelow:      homing.TriggerBelow,
			Hysteresis:        homing.DistanceHysteresis,
		}
	case standalone.SensorAnalog:
		if hw.ADC == nil {
			return errors.New("homing sensor analog is not available on this platform")
		}
		stepperCfg.HomingSensor = core.NewAnalogEndstop(hw.ADC, core.ADCChannel(homing.ADCChannel),
			core.ADCValue(homing.ADCThreshold), homing.TriggerAbove, core.ADCValue(homing.ADCHysteresis))
	}

	motor, err := core.NewStepper(stepperCfg)
	if err != nil {
		return err
	}
	if div := m.config.Motor.MicrostepDivider; div > 1 {
		if err := motor.SetMicroStep(div); err != nil {
			return err
		}
	}

	if hw.Logger != nil {
		m.log = hw.Logger
	}
	m.motor = motor
	m.interpreter = gcode.NewInterpreter(m.config, motor, m.report)
	m.initialized = true
	return nil
}

// SetWriter sends responses straight to w instead of buffering them for
// GetOutput
func (m *Manager) SetWriter(w io.Writer) {
	m.outMu.Lock()
	defer m.outMu.Unlock()
	m.writer = w
	if w != nil && len(m.outputBuffer) > 0 {
		w.Write(m.outputBuffer)
		m.outputBuffer = m.outputBuffer[:0]
	}
}

// ProcessByte processes a single byte of input (for serial streaming)
func (m *Manager) ProcessByte(b byte) {
	m.Feed([]byte{b})
}

// Feed processes a chunk of serial input. Complete lines are checked and
// dispatched; a partial line stays buffered until its terminator arrives.
func (m *Manager) Feed(data []byte) {
	for len(data) > 0 {
		n := m.inputBuffer.Write(data)
		data = data[n:]
		for {
			raw, ok := m.inputBuffer.NextLine()
			if !ok {
				break
			}
			m.handleLine(raw)
		}
	}
}

// handleLine checks framing and sequence, then runs or queues the command
func (m *Manager) handleLine(raw string) {
	line, err := protocol.ParseLine(raw)
	if err != nil {
		m.resend(err)
		return
	}

	cmd, cmdErr := m.parser.ParseLine(line.Command)

	// M110 sets the line number instead of being checked against it
	if cmdErr == nil && cmd != nil && cmd.Type == 'M' && cmd.Number == 110 {
		switch {
		case cmd.HasParameter('N'):
			m.tracker.Reset(uint32(cmd.GetParameter('N', 0)))
		case line.HasNumber:
			m.tracker.Reset(line.Number)
		default:
			m.tracker = protocol.LineTracker{}
		}
		m.respond(nil)
		return
	}

	if err := m.tracker.Accept(line); err != nil {
		m.resend(err)
		return
	}
	if cmdErr != nil {
		m.respond(cmdErr)
		return
	}
	if cmd == nil || cmd.IsEmpty() {
		m.respond(nil)
		return
	}

	if !m.IsInitialized() {
		m.respond(errors.New("manager not initialized"))
		return
	}

	if gcode.IsImmediate(cmd) {
		// Drain first so the worker cannot pick up queued motion once the
		// running command is stopped
		if n := m.drainQueue(); n > 0 {
			m.log.Warnf("M%d dropped %d queued commands", cmd.Number, n)
		}
		m.respond(m.interpreter.Execute(context.Background(), cmd))
		return
	}
	if !m.IsRunning() {
		m.respond(m.interpreter.Execute(context.Background(), cmd))
		return
	}

	select {
	case m.queue <- cmd:
	default:
		m.respond(ErrBusy)
	}
}

// ProcessLine parses and executes one unframed line synchronously,
// bypassing the queue and the line-number check
func (m *Manager) ProcessLine(ctx context.Context, line string) error {
	if !m.IsInitialized() {
		return errors.New("manager not initialized")
	}

	cmd, err := m.parser.ParseLine(line)
	if err != nil {
		return err
	}
	return m.interpreter.Execute(ctx, cmd)
}

// Run executes queued commands until ctx is cancelled
func (m *Manager) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-m.queue:
			m.respond(m.interpreter.Execute(ctx, cmd))
		}
	}
}

// Start begins queued operation with a worker goroutine
func (m *Manager) Start() error {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	if !m.initialized {
		return errors.New("manager not initialized")
	}
	if m.running {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true

	go func(done chan struct{}) {
		defer close(done)
		m.Run(ctx)
	}(m.done)

	m.SendResponse("start\n")
	m.log.Infof("standalone mode ready, backend %s", m.motor.Status().Backend)
	return nil
}

// Stop halts the worker, drops queued commands and stops the motor
func (m *Manager) Stop() {
	m.stateMu.Lock()
	cancel, done := m.cancel, m.done
	m.running = false
	m.cancel = nil
	m.stateMu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	dropped := m.drainQueue()
	if dropped > 0 {
		m.log.Warnf("dropped %d queued commands", dropped)
	}
	if m.motor != nil {
		m.motor.QuickStop()
	}
}

// EmergencyStop drops queued commands and disables the driver at once
func (m *Manager) EmergencyStop() error {
	m.drainQueue()
	if m.motor == nil {
		return nil
	}
	m.log.Warnf("emergency stop")
	return m.motor.Disable()
}

// drainQueue discards queued commands, answering each so the host's line
// accounting stays in step
func (m *Manager) drainQueue() int {
	n := 0
	for {
		select {
		case <-m.queue:
			m.respond(ErrDropped)
			n++
		default:
			return n
		}
	}
}

// IsRunning returns whether the queue worker is running
func (m *Manager) IsRunning() bool {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.running
}

// IsInitialized returns whether Initialize succeeded
func (m *Manager) IsInitialized() bool {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.initialized
}

// Status returns the motor state
func (m *Manager) Status() core.Status {
	if m.motor == nil {
		return core.Status{}
	}
	return m.motor.Status()
}

// Motor returns the stepper, nil before Initialize
func (m *Manager) Motor() *core.Stepper {
	return m.motor
}

// Config returns the active configuration
func (m *Manager) Config() *standalone.MachineConfig {
	return m.config
}

// report emits an interpreter report line
func (m *Manager) report(line string) {
	m.SendResponse(line + "\n")
}

// respond emits the final answer for one line
func (m *Manager) respond(err error) {
	if err == nil {
		m.SendResponse(protocol.ResponseOK + "\n")
		return
	}
	m.SendResponse(protocol.ResponseErrorPrefix + " " + err.Error() + "\n")
}

// resend asks the host to retransmit from the expected line
func (m *Manager) resend(err error) {
	m.SendResponse(protocol.ResendPrefix + strconv.FormatUint(uint64(m.tracker.Expected()), 10) + "\n")
	m.respond(err)
}

// SendResponse queues a response to be sent to the host
func (m *Manager) SendResponse(response string) {
	m.outMu.Lock()
	defer m.outMu.Unlock()

	if m.writer != nil {
		io.WriteString(m.writer, response)
		return
	}
	m.outputBuffer = append(m.outputBuffer, response...)
}

// GetOutput returns any pending output and clears the buffer
func (m *Manager) GetOutput() []byte {
	m.outMu.Lock()
	defer m.outMu.Unlock()

	if len(m.outputBuffer) == 0 {
		return nil
	}

	output := make([]byte, len(m.outputBuffer))
	copy(output, m.outputBuffer)
	m.outputBuffer = m.outputBuffer[:0]
	return output
}
