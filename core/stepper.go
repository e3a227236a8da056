package core

// Stepper motor control for step/direction drivers (A4988 class)
// One Stepper owns one driver: STEP, DIR and an active-low ENABLE line
// (called the disable pin here since driving it high disables the output
// stage), plus an optional homing sensor.

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"
)

const (
	// FullStepsPerRevolution is the step count of a 1.8 degree motor
	FullStepsPerRevolution = 200

	// DefaultMaxRPM is the speed limit applied when none is configured
	DefaultMaxRPM = 600

	DefaultHomeReverseRPM = -60
	DefaultHomeForwardRPM = 60
)

var validMicrosteps = [...]int{1, 2, 4, 8, 16}

// ValidMicrostep reports whether divider is a supported microstep divider
func ValidMicrostep(divider int) bool {
	for _, v := range validMicrosteps {
		if v == divider {
			return true
		}
	}
	return false
}

// StepsPerRevolution returns the microsteps per revolution for divider
func StepsPerRevolution(divider int) int {
	return FullStepsPerRevolution * divider
}

// StepFrequency converts rpm to a signed step rate in Hz
func StepFrequency(rpm float64, divider int) float64 {
	return rpm * float64(StepsPerRevolution(divider)) / 60
}

// MaxStepFrequency returns the highest step rate allowed at maxRPM
func MaxStepFrequency(maxRPM float64, divider int) float64 {
	return StepFrequency(maxRPM, divider)
}

// Mode tells which pulse source currently owns the step pin
type Mode uint8

const (
	// ModeDiscreteIdle: no waveform; MoveSteps may emit discrete pulses
	ModeDiscreteIdle Mode = iota
	// ModeContinuousRunning: the PulseGenerator drives the step pin
	ModeContinuousRunning
)

func (m Mode) String() string {
	switch m {
	case ModeDiscreteIdle:
		return "discrete"
	case ModeContinuousRunning:
		return "continuous"
	}
	return "unknown"
}

// HomingState is Idle -> Homing -> Idle
type HomingState uint8

const (
	HomingIdle HomingState = iota
	HomingActive
)

func (h HomingState) String() string {
	if h == HomingActive {
		return "homing"
	}
	return "idle"
}

// StepperConfig wires a Stepper to its pins and collaborators.
// StepPin, DirPin, DisablePin and GPIO are required.
type StepperConfig struct {
	StepPin    *GPIOPin
	DirPin     *GPIOPin
	DisablePin *GPIOPin

	// HomingPin is an optional switch input, configured with a pull-up.
	// HomingSensor, when set, is used instead.
	HomingPin         *GPIOPin
	HomingSensor      HomingSensor
	HomingTriggerHigh bool
	HomingSampling    Sampling

	InvertDir     bool          // Invert direction signal
	MaxRPM        float64       // 0 selects DefaultMaxRPM
	MinPulseWidth time.Duration // 0 selects DefaultMinPulseWidth

	GPIO    GPIODriver
	Pulses  PulseGenerator // nil selects SoftPWM over GPIO
	Backend StepperBackend // nil selects GPIOStepperBackend over GPIO
	Clock   Clock          // nil selects SystemClock
	Logger  Logger         // nil discards messages
}

// Status is a snapshot of the motor state
type Status struct {
	Position         int64
	Direction        int
	MicrostepDivider int
	SpeedRPM         float64
	HasSpeed         bool // false until the first successful SetSpeed
	Enabled          bool
	Mode             Mode
	Homing           HomingState
	HomingConfigured bool
	HomingSensor     string
	Backend          string
}

// Stepper represents a single stepper motor axis.
//
// Motion commands (MoveSteps, SetSpeed, Stop, homing transitions) are
// serialised by motionMu, so the pulses of one MoveSteps are never
// interleaved with another command. Field reads and writes go through
// stateMu and never wait for a running move.
type Stepper struct {
	stepPin GPIOPin
	disable *DigitalOut
	backend StepperBackend
	pulses  PulseGenerator
	homing  HomingSensor

	sampling Sampling
	clock    Clock
	log      Logger
	maxRPM   float64

	motionMu sync.Mutex

	stateMu     sync.Mutex
	position    int64
	direction   int
	divider     int
	speedRPM    float64
	hasSpeed    bool
	enabled     bool
	mode        Mode
	homingState HomingState

	cancelMu     sync.Mutex
	cancelMove   context.CancelFunc
	cancelHoming context.CancelFunc
	stopGen      uint64 // bumped by every cancelActive
}

// NewStepper configures the pins and returns a disabled stepper at
// position 0, direction +1, full stepping, with no speed commanded
func NewStepper(cfg StepperConfig) (*Stepper, error) {
	switch {
	case cfg.StepPin == nil:
		return nil, &ConfigError{Kind: MissingPin, Pin: "step"}
	case cfg.DirPin == nil:
		return nil, &ConfigError{Kind: MissingPin, Pin: "dir"}
	case cfg.DisablePin == nil:
		return nil, &ConfigError{Kind: MissingPin, Pin: "disable"}
	}
	if cfg.GPIO == nil {
		return nil, errors.New("config: gpio driver is nil")
	}

	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = nopLogger{}
	}
	if cfg.MaxRPM <= 0 {
		cfg.MaxRPM = DefaultMaxRPM
	}
	if cfg.Backend == nil {
		cfg.Backend = NewGPIOStepperBackend(cfg.GPIO, cfg.Clock, cfg.MinPulseWidth)
	}
	if cfg.Pulses == nil {
		cfg.Pulses = NewSoftPWM(cfg.GPIO, cfg.Clock)
	}

	// STEP and DIR low
	if err := cfg.Backend.Init(*cfg.StepPin, *cfg.DirPin, cfg.InvertDir); err != nil {
		return nil, err
	}

	// Driver output stage off until Enable
	disable, err := NewDigitalOut(cfg.GPIO, *cfg.DisablePin, LevelHigh, LevelHigh)
	if err != nil {
		return nil, err
	}

	homing := cfg.HomingSensor
	if homing == nil && cfg.HomingPin != nil {
		homing = NewEndstop(cfg.GPIO, *cfg.HomingPin, true, cfg.HomingTriggerHigh)
	}
	if homing != nil {
		if err := homing.Configure(); err != nil {
			return nil, err
		}
	}

	return &Stepper{
		stepPin:   *cfg.StepPin,
		disable:   disable,
		backend:   cfg.Backend,
		pulses:    cfg.Pulses,
		homing:    homing,
		sampling:  cfg.HomingSampling,
		clock:     cfg.Clock,
		log:       cfg.Logger,
		maxRPM:    cfg.MaxRPM,
		position:  0,
		direction: 1,
		divider:   1,
		mode:      ModeDiscreteIdle,
	}, nil
}

// Enable activates the driver output stage
func (s *Stepper) Enable() error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if err := s.disable.Set(LevelLow); err != nil {
		return err
	}
	s.enabled = true
	s.log.Infof("Motor enabled")
	return nil
}

// Disable turns the driver output stage off. It first aborts homing and
// any in-flight move (at the next pulse boundary) and stops continuous
// mode, so it is safe to call at any time.
func (s *Stepper) Disable() error {
	s.cancelActive()

	s.motionMu.Lock()
	defer s.motionMu.Unlock()

	stopErr := s.stopContinuousLocked()

	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if err := s.disable.Set(LevelHigh); err != nil {
		return err
	}
	s.enabled = false
	s.log.Infof("Motor disabled")
	return stopErr
}

// ReverseDirection flips the sign applied to all step and speed commands.
// Pins are only updated by the next move or speed command.
func (s *Stepper) ReverseDirection() {
	s.stateMu.Lock()
	s.direction = -s.direction
	s.stateMu.Unlock()
	s.log.Infof("Motor direction reversed")
}

// SetMicroStep records the microstep divider. The speed is not rescaled;
// call SetSpeed again for the new divider to reach the pulse generator.
func (s *Stepper) SetMicroStep(divider int) error {
	if !ValidMicrostep(divider) {
		return &ConfigError{Kind: InvalidMicrostep, Divider: divider}
	}

	s.stateMu.Lock()
	s.divider = divider
	s.stateMu.Unlock()

	// The MS1-MS3 inputs are strapped on the board; nothing here can read them back
	s.log.Warnf("Microstepping set to %d. Microstepping must be set on the physical driver as well", divider)
	return nil
}

// MoveSteps emits |steps| pulses in the direction sign(steps)*direction and
// blocks until they are done. Continuous mode is stopped first.
// ctx is checked between pulses; on cancellation the position accounts
// for the pulses already emitted and ctx.Err() is returned.
func (s *Stepper) MoveSteps(ctx context.Context, steps int64) error {
	gen := s.stopGeneration()
	s.motionMu.Lock()
	defer s.motionMu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.registerCancel(&s.cancelMove, cancel, gen)
	defer s.setCancel(&s.cancelMove, nil)

	s.stateMu.Lock()
	homing := s.homingState
	direction := s.direction
	enabled := s.enabled
	s.stateMu.Unlock()

	if homing == HomingActive {
		return ErrHomingInProgress
	}
	if steps == 0 {
		return nil
	}

	if err := s.stopContinuousLocked(); err != nil {
		return err
	}
	if !enabled {
		s.log.Warnf("Moving %d steps while the driver is disabled", steps)
	}

	// Counted unsigned so math.MinInt64 has a magnitude
	sign := int64(1)
	count := uint64(steps)
	if steps < 0 {
		sign = -1
		count = -count
	}
	if err := s.backend.SetDirection(sign*int64(direction) < 0); err != nil {
		return err
	}

	var emitted uint64
	var err error
	for emitted < count {
		if err = ctx.Err(); err != nil {
			break
		}
		if err = s.backend.Step(); err != nil {
			break
		}
		emitted++
	}

	s.stateMu.Lock()
	s.position += int64(emitted) * sign * int64(direction)
	position := s.position
	s.stateMu.Unlock()

	if err != nil {
		s.log.Warnf("Move interrupted after %d of %d steps: %v. New position: %d", emitted, count, err, position)
		return err
	}
	s.log.Infof("Motor moved %d steps. New position: %d", steps, position)
	return nil
}

// SetSpeed runs the motor continuously at rpm (signed). A speed above the
// limit is rejected without touching any state. rpm == 0 stops the waveform.
func (s *Stepper) SetSpeed(rpm float64) error {
	s.motionMu.Lock()
	defer s.motionMu.Unlock()

	if s.HomingState() == HomingActive {
		return ErrHomingInProgress
	}
	return s.setSpeedLocked(rpm)
}

// setSpeedLocked requires motionMu
func (s *Stepper) setSpeedLocked(rpm float64) error {
	s.stateMu.Lock()
	divider := s.divider
	direction := s.direction
	enabled := s.enabled
	s.stateMu.Unlock()

	freq := StepFrequency(rpm, divider)
	maxFreq := MaxStepFrequency(s.maxRPM, divider)
	if math.IsNaN(freq) || math.Abs(freq) > maxFreq {
		return &ConfigError{Kind: SpeedExceedsLimit, RPM: rpm, MaxRPM: s.maxRPM}
	}

	if rpm == 0 {
		if err := s.stopContinuousLocked(); err != nil {
			return err
		}
		s.stateMu.Lock()
		s.speedRPM = 0
		s.hasSpeed = true
		s.stateMu.Unlock()
		s.log.Infof("Speed set to 0 RPM, motor stopped")
		return nil
	}

	if !enabled {
		s.log.Warnf("Setting speed %g RPM while the driver is disabled", rpm)
	}

	if err := s.backend.SetDirection(rpm*float64(direction) < 0); err != nil {
		return err
	}
	if err := s.pulses.StartContinuous(s.stepPin, math.Abs(freq), DefaultDutyCycle); err != nil {
		return err
	}

	s.stateMu.Lock()
	s.speedRPM = rpm
	s.hasSpeed = true
	s.mode = ModeContinuousRunning
	s.stateMu.Unlock()

	s.log.Infof("Speed set to %g RPM (%.2f steps per second)", rpm, freq)
	return nil
}

// Stop leaves continuous mode. The last commanded speed is kept for Status.
func (s *Stepper) Stop() error {
	s.motionMu.Lock()
	defer s.motionMu.Unlock()
	return s.stopContinuousLocked()
}

// QuickStop aborts homing and any in-flight move (at the next pulse
// boundary), then leaves continuous mode. The driver stays enabled.
func (s *Stepper) QuickStop() error {
	s.cancelActive()

	s.motionMu.Lock()
	defer s.motionMu.Unlock()
	return s.stopContinuousLocked()
}

// stopContinuousLocked requires motionMu
func (s *Stepper) stopContinuousLocked() error {
	s.stateMu.Lock()
	running := s.mode == ModeContinuousRunning
	s.stateMu.Unlock()
	if !running {
		return nil
	}

	if err := s.pulses.Stop(s.stepPin); err != nil {
		return err
	}

	s.stateMu.Lock()
	s.mode = ModeDiscreteIdle
	s.stateMu.Unlock()
	s.log.Debugf("Continuous stepping stopped")
	return nil
}

// HomeReverse runs at rpm (normally DefaultHomeReverseRPM) until the homing
// sensor triggers, then stops and zeroes the position. It blocks until the
// trigger, AbortHoming, Disable or ctx cancellation; the last three return
// ErrHomingAborted and leave the position unchanged.
func (s *Stepper) HomeReverse(ctx context.Context, rpm float64) error {
	if s.homing == nil {
		return &HomingError{Op: "home reverse"}
	}

	gen := s.stopGeneration()
	s.motionMu.Lock()
	if s.HomingState() == HomingActive {
		s.motionMu.Unlock()
		return ErrHomingInProgress
	}

	s.log.Infof("Homing motor using %s...", s.homing.Name())
	if err := s.setSpeedLocked(rpm); err != nil {
		s.motionMu.Unlock()
		return err
	}

	hctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.registerCancel(&s.cancelHoming, cancel, gen)
	s.setHomingState(HomingActive)
	s.motionMu.Unlock()

	// Wait without motionMu so Disable and AbortHoming can get in
	waitErr := WaitForTrigger(hctx, s.homing, s.sampling, s.clock)

	s.motionMu.Lock()
	defer s.motionMu.Unlock()
	s.setCancel(&s.cancelHoming, nil)
	stopErr := s.stopContinuousLocked()
	s.setHomingState(HomingIdle)

	if waitErr != nil {
		if hctx.Err() != nil {
			s.log.Warnf("Homing aborted")
			return ErrHomingAborted
		}
		return waitErr
	}
	if stopErr != nil {
		return stopErr
	}

	s.stateMu.Lock()
	s.position = 0
	s.stateMu.Unlock()
	s.log.Infof("Motor homed successfully.")
	return nil
}

// HomeForward resets the position to zero without moving the motor.
// rpm is accepted for symmetry with HomeReverse and is not used.
func (s *Stepper) HomeForward(rpm float64) error {
	if s.homing == nil {
		return &HomingError{Op: "home forward"}
	}

	s.motionMu.Lock()
	defer s.motionMu.Unlock()
	if s.HomingState() == HomingActive {
		return ErrHomingInProgress
	}

	s.log.Infof("Homing motor using %s...", s.homing.Name())
	s.stateMu.Lock()
	s.position = 0
	s.stateMu.Unlock()
	s.log.Infof("Motor homed successfully.")
	return nil
}

// AbortHoming cancels a running HomeReverse. It reports whether one was running.
func (s *Stepper) AbortHoming() bool {
	s.cancelMu.Lock()
	defer s.cancelMu.Unlock()
	if s.cancelHoming == nil {
		return false
	}
	s.cancelHoming()
	return true
}

// ResetPosition sets the current position as zero
func (s *Stepper) ResetPosition() {
	s.motionMu.Lock()
	defer s.motionMu.Unlock()

	s.stateMu.Lock()
	s.position = 0
	s.stateMu.Unlock()
}

// HomingTriggered samples the homing sensor once
func (s *Stepper) HomingTriggered() (bool, error) {
	if s.homing == nil {
		return false, &HomingError{Op: "query endstop"}
	}
	return s.homing.Triggered()
}

// Position returns the current position in microsteps
func (s *Stepper) Position() int64 {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.position
}

// Direction returns +1 or -1
func (s *Stepper) Direction() int {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.direction
}

// MicrostepDivider returns the configured divider
func (s *Stepper) MicrostepDivider() int {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.divider
}

// Speed returns the last commanded speed; ok is false before any SetSpeed
func (s *Stepper) Speed() (rpm float64, ok bool) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.speedRPM, s.hasSpeed
}

// Enabled reports whether the driver output stage is active
func (s *Stepper) Enabled() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.enabled
}

// Mode returns the active pulse source
func (s *Stepper) Mode() Mode {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.mode
}

// HomingState returns whether homing is in progress
func (s *Stepper) HomingState() HomingState {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.homingState
}

// HomingConfigured reports whether a homing pin or sensor was supplied
func (s *Stepper) HomingConfigured() bool {
	return s.homing != nil
}

// Status returns a snapshot of the motor state
func (s *Stepper) Status() Status {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	st := Status{
		Position:         s.position,
		Direction:        s.direction,
		MicrostepDivider: s.divider,
		SpeedRPM:         s.speedRPM,
		HasSpeed:         s.hasSpeed,
		Enabled:          s.enabled,
		Mode:             s.mode,
		Homing:           s.homingState,
		HomingConfigured: s.homing != nil,
		Backend:          s.backend.Name(),
	}
	if s.homing != nil {
		st.HomingSensor = s.homing.Name()
	}
	return st
}

func (s *Stepper) setHomingState(h HomingState) {
	s.stateMu.Lock()
	s.homingState = h
	s.stateMu.Unlock()
}

func (s *Stepper) setCancel(slot *context.CancelFunc, cancel context.CancelFunc) {
	s.cancelMu.Lock()
	*slot = cancel
	s.cancelMu.Unlock()
}

// registerCancel installs cancel in slot. A stop that arrived since gen was
// read found nothing to cancel, so cancel fires at once.
func (s *Stepper) registerCancel(slot *context.CancelFunc, cancel context.CancelFunc, gen uint64) {
	s.cancelMu.Lock()
	defer s.cancelMu.Unlock()
	*slot = cancel
	if s.stopGen != gen {
		cancel()
	}
}

func (s *Stepper) stopGeneration() uint64 {
	s.cancelMu.Lock()
	defer s.cancelMu.Unlock()
	return s.stopGen
}

// cancelActive interrupts a running move and homing wait
func (s *Stepper) cancelActive() {
	s.cancelMu.Lock()
	defer s.cancelMu.Unlock()
	s.stopGen++
	if s.cancelMove != nil {
		s.cancelMove()
	}
	if s.cancelHoming != nil {
		s.cancelHoming()
	}
}
