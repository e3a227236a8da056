package gcode

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"

	"stepctl/core"
	"stepctl/protocol"
	"stepctl/standalone"
)

var (
	ErrMissingParameter = errors.New("gcode: missing parameter")
	ErrNotInteger       = errors.New("gcode: step count must be an integer")
	ErrUnsupported      = errors.New("gcode: unsupported command")
)

// Motor is the motion surface the interpreter drives.
// *core.Stepper implements it.
type Motor interface {
	Enable() error
	Disable() error
	ReverseDirection()
	SetMicroStep(divider int) error
	MoveSteps(ctx context.Context, steps int64) error
	SetSpeed(rpm float64) error
	Stop() error
	HomeReverse(ctx context.Context, rpm float64) error
	HomeForward(rpm float64) error
	QuickStop() error
	ResetPosition()
	HomingTriggered() (bool, error)
	Status() core.Status
}

// Interpreter executes G-code commands against one motor
type Interpreter struct {
	motor   Motor
	config  *standalone.MachineConfig
	respond func(string) // Report lines (M114, M119, M115)
}

// NewInterpreter creates a new G-code interpreter. respond receives report
// lines, without terminator.
func NewInterpreter(config *standalone.MachineConfig, motor Motor, respond func(string)) *Interpreter {
	if respond == nil {
		respond = func(string) {}
	}
	return &Interpreter{
		motor:   motor,
		config:  config,
		respond: respond,
	}
}

// IsImmediate reports whether cmd must bypass the command queue:
// M410 (quick stop) and M112 (emergency stop)
func IsImmediate(cmd *standalone.GCodeCommand) bool {
	return cmd != nil && cmd.Type == 'M' && (cmd.Number == 410 || cmd.Number == 112)
}

// Execute executes a parsed G-code command
func (interp *Interpreter) Execute(ctx context.Context, cmd *standalone.GCodeCommand) error {
	if cmd == nil || cmd.IsEmpty() {
		return nil
	}

	switch cmd.Type {
	case 'G':
		return interp.executeG(ctx, cmd)
	case 'M':
		return interp.executeM(cmd)
	}

	return unsupported(cmd)
}

// executeG handles G-codes
func (interp *Interpreter) executeG(ctx context.Context, cmd *standalone.GCodeCommand) error {
	switch cmd.Number {
	case 0, 1: // G0/G1 - Relative move in microsteps
		return interp.doMove(ctx, cmd)
	case 28: // G28 - Home
		return interp.doHome(ctx, cmd)
	case 92: // G92 - Set position
		return interp.doSetPosition(cmd)
	}

	return unsupported(cmd)
}

// executeM handles M-codes
func (interp *Interpreter) executeM(cmd *standalone.GCodeCommand) error {
	switch cmd.Number {
	case 3, 4: // M3/M4 - Run clockwise / counter-clockwise at S rpm
		if !cmd.HasParameter('S') {
			return missing(cmd, 'S')
		}
		rpm := cmd.GetParameter('S', 0)
		if cmd.Number == 4 {
			rpm = -rpm
		}
		return interp.motor.SetSpeed(rpm)
	case 5: // M5 - Stop continuous rotation
		return interp.motor.Stop()
	case 17: // M17 - Enable driver
		return interp.motor.Enable()
	case 18, 84: // M18/M84 - Disable driver
		return interp.motor.Disable()
	case 110: // M110 - Line numbers are handled by the manager
		return nil
	case 112: // M112 - Emergency stop
		return interp.motor.Disable()
	case 114: // M114 - Report position
		interp.respond(FormatStatus(interp.motor.Status()))
		return nil
	case 115: // M115 - Firmware info
		interp.respond("FIRMWARE_NAME:stepctl FIRMWARE_VERSION:" + protocol.Version)
		return nil
	case 119: // M119 - Endstop state
		return interp.reportEndstop()
	case 350: // M350 - Microstep divider
		if !cmd.HasParameter('S') {
			return missing(cmd, 'S')
		}
		div := cmd.GetParameter('S', 0)
		if div != math.Trunc(div) {
			return &CommandError{
				Command: commandName(cmd) + " S" + strconv.FormatFloat(div, 'g', -1, 64),
				Err:     core.ErrInvalidMicrostep,
			}
		}
		return interp.motor.SetMicroStep(int(div))
	case 410: // M410 - Quick stop
		return interp.motor.QuickStop()
	case 569: // M569 - Direction: S0 normal, S1 reversed, no S toggles
		return interp.doDirection(cmd)
	}

	return unsupported(cmd)
}

// doMove executes a relative move (G0/G1 X<steps>)
func (interp *Interpreter) doMove(ctx context.Context, cmd *standalone.GCodeCommand) error {
	if !cmd.HasParameter('X') {
		return nil
	}
	steps := cmd.GetParameter('X', 0)
	if steps != math.Trunc(steps) || math.Abs(steps) > math.MaxInt32 {
		return ErrNotInteger
	}
	return interp.motor.MoveSteps(ctx, int64(steps))
}

// doHome executes homing (G28). D1 selects the forward variant.
func (interp *Interpreter) doHome(ctx context.Context, cmd *standalone.GCodeCommand) error {
	if cmd.GetParameter('D', 0) == 1 {
		return interp.motor.HomeForward(cmd.GetParameter('S', interp.config.Homing.ForwardRPM))
	}
	return interp.motor.HomeReverse(ctx, cmd.GetParameter('S', interp.config.Homing.ReverseRPM))
}

// doSetPosition zeroes the position (G92 or G92 X0)
func (interp *Interpreter) doSetPosition(cmd *standalone.GCodeCommand) error {
	if cmd.GetParameter('X', 0) != 0 {
		return errors.New("gcode: G92 only supports X0")
	}
	interp.motor.ResetPosition()
	return nil
}

// doDirection sets or toggles the direction sign (M569)
func (interp *Interpreter) doDirection(cmd *standalone.GCodeCommand) error {
	if !cmd.HasParameter('S') {
		interp.motor.ReverseDirection()
		return nil
	}

	want := 1
	switch cmd.GetParameter('S', 0) {
	case 0:
	case 1:
		want = -1
	default:
		return errors.New("gcode: M569 S must be 0 or 1")
	}
	if interp.motor.Status().Direction != want {
		interp.motor.ReverseDirection()
	}
	return nil
}

func (interp *Interpreter) reportEndstop() error {
	if !interp.motor.Status().HomingConfigured {
		interp.respond("homing: not configured")
		return nil
	}
	triggered, err := interp.motor.HomingTriggered()
	if err != nil {
		return err
	}
	if triggered {
		interp.respond("homing: TRIGGERED")
	} else {
		interp.respond("homing: open")
	}
	return nil
}

// FormatStatus renders a status snapshot as an M114 report line:
// "X:<pos> DIR:<dir> MS:<div> RPM:<rpm> EN:<0|1> MODE:<mode> HOMING:<state>".
// RPM is "-" before the first speed command.
func FormatStatus(st core.Status) string {
	var b strings.Builder
	b.WriteString("X:")
	b.WriteString(strconv.FormatInt(st.Position, 10))
	b.WriteString(" DIR:")
	b.WriteString(strconv.Itoa(st.Direction))
	b.WriteString(" MS:")
	b.WriteString(strconv.Itoa(st.MicrostepDivider))
	b.WriteString(" RPM:")
	if st.HasSpeed {
		b.WriteString(strconv.FormatFloat(st.SpeedRPM, 'f', -1, 64))
	} else {
		b.WriteString("-")
	}
	b.WriteString(" EN:")
	if st.Enabled {
		b.WriteString("1")
	} else {
		b.WriteString("0")
	}
	b.WriteString(" MODE:")
	b.WriteString(st.Mode.String())
	b.WriteString(" HOMING:")
	b.WriteString(st.Homing.String())
	return b.String()
}

func commandName(cmd *standalone.GCodeCommand) string {
	return string(cmd.Type) + strconv.Itoa(cmd.Number)
}

// CommandError ties a rejection to the command that caused it
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return e.Command + ": " + e.Err.Error()
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

func unsupported(cmd *standalone.GCodeCommand) error {
	return &CommandError{Command: commandName(cmd), Err: ErrUnsupported}
}

func missing(cmd *standalone.GCodeCommand, param byte) error {
	return &CommandError{Command: commandName(cmd) + " " + string(param), Err: ErrMissingParameter}
}
