//go:build rp2040

package main

// PIO step backend using the tinygo-org/pio package.
// Pulses are timed by the state machine, so their width does not depend
// on the scheduler.

import (
	"errors"
	"machine"
	"time"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"

	"stepctl/core"
)

// PIO program for step pulse generation
// Command word format:
//
//	Bits 0-15:  pulse count minus one
//	Bits 16-23: delay cycles (inter-pulse spacing)
//	Bit 31:     direction level
//
// Program flow:
//  1. Pull 32-bit command from FIFO
//  2. Extract pulse count into X register
//  3. Extract delay cycles into Y register
//  4. Set direction pin
//  5. Generate X+1 pulses with Y cycle delays between them
func buildStepperProgram() []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 0}
	return []uint16{
		// .wrap_target
		asm.Pull(false, true).Encode(),          // 0: pull block
		asm.Out(rp2pio.OutDestX, 16).Encode(),   // 1: out x, 16 (pulse count)
		asm.Out(rp2pio.OutDestY, 8).Encode(),    // 2: out y, 8 (delay cycles)
		asm.Out(rp2pio.OutDestNull, 7).Encode(), // 3: out null, 7
		asm.Out(rp2pio.OutDestPins, 1).Encode(), // 4: out pins, 1 (direction)
		// step_loop:
		asm.Set(rp2pio.SetDestPins, 1).Delay(pulseCycles-1).Encode(), // 5: set pins, 1 [n]
		asm.Set(rp2pio.SetDestPins, 0).Encode(),                      // 6: set pins, 0
		// delay_loop:
		asm.Jmp(7, rp2pio.JmpYNZeroDec).Encode(), // 7: jmp y--, 7
		asm.Jmp(5, rp2pio.JmpXNZeroDec).Encode(), // 8: jmp x--, 5
		// .wrap
	}
}

const (
	stepperPIOOrigin = 0 // Load at offset 0 for correct jump addresses

	// 125MHz / 125 gives 1us per PIO cycle
	clockDivider = 125
	pulseCycles  = 8 // step high time in PIO cycles
	gapCycles    = 2 // low time after the pulse
)

var errPIOUnavailable = errors.New("pio: state machine already claimed")

// PIOStepperBackend implements core.StepperBackend on a PIO state machine
type PIOStepperBackend struct {
	pio       *rp2pio.PIO
	sm        rp2pio.StateMachine
	stepPin   machine.Pin
	dirPin    machine.Pin
	invertDir bool
	reverse   bool
	offset    uint8
}

// NewPIOStepperBackend creates a new PIO-based stepper backend
// pioNum: 0 for PIO0, 1 for PIO1
// smNum: 0-3 for state machine number
func NewPIOStepperBackend(pioNum, smNum uint8) *PIOStepperBackend {
	pioHW := rp2pio.PIO0
	if pioNum != 0 {
		pioHW = rp2pio.PIO1
	}

	return &PIOStepperBackend{
		pio: pioHW,
		sm:  pioHW.StateMachine(smNum),
	}
}

// Init loads the program and hands the step and direction pins to PIO
func (b *PIOStepperBackend) Init(stepPin, dirPin core.GPIOPin, invertDir bool) error {
	if stepPin > maxGPIO || dirPin > maxGPIO {
		return errInvalidPin
	}
	b.stepPin = machine.Pin(stepPin)
	b.dirPin = machine.Pin(dirPin)
	b.invertDir = invertDir

	// Claim the state machine first
	if !b.sm.TryClaim() {
		return errPIOUnavailable
	}

	program := buildStepperProgram()
	offset, err := b.pio.AddProgram(program, stepperPIOOrigin)
	if err != nil {
		return err
	}
	b.offset = offset

	b.stepPin.Configure(machine.PinConfig{Mode: b.pio.PinMode()})
	b.dirPin.Configure(machine.PinConfig{Mode: b.pio.PinMode()})

	cfg := rp2pio.DefaultStateMachineConfig()
	cfg.SetSetPins(b.stepPin, 1)
	cfg.SetOutPins(b.dirPin, 1)
	// Shift right, explicit PULL, 32-bit threshold
	cfg.SetOutShift(true, false, 32)
	cfg.SetWrap(offset+uint8(len(program))-1, offset)
	cfg.SetClkDivIntFrac(clockDivider, 0)

	// Pin directions must be set after Init
	b.sm.Init(offset, cfg)
	b.sm.SetPindirsConsecutive(b.stepPin, 1, true)
	b.sm.SetPindirsConsecutive(b.dirPin, 1, true)
	b.sm.SetPinsConsecutive(b.stepPin, 1, false)
	b.sm.SetPinsConsecutive(b.dirPin, 1, invertDir)

	b.sm.SetEnabled(true)
	return nil
}

// SetDirection records the direction; it is sent with the next step
func (b *PIOStepperBackend) SetDirection(reverse bool) error {
	b.reverse = reverse
	return nil
}

// Step queues one pulse and waits until the state machine has sent it
func (b *PIOStepperBackend) Step() error {
	cmd := uint32(gapCycles) << 16 // count 0 means one pulse
	if b.reverse != b.invertDir {
		cmd |= 1 << 31
	}

	for b.sm.IsTxFIFOFull() {
	}
	b.sm.TxPut(cmd)

	// The pull empties the FIFO, then the pulse takes its fixed time
	for !b.sm.IsTxFIFOEmpty() {
	}
	hardwareClock{}.Sleep(time.Duration(pulseCycles+gapCycles+1) * time.Microsecond)
	return nil
}

// Stop drops queued pulses and restarts the program
func (b *PIOStepperBackend) Stop() {
	b.sm.SetEnabled(false)
	b.sm.ClearFIFOs()
	b.sm.Restart()
	b.sm.Exec(rp2pio.AssemblerV0{}.Jmp(b.offset, rp2pio.JmpAlways).Encode())
	b.sm.SetPinsConsecutive(b.stepPin, 1, false)
	b.sm.SetEnabled(true)
}

// Name returns the backend name
func (b *PIOStepperBackend) Name() string {
	return "pio"
}

// Info returns backend performance information
func (b *PIOStepperBackend) Info() core.StepperBackendInfo {
	return core.StepperBackendInfo{
		Name:        b.Name(),
		MaxStepRate: 1000000 / (pulseCycles * 2),
		MinPulseNs:  pulseCycles * 1000,
	}
}
