//go:build js && wasm
// +build js,wasm

// Browser simulator: runs the controller against in-memory pins so a web
// page can drive it with G-code and watch the pin levels.
package main

import (
	"strconv"
	"sync"
	"syscall/js"

	"stepctl/core"
	"stepctl/protocol"
	"stepctl/standalone/config"
	"stepctl/standalone/machine"
)

// Global simulator instance for the UI
var (
	manager *machine.Manager
	pins    *simGPIO
)

func main() {
	cfg := config.DefaultConfig()
	pins = newSimGPIO()

	var err error
	manager, err = machine.NewManagerWithConfig(cfg)
	if err == nil {
		err = manager.Initialize(machine.Hardware{GPIO: pins})
	}
	if err == nil {
		err = manager.Start()
	}
	startErr := ""
	if err != nil {
		startErr = err.Error()
	}

	// Export functions to JavaScript
	js.Global().Set("stepctlWasm", js.ValueOf(map[string]interface{}{
		"send":       js.FuncOf(sendWrapper),
		"output":     js.FuncOf(outputWrapper),
		"status":     js.FuncOf(statusWrapper),
		"pins":       js.FuncOf(pinsWrapper),
		"setSwitch":  js.FuncOf(setSwitchWrapper),
		"formatLine": js.FuncOf(formatLineWrapper),
		"parseLine":  js.FuncOf(parseLineWrapper),
		"checksum":   js.FuncOf(checksumWrapper),
		"version":    protocol.Version,
		"error":      startErr,
	}))

	// Keep the program running
	select {}
}

// sendWrapper feeds one line to the simulated controller
// Args: line (string)
func sendWrapper(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 || manager == nil {
		return js.ValueOf("error: missing line argument")
	}
	manager.Feed([]byte(args[0].String() + "\n"))
	return js.Undefined()
}

// outputWrapper returns and clears the controller's pending responses
func outputWrapper(this js.Value, args []js.Value) interface{} {
	if manager == nil {
		return js.ValueOf("")
	}
	return js.ValueOf(string(manager.GetOutput()))
}

// statusWrapper returns the motor state as an object
func statusWrapper(this js.Value, args []js.Value) interface{} {
	if manager == nil || !manager.IsInitialized() {
		return js.Null()
	}
	st := manager.Status()
	result := map[string]interface{}{
		"position":  int(st.Position),
		"direction": st.Direction,
		"microstep": st.MicrostepDivider,
		"enabled":   st.Enabled,
		"mode":      st.Mode.String(),
		"homing":    st.Homing.String(),
	}
	if st.HasSpeed {
		result["rpm"] = st.SpeedRPM
	}
	return js.ValueOf(result)
}

// pinsWrapper returns the level of every configured pin, keyed "gpioN"
func pinsWrapper(this js.Value, args []js.Value) interface{} {
	return js.ValueOf(pins.snapshot())
}

// setSwitchWrapper presses (true) or releases (false) the homing switch.
// The switch pulls its input low when pressed
func setSwitchWrapper(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return js.ValueOf("error: missing state argument")
	}
	pin, err := config.ParsePin(config.DefaultConfig().Homing.Pin)
	if err != nil {
		return js.ValueOf("error: " + err.Error())
	}
	pins.set(pin, !args[0].Bool())
	return js.Undefined()
}

// formatLineWrapper frames a command with a line number and checksum
// Args: number (int), command (string)
func formatLineWrapper(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return js.ValueOf("error: missing arguments")
	}
	return js.ValueOf(protocol.FormatLine(uint32(args[0].Int()), args[1].String()))
}

// parseLineWrapper decodes a framed line
// Returns: {number, hasNumber, command, error}
func parseLineWrapper(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return js.ValueOf(map[string]interface{}{"error": "missing line argument"})
	}
	line, err := protocol.ParseLine(args[0].String())
	result := map[string]interface{}{
		"number":    int(line.Number),
		"hasNumber": line.HasNumber,
		"command":   line.Command,
	}
	if err != nil {
		result["error"] = err.Error()
	}
	return js.ValueOf(result)
}

// checksumWrapper returns the XOR checksum of a string
func checksumWrapper(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return js.ValueOf(0)
	}
	return js.ValueOf(int(protocol.Checksum(args[0].String())))
}

// simGPIO is an in-memory core.GPIODriver. Pulled-up inputs read high
// until driven
type simGPIO struct {
	mu     sync.Mutex
	levels map[core.GPIOPin]bool
}

func newSimGPIO() *simGPIO {
	return &simGPIO{levels: make(map[core.GPIOPin]bool)}
}

func (g *simGPIO) set(pin core.GPIOPin, v bool) error {
	g.mu.Lock()
	g.levels[pin] = v
	g.mu.Unlock()
	return nil
}

func (g *simGPIO) ConfigureOutput(pin core.GPIOPin) error        { return g.set(pin, false) }
func (g *simGPIO) ConfigureInputPullUp(pin core.GPIOPin) error   { return g.set(pin, true) }
func (g *simGPIO) ConfigureInputPullDown(pin core.GPIOPin) error { return g.set(pin, false) }
func (g *simGPIO) SetPin(pin core.GPIOPin, value bool) error     { return g.set(pin, value) }

func (g *simGPIO) GetPin(pin core.GPIOPin) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.levels[pin], nil
}

func (g *simGPIO) ReadPin(pin core.GPIOPin) bool {
	v, _ := g.GetPin(pin)
	return v
}

func (g *simGPIO) snapshot() map[string]interface{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]interface{}, len(g.levels))
	for pin, v := range g.levels {
		out["gpio"+strconv.Itoa(int(pin))] = v
	}
	return out
}
