package mcu

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"stepctl/host/serial"
	"stepctl/protocol"
)

// ErrNotConnected is returned by calls made before Connect
var ErrNotConnected = errors.New("not connected to controller")

// MCU represents a connection to a stepctl controller
type MCU struct {
	// Transport layer
	transport *protocol.HostTransport

	opts protocol.HostOptions
	info *FirmwareInfo

	// Connection state
	connected bool
}

// FirmwareInfo is the parsed M115 report
type FirmwareInfo struct {
	Name    string
	Version string
}

// Status is the parsed M114 report
type Status struct {
	Position  int64
	Direction int
	Microstep int
	SpeedRPM  float64
	HasSpeed  bool
	Enabled   bool
	Mode      string
	Homing    string
}

// NewMCU creates a new MCU instance (not yet connected)
func NewMCU(opts protocol.HostOptions) *MCU {
	return &MCU{opts: opts}
}

// Connect connects to a controller via serial port
func (m *MCU) Connect(ctx context.Context, device string) error {
	return m.ConnectWithConfig(ctx, serial.DefaultConfig(device))
}

// ConnectWithConfig connects with a custom serial config
func (m *MCU) ConnectWithConfig(ctx context.Context, cfg *serial.Config) error {
	port, err := serial.Open(cfg)
	if err != nil {
		return fmt.Errorf("failed to open serial port: %w", err)
	}
	port.Flush()
	return m.Attach(ctx, port)
}

// Attach starts talking to a controller over an already open stream and
// resets its line numbers
func (m *MCU) Attach(ctx context.Context, port io.ReadWriteCloser) error {
	m.transport = protocol.NewHostTransport(port, m.opts)
	m.connected = true

	if err := m.transport.Sync(ctx); err != nil {
		m.Close()
		return fmt.Errorf("failed to sync line numbers: %w", err)
	}
	return nil
}

// SetLineHandler forwards every report line to handler
func (m *MCU) SetLineHandler(handler protocol.LineHandler) {
	if m.transport != nil {
		m.transport.SetLineHandler(handler)
	}
}

// Close closes the connection to the controller
func (m *MCU) Close() error {
	m.connected = false
	if m.transport != nil {
		return m.transport.Close()
	}
	return nil
}

// IsConnected returns whether the controller is connected
func (m *MCU) IsConnected() bool {
	return m.connected
}

// SendCommand sends one G-code line and returns the report lines that
// preceded its ok
func (m *MCU) SendCommand(ctx context.Context, cmd string) ([]string, error) {
	if !m.connected {
		return nil, ErrNotConnected
	}
	resp, err := m.transport.SendCommand(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return resp.Lines, nil
}

func (m *MCU) exec(ctx context.Context, cmd string) error {
	_, err := m.SendCommand(ctx, cmd)
	return err
}

// Identify queries the firmware name and version (M115)
func (m *MCU) Identify(ctx context.Context) (*FirmwareInfo, error) {
	lines, err := m.SendCommand(ctx, "M115")
	if err != nil {
		return nil, err
	}
	for _, line := range lines {
		if info, ok := parseFirmwareInfo(line); ok {
			m.info = info
			return info, nil
		}
	}
	return nil, errors.New("no firmware report in M115 answer")
}

// Info returns the last Identify result
func (m *MCU) Info() *FirmwareInfo {
	return m.info
}

// Move moves by steps microsteps and returns once the move is done
func (m *MCU) Move(ctx context.Context, steps int64) error {
	return m.exec(ctx, "G1 X"+strconv.FormatInt(steps, 10))
}

// SetSpeed starts continuous rotation at rpm; 0 stops
func (m *MCU) SetSpeed(ctx context.Context, rpm float64) error {
	return m.exec(ctx, "M3 S"+formatFloat(rpm))
}

// Stop ends continuous rotation
func (m *MCU) Stop(ctx context.Context) error {
	return m.exec(ctx, "M5")
}

// QuickStop aborts homing and the running move
func (m *MCU) QuickStop(ctx context.Context) error {
	return m.exec(ctx, "M410")
}

// Home runs reverse homing at rpm until the sensor triggers.
// rpm 0 uses the controller's configured homing speed.
func (m *MCU) Home(ctx context.Context, rpm float64) error {
	if rpm == 0 {
		return m.exec(ctx, "G28")
	}
	return m.exec(ctx, "G28 S"+formatFloat(rpm))
}

// HomeForward zeroes the position without moving
func (m *MCU) HomeForward(ctx context.Context) error {
	return m.exec(ctx, "G28 D1")
}

// ResetPosition sets the current position as zero
func (m *MCU) ResetPosition(ctx context.Context) error {
	return m.exec(ctx, "G92 X0")
}

// Enable activates the driver output stage
func (m *MCU) Enable(ctx context.Context) error {
	return m.exec(ctx, "M17")
}

// Disable deactivates the driver output stage
func (m *MCU) Disable(ctx context.Context) error {
	return m.exec(ctx, "M18")
}

// SetMicrostep records the microstep divider the driver is strapped for
func (m *MCU) SetMicrostep(ctx context.Context, divider int) error {
	return m.exec(ctx, "M350 S"+strconv.Itoa(divider))
}

// SetDirection selects normal (false) or reversed (true) direction
func (m *MCU) SetDirection(ctx context.Context, reversed bool) error {
	if reversed {
		return m.exec(ctx, "M569 S1")
	}
	return m.exec(ctx, "M569 S0")
}

// Status queries the motor state (M114)
func (m *MCU) Status(ctx context.Context) (*Status, error) {
	lines, err := m.SendCommand(ctx, "M114")
	if err != nil {
		return nil, err
	}
	for _, line := range lines {
		if strings.HasPrefix(line, "X:") {
			return ParseStatus(line)
		}
	}
	return nil, errors.New("no position report in M114 answer")
}

// Endstop returns the homing sensor state: "open", "TRIGGERED" or
// "not configured"
func (m *MCU) Endstop(ctx context.Context) (string, error) {
	lines, err := m.SendCommand(ctx, "M119")
	if err != nil {
		return "", err
	}
	for _, line := range lines {
		if state, ok := strings.CutPrefix(line, "homing: "); ok {
			return state, nil
		}
	}
	return "", errors.New("no endstop report in M119 answer")
}

// ParseStatus decodes an M114 report line
func ParseStatus(line string) (*Status, error) {
	st := &Status{}
	for _, field := range strings.Fields(line) {
		key, value, ok := strings.Cut(field, ":")
		if !ok {
			return nil, fmt.Errorf("malformed status field %q", field)
		}

		var err error
		switch key {
		case "X":
			st.Position, err = strconv.ParseInt(value, 10, 64)
		case "DIR":
			st.Direction, err = strconv.Atoi(value)
		case "MS":
			st.Microstep, err = strconv.Atoi(value)
		case "RPM":
			if value != "-" {
				st.SpeedRPM, err = strconv.ParseFloat(value, 64)
				st.HasSpeed = err == nil
			}
		case "EN":
			st.Enabled = value == "1"
		case "MODE":
			st.Mode = value
		case "HOMING":
			st.Homing = value
		}
		if err != nil {
			return nil, fmt.Errorf("malformed status field %q: %w", field, err)
		}
	}
	return st, nil
}

func parseFirmwareInfo(line string) (*FirmwareInfo, bool) {
	info := &FirmwareInfo{}
	for _, field := range strings.Fields(line) {
		key, value, _ := strings.Cut(field, ":")
		switch key {
		case "FIRMWARE_NAME":
			info.Name = value
		case "FIRMWARE_VERSION":
			info.Version = value
		}
	}
	return info, info.Name != ""
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
