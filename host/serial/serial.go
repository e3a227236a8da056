package serial

import (
	"errors"
	"io"
	"strings"

	bugst "go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// ControllerVID is the USB vendor ID the RP2040 firmware enumerates with
const ControllerVID = "2E8A"

// ErrNoDevice is returned by FindDevice when no controller is attached
var ErrNoDevice = errors.New("no stepctl controller found")

// Port represents a serial port interface
// This abstraction allows for different implementations:
// - Native serial (using github.com/tarm/serial)
// - Mock serial (for testing)
type Port interface {
	io.ReadWriteCloser

	// Flush flushes any buffered data
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string

	// Baud rate (USB CDC ignores this)
	Baud int

	// Read timeout in milliseconds (0 = blocking)
	ReadTimeout int
}

// DefaultConfig returns the controller's default line settings
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        115200,
		ReadTimeout: 100,
	}
}

// PortInfo describes one serial port found on the host
type PortInfo struct {
	Name         string
	USB          bool
	VID          string
	PID          string
	SerialNumber string
	Product      string
}

// IsController reports whether the port belongs to an RP2040 board
func (p PortInfo) IsController() bool {
	return p.USB && strings.EqualFold(p.VID, ControllerVID)
}

// ListPorts returns the serial ports on the host. When USB details are
// unavailable the plain port names are returned.
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err == nil {
		ports := make([]PortInfo, 0, len(details))
		for _, d := range details {
			ports = append(ports, PortInfo{
				Name:         d.Name,
				USB:          d.IsUSB,
				VID:          d.VID,
				PID:          d.PID,
				SerialNumber: d.SerialNumber,
				Product:      d.Product,
			})
		}
		return ports, nil
	}

	names, err := bugst.GetPortsList()
	if err != nil {
		return nil, err
	}
	ports := make([]PortInfo, 0, len(names))
	for _, name := range names {
		ports = append(ports, PortInfo{Name: name})
	}
	return ports, nil
}

// FindDevice returns the first attached controller
func FindDevice() (string, error) {
	ports, err := ListPorts()
	if err != nil {
		return "", err
	}
	return pickController(ports)
}

func pickController(ports []PortInfo) (string, error) {
	for _, p := range ports {
		if p.IsController() {
			return p.Name, nil
		}
	}
	return "", ErrNoDevice
}
