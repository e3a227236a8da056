package main

import (
	"time"

	"stepctl/host/serial"
	"stepctl/protocol"
)

// Config is the host tool configuration
type Config struct {
	Device      string  `koanf:"device" yaml:"device"`
	Baud        int     `koanf:"baud" yaml:"baud"`
	ReadTimeout int     `koanf:"readtimeout" yaml:"readtimeout"`
	Rate        float64 `koanf:"rate" yaml:"rate"`
	Burst       int     `koanf:"burst" yaml:"burst"`
	Timeout     float64 `koanf:"timeout" yaml:"timeout"`
	HomeTimeout float64 `koanf:"hometimeout" yaml:"hometimeout"`
	LogLevel    string  `koanf:"loglevel" yaml:"loglevel"`

	Local LocalConfig `koanf:"local" yaml:"local"`
}

// LocalConfig configures the "local" command
type LocalConfig struct {
	Chip    string `koanf:"chip" yaml:"chip"`
	Machine string `koanf:"machine" yaml:"machine"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() Config {
	sc := serial.DefaultConfig("")
	return Config{
		Baud:        sc.Baud,
		ReadTimeout: sc.ReadTimeout,
		Rate:        50,
		Burst:       4,
		Timeout:     10,
		HomeTimeout: 120,
		LogLevel:    "info",
		Local:       LocalConfig{Chip: "gpiochip0"},
	}
}

// SerialConfig returns the serial settings for device
func (c Config) SerialConfig(device string) *serial.Config {
	return &serial.Config{Device: device, Baud: c.Baud, ReadTimeout: c.ReadTimeout}
}

// HostOptions returns the transport pacing
func (c Config) HostOptions() protocol.HostOptions {
	return protocol.HostOptions{LinesPerSecond: c.Rate, Burst: c.Burst}
}

// CommandTimeout returns how long to wait for cmd's answer
func (c Config) CommandTimeout(cmd string) time.Duration {
	if isHoming(cmd) {
		return seconds(c.HomeTimeout)
	}
	return seconds(c.Timeout)
}

func seconds(s float64) time.Duration {
	if s <= 0 {
		s = 10
	}
	return time.Duration(s * float64(time.Second))
}
