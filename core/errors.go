package core

import (
	"errors"
	"strconv"
)

// Sentinel errors, usable with errors.Is against the typed errors below
var (
	ErrMissingPin          = errors.New("missing pin")
	ErrInvalidMicrostep    = errors.New("invalid microstep divider")
	ErrSpeedExceedsLimit   = errors.New("speed exceeds limit")
	ErrHomingNotConfigured = errors.New("homing not configured")

	// ErrHomingInProgress is returned by motion commands issued while homing
	ErrHomingInProgress = errors.New("homing in progress")

	// ErrHomingAborted is returned by HomeReverse when homing is cancelled
	// before the sensor triggers
	ErrHomingAborted = errors.New("homing aborted")
)

// ConfigErrorKind classifies a ConfigError
type ConfigErrorKind uint8

const (
	MissingPin ConfigErrorKind = iota
	InvalidMicrostep
	SpeedExceedsLimit
)

// ConfigError reports a rejected configuration or speed command.
// The stepper state is never modified when one is returned.
type ConfigError struct {
	Kind ConfigErrorKind

	Pin     string  // MissingPin: which pin ("step", "dir", "disable")
	Divider int     // InvalidMicrostep: the rejected divider
	RPM     float64 // SpeedExceedsLimit: the requested speed
	MaxRPM  float64 // SpeedExceedsLimit: the configured limit
}

func (e *ConfigError) Error() string {
	switch e.Kind {
	case MissingPin:
		return "config: " + e.Pin + " pin not declared"
	case InvalidMicrostep:
		return "config: microstep divider " + strconv.Itoa(e.Divider) + " is not one of 1, 2, 4, 8, 16"
	case SpeedExceedsLimit:
		return "config: speed " + formatRPM(e.RPM) + " RPM exceeds max speed (" + formatRPM(e.MaxRPM) + " RPM)"
	}
	return "config: unknown error"
}

// Unwrap maps the error kind to its sentinel
func (e *ConfigError) Unwrap() error {
	switch e.Kind {
	case MissingPin:
		return ErrMissingPin
	case InvalidMicrostep:
		return ErrInvalidMicrostep
	case SpeedExceedsLimit:
		return ErrSpeedExceedsLimit
	}
	return nil
}

// HomingError reports a homing request the stepper cannot serve
type HomingError struct {
	Op string // "home reverse" or "home forward"
}

func (e *HomingError) Error() string {
	return e.Op + ": no homing pin or sensor configured"
}

// Unwrap returns ErrHomingNotConfigured
func (e *HomingError) Unwrap() error {
	return ErrHomingNotConfigured
}

func formatRPM(rpm float64) string {
	return strconv.FormatFloat(rpm, 'f', -1, 64)
}
