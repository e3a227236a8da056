package config

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"stepctl/core"
	"stepctl/standalone"
)

// LoadConfig parses a JSON configuration string and returns a MachineConfig
func LoadConfig(jsonData []byte) (*standalone.MachineConfig, error) {
	var config standalone.MachineConfig

	err := json.Unmarshal(jsonData, &config)
	if err != nil {
		return nil, err
	}

	// Apply defaults
	applyDefaults(&config)

	if err := Validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// applyDefaults fills in missing configuration values with sensible defaults
func applyDefaults(config *standalone.MachineConfig) {
	// Default mode
	if config.Mode == "" {
		config.Mode = "standalone"
	}

	if config.QueueDepth == 0 {
		config.QueueDepth = 8
	}

	motor := &config.Motor
	if motor.MaxRPM == 0 {
		motor.MaxRPM = core.DefaultMaxRPM
	}
	if motor.MicrostepDivider == 0 {
		motor.MicrostepDivider = 1
	}
	if motor.MinPulseWidthUs == 0 {
		motor.MinPulseWidthUs = uint32(core.DefaultMinPulseWidth / time.Microsecond)
	}
	if motor.StepBackend == "" {
		motor.StepBackend = "gpio"
	}

	homing := &config.Homing
	if homing.Sensor == "" {
		if homing.Pin != "" {
			homing.Sensor = standalone.SensorSwitch
		} else {
			homing.Sensor = standalone.SensorNone
		}
	}
	if homing.ReverseRPM == 0 {
		homing.ReverseRPM = core.DefaultHomeReverseRPM
	}
	if homing.ForwardRPM == 0 {
		homing.ForwardRPM = core.DefaultHomeForwardRPM
	}
	if homing.SampleTimeUs == 0 {
		homing.SampleTimeUs = uint32(core.DefaultSampleTime / time.Microsecond)
	}
	if homing.SampleCount == 0 {
		homing.SampleCount = core.DefaultSampleCount
	}
	if homing.RestTimeUs == 0 {
		homing.RestTimeUs = uint32(core.DefaultRestTime / time.Microsecond)
	}
	if homing.DistanceHysteresis == 0 {
		homing.DistanceHysteresis = 5
	}
}

// Validate checks values that cannot be defaulted. Missing motor pins are
// left for core.NewStepper to report.
func Validate(config *standalone.MachineConfig) error {
	if config.Mode != "standalone" {
		return errors.New("config: unsupported mode: " + config.Mode)
	}
	if !core.ValidMicrostep(config.Motor.MicrostepDivider) {
		return &core.ConfigError{Kind: core.InvalidMicrostep, Divider: config.Motor.MicrostepDivider}
	}
	if config.Motor.MaxRPM < 0 {
		return errors.New("config: max_rpm must be positive")
	}
	switch config.Motor.StepBackend {
	case "gpio", "pio":
	default:
		return errors.New("config: unknown step backend: " + config.Motor.StepBackend)
	}

	for _, pin := range []string{config.Motor.StepPin, config.Motor.DirPin, config.Motor.DisablePin, config.Homing.Pin} {
		if pin == "" {
			continue
		}
		if _, err := ParsePin(pin); err != nil {
			return err
		}
	}

	homing := &config.Homing
	switch homing.Sensor {
	case standalone.SensorNone:
	case standalone.SensorSwitch:
		if homing.Pin == "" {
			return errors.New("config: switch homing needs a pin")
		}
	case standalone.SensorDistance:
		if homing.DistanceThresholdMM == 0 {
			return errors.New("config: distance homing needs distance_threshold_mm")
		}
	case standalone.SensorAnalog:
		if homing.ADCThreshold == 0 {
			return errors.New("config: analog homing needs adc_threshold")
		}
	default:
		return errors.New("config: unknown homing sensor: " + homing.Sensor)
	}
	return nil
}

// ParsePin accepts "gpio17", "GP17" or "17"
func ParsePin(name string) (core.GPIOPin, error) {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.TrimPrefix(s, "gpio")
	s = strings.TrimPrefix(s, "gp")
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, errors.New("config: invalid pin name: " + name)
	}
	return core.GPIOPin(n), nil
}

func optionalPin(name string) (*core.GPIOPin, error) {
	if name == "" {
		return nil, nil
	}
	pin, err := ParsePin(name)
	if err != nil {
		return nil, err
	}
	return &pin, nil
}

// StepperConfig translates the motor and homing sections into a
// core.StepperConfig. Collaborators (GPIO, pulses, backend, sensors other
// than a switch) are left for the platform to fill in.
func StepperConfig(config *standalone.MachineConfig) (core.StepperConfig, error) {
	var cfg core.StepperConfig
	var err error

	if cfg.StepPin, err = optionalPin(config.Motor.StepPin); err != nil {
		return cfg, err
	}
	if cfg.DirPin, err = optionalPin(config.Motor.DirPin); err != nil {
		return cfg, err
	}
	if cfg.DisablePin, err = optionalPin(config.Motor.DisablePin); err != nil {
		return cfg, err
	}

	cfg.InvertDir = config.Motor.InvertDir
	cfg.MaxRPM = config.Motor.MaxRPM
	cfg.MinPulseWidth = core.UsToDuration(config.Motor.MinPulseWidthUs)

	homing := config.Homing
	if homing.Sensor == standalone.SensorSwitch {
		if cfg.HomingPin, err = optionalPin(homing.Pin); err != nil {
			return cfg, err
		}
		cfg.HomingTriggerHigh = homing.TriggerHigh
	}
	cfg.HomingSampling = core.Sampling{
		SampleTime:  core.UsToDuration(homing.SampleTimeUs),
		SampleCount: homing.SampleCount,
		RestTime:    core.UsToDuration(homing.RestTimeUs),
	}
	return cfg, nil
}

// DefaultConfig returns the reference wiring: STEP on GPIO17, DIR on
// GPIO16, disable on GPIO7 and a homing switch on GPIO4
func DefaultConfig() *standalone.MachineConfig {
	config := &standalone.MachineConfig{
		Mode: "standalone",
		Motor: standalone.MotorConfig{
			StepPin:    "gpio17",
			DirPin:     "gpio16",
			DisablePin: "gpio7",
		},
		Homing: standalone.HomingConfig{
			Sensor: standalone.SensorSwitch,
			Pin:    "gpio4",
		},
	}
	applyDefaults(config)
	return config
}
