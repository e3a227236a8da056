package standalone

// MotorConfig describes the step/direction driver wiring
type MotorConfig struct {
	StepPin          string  `json:"step_pin"`    // GPIO pin for step pulses, e.g. "gpio17"
	DirPin           string  `json:"dir_pin"`     // GPIO pin for direction
	DisablePin       string  `json:"disable_pin"` // Driver enable input, active low
	InvertDir        bool    `json:"invert_dir"`  // Invert direction signal
	MaxRPM           float64 `json:"max_rpm"`
	MicrostepDivider int     `json:"microstep_divider"` // Must match the MS1-MS3 jumpers
	MinPulseWidthUs  uint32  `json:"min_pulse_width_us"`
	StepBackend      string  `json:"step_backend"` // "gpio" or "pio"
}

// HomingConfig describes the homing sensor
type HomingConfig struct {
	Sensor      string `json:"sensor"` // "none", "switch", "distance" or "analog"
	Pin         string `json:"pin"`    // Switch input, pulled up
	TriggerHigh bool   `json:"trigger_high"`

	ReverseRPM float64 `json:"reverse_rpm"`
	ForwardRPM float64 `json:"forward_rpm"`

	SampleTimeUs uint32 `json:"sample_time_us"` // Time between oversamples
	SampleCount  uint8  `json:"sample_count"`   // Consecutive samples required
	RestTimeUs   uint32 `json:"rest_time_us"`   // Time between checks while idle

	// Distance sensor (VL53L1X)
	DistanceThresholdMM uint32 `json:"distance_threshold_mm"`
	DistanceHysteresis  uint32 `json:"distance_hysteresis_mm"`
	TriggerBelow        bool   `json:"trigger_below"`

	// Analog sensor (hall effect)
	ADCChannel    uint8  `json:"adc_channel"`
	ADCThreshold  uint16 `json:"adc_threshold"`
	ADCHysteresis uint16 `json:"adc_hysteresis"`
	TriggerAbove  bool   `json:"trigger_above"`
}

// MachineConfig represents the complete controller configuration
type MachineConfig struct {
	Mode   string       `json:"mode"` // "standalone"
	Motor  MotorConfig  `json:"motor"`
	Homing HomingConfig `json:"homing"`

	QueueDepth int  `json:"queue_depth"` // Lines buffered ahead of the worker
	Verbose    bool `json:"verbose"`
}

// Homing sensor kinds
const (
	SensorNone     = "none"
	SensorSwitch   = "switch"
	SensorDistance = "distance"
	SensorAnalog   = "analog"
)

// GCodeCommand represents a parsed G-code command
type GCodeCommand struct {
	Type       byte             // 'G', 'M', 'T'
	Number     int              // Command number (e.g., 1 for G1, 28 for G28)
	Parameters map[byte]float64 // Parameters (X, S, D, etc.)
	Comment    string           // Comment text
}

// HasParameter checks if a parameter exists in the command
func (cmd *GCodeCommand) HasParameter(param byte) bool {
	_, ok := cmd.Parameters[param]
	return ok
}

// GetParameter gets a parameter value, or returns the default if not present
func (cmd *GCodeCommand) GetParameter(param byte, defaultValue float64) float64 {
	if val, ok := cmd.Parameters[param]; ok {
		return val
	}
	return defaultValue
}

// IsEmpty reports whether the line carried no command (blank or comment only)
func (cmd *GCodeCommand) IsEmpty() bool {
	return cmd.Type == 0
}
