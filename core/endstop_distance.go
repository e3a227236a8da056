// Distance-sensor endstop for Time-of-Flight (TOF) and similar sensors
// Supports VL53L1X and anything else that can report a distance in mm
package core

import "sync"

// DistanceSensor reports a distance in millimetres
type DistanceSensor interface {
	Configure() error
	ReadDistance() (uint32, error)
}

// DistanceEndstop triggers when the measured distance crosses a threshold.
// Once triggered it only releases after the distance moves Hysteresis mm
// back past the threshold.
type DistanceEndstop struct {
	Sensor            DistanceSensor
	DistanceThreshold uint32 // Trigger distance threshold (in mm)
	TriggerBelow      bool   // True if trigger when distance < threshold
	Hysteresis        uint32 // Hysteresis value to prevent oscillation (in mm)
	SensorName        string

	mu           sync.Mutex
	triggered    bool
	lastDistance uint32
}

// Configure initialises the underlying sensor
func (de *DistanceEndstop) Configure() error {
	return de.Sensor.Configure()
}

// Triggered takes one distance reading and applies threshold and hysteresis
func (de *DistanceEndstop) Triggered() (bool, error) {
	distance, err := de.Sensor.ReadDistance()
	if err != nil {
		return false, err
	}

	de.mu.Lock()
	defer de.mu.Unlock()

	de.lastDistance = distance
	de.triggered = de.evaluate(distance)
	return de.triggered, nil
}

func (de *DistanceEndstop) evaluate(distance uint32) bool {
	threshold := de.DistanceThreshold
	if de.TriggerBelow {
		if de.triggered {
			return distance < threshold+de.Hysteresis
		}
		return distance < threshold
	}

	if de.triggered {
		if threshold < de.Hysteresis {
			return true
		}
		return distance > threshold-de.Hysteresis
	}
	return distance > threshold
}

// LastDistance returns the most recent reading in mm
func (de *DistanceEndstop) LastDistance() uint32 {
	de.mu.Lock()
	defer de.mu.Unlock()
	return de.lastDistance
}

// Name returns the configured sensor name
func (de *DistanceEndstop) Name() string {
	if de.SensorName == "" {
		return "distance"
	}
	return de.SensorName
}
