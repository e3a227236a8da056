//go:build rp2040

package main

import (
	"errors"
	"machine"
	"sync"

	"tinygo.org/x/drivers/vl53l1x"
)

const (
	vl53l1xFrequency    = 400000 // VL53L1X supports up to 400kHz
	vl53l1xTimingBudget = 20000  // microseconds per ranging
	vl53l1xMaxRange     = 8190   // reported when nothing is in range
)

var errSensorMissing = errors.New("vl53l1x: sensor not responding")

// VL53L1XSensor implements core.DistanceSensor with a VL53L1X
// time-of-flight sensor on I2C0 (SDA GPIO4, SCL GPIO5) or I2C1
// (SDA GPIO6, SCL GPIO7)
type VL53L1XSensor struct {
	mu         sync.Mutex
	bus        *machine.I2C
	dev        vl53l1x.Device
	configured bool
}

// NewVL53L1XSensor returns a sensor on I2C bus 0 or 1. Nothing touches the
// bus until Configure
func NewVL53L1XSensor(bus uint8) *VL53L1XSensor {
	i2c := machine.I2C0
	if bus == 1 {
		i2c = machine.I2C1
	}
	return &VL53L1XSensor{bus: i2c}
}

// Configure starts the bus and puts the sensor in continuous ranging
func (s *VL53L1XSensor) Configure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.configured {
		return nil
	}

	// Default pins for the bus are set by TinyGo
	if err := s.bus.Configure(machine.I2CConfig{Frequency: vl53l1xFrequency}); err != nil {
		return err
	}

	s.dev = vl53l1x.New(s.bus)
	if !s.dev.Connected() {
		return errSensorMissing
	}
	if !s.dev.Configure(true) {
		return errSensorMissing
	}
	s.dev.SetMeasurementTimingBudget(vl53l1xTimingBudget)
	s.dev.StartContinuous(vl53l1xTimingBudget / 1000)
	s.configured = true
	return nil
}

// ReadDistance waits for the next ranging and returns it in millimetres.
// Out of range reads as the sensor maximum
func (s *VL53L1XSensor) ReadDistance() (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.configured {
		return 0, errSensorMissing
	}

	distance := s.dev.Read(true)
	if distance >= vl53l1xMaxRange {
		distance = vl53l1xMaxRange
	}
	return uint32(distance), nil
}
