// Package hardware drives the BTS7960 motor driver and reads the moisture
// ADC and temperature probe. A Simulated backend stands in when the real
// devices are missing.
package hardware

import (
	"errors"

	"github.com/afroash/pump-controller/internal/models"
)

// ErrHardwareUnavailable is returned while constructing the real backend
// when a driver, bus or device cannot be opened.
var ErrHardwareUnavailable = errors.New("hardware unavailable")

// Kind names a backend variant.
type Kind string

const (
	KindSimulated Kind = "simulated"
	KindReal      Kind = "real"
)

// Backend is the capability surface the pump controller and sensor reader
// depend on.
type Backend interface {
	// SetEnabled drives both enable lines of the motor driver.
	SetEnabled(on bool) error
	// SetDutyCycle sets the forward PWM duty cycle in percent (0..100).
	SetDutyCycle(percent int) error
	// ReadMoistureChannels returns raw values for all moisture channels.
	// The real backend returns its last good reading when the ADC fails.
	ReadMoistureChannels() models.MoistureReading
	// ReadTemperature returns the probe temperature rounded to 0.1°C.
	ReadTemperature() models.TemperatureReading
	Kind() Kind
	Close() error
}

func clampPercent(percent int) int {
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 100
	}
	return percent
}
