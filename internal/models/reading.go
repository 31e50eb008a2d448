package models

import (
	"fmt"
	"math"
	"time"
)

// MoistureChannels is the number of analog moisture inputs on the ADC.
const MoistureChannels = 4

// MoistureReading holds the raw value of every moisture channel.
// The index is the channel number.
type MoistureReading [MoistureChannels]int

// TemperatureReading is a temperature in degrees Celsius, one decimal place.
type TemperatureReading float64

// RoundTemperature rounds a Celsius value to one decimal place.
func RoundTemperature(celsius float64) TemperatureReading {
	return TemperatureReading(math.Round(celsius*10) / 10)
}

// CalibrationBounds maps raw moisture readings to a percentage.
// Dry is the raw value of dry soil, Wet the raw value of saturated soil.
type CalibrationBounds struct {
	Dry int `json:"dry" yaml:"dry"`
	Wet int `json:"wet" yaml:"wet"`
}

// Sample is one sensor poll together with the pump state at that instant.
// Samples are what the history store persists.
type Sample struct {
	Timestamp   time.Time             `json:"timestamp"`
	MoistureRaw MoistureReading       `json:"moisture_raw"`
	Moisture    [MoistureChannels]int `json:"moisture"`
	Temperature float64               `json:"temperature"`
	PumpRunning bool                  `json:"pump_running"`
	PumpSpeed   int                   `json:"pump_speed"`
}

// IsValid checks if the sample values are within acceptable ranges.
func (s *Sample) IsValid() bool {
	const (
		minTemp = -55.0 // DS18B20 range
		maxTemp = 125.0
	)

	if s.Timestamp.IsZero() {
		return false
	}
	if s.Temperature < minTemp || s.Temperature > maxTemp {
		return false
	}
	for _, p := range s.Moisture {
		if p < 0 || p > 100 {
			return false
		}
	}
	for _, raw := range s.MoistureRaw {
		if raw < 0 {
			return false
		}
	}
	if s.PumpSpeed < 0 || s.PumpSpeed > 100 {
		return false
	}
	if !s.PumpRunning && s.PumpSpeed != 0 {
		return false
	}
	return true
}

func (s *Sample) String() string {
	return fmt.Sprintf("Timestamp: %s, Moisture: %v%%, Temperature: %.1f°C, Pump: running=%t speed=%d",
		s.Timestamp.Format(time.RFC3339),
		s.Moisture,
		s.Temperature,
		s.PumpRunning,
		s.PumpSpeed)
}

// Copy returns a copy of the Sample
func (s *Sample) Copy() *Sample {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
