// Package sensor turns raw backend readings into the values clients see.
package sensor

import (
	"errors"
	"math"
	"sync"

	"github.com/rs/zerolog"

	"github.com/afroash/pump-controller/internal/models"
)

var (
	ErrInvalidCalibration = errors.New("calibration dry and wet values are equal")
	ErrOutOfRange         = errors.New("moisture channel out of range")
)

// Source is the part of the hardware backend the reader polls.
type Source interface {
	ReadMoistureChannels() models.MoistureReading
	ReadTemperature() models.TemperatureReading
}

// DefaultCalibration returns the bounds of a capacitive probe on a
// 10-bit scale: 1023 in dry air, 400 in water.
func DefaultCalibration() models.CalibrationBounds {
	return models.CalibrationBounds{Dry: 1023, Wet: 400}
}

// Reader polls a Source on demand and caches the latest values.
// There is no background polling and no smoothing.
type Reader struct {
	source Source
	logger zerolog.Logger

	mu          sync.RWMutex
	moisture    models.MoistureReading
	temperature models.TemperatureReading
}

// NewReader creates a new sensor reader
func NewReader(source Source, logger zerolog.Logger) *Reader {
	return &Reader{
		source: source,
		logger: logger,
	}
}

// ReadMoisture polls every moisture channel and stores the result.
func (r *Reader) ReadMoisture() models.MoistureReading {
	reading := r.source.ReadMoistureChannels()

	r.mu.Lock()
	r.moisture = reading
	r.mu.Unlock()

	r.logger.Debug().Ints("raw", reading[:]).Msg("moisture read")
	return reading
}

// ReadTemperature polls the probe and stores the result.
func (r *Reader) ReadTemperature() models.TemperatureReading {
	temp := r.source.ReadTemperature()

	r.mu.Lock()
	r.temperature = temp
	r.mu.Unlock()

	r.logger.Debug().Float64("celsius", float64(temp)).Msg("temperature read")
	return temp
}

// Current returns the cached readings without polling.
func (r *Reader) Current() (models.MoistureReading, models.TemperatureReading) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.moisture, r.temperature
}

// MoisturePercent converts the cached raw value of one channel to a
// percentage using the given bounds.
func (r *Reader) MoisturePercent(channel int, bounds models.CalibrationBounds) (int, error) {
	if channel < 0 || channel >= models.MoistureChannels {
		return 0, ErrOutOfRange
	}

	r.mu.RLock()
	raw := r.moisture[channel]
	r.mu.RUnlock()

	return Percent(raw, bounds)
}

// MoisturePercents converts all cached channels.
func (r *Reader) MoisturePercents(bounds models.CalibrationBounds) ([models.MoistureChannels]int, error) {
	var out [models.MoistureChannels]int
	for ch := range out {
		p, err := r.MoisturePercent(ch, bounds)
		if err != nil {
			return out, err
		}
		out[ch] = p
	}
	return out, nil
}

// Percent maps raw linearly so that dry is 0% and wet is 100%, rounding to
// the nearest integer and clamping to [0, 100]. Inverted bounds work too.
func Percent(raw int, bounds models.CalibrationBounds) (int, error) {
	if bounds.Dry == bounds.Wet {
		return 0, ErrInvalidCalibration
	}
	pct := float64(bounds.Dry-raw) / float64(bounds.Dry-bounds.Wet) * 100
	pct = math.Round(pct)
	switch {
	case pct < 0:
		return 0, nil
	case pct > 100:
		return 100, nil
	}
	return int(pct), nil
}
