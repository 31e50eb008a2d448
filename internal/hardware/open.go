package hardware

import (
	"github.com/rs/zerolog"

	"github.com/afroash/pump-controller/internal/config"
)

// Open selects the backend once at startup. When simulation is not forced,
// the real backend is tried a single time and any ErrHardwareUnavailable
// falls back to simulation.
func Open(cfg config.HardwareSettings, logger zerolog.Logger) Backend {
	return open(cfg, logger, func() (Backend, error) {
		return openReal(cfg, logger)
	})
}

func open(cfg config.HardwareSettings, logger zerolog.Logger, newReal func() (Backend, error)) Backend {
	if cfg.Simulate {
		logger.Info().Msg("hardware simulation forced by config")
		return NewSimulated(cfg.Seed)
	}

	backend, err := newReal()
	if err != nil {
		logger.Warn().Err(err).Msg("hardware unavailable, falling back to simulation")
		return NewSimulated(cfg.Seed)
	}
	logger.Info().
		Int("rpwm_pin", cfg.RPWMPin).
		Int("r_en_pin", cfg.REnPin).
		Int("pwm_hz", cfg.PWMFrequencyHz).
		Str("probe", cfg.TemperatureProbe).
		Msg("hardware backend ready")
	return backend
}
