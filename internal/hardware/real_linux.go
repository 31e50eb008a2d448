//go:build linux

package hardware

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/warthog618/go-gpiocdev"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/afroash/pump-controller/internal/config"
	"github.com/afroash/pump-controller/internal/models"
)

// Real drives a BTS7960 on a Raspberry Pi. The enable lines go through the
// GPIO character device, the PWM inputs through periph's bcm283x driver.
// Only forward drive is used: LPWM stays low.
type Real struct {
	mu     sync.Mutex
	logger zerolog.Logger

	chip  *gpiocdev.Chip
	rEn   *gpiocdev.Line
	lEn   *gpiocdev.Line
	rpwm  gpio.PinIO
	lpwm  gpio.PinIO
	freq  physic.Frequency
	bus   i2c.BusCloser
	adc   *ADS1115
	probe TemperatureProbe

	lastMoisture models.MoistureReading
	lastTemp     models.TemperatureReading
	closed       bool
}

// NewReal opens every device the pump needs. Any failure is reported as
// ErrHardwareUnavailable and releases what was already opened.
func NewReal(cfg config.HardwareSettings, logger zerolog.Logger) (*Real, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("%w: periph host init: %v", ErrHardwareUnavailable, err)
	}

	r := &Real{
		logger: logger,
		freq:   physic.Frequency(cfg.PWMFrequencyHz) * physic.Hertz,
	}

	r.rpwm = gpioreg.ByName(fmt.Sprintf("GPIO%d", cfg.RPWMPin))
	r.lpwm = gpioreg.ByName(fmt.Sprintf("GPIO%d", cfg.LPWMPin))
	if r.rpwm == nil || r.lpwm == nil {
		return nil, fmt.Errorf("%w: pwm pins GPIO%d/GPIO%d not found", ErrHardwareUnavailable, cfg.RPWMPin, cfg.LPWMPin)
	}

	chip, err := gpiocdev.NewChip(cfg.GPIOChip)
	if err != nil {
		return nil, fmt.Errorf("%w: open gpio chip: %v", ErrHardwareUnavailable, err)
	}
	r.chip = chip

	r.rEn, err = chip.RequestLine(cfg.REnPin, gpiocdev.AsOutput(0), gpiocdev.WithConsumer("pump-r-en"))
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("%w: request R_EN pin %d: %v", ErrHardwareUnavailable, cfg.REnPin, err)
	}
	r.lEn, err = chip.RequestLine(cfg.LEnPin, gpiocdev.AsOutput(0), gpiocdev.WithConsumer("pump-l-en"))
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("%w: request L_EN pin %d: %v", ErrHardwareUnavailable, cfg.LEnPin, err)
	}

	if err := r.rpwm.Out(gpio.Low); err != nil {
		r.Close()
		return nil, fmt.Errorf("%w: RPWM: %v", ErrHardwareUnavailable, err)
	}
	if err := r.lpwm.Out(gpio.Low); err != nil {
		r.Close()
		return nil, fmt.Errorf("%w: LPWM: %v", ErrHardwareUnavailable, err)
	}

	r.bus, err = i2creg.Open(cfg.I2CBus)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("%w: open i2c bus: %v", ErrHardwareUnavailable, err)
	}
	r.adc = NewADS1115(&i2c.Dev{Bus: r.bus, Addr: cfg.ADS1115Address})

	r.probe, err = openProbe(cfg)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("%w: temperature probe: %v", ErrHardwareUnavailable, err)
	}

	return r, nil
}

func openReal(cfg config.HardwareSettings, logger zerolog.Logger) (Backend, error) {
	r, err := NewReal(cfg, logger)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func openProbe(cfg config.HardwareSettings) (TemperatureProbe, error) {
	switch strings.ToLower(cfg.TemperatureProbe) {
	case ProbeDHT11:
		return NewDHT11Probe(cfg.DHTPin)
	default:
		return NewDS18B20(cfg.W1Device)
	}
}

func (r *Real) SetEnabled(on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := 0
	if on {
		v = 1
	}
	if err := r.rEn.SetValue(v); err != nil {
		return fmt.Errorf("set R_EN: %w", err)
	}
	if err := r.lEn.SetValue(v); err != nil {
		return fmt.Errorf("set L_EN: %w", err)
	}
	return nil
}

func (r *Real) SetDutyCycle(percent int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	percent = clampPercent(percent)
	if err := r.lpwm.Out(gpio.Low); err != nil {
		return fmt.Errorf("LPWM low: %w", err)
	}
	if percent == 0 {
		if err := r.rpwm.Out(gpio.Low); err != nil {
			return fmt.Errorf("RPWM low: %w", err)
		}
		return nil
	}
	duty := gpio.Duty(int64(gpio.DutyMax) * int64(percent) / 100)
	if err := r.rpwm.PWM(duty, r.freq); err != nil {
		return fmt.Errorf("RPWM %d%%: %w", percent, err)
	}
	return nil
}

// ReadMoistureChannels converts all four ADC channels. On failure the
// previous reading is kept and returned.
func (r *Real) ReadMoistureChannels() models.MoistureReading {
	r.mu.Lock()
	defer r.mu.Unlock()

	var reading models.MoistureReading
	for ch := range reading {
		v, err := r.adc.Read(ch)
		if err != nil {
			r.logger.Warn().Err(err).Int("channel", ch).Msg("moisture read failed, using cached values")
			return r.lastMoisture
		}
		reading[ch] = adsToRaw(v)
	}
	r.lastMoisture = reading
	return reading
}

// ReadTemperature reads the probe. On failure the previous value is returned.
func (r *Real) ReadTemperature() models.TemperatureReading {
	r.mu.Lock()
	defer r.mu.Unlock()

	celsius, err := r.probe.ReadCelsius()
	if err != nil {
		r.logger.Warn().Err(err).Msg("temperature read failed, using cached value")
		return r.lastTemp
	}
	r.lastTemp = models.RoundTemperature(celsius)
	return r.lastTemp
}

func (r *Real) Kind() Kind { return KindReal }

// Close stops the motor and releases every device. Safe to call twice.
func (r *Real) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	if r.rpwm != nil {
		if err := r.rpwm.Out(gpio.Low); err != nil {
			errs = append(errs, fmt.Errorf("RPWM low: %w", err))
		}
	}
	if r.lpwm != nil {
		if err := r.lpwm.Out(gpio.Low); err != nil {
			errs = append(errs, fmt.Errorf("LPWM low: %w", err))
		}
	}
	for i, line := range []*gpiocdev.Line{r.rEn, r.lEn} {
		if line == nil {
			continue
		}
		name := [...]string{"R_EN", "L_EN"}[i]
		if err := line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("disable %s: %w", name, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	if r.bus != nil {
		if err := r.bus.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close i2c bus: %w", err))
		}
	}
	if r.probe != nil {
		if err := r.probe.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close probe: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
