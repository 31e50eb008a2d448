// Package app holds the application state shared by the HTTP API, the
// scheduler and the bench CLI.
package app

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/pump-controller/internal/events"
	"github.com/afroash/pump-controller/internal/hardware"
	"github.com/afroash/pump-controller/internal/metrics"
	"github.com/afroash/pump-controller/internal/models"
	"github.com/afroash/pump-controller/internal/pump"
	"github.com/afroash/pump-controller/internal/sensor"
)

var (
	ErrInvalidSpeed    = errors.New("speed must be between 0 and 100")
	ErrInvalidDuration = errors.New("seconds must be greater than 0")
)

const defaultDispatchBuffer = 64

// HistoryWriter persists samples and events. storage.DBWriter implements it.
type HistoryWriter interface {
	WriteSample(sample *models.Sample) bool
	WriteEvent(ev models.Event) bool
}

// EventLog keeps recent events in memory.
type EventLog interface {
	Add(ev models.Event)
}

// Broadcaster fans messages out to stream clients. Broadcast must not block.
type Broadcaster interface {
	Broadcast(msg *models.Message)
}

// Deps are the collaborators of an App. Only Backend is required.
type Deps struct {
	Backend     hardware.Backend
	Calibration models.CalibrationBounds
	Publisher   events.Publisher
	History     HistoryWriter
	Metrics     *metrics.Metrics
	EventLog    EventLog
	Broadcaster Broadcaster
	Logger      zerolog.Logger

	// ControllerOptions are passed to pump.New.
	ControllerOptions []pump.Option
	// DispatchBuffer sizes the queue between the controller and the slow
	// sinks (MQTT, history, stream).
	DispatchBuffer int
}

// App owns the controller and sensor reader for one backend.
type App struct {
	backend     hardware.Backend
	controller  *pump.Controller
	reader      *sensor.Reader
	calibration models.CalibrationBounds

	publisher   events.Publisher
	history     HistoryWriter
	metrics     *metrics.Metrics
	eventLog    EventLog
	broadcaster Broadcaster
	logger      zerolog.Logger

	dispatchMu     sync.RWMutex
	dispatch       chan models.Event
	dispatchClosed bool
	dispatchDone   chan struct{}
	shutdownOnce   sync.Once
}

// New builds the controller and reader on top of deps.Backend.
func New(deps Deps) *App {
	if deps.Calibration == (models.CalibrationBounds{}) {
		deps.Calibration = sensor.DefaultCalibration()
	}
	if deps.Publisher == nil {
		deps.Publisher = events.NopPublisher{}
	}
	if deps.DispatchBuffer <= 0 {
		deps.DispatchBuffer = defaultDispatchBuffer
	}

	a := &App{
		backend:      deps.Backend,
		calibration:  deps.Calibration,
		publisher:    deps.Publisher,
		history:      deps.History,
		metrics:      deps.Metrics,
		eventLog:     deps.EventLog,
		broadcaster:  deps.Broadcaster,
		logger:       deps.Logger,
		dispatch:     make(chan models.Event, deps.DispatchBuffer),
		dispatchDone: make(chan struct{}),
	}

	a.reader = sensor.NewReader(deps.Backend, deps.Logger.With().Str("component", "sensor").Logger())

	opts := append([]pump.Option{pump.WithObserver(a.observe)}, deps.ControllerOptions...)
	a.controller = pump.New(deps.Backend, deps.Logger.With().Str("component", "pump").Logger(), opts...)

	go a.dispatcher()
	return a
}

// Status polls the sensors and returns a snapshot of the whole system.
func (a *App) Status() models.Status {
	raw := a.reader.ReadMoisture()
	temp := a.reader.ReadTemperature()
	pumpState, timerState := a.controller.State()

	status := models.Status{
		PumpRunning:    pumpState.Running,
		PumpSpeed:      pumpState.Speed,
		TimerRunning:   timerState.Active,
		TimerRemaining: timerState.Remaining,
		TimerSpeed:     timerState.TargetSpeed,
		TimerRunID:     timerState.RunID,
		Temperature:    float64(temp),
		MoistureRaw:    raw,
		Backend:        string(a.backend.Kind()),
		Timestamp:      time.Now(),
	}

	pct, err := a.reader.MoisturePercents(a.calibration)
	if err != nil {
		a.logger.Error().Err(err).Msg("moisture percent")
	}
	status.Moisture = pct

	a.metrics.ObserveStatus(status)
	if a.history != nil {
		sample := status.Sample()
		if sample.IsValid() {
			a.history.WriteSample(&sample)
		} else {
			a.logger.Warn().Str("sample", sample.String()).Msg("skipping invalid sample")
		}
	}
	return status
}

// PumpStart runs the pump at speed percent.
func (a *App) PumpStart(speed int) error {
	if err := validateSpeed(speed); err != nil {
		return err
	}
	return a.controller.Start(speed)
}

// PumpStop halts the pump.
func (a *App) PumpStop() error {
	return a.controller.Stop()
}

// TimerStart runs the pump at speed for seconds and streams the countdown.
func (a *App) TimerStart(seconds, speed int) error {
	if seconds <= 0 {
		return ErrInvalidDuration
	}
	if err := validateSpeed(speed); err != nil {
		return err
	}

	progress := func(runID string, remaining int) {
		a.progress(runID, speed, remaining)
	}
	return a.controller.StartTimer(seconds, speed, progress)
}

// TimerStop cancels the active timer and stops the pump.
func (a *App) TimerStop() error {
	return a.controller.StopTimer()
}

// State returns the controller state without polling sensors.
func (a *App) State() (models.PumpState, models.TimerState) {
	return a.controller.State()
}

// Calibration returns the bounds used for moisture percentages.
func (a *App) Calibration() models.CalibrationBounds {
	return a.calibration
}

// Record feeds an externally generated event (a schedule firing, for
// example) through the same sinks as controller events.
func (a *App) Record(ev models.Event) {
	a.observe(ev)
}

// Shutdown stops the pump, closes the controller and the backend, and
// flushes queued events. It never fails and is safe to call twice.
func (a *App) Shutdown() {
	a.shutdownOnce.Do(func() {
		a.controller.Close()
		if err := a.backend.Close(); err != nil {
			a.logger.Error().Err(err).Msg("closing hardware backend")
		}
		a.dispatchMu.Lock()
		a.dispatchClosed = true
		close(a.dispatch)
		a.dispatchMu.Unlock()
		<-a.dispatchDone
		a.logger.Info().Msg("app shut down")
	})
}

func (a *App) progress(runID string, speed, remaining int) {
	a.metrics.ObserveTimer(remaining)
	if a.broadcaster == nil {
		return
	}
	msg, err := models.NewMessage(models.MessageTypeProgress, models.ProgressMessage{
		RunID:       runID,
		Remaining:   remaining,
		TargetSpeed: speed,
	})
	if err != nil {
		a.logger.Error().Err(err).Msg("encode progress message")
		return
	}
	a.broadcaster.Broadcast(msg)
}

// observe runs on controller goroutines; slow sinks are handed to the
// dispatcher.
func (a *App) observe(ev models.Event) {
	a.metrics.CountEvent(ev.Type)
	if a.eventLog != nil {
		a.eventLog.Add(ev)
	}

	a.dispatchMu.RLock()
	defer a.dispatchMu.RUnlock()
	if a.dispatchClosed {
		return
	}
	select {
	case a.dispatch <- ev:
	default:
		a.logger.Warn().Str("type", string(ev.Type)).Msg("event queue full, dropping event")
	}
}

func (a *App) dispatcher() {
	defer close(a.dispatchDone)
	for ev := range a.dispatch {
		a.logger.Info().
			Str("event", string(ev.Type)).
			Int("speed", ev.Speed).
			Str("run_id", ev.RunID).
			Msg("controller event")

		if err := a.publisher.Publish(ev); err != nil {
			a.metrics.PublishFailed()
			a.logger.Warn().Err(err).Str("type", string(ev.Type)).Msg("publish event")
		}
		if a.history != nil {
			a.history.WriteEvent(ev)
		}
		if a.broadcaster != nil {
			msg, err := models.NewMessage(models.MessageTypeEvent, ev)
			if err != nil {
				a.logger.Error().Err(err).Msg("encode event message")
				continue
			}
			a.broadcaster.Broadcast(msg)
		}
	}
}

func validateSpeed(speed int) error {
	if speed < 0 || speed > 100 {
		return ErrInvalidSpeed
	}
	return nil
}
