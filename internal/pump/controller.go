// Package pump runs the motor state machine and the countdown timer.
package pump

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/afroash/pump-controller/internal/models"
)

// Driver is the part of the hardware backend the controller writes to.
type Driver interface {
	SetEnabled(on bool) error
	SetDutyCycle(percent int) error
}

// ProgressFunc receives the seconds left in the timer run identified by
// runID. It is called with the starting value, once per tick down to 1,
// and finally with 0 exactly once when the run completes or is cancelled.
type ProgressFunc func(runID string, remaining int)

// Option configures a Controller
type Option func(*Controller)

// WithTickInterval changes the length of one countdown step.
func WithTickInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.tick = d
		}
	}
}

// WithObserver registers a function that receives every transition.
// It is called outside the controller lock and must not block.
func WithObserver(fn func(models.Event)) Option {
	return func(c *Controller) {
		c.observer = fn
	}
}

type timerRun struct {
	id       string
	seconds  int
	speed    int
	progress ProgressFunc
	cancel   chan struct{}
}

func (r *timerRun) report(remaining int) {
	r.progress(r.id, remaining)
}

// Controller owns the pump and timer state. All state lives behind one
// mutex; a single worker goroutine performs every countdown.
type Controller struct {
	driver   Driver
	logger   zerolog.Logger
	tick     time.Duration
	observer func(models.Event)

	mu     sync.Mutex
	pump   models.PumpState
	timer  models.TimerState
	run    *timerRun   // active run, nil when the timer is idle
	queue  []*timerRun // runs handed to the worker but not yet picked up
	closed bool

	wake      chan struct{}
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a controller in the Idle/TimerIdle state and starts its
// countdown worker.
func New(driver Driver, logger zerolog.Logger, opts ...Option) *Controller {
	c := &Controller{
		driver: driver,
		logger: logger,
		tick:   time.Second,
		wake:   make(chan struct{}, 1),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.worker()
	return c
}

// Start runs the pump at speed percent, clamped to [0, 100].
func (c *Controller) Start(speed int) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.pump.Running {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	speed = clamp(speed)
	c.drive(speed)
	c.mu.Unlock()

	c.logger.Info().Int("speed", speed).Msg("pump started")
	c.emit(models.NewEvent(models.EventPumpStarted, speed))
	return nil
}

// Stop halts the pump. An active timer keeps counting and stops the pump
// again when it completes.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if !c.pump.Running {
		c.mu.Unlock()
		return ErrNotRunning
	}
	c.halt()
	timerActive := c.timer.Active
	c.mu.Unlock()

	c.logger.Info().Bool("timer_active", timerActive).Msg("pump stopped")
	c.emit(models.NewEvent(models.EventPumpStopped, 0))
	return nil
}

// StartTimer runs the pump at speed for the given number of seconds,
// overriding any manual run. progress may be nil.
func (c *Controller) StartTimer(seconds, speed int, progress ProgressFunc) error {
	if seconds <= 0 {
		return ErrInvalidDuration
	}
	if progress == nil {
		progress = func(string, int) {}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.timer.Active {
		c.mu.Unlock()
		return ErrTimerAlreadyActive
	}
	speed = clamp(speed)
	c.drive(speed)

	run := &timerRun{
		id:       uuid.NewString(),
		seconds:  seconds,
		speed:    speed,
		progress: progress,
		cancel:   make(chan struct{}),
	}
	c.run = run
	c.timer = models.TimerState{Active: true, Remaining: seconds, TargetSpeed: speed, RunID: run.id}
	c.queue = append(c.queue, run)
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}

	c.logger.Info().Str("run_id", run.id).Int("seconds", seconds).Int("speed", speed).Msg("timer started")
	ev := models.NewEvent(models.EventTimerStarted, speed)
	ev.Seconds = seconds
	ev.RunID = run.id
	c.emit(ev)
	return nil
}

// StopTimer cancels the active timer and stops the pump. The controller is
// Idle and TimerIdle when it returns; the worker delivers the final
// progress(0) shortly after.
func (c *Controller) StopTimer() error {
	c.mu.Lock()
	if c.run == nil {
		c.mu.Unlock()
		return ErrTimerNotActive
	}
	events := c.cancelLocked()
	c.mu.Unlock()

	c.emit(events...)
	return nil
}

// Cleanup cancels any timer and stops the pump. It never fails and may be
// called any number of times.
func (c *Controller) Cleanup() {
	c.mu.Lock()
	events := c.cancelLocked()
	c.mu.Unlock()

	c.emit(events...)
}

// Close performs Cleanup, rejects further Start/StartTimer calls and waits
// for the worker to exit.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		events := c.cancelLocked()
		c.mu.Unlock()

		c.emit(events...)
		close(c.quit)
		<-c.done
		c.logger.Info().Msg("controller closed")
	})
}

// State returns a consistent snapshot of pump and timer state.
func (c *Controller) State() (models.PumpState, models.TimerState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pump, c.timer
}

// cancelLocked ends the active run and stops the pump if either is active.
// c.mu must be held.
func (c *Controller) cancelLocked() []models.Event {
	var events []models.Event
	if c.run != nil {
		run := c.run
		close(run.cancel)
		c.run = nil
		c.timer = models.TimerState{}
		c.logger.Info().Str("run_id", run.id).Msg("timer cancelled")
		ev := models.NewEvent(models.EventTimerCancelled, 0)
		ev.RunID = run.id
		events = append(events, ev)
	}
	if c.pump.Running {
		c.halt()
		c.logger.Info().Msg("pump stopped")
		events = append(events, models.NewEvent(models.EventPumpStopped, 0))
	}
	return events
}

// drive enables the driver at speed. c.mu must be held.
func (c *Controller) drive(speed int) {
	if err := c.driver.SetEnabled(true); err != nil {
		c.logger.Error().Err(err).Msg("enable motor driver")
	}
	if err := c.driver.SetDutyCycle(speed); err != nil {
		c.logger.Error().Err(err).Int("speed", speed).Msg("set duty cycle")
	}
	c.pump = models.PumpState{Running: true, Speed: speed}
}

// halt zeroes the duty cycle and disables the driver. c.mu must be held.
func (c *Controller) halt() {
	if err := c.driver.SetDutyCycle(0); err != nil {
		c.logger.Error().Err(err).Msg("set duty cycle")
	}
	if err := c.driver.SetEnabled(false); err != nil {
		c.logger.Error().Err(err).Msg("disable motor driver")
	}
	c.pump = models.PumpState{}
}

func (c *Controller) emit(events ...models.Event) {
	if c.observer == nil {
		return
	}
	for _, ev := range events {
		c.observer(ev)
	}
}

func clamp(speed int) int {
	if speed < 0 {
		return 0
	}
	if speed > 100 {
		return 100
	}
	return speed
}
