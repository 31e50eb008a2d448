package pump

import (
	"time"

	"github.com/afroash/pump-controller/internal/models"
)

// worker performs queued countdowns one after another until Close.
func (c *Controller) worker() {
	defer close(c.done)
	for {
		select {
		case <-c.wake:
		case <-c.quit:
		}

		c.mu.Lock()
		runs := c.queue
		c.queue = nil
		closed := c.closed
		c.mu.Unlock()

		for _, run := range runs {
			c.countdown(run)
		}
		if closed {
			return
		}
	}
}

// countdown reports run.seconds..1, then finishes the run. The wait of
// one tick starts after each report returns, so a slow callback never
// shortens the next interval. Cancellation is checked before every report
// and during every wait.
func (c *Controller) countdown(run *timerRun) {
	wait := time.NewTimer(c.tick)
	wait.Stop()
	defer wait.Stop()

	for remaining := run.seconds; remaining > 0; remaining-- {
		if !c.setRemaining(run, remaining) {
			run.report(0)
			return
		}
		run.report(remaining)

		wait.Reset(c.tick)
		select {
		case <-run.cancel:
			run.report(0)
			return
		case <-wait.C:
		}
	}
	c.finish(run)
}

// setRemaining publishes the countdown value. It returns false once the
// run has been cancelled.
func (c *Controller) setRemaining(run *timerRun, remaining int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.run != run {
		return false
	}
	c.timer.Remaining = remaining
	return true
}

// finish stops the pump and clears the timer unless the run was cancelled
// in the meantime, then delivers the terminal progress(0).
func (c *Controller) finish(run *timerRun) {
	c.mu.Lock()
	completed := c.run == run
	if completed {
		c.run = nil
		c.timer = models.TimerState{}
		if c.pump.Running {
			c.halt()
		}
	}
	c.mu.Unlock()

	run.report(0)

	if completed {
		c.logger.Info().Str("run_id", run.id).Int("seconds", run.seconds).Msg("timer finished")
		ev := models.NewEvent(models.EventTimerFinished, run.speed)
		ev.Seconds = run.seconds
		ev.RunID = run.id
		c.emit(ev)
	}
}
