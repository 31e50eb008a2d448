package storage

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// RetentionCleaner prunes history on a fixed period. Samples and events
// have separate windows so the watering log can outlive sensor data.
type RetentionCleaner struct {
	store  Store
	logger zerolog.Logger
	config RetentionCleanerConfig
	now    func() time.Time

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// serialises prunes from the loop and RunNow
	pruneMu sync.Mutex

	mu    sync.RWMutex
	stats RetentionCleanerStats
}

// RetentionCleanerConfig holds configuration for the cleaner
type RetentionCleanerConfig struct {
	SampleRetentionDays int           // default 30
	EventRetentionDays  int           // default 90
	CleanupPeriod       time.Duration // default 24h
}

// DefaultRetentionCleanerConfig returns the defaults used for unset fields
func DefaultRetentionCleanerConfig() RetentionCleanerConfig {
	return RetentionCleanerConfig{
		SampleRetentionDays: 30,
		EventRetentionDays:  90,
		CleanupPeriod:       24 * time.Hour,
	}
}

// PruneResult describes one cleanup pass
type PruneResult struct {
	At             time.Time `json:"at"`
	SampleCutoff   time.Time `json:"sample_cutoff"`
	EventCutoff    time.Time `json:"event_cutoff"`
	SamplesDeleted int64     `json:"samples_deleted"`
	EventsDeleted  int64     `json:"events_deleted"`
	Err            string    `json:"error,omitempty"`
}

// RetentionCleanerStats contains statistics about the cleaner
type RetentionCleanerStats struct {
	SamplesDeleted      int64       `json:"samples_deleted"`
	EventsDeleted       int64       `json:"events_deleted"`
	TotalCleanups       int64       `json:"total_cleanups"`
	TotalErrors         int64       `json:"total_errors"`
	Last                PruneResult `json:"last"`
	SampleRetentionDays int         `json:"sample_retention_days"`
	EventRetentionDays  int         `json:"event_retention_days"`
}

// NewRetentionCleaner starts the cleaner. The first prune runs immediately.
func NewRetentionCleaner(store Store, config RetentionCleanerConfig, logger zerolog.Logger) *RetentionCleaner {
	c := newRetentionCleaner(store, config, logger, time.Now)

	c.wg.Add(1)
	go c.loop()

	logger.Info().
		Int("sample_retention_days", c.config.SampleRetentionDays).
		Int("event_retention_days", c.config.EventRetentionDays).
		Dur("cleanup_period", c.config.CleanupPeriod).
		Msg("RetentionCleaner started")
	return c
}

func newRetentionCleaner(store Store, config RetentionCleanerConfig, logger zerolog.Logger, now func() time.Time) *RetentionCleaner {
	defaults := DefaultRetentionCleanerConfig()
	if config.CleanupPeriod <= 0 {
		logger.Warn().
			Dur("provided_period", config.CleanupPeriod).
			Dur("default_period", defaults.CleanupPeriod).
			Msg("Invalid cleanup period, using default")
		config.CleanupPeriod = defaults.CleanupPeriod
	}
	if config.SampleRetentionDays <= 0 {
		config.SampleRetentionDays = defaults.SampleRetentionDays
	}
	if config.EventRetentionDays <= 0 {
		config.EventRetentionDays = defaults.EventRetentionDays
	}

	return &RetentionCleaner{
		store:    store,
		logger:   logger,
		config:   config,
		now:      now,
		stopChan: make(chan struct{}),
		stats: RetentionCleanerStats{
			SampleRetentionDays: config.SampleRetentionDays,
			EventRetentionDays:  config.EventRetentionDays,
		},
	}
}

// loop waits a full period after each prune, so a slow prune never overlaps the next
func (c *RetentionCleaner) loop() {
	defer c.wg.Done()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			c.prune()
			timer.Reset(c.config.CleanupPeriod)
		case <-c.stopChan:
			c.logger.Info().Msg("RetentionCleaner stopped")
			return
		}
	}
}

func (c *RetentionCleaner) prune() PruneResult {
	c.pruneMu.Lock()
	defer c.pruneMu.Unlock()

	now := c.now().UTC()
	res := PruneResult{
		At:           now,
		SampleCutoff: now.AddDate(0, 0, -c.config.SampleRetentionDays),
		EventCutoff:  now.AddDate(0, 0, -c.config.EventRetentionDays),
	}

	var err error
	res.SamplesDeleted, err = c.store.DeleteSamplesBefore(res.SampleCutoff)
	if err == nil {
		res.EventsDeleted, err = c.store.DeleteEventsBefore(res.EventCutoff)
	}
	if err != nil {
		res.Err = err.Error()
		c.logger.Error().Err(err).Msg("Retention cleanup failed")
	} else if res.SamplesDeleted > 0 || res.EventsDeleted > 0 {
		c.logger.Info().
			Int64("samples", res.SamplesDeleted).
			Int64("events", res.EventsDeleted).
			Time("sample_cutoff", res.SampleCutoff).
			Time("event_cutoff", res.EventCutoff).
			Msg("Pruned old history")
	}

	c.mu.Lock()
	c.stats.TotalCleanups++
	if err != nil {
		c.stats.TotalErrors++
	}
	c.stats.SamplesDeleted += res.SamplesDeleted
	c.stats.EventsDeleted += res.EventsDeleted
	c.stats.Last = res
	c.mu.Unlock()

	return res
}

// Stop stops the cleaner and waits for an in-flight prune to finish
func (c *RetentionCleaner) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
		c.wg.Wait()
	})
}

// Stats returns current cleaner statistics
func (c *RetentionCleaner) Stats() RetentionCleanerStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// RunNow prunes immediately and returns the result
func (c *RetentionCleaner) RunNow() PruneResult {
	return c.prune()
}
