package storage

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/pump-controller/internal/models"
)

// record is one queued history row. Exactly one field is set.
type record struct {
	sample *models.Sample
	event  *models.Event
}

// pending collects records between flushes
type pending struct {
	samples []*models.Sample
	events  []*models.Event
}

func (p *pending) add(r record) {
	if r.sample != nil {
		p.samples = append(p.samples, r.sample)
	}
	if r.event != nil {
		p.events = append(p.events, r.event)
	}
}

func (p *pending) len() int { return len(p.samples) + len(p.events) }

func (p *pending) reset() {
	p.samples = nil
	p.events = nil
}

// DBWriter persists samples and events off the request path.
// Samples are batched; an event flushes everything pending at once so
// the watering log is on disk shortly after each pump action.
type DBWriter struct {
	store       Store
	logger      zerolog.Logger
	queue       chan record
	batchSize   int
	flushPeriod time.Duration
	stopChan    chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup

	mu    sync.RWMutex
	stats DBWriterStats
}

// DBWriterConfig holds configuration for the async writer
type DBWriterConfig struct {
	BatchSize   int           // samples per batch (default: 50)
	FlushPeriod time.Duration // max time a sample waits (default: 30s)
	ChannelSize int           // queue capacity (default: 200)
}

// DefaultDBWriterConfig returns the defaults used for unset fields
func DefaultDBWriterConfig() DBWriterConfig {
	return DBWriterConfig{
		BatchSize:   50,
		FlushPeriod: 30 * time.Second,
		ChannelSize: 200,
	}
}

// DBWriterStats contains statistics about the writer
type DBWriterStats struct {
	SamplesWritten int64     `json:"samples_written"`
	EventsWritten  int64     `json:"events_written"`
	SamplesDropped int64     `json:"samples_dropped"`
	EventsDropped  int64     `json:"events_dropped"`
	TotalBatches   int64     `json:"total_batches"`
	TotalErrors    int64     `json:"total_errors"`
	LastWriteTime  time.Time `json:"last_write_time,omitempty"`
	QueueLength    int       `json:"queue_length"`
}

// NewDBWriter starts a writer on top of store
func NewDBWriter(store Store, config DBWriterConfig, logger zerolog.Logger) *DBWriter {
	defaults := DefaultDBWriterConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.FlushPeriod <= 0 {
		config.FlushPeriod = defaults.FlushPeriod
	}
	if config.ChannelSize <= 0 {
		config.ChannelSize = defaults.ChannelSize
	}

	w := &DBWriter{
		store:       store,
		logger:      logger,
		queue:       make(chan record, config.ChannelSize),
		batchSize:   config.BatchSize,
		flushPeriod: config.FlushPeriod,
		stopChan:    make(chan struct{}),
	}

	w.wg.Add(1)
	go w.run()

	logger.Info().
		Int("batch_size", config.BatchSize).
		Dur("flush_period", config.FlushPeriod).
		Int("channel_size", config.ChannelSize).
		Msg("DBWriter started")
	return w
}

// WriteSample queues a copy of sample. It returns false if the sample was
// dropped because the queue is full or the writer has stopped.
func (w *DBWriter) WriteSample(sample *models.Sample) bool {
	return w.enqueue(record{sample: sample.Copy()})
}

// WriteEvent queues a controller event
func (w *DBWriter) WriteEvent(ev models.Event) bool {
	return w.enqueue(record{event: &ev})
}

func (w *DBWriter) enqueue(r record) bool {
	select {
	case <-w.stopChan:
		return false
	default:
	}

	select {
	case w.queue <- r:
		return true
	default:
	}

	w.mu.Lock()
	if r.event != nil {
		w.stats.EventsDropped++
	} else {
		w.stats.SamplesDropped++
	}
	w.mu.Unlock()

	l := w.logger.Warn().Int("capacity", cap(w.queue))
	if r.event != nil {
		l = l.Str("event", string(r.event.Type))
	}
	l.Msg("DBWriter queue full, dropping record")
	return false
}

func (w *DBWriter) run() {
	defer w.wg.Done()

	var batch pending
	ticker := time.NewTicker(w.flushPeriod)
	defer ticker.Stop()

	for {
		select {
		case r := <-w.queue:
			batch.add(r)
			if r.event != nil || len(batch.samples) >= w.batchSize {
				w.flush(&batch)
			}

		case <-ticker.C:
			w.flush(&batch)

		case <-w.stopChan:
		drain:
			for {
				select {
				case r := <-w.queue:
					batch.add(r)
				default:
					break drain
				}
			}
			w.flush(&batch)
			w.logger.Info().Msg("DBWriter stopped")
			return
		}
	}
}

// flush writes and clears batch. A failed batch is discarded.
func (w *DBWriter) flush(batch *pending) {
	if batch.len() == 0 {
		return
	}
	samples, events := len(batch.samples), len(batch.events)
	err := w.store.InsertBatch(batch.samples, batch.events)
	batch.reset()

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.stats.TotalErrors++
		w.logger.Error().Err(err).
			Int("samples", samples).
			Int("events", events).
			Msg("Failed to write batch")
		return
	}
	w.stats.SamplesWritten += int64(samples)
	w.stats.EventsWritten += int64(events)
	w.stats.TotalBatches++
	w.stats.LastWriteTime = time.Now()
	w.logger.Debug().Int("samples", samples).Int("events", events).Msg("Flushed batch")
}

// Stop flushes whatever is queued and stops the writer
func (w *DBWriter) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopChan)
		w.wg.Wait()
	})
}

// Stats returns current writer statistics
func (w *DBWriter) Stats() DBWriterStats {
	w.mu.RLock()
	stats := w.stats
	w.mu.RUnlock()

	stats.QueueLength = len(w.queue)
	return stats
}
