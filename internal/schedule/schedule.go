// Package schedule starts timer runs from cron expressions.
package schedule

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/afroash/pump-controller/internal/config"
	"github.com/afroash/pump-controller/internal/models"
	"github.com/afroash/pump-controller/internal/pump"
)

// ErrNotFound is returned by RunNow for an unknown schedule name.
var ErrNotFound = errors.New("schedule not found")

// TimerStarter is the part of app.App a schedule drives.
type TimerStarter interface {
	TimerStart(seconds, speed int) error
	Record(ev models.Event)
}

// Parser accepts standard five-field expressions, an optional leading
// seconds field and descriptors such as @daily.
var Parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// EntryInfo describes one configured schedule.
type EntryInfo struct {
	Name    string    `json:"name"`
	Cron    string    `json:"cron"`
	Seconds int       `json:"seconds"`
	Speed   int       `json:"speed"`
	Next    time.Time `json:"next,omitempty"`
	Prev    time.Time `json:"prev,omitempty"`
	Fired   int64     `json:"fired"`
	Skipped int64     `json:"skipped"`
}

type entry struct {
	settings config.ScheduleSettings
	id       cron.EntryID
	fired    int64
	skipped  int64
}

// Scheduler runs the configured entries on a robfig/cron instance.
type Scheduler struct {
	cron    *cron.Cron
	starter TimerStarter
	logger  zerolog.Logger

	mu      sync.Mutex
	entries []*entry
}

// New parses every entry. Nothing runs until Start.
func New(starter TimerStarter, settings []config.ScheduleSettings, logger zerolog.Logger) (*Scheduler, error) {
	cl := cronLogger{logger: logger}
	s := &Scheduler{
		cron: cron.New(
			cron.WithParser(Parser),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		starter: starter,
		logger:  logger,
	}

	for i, st := range settings {
		if st.Name == "" {
			st.Name = fmt.Sprintf("schedule-%d", i)
		}
		e := &entry{settings: st}
		id, err := s.cron.AddFunc(st.Cron, func() { _ = s.fire(e) })
		if err != nil {
			return nil, fmt.Errorf("schedule %q: %w", st.Name, err)
		}
		e.id = id
		s.entries = append(s.entries, e)
	}
	return s, nil
}

// Start begins firing entries in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	for _, info := range s.Entries() {
		s.logger.Info().
			Str("name", info.Name).
			Str("cron", info.Cron).
			Time("next", info.Next).
			Msg("schedule armed")
	}
}

// Stop prevents further firings and waits for a running job to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunNow fires the named entry immediately and returns the result of
// starting its timer. A skipped run counts the same as a cron skip.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	var found *entry
	for _, e := range s.entries {
		if e.settings.Name == name {
			found = e
			break
		}
	}
	s.mu.Unlock()

	if found == nil {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return s.fire(found)
}

// Entries returns the schedules with their next and previous run times.
func (s *Scheduler) Entries() []EntryInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]EntryInfo, 0, len(s.entries))
	for _, e := range s.entries {
		ce := s.cron.Entry(e.id)
		out = append(out, EntryInfo{
			Name:    e.settings.Name,
			Cron:    e.settings.Cron,
			Seconds: e.settings.Seconds,
			Speed:   e.settings.Speed,
			Next:    ce.Next,
			Prev:    ce.Prev,
			Fired:   e.fired,
			Skipped: e.skipped,
		})
	}
	return out
}

func (s *Scheduler) fire(e *entry) error {
	st := e.settings
	err := s.starter.TimerStart(st.Seconds, st.Speed)

	s.mu.Lock()
	if err != nil {
		e.skipped++
	} else {
		e.fired++
	}
	s.mu.Unlock()

	switch {
	case errors.Is(err, pump.ErrTimerAlreadyActive):
		s.logger.Info().Str("name", st.Name).Msg("schedule skipped, timer already active")
		return err
	case err != nil:
		s.logger.Error().Err(err).Str("name", st.Name).Msg("schedule failed to start timer")
		return err
	}

	s.logger.Info().
		Str("name", st.Name).
		Int("seconds", st.Seconds).
		Int("speed", st.Speed).
		Msg("schedule fired")

	ev := models.NewEvent(models.EventScheduleFired, st.Speed)
	ev.Seconds = st.Seconds
	ev.Source = "schedule:" + st.Name
	s.starter.Record(ev)
	return nil
}

// cronLogger adapts zerolog to cron.Logger
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
