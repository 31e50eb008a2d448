package schedule

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afroash/pump-controller/internal/config"
	"github.com/afroash/pump-controller/internal/models"
	"github.com/afroash/pump-controller/internal/pump"
)

type fakeStarter struct {
	mu      sync.Mutex
	err     error
	starts  [][2]int
	records []models.Event
}

func (f *fakeStarter) TimerStart(seconds, speed int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.starts = append(f.starts, [2]int{seconds, speed})
	return nil
}

func (f *fakeStarter) Record(ev models.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, ev)
}

func (f *fakeStarter) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.starts)
}

func TestNewRejectsBadExpression(t *testing.T) {
	_, err := New(&fakeStarter{}, []config.ScheduleSettings{
		{Name: "broken", Cron: "not a cron", Seconds: 10, Speed: 50},
	}, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestParserAcceptsCommonForms(t *testing.T) {
	for _, expr := range []string{"0 6 * * *", "*/10 * * * * *", "@daily", "@every 1h"} {
		_, err := Parser.Parse(expr)
		assert.NoError(t, err, expr)
	}
}

func TestRunNowStartsTimerAndRecords(t *testing.T) {
	starter := &fakeStarter{}
	s, err := New(starter, []config.ScheduleSettings{
		{Name: "morning", Cron: "0 6 * * *", Seconds: 45, Speed: 80},
	}, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, s.RunNow("morning"))

	require.Len(t, starter.starts, 1)
	assert.Equal(t, [2]int{45, 80}, starter.starts[0])
	require.Len(t, starter.records, 1)
	ev := starter.records[0]
	assert.Equal(t, models.EventScheduleFired, ev.Type)
	assert.Equal(t, "schedule:morning", ev.Source)
	assert.Equal(t, 45, ev.Seconds)

	assert.ErrorIs(t, s.RunNow("evening"), ErrNotFound)
}

func TestSkipWhenTimerActive(t *testing.T) {
	starter := &fakeStarter{err: pump.ErrTimerAlreadyActive}
	s, err := New(starter, []config.ScheduleSettings{
		{Name: "busy", Cron: "@hourly", Seconds: 10, Speed: 50},
	}, zerolog.Nop())
	require.NoError(t, err)

	assert.ErrorIs(t, s.RunNow("busy"), pump.ErrTimerAlreadyActive)

	assert.Empty(t, starter.records)
	info := s.Entries()
	require.Len(t, info, 1)
	assert.Equal(t, int64(0), info[0].Fired)
	assert.Equal(t, int64(1), info[0].Skipped)
}

func TestDefaultNames(t *testing.T) {
	s, err := New(&fakeStarter{}, []config.ScheduleSettings{
		{Cron: "@daily", Seconds: 10, Speed: 50},
	}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "schedule-0", s.Entries()[0].Name)
}

func TestCronFires(t *testing.T) {
	starter := &fakeStarter{}
	s, err := New(starter, []config.ScheduleSettings{
		{Name: "fast", Cron: "@every 1s", Seconds: 5, Speed: 60},
	}, zerolog.Nop())
	require.NoError(t, err)

	s.Start()
	defer s.Stop()

	assert.False(t, s.Entries()[0].Next.IsZero())
	require.Eventually(t, func() bool { return starter.startCount() >= 1 }, 3*time.Second, 20*time.Millisecond)
}
