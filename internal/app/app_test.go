package app

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afroash/pump-controller/internal/events"
	"github.com/afroash/pump-controller/internal/hardware"
	"github.com/afroash/pump-controller/internal/metrics"
	"github.com/afroash/pump-controller/internal/models"
	"github.com/afroash/pump-controller/internal/pump"
)

type fakeHistory struct {
	mu      sync.Mutex
	samples []*models.Sample
	events  []models.Event
}

func (f *fakeHistory) WriteSample(s *models.Sample) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples = append(f.samples, s)
	return true
}

func (f *fakeHistory) WriteEvent(ev models.Event) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return true
}

func (f *fakeHistory) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.samples), len(f.events)
}

type fakeLog struct {
	mu     sync.Mutex
	events []models.Event
}

func (f *fakeLog) Add(ev models.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func (f *fakeLog) types() []models.EventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.EventType
	for _, ev := range f.events {
		out = append(out, ev.Type)
	}
	return out
}

type fakeBroadcaster struct {
	mu   sync.Mutex
	msgs []*models.Message
}

func (f *fakeBroadcaster) Broadcast(msg *models.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
}

func (f *fakeBroadcaster) progress() []models.ProgressMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ProgressMessage
	for _, m := range f.msgs {
		if m.Type != models.MessageTypeProgress {
			continue
		}
		var p models.ProgressMessage
		if err := json.Unmarshal(m.Payload, &p); err == nil {
			out = append(out, p)
		}
	}
	return out
}

type fixture struct {
	app       *App
	sim       *hardware.Simulated
	publisher *events.FakePublisher
	history   *fakeHistory
	log       *fakeLog
	stream    *fakeBroadcaster
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		sim:       hardware.NewSimulated(7),
		publisher: events.NewFakePublisher(),
		history:   &fakeHistory{},
		log:       &fakeLog{},
		stream:    &fakeBroadcaster{},
	}
	f.app = New(Deps{
		Backend:           f.sim,
		Publisher:         f.publisher,
		History:           f.history,
		Metrics:           metrics.New(),
		EventLog:          f.log,
		Broadcaster:       f.stream,
		Logger:            zerolog.Nop(),
		ControllerOptions: []pump.Option{pump.WithTickInterval(10 * time.Millisecond)},
	})
	t.Cleanup(f.app.Shutdown)
	return f
}

func TestStatus(t *testing.T) {
	f := newFixture(t)

	status := f.app.Status()

	assert.False(t, status.PumpRunning)
	assert.Equal(t, 0, status.PumpSpeed)
	assert.False(t, status.TimerRunning)
	assert.Equal(t, "simulated", status.Backend)
	assert.InDelta(t, 20.0, status.Temperature, 2.0)
	for ch := 0; ch < models.MoistureChannels; ch++ {
		assert.GreaterOrEqual(t, status.MoistureRaw[ch], 400)
		assert.LessOrEqual(t, status.MoistureRaw[ch], 800)
		assert.GreaterOrEqual(t, status.Moisture[ch], 0)
		assert.LessOrEqual(t, status.Moisture[ch], 100)
	}

	samples, _ := f.history.counts()
	assert.Equal(t, 1, samples)
}

func TestStatusReflectsPump(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.app.PumpStart(60))
	status := f.app.Status()
	assert.True(t, status.PumpRunning)
	assert.Equal(t, 60, status.PumpSpeed)
	assert.True(t, f.sim.Enabled())
	assert.Equal(t, 60, f.sim.DutyCycle())
}

func TestValidation(t *testing.T) {
	f := newFixture(t)

	assert.ErrorIs(t, f.app.PumpStart(-1), ErrInvalidSpeed)
	assert.ErrorIs(t, f.app.PumpStart(101), ErrInvalidSpeed)
	assert.ErrorIs(t, f.app.TimerStart(0, 50), ErrInvalidDuration)
	assert.ErrorIs(t, f.app.TimerStart(-5, 50), ErrInvalidDuration)
	assert.ErrorIs(t, f.app.TimerStart(5, 150), ErrInvalidSpeed)

	assert.Empty(t, f.sim.Calls(), "invalid requests must not reach the hardware")
}

func TestControllerErrorsPassThrough(t *testing.T) {
	f := newFixture(t)

	assert.ErrorIs(t, f.app.PumpStop(), pump.ErrNotRunning)
	assert.ErrorIs(t, f.app.TimerStop(), pump.ErrTimerNotActive)

	require.NoError(t, f.app.PumpStart(100))
	assert.ErrorIs(t, f.app.PumpStart(100), pump.ErrAlreadyRunning)
}

func TestTimerStreamsProgress(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.app.TimerStart(3, 70))

	require.Eventually(t, func() bool {
		p := f.stream.progress()
		return len(p) > 0 && p[len(p)-1].Remaining == 0
	}, 2*time.Second, 5*time.Millisecond)

	progress := f.stream.progress()
	var values []int
	for _, p := range progress {
		values = append(values, p.Remaining)
		assert.Equal(t, 70, p.TargetSpeed)
		assert.NotEmpty(t, p.RunID)
		assert.Equal(t, progress[0].RunID, p.RunID)
	}
	assert.Equal(t, []int{3, 2, 1, 0}, values)

	pumpState, timer := f.app.State()
	assert.False(t, pumpState.Running)
	assert.False(t, timer.Active)
}

func TestTimerRestartKeepsRunIDs(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.app.TimerStart(5, 30))
	_, first := f.app.State()
	require.NoError(t, f.app.TimerStop())

	require.NoError(t, f.app.TimerStart(5, 80))
	_, second := f.app.State()
	require.NotEqual(t, first.RunID, second.RunID)
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, f.app.TimerStop())

	require.Eventually(t, func() bool {
		zeros := 0
		for _, p := range f.stream.progress() {
			if p.Remaining == 0 {
				zeros++
			}
		}
		return zeros == 2
	}, 2*time.Second, 5*time.Millisecond)

	zeros := map[string]int{}
	for _, p := range f.stream.progress() {
		require.NotEmpty(t, p.RunID)
		switch p.TargetSpeed {
		case 30:
			assert.Equal(t, first.RunID, p.RunID)
		case 80:
			assert.Equal(t, second.RunID, p.RunID)
		default:
			t.Errorf("unexpected target speed %d", p.TargetSpeed)
		}
		if p.Remaining == 0 {
			zeros[p.RunID]++
		}
	}
	assert.Equal(t, map[string]int{first.RunID: 1, second.RunID: 1}, zeros)
}

func TestEventsFanOut(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.app.PumpStart(40))
	require.NoError(t, f.app.PumpStop())

	assert.Equal(t, []models.EventType{models.EventPumpStarted, models.EventPumpStopped}, f.log.types())

	require.Eventually(t, func() bool {
		return len(f.publisher.Events()) == 2
	}, time.Second, 5*time.Millisecond)

	_, historyEvents := f.history.counts()
	assert.Equal(t, 2, historyEvents)
	assert.Equal(t, models.EventPumpStarted, f.publisher.Events()[0].Type)
}

func TestRecord(t *testing.T) {
	f := newFixture(t)

	ev := models.NewEvent(models.EventScheduleFired, 50)
	ev.Source = "schedule:morning"
	f.app.Record(ev)

	require.Eventually(t, func() bool {
		return len(f.publisher.Events()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "schedule:morning", f.publisher.Events()[0].Source)
}

func TestShutdown(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.app.TimerStart(60, 100))
	f.app.Shutdown()

	assert.True(t, f.sim.Closed())
	assert.False(t, f.sim.Enabled())
	assert.Equal(t, 0, f.sim.DutyCycle())

	// queued events were flushed before Shutdown returned
	types := map[models.EventType]bool{}
	for _, ev := range f.publisher.Events() {
		types[ev.Type] = true
	}
	assert.True(t, types[models.EventTimerStarted])
	assert.True(t, types[models.EventTimerCancelled])

	// second call and post-shutdown operations are safe
	f.app.Shutdown()
	assert.ErrorIs(t, f.app.PumpStart(10), pump.ErrClosed)
}
