package storage

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/pump-controller/internal/models"
)

// testLogger creates a logger for tests
func testLogger() zerolog.Logger {
	return zerolog.New(os.Stdout).With().Timestamp().Logger().Level(zerolog.DebugLevel)
}

// setupTestDB creates a temporary database for testing
func setupTestDB(t testing.TB) (*SQLiteStore, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "pump-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	dbPath := filepath.Join(tmpDir, "test.db")
	store, err := NewSQLiteStore(dbPath, testLogger())
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to create store: %v", err)
	}

	cleanup := func() {
		store.Close()
		os.RemoveAll(tmpDir)
	}

	return store, cleanup
}

// createTestSample creates a sample with a uniform moisture value
func createTestSample(moisture int, temp float64, running bool, timestamp time.Time) *models.Sample {
	s := &models.Sample{
		Timestamp:   timestamp,
		Temperature: temp,
		PumpRunning: running,
	}
	if running {
		s.PumpSpeed = 100
	}
	for ch := 0; ch < models.MoistureChannels; ch++ {
		s.MoistureRaw[ch] = 600 + ch
		s.Moisture[ch] = moisture
	}
	return s
}

func eventPtr(eventType models.EventType, speed int) *models.Event {
	ev := models.NewEvent(eventType, speed)
	return &ev
}

func TestNewSQLiteStore(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	if store.db == nil {
		t.Fatal("Expected non-nil database connection")
	}
}

func TestNewSQLiteStore_InvalidPath(t *testing.T) {
	_, err := NewSQLiteStore("/nonexistent/path/that/cannot/exist/test.db", testLogger())
	if err == nil {
		t.Fatal("Expected error for invalid path")
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	for i := 0; i < 3; i++ {
		if err := store.Migrate(); err != nil {
			t.Fatalf("Migrate run %d failed: %v", i, err)
		}
	}

	for _, table := range []string{"samples", "events"} {
		var name string
		err := store.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Fatalf("Table %s not found: %v", table, err)
		}
	}
}

func TestInsertSample(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	now := time.Now().UTC().Truncate(time.Second)
	sample := createTestSample(52, 21.5, true, now)

	if err := store.InsertSample(sample); err != nil {
		t.Fatalf("InsertSample failed: %v", err)
	}

	latest, err := store.GetLatestSample()
	if err != nil {
		t.Fatalf("GetLatestSample failed: %v", err)
	}
	if latest == nil {
		t.Fatal("Expected a sample")
	}

	if latest.Moisture != sample.Moisture {
		t.Errorf("Moisture = %v, want %v", latest.Moisture, sample.Moisture)
	}
	if latest.MoistureRaw != sample.MoistureRaw {
		t.Errorf("MoistureRaw = %v, want %v", latest.MoistureRaw, sample.MoistureRaw)
	}
	if latest.Temperature != 21.5 {
		t.Errorf("Temperature = %v, want 21.5", latest.Temperature)
	}
	if !latest.PumpRunning || latest.PumpSpeed != 100 {
		t.Errorf("Pump = %v/%d, want running at 100", latest.PumpRunning, latest.PumpSpeed)
	}
	if !latest.Timestamp.Equal(now) {
		t.Errorf("Timestamp = %v, want %v", latest.Timestamp, now)
	}
}

func TestInsertBatch(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	now := time.Now().UTC()
	samples := make([]*models.Sample, 10)
	for i := range samples {
		samples[i] = createTestSample(40+i, 20.0, false, now.Add(-time.Duration(i)*time.Minute))
	}
	events := []*models.Event{
		eventPtr(models.EventPumpStarted, 80),
		eventPtr(models.EventPumpStopped, 0),
	}

	if err := store.InsertBatch(samples, events); err != nil {
		t.Fatalf("InsertBatch failed: %v", err)
	}

	stats, err := store.GetStorageStats()
	if err != nil {
		t.Fatalf("GetStorageStats failed: %v", err)
	}
	if stats.TotalSamples != 10 {
		t.Errorf("TotalSamples = %d, want 10", stats.TotalSamples)
	}
	if stats.TotalEvents != 2 {
		t.Errorf("TotalEvents = %d, want 2", stats.TotalEvents)
	}
}

func TestInsertBatch_Empty(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	if err := store.InsertBatch(nil, nil); err != nil {
		t.Fatalf("InsertBatch with nil slices failed: %v", err)
	}
	if err := store.InsertBatch([]*models.Sample{}, []*models.Event{}); err != nil {
		t.Fatalf("InsertBatch with empty slices failed: %v", err)
	}
}

func TestInsertBatch_DuplicateEventIgnored(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ev := eventPtr(models.EventTimerStarted, 60)
	if err := store.InsertBatch(nil, []*models.Event{ev}); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}
	if err := store.InsertBatch(nil, []*models.Event{ev}); err != nil {
		t.Fatalf("Duplicate insert failed: %v", err)
	}

	events, err := store.GetEvents(10)
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("Expected 1 event, got %d", len(events))
	}
}

func TestGetSamplesInRange(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		if err := store.InsertSample(createTestSample(50, 20.0, false, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("InsertSample failed: %v", err)
		}
	}

	samples, err := store.GetSamplesInRange(base.Add(2*time.Minute), base.Add(5*time.Minute), 100)
	if err != nil {
		t.Fatalf("GetSamplesInRange failed: %v", err)
	}
	if len(samples) != 4 {
		t.Fatalf("Expected 4 samples, got %d", len(samples))
	}

	// newest first
	for i := 1; i < len(samples); i++ {
		if samples[i].Timestamp.After(samples[i-1].Timestamp) {
			t.Errorf("Samples not in descending order at index %d", i)
		}
	}

	limited, err := store.GetSamplesInRange(base, base.Add(time.Hour), 3)
	if err != nil {
		t.Fatalf("GetSamplesInRange failed: %v", err)
	}
	if len(limited) != 3 {
		t.Errorf("Expected limit of 3, got %d", len(limited))
	}
}

func TestGetSamplesBefore(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		store.InsertSample(createTestSample(50, 20.0, false, base.Add(time.Duration(i)*time.Minute)))
	}

	samples, err := store.GetSamplesBefore(base.Add(3*time.Minute), 10)
	if err != nil {
		t.Fatalf("GetSamplesBefore failed: %v", err)
	}
	if len(samples) != 3 {
		t.Fatalf("Expected 3 samples, got %d", len(samples))
	}
	if !samples[0].Timestamp.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("Newest sample = %v, want %v", samples[0].Timestamp, base.Add(2*time.Minute))
	}
}

func TestGetLatestSample_NoSamples(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	sample, err := store.GetLatestSample()
	if err != nil {
		t.Fatalf("GetLatestSample failed: %v", err)
	}
	if sample != nil {
		t.Errorf("Expected nil sample, got %+v", sample)
	}
}

func TestGetEvents(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	base := time.Now().UTC().Add(-time.Hour)
	var events []*models.Event
	for i, typ := range []models.EventType{models.EventTimerStarted, models.EventPumpStarted, models.EventTimerFinished} {
		ev := eventPtr(typ, 75)
		ev.Timestamp = base.Add(time.Duration(i) * time.Minute)
		ev.RunID = "run-1"
		ev.Seconds = 60
		events = append(events, ev)
	}
	if err := store.InsertBatch(nil, events); err != nil {
		t.Fatalf("InsertBatch failed: %v", err)
	}

	got, err := store.GetEvents(2)
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(got))
	}
	if got[0].Type != models.EventTimerFinished {
		t.Errorf("Newest event = %s, want %s", got[0].Type, models.EventTimerFinished)
	}
	if got[0].RunID != "run-1" || got[0].Seconds != 60 || got[0].Speed != 75 {
		t.Errorf("Event fields not round-tripped: %+v", got[0])
	}
}

func TestGetDailyStats(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	day1 := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)

	store.InsertSample(createTestSample(40, 18.0, false, day1))
	store.InsertSample(createTestSample(60, 22.0, true, day1.Add(time.Hour)))
	store.InsertSample(createTestSample(30, 25.0, true, day2))

	stats, err := store.GetDailyStats(day1.Add(-time.Hour), day2.Add(time.Hour))
	if err != nil {
		t.Fatalf("GetDailyStats failed: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("Expected 2 days, got %d", len(stats))
	}

	// newest day first
	first := stats[1]
	if !first.Date.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Date = %v, want 2026-03-01", first.Date)
	}
	if first.SampleCount != 2 {
		t.Errorf("SampleCount = %d, want 2", first.SampleCount)
	}
	if first.MinTemperature != 18.0 || first.MaxTemperature != 22.0 {
		t.Errorf("Temperature range = %v..%v, want 18..22", first.MinTemperature, first.MaxTemperature)
	}
	if first.AvgTemperature != 20.0 {
		t.Errorf("AvgTemperature = %v, want 20", first.AvgTemperature)
	}
	for ch, avg := range first.AvgMoisture {
		if avg != 50.0 {
			t.Errorf("AvgMoisture[%d] = %v, want 50", ch, avg)
		}
	}
	if first.RunningSamples != 1 {
		t.Errorf("RunningSamples = %d, want 1", first.RunningSamples)
	}
	if stats[0].RunningSamples != 1 || stats[0].SampleCount != 1 {
		t.Errorf("Second day = %+v, want one running sample", stats[0])
	}
}

func TestDeleteBefore(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	now := time.Now().UTC()
	store.InsertSample(createTestSample(50, 20.0, false, now.AddDate(0, 0, -10)))
	store.InsertSample(createTestSample(50, 20.0, false, now.AddDate(0, 0, -5)))
	store.InsertSample(createTestSample(50, 20.0, false, now.Add(-time.Hour)))

	old := eventPtr(models.EventPumpStarted, 100)
	old.Timestamp = now.AddDate(0, 0, -10)
	recent := eventPtr(models.EventPumpStopped, 0)
	store.InsertBatch(nil, []*models.Event{old, recent})

	cutoff := now.AddDate(0, 0, -7)
	samples, err := store.DeleteSamplesBefore(cutoff)
	if err != nil {
		t.Fatalf("DeleteSamplesBefore failed: %v", err)
	}
	if samples != 1 {
		t.Errorf("Deleted samples = %d, want 1", samples)
	}

	stats, _ := store.GetStorageStats()
	if stats.TotalSamples != 2 {
		t.Errorf("TotalSamples = %d, want 2", stats.TotalSamples)
	}
	if stats.TotalEvents != 2 {
		t.Errorf("TotalEvents = %d, want 2 (events untouched)", stats.TotalEvents)
	}

	events, err := store.DeleteEventsBefore(cutoff)
	if err != nil {
		t.Fatalf("DeleteEventsBefore failed: %v", err)
	}
	if events != 1 {
		t.Errorf("Deleted events = %d, want 1", events)
	}
}

func TestGetStorageStats(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	empty, err := store.GetStorageStats()
	if err != nil {
		t.Fatalf("GetStorageStats failed: %v", err)
	}
	if empty.TotalSamples != 0 || !empty.OldestSample.IsZero() {
		t.Errorf("Expected empty stats, got %+v", empty)
	}

	oldest := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	newest := oldest.Add(2 * time.Hour)
	store.InsertSample(createTestSample(50, 20.0, false, oldest))
	store.InsertSample(createTestSample(50, 20.0, false, newest))

	stats, err := store.GetStorageStats()
	if err != nil {
		t.Fatalf("GetStorageStats failed: %v", err)
	}
	if !stats.OldestSample.Equal(oldest) || !stats.NewestSample.Equal(newest) {
		t.Errorf("Range = %v..%v, want %v..%v", stats.OldestSample, stats.NewestSample, oldest, newest)
	}
	if stats.DatabaseSizeMB <= 0 {
		t.Errorf("DatabaseSizeMB = %v, want > 0", stats.DatabaseSizeMB)
	}
}

func TestConcurrentInserts(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	const goroutines = 8
	const perGoroutine = 20

	var wg sync.WaitGroup
	errs := make(chan error, goroutines*perGoroutine)

	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				if err := store.InsertSample(createTestSample(50, 20.0, false, time.Now())); err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Concurrent insert failed: %v", err)
	}

	stats, _ := store.GetStorageStats()
	if stats.TotalSamples != goroutines*perGoroutine {
		t.Errorf("TotalSamples = %d, want %d", stats.TotalSamples, goroutines*perGoroutine)
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"2026-03-01 10:00:00", false},
		{"2026-03-01T10:00:00Z", false},
		{"2026-03-01 10:00:00.000", false},
		{"not a timestamp", true},
	}

	for _, tt := range tests {
		got, err := parseTimestamp(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseTimestamp(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got.Hour() != 10 {
			t.Errorf("parseTimestamp(%q) hour = %d, want 10", tt.input, got.Hour())
		}
	}
}

func BenchmarkInsertBatch(b *testing.B) {
	store, cleanup := setupTestDB(b)
	defer cleanup()

	samples := make([]*models.Sample, 50)
	for i := range samples {
		samples[i] = createTestSample(50, 20.0, false, time.Now())
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		store.InsertBatch(samples, nil)
	}
}
