package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/afroash/pump-controller/internal/models"
)

const timeFormat = "2006-01-02 15:04:05"

// Store defines the interface for sample and event history
type Store interface {
	Close() error
	Migrate() error
	InsertSample(sample *models.Sample) error
	InsertBatch(samples []*models.Sample, events []*models.Event) error
	GetSamplesInRange(start, end time.Time, limit int) ([]*models.Sample, error)
	GetSamplesBefore(before time.Time, limit int) ([]*models.Sample, error)
	GetLatestSample() (*models.Sample, error)
	GetEvents(limit int) ([]*models.Event, error)
	GetDailyStats(start, end time.Time) ([]DailyStat, error)
	DeleteSamplesBefore(cutoff time.Time) (int64, error)
	DeleteEventsBefore(cutoff time.Time) (int64, error)
	GetStorageStats() (*StorageStats, error)
}

// Compile-time interface check
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore keeps the sample and event history
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// DailyStat represents aggregated statistics for a single day
type DailyStat struct {
	Date           time.Time                        `json:"date"`
	MinTemperature float64                          `json:"min_temperature"`
	MaxTemperature float64                          `json:"max_temperature"`
	AvgTemperature float64                          `json:"avg_temperature"`
	AvgMoisture    [models.MoistureChannels]float64 `json:"avg_moisture"`
	RunningSamples int                              `json:"running_samples"`
	SampleCount    int                              `json:"sample_count"`
}

// StorageStats contains information about the database
type StorageStats struct {
	TotalSamples   int64     `json:"total_samples"`
	TotalEvents    int64     `json:"total_events"`
	OldestSample   time.Time `json:"oldest_sample,omitempty"`
	NewestSample   time.Time `json:"newest_sample,omitempty"`
	DatabaseSizeMB float64   `json:"database_size_mb"`
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(dbPath string, logger zerolog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := store.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Info().Str("path", dbPath).Msg("SQLite store initialized")
	return store, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate creates the database schema if it doesn't exist
func (s *SQLiteStore) Migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS samples (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		moisture_raw_0 INTEGER NOT NULL,
		moisture_raw_1 INTEGER NOT NULL,
		moisture_raw_2 INTEGER NOT NULL,
		moisture_raw_3 INTEGER NOT NULL,
		moisture_0 INTEGER NOT NULL,
		moisture_1 INTEGER NOT NULL,
		moisture_2 INTEGER NOT NULL,
		moisture_3 INTEGER NOT NULL,
		temperature REAL NOT NULL,
		pump_running INTEGER NOT NULL,
		pump_speed INTEGER NOT NULL,
		recorded_at DATETIME NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_samples_time ON samples(recorded_at DESC);

	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		speed INTEGER NOT NULL,
		seconds INTEGER NOT NULL DEFAULT 0,
		run_id TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT '',
		recorded_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_time ON events(recorded_at DESC);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	s.logger.Debug().Msg("Database schema migrated")
	return nil
}

const insertSampleSQL = `
	INSERT INTO samples (
		moisture_raw_0, moisture_raw_1, moisture_raw_2, moisture_raw_3,
		moisture_0, moisture_1, moisture_2, moisture_3,
		temperature, pump_running, pump_speed, recorded_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const insertEventSQL = `
	INSERT OR IGNORE INTO events (id, type, speed, seconds, run_id, source, recorded_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
`

func sampleArgs(sample *models.Sample) []interface{} {
	return []interface{}{
		sample.MoistureRaw[0], sample.MoistureRaw[1], sample.MoistureRaw[2], sample.MoistureRaw[3],
		sample.Moisture[0], sample.Moisture[1], sample.Moisture[2], sample.Moisture[3],
		sample.Temperature,
		sample.PumpRunning,
		sample.PumpSpeed,
		sample.Timestamp.UTC().Format(timeFormat),
	}
}

func eventArgs(ev *models.Event) []interface{} {
	return []interface{}{
		ev.ID, string(ev.Type), ev.Speed, ev.Seconds, ev.RunID, ev.Source,
		ev.Timestamp.UTC().Format(timeFormat),
	}
}

// InsertSample inserts a single sample into the database
func (s *SQLiteStore) InsertSample(sample *models.Sample) error {
	if _, err := s.db.Exec(insertSampleSQL, sampleArgs(sample)...); err != nil {
		return fmt.Errorf("failed to insert sample: %w", err)
	}
	return nil
}

// InsertBatch inserts samples and events in a single transaction
func (s *SQLiteStore) InsertBatch(samples []*models.Sample, events []*models.Event) error {
	if len(samples) == 0 && len(events) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if len(samples) > 0 {
		stmt, err := tx.Prepare(insertSampleSQL)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, sample := range samples {
			if _, err := stmt.Exec(sampleArgs(sample)...); err != nil {
				return fmt.Errorf("failed to insert sample in batch: %w", err)
			}
		}
	}

	if len(events) > 0 {
		stmt, err := tx.Prepare(insertEventSQL)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, ev := range events {
			if _, err := stmt.Exec(eventArgs(ev)...); err != nil {
				return fmt.Errorf("failed to insert event in batch: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Debug().Int("samples", len(samples)).Int("events", len(events)).Msg("Batch insert completed")
	return nil
}

const selectSampleColumns = `
	SELECT moisture_raw_0, moisture_raw_1, moisture_raw_2, moisture_raw_3,
		moisture_0, moisture_1, moisture_2, moisture_3,
		temperature, pump_running, pump_speed, recorded_at
	FROM samples
`

// GetSamplesInRange returns samples within a time range, newest first
func (s *SQLiteStore) GetSamplesInRange(start, end time.Time, limit int) ([]*models.Sample, error) {
	rows, err := s.db.Query(selectSampleColumns+`
		WHERE recorded_at BETWEEN ? AND ?
		ORDER BY recorded_at DESC
		LIMIT ?`,
		start.UTC().Format(timeFormat),
		end.UTC().Format(timeFormat),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	return s.scanSamples(rows)
}

// GetSamplesBefore returns samples before a specific time (for scrolling back)
func (s *SQLiteStore) GetSamplesBefore(before time.Time, limit int) ([]*models.Sample, error) {
	rows, err := s.db.Query(selectSampleColumns+`
		WHERE recorded_at < ?
		ORDER BY recorded_at DESC
		LIMIT ?`,
		before.UTC().Format(timeFormat),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	return s.scanSamples(rows)
}

// GetLatestSample returns the most recent sample, or nil when there is none
func (s *SQLiteStore) GetLatestSample() (*models.Sample, error) {
	row := s.db.QueryRow(selectSampleColumns + `
		ORDER BY recorded_at DESC
		LIMIT 1`)

	sample, err := s.scanSample(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest sample: %w", err)
	}
	return sample, nil
}

// GetEvents returns the most recent events, newest first
func (s *SQLiteStore) GetEvents(limit int) ([]*models.Event, error) {
	rows, err := s.db.Query(`
		SELECT id, type, speed, seconds, run_id, source, recorded_at
		FROM events
		ORDER BY recorded_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []*models.Event
	for rows.Next() {
		var ev models.Event
		var eventType, recordedAt string
		if err := rows.Scan(&ev.ID, &eventType, &ev.Speed, &ev.Seconds, &ev.RunID, &ev.Source, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.Type = models.EventType(eventType)
		ev.Timestamp, err = parseTimestamp(recordedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse timestamp: %w", err)
		}
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return events, nil
}

// GetDailyStats returns aggregated daily statistics for a time range
func (s *SQLiteStore) GetDailyStats(start, end time.Time) ([]DailyStat, error) {
	rows, err := s.db.Query(`
		SELECT
			date(recorded_at) as date,
			MIN(temperature),
			MAX(temperature),
			AVG(temperature),
			AVG(moisture_0),
			AVG(moisture_1),
			AVG(moisture_2),
			AVG(moisture_3),
			SUM(pump_running),
			COUNT(*)
		FROM samples
		WHERE recorded_at BETWEEN ? AND ?
		GROUP BY date(recorded_at)
		ORDER BY date DESC`,
		start.UTC().Format(timeFormat),
		end.UTC().Format(timeFormat),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily stats: %w", err)
	}
	defer rows.Close()

	var stats []DailyStat
	for rows.Next() {
		var stat DailyStat
		var dateStr string

		err := rows.Scan(
			&dateStr,
			&stat.MinTemperature,
			&stat.MaxTemperature,
			&stat.AvgTemperature,
			&stat.AvgMoisture[0],
			&stat.AvgMoisture[1],
			&stat.AvgMoisture[2],
			&stat.AvgMoisture[3],
			&stat.RunningSamples,
			&stat.SampleCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan daily stat: %w", err)
		}

		stat.Date, err = time.Parse("2006-01-02", dateStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse date: %w", err)
		}
		stats = append(stats, stat)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return stats, nil
}

// DeleteSamplesBefore removes samples recorded before cutoff
func (s *SQLiteStore) DeleteSamplesBefore(cutoff time.Time) (int64, error) {
	return s.deleteBefore("samples", cutoff)
}

// DeleteEventsBefore removes events recorded before cutoff
func (s *SQLiteStore) DeleteEventsBefore(cutoff time.Time) (int64, error) {
	return s.deleteBefore("events", cutoff)
}

// table is never user input
func (s *SQLiteStore) deleteBefore(table string, cutoff time.Time) (int64, error) {
	result, err := s.db.Exec("DELETE FROM "+table+" WHERE recorded_at < ?", cutoff.UTC().Format(timeFormat))
	if err != nil {
		return 0, fmt.Errorf("failed to delete old %s: %w", table, err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}

// GetStorageStats returns statistics about the database
func (s *SQLiteStore) GetStorageStats() (*StorageStats, error) {
	stats := &StorageStats{}

	if err := s.db.QueryRow("SELECT COUNT(*) FROM samples").Scan(&stats.TotalSamples); err != nil {
		return nil, fmt.Errorf("failed to count samples: %w", err)
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM events").Scan(&stats.TotalEvents); err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}

	if stats.TotalSamples > 0 {
		var oldestStr, newestStr string
		err := s.db.QueryRow("SELECT MIN(recorded_at), MAX(recorded_at) FROM samples").
			Scan(&oldestStr, &newestStr)
		if err != nil {
			return nil, fmt.Errorf("failed to get timestamp range: %w", err)
		}
		stats.OldestSample, _ = parseTimestamp(oldestStr)
		stats.NewestSample, _ = parseTimestamp(newestStr)
	}

	var pageCount, pageSize int64
	s.db.QueryRow("PRAGMA page_count").Scan(&pageCount)
	s.db.QueryRow("PRAGMA page_size").Scan(&pageSize)
	stats.DatabaseSizeMB = float64(pageCount*pageSize) / (1024 * 1024)

	return stats, nil
}

// scanSample scans a single row into a Sample
func (s *SQLiteStore) scanSample(row interface{ Scan(...interface{}) error }) (*models.Sample, error) {
	var sample models.Sample
	var recordedAt string

	err := row.Scan(
		&sample.MoistureRaw[0], &sample.MoistureRaw[1], &sample.MoistureRaw[2], &sample.MoistureRaw[3],
		&sample.Moisture[0], &sample.Moisture[1], &sample.Moisture[2], &sample.Moisture[3],
		&sample.Temperature,
		&sample.PumpRunning,
		&sample.PumpSpeed,
		&recordedAt,
	)
	if err != nil {
		return nil, err
	}

	sample.Timestamp, err = parseTimestamp(recordedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse recorded_at: %w", err)
	}
	return &sample, nil
}

// scanSamples scans multiple rows into a slice of samples
func (s *SQLiteStore) scanSamples(rows *sql.Rows) ([]*models.Sample, error) {
	var samples []*models.Sample
	for rows.Next() {
		sample, err := s.scanSample(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return samples, nil
}

// parseTimestamp tries the formats go-sqlite3 may hand back for DATETIME
// columns. Stored values are always UTC.
func parseTimestamp(ts string) (time.Time, error) {
	formats := []string{
		timeFormat,
		"2006-01-02T15:04:05Z07:00",
		"2006-01-02 15:04:05.000",
		time.RFC3339,
		time.RFC3339Nano,
	}

	for _, format := range formats {
		if t, err := time.Parse(format, ts); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse timestamp: %s", ts)
}
