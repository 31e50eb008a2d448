package server

import (
	"time"

	"github.com/afroash/pump-controller/internal/models"
	"github.com/afroash/pump-controller/internal/schedule"
	"github.com/afroash/pump-controller/internal/storage"
)

// Controller is the application surface the API drives.
// app.App implements this interface
type Controller interface {
	// Status polls the sensors and returns a full snapshot
	Status() models.Status

	PumpStart(speed int) error
	PumpStop() error
	TimerStart(seconds, speed int) error
	TimerStop() error
}

// HistoryStore defines the interface for persisted sample history
// storage.SQLiteStore implements this interface
type HistoryStore interface {
	// GetSamplesInRange returns samples within a time range, newest first
	GetSamplesInRange(start, end time.Time, limit int) ([]*models.Sample, error)

	// GetSamplesBefore returns samples before a timestamp (for scrolling back)
	GetSamplesBefore(before time.Time, limit int) ([]*models.Sample, error)

	// GetLatestSample returns the newest sample, or nil if none are stored
	GetLatestSample() (*models.Sample, error)

	// GetEvents returns persisted controller events, newest first
	GetEvents(limit int) ([]*models.Event, error)

	// GetDailyStats returns aggregated daily statistics
	GetDailyStats(start, end time.Time) ([]storage.DailyStat, error)

	// GetStorageStats returns database statistics
	GetStorageStats() (*storage.StorageStats, error)
}

// Schedules lists the configured watering schedules and fires them on demand.
// schedule.Scheduler implements this interface
type Schedules interface {
	Entries() []schedule.EntryInfo
	RunNow(name string) error
}
