package models

import "time"

// DeviceInfo describes the running controller process
type DeviceInfo struct {
	ID        string    `json:"id"`
	Backend   string    `json:"backend"`
	Version   string    `json:"version"`
	StartTime time.Time `json:"start_time"`
}

// Uptime returns the duration since the controller started
func (d *DeviceInfo) Uptime() time.Duration {
	return time.Since(d.StartTime)
}

// NewDeviceInfo creates a new DeviceInfo with the current time as start time
func NewDeviceInfo(id, backend, version string) *DeviceInfo {
	return &DeviceInfo{
		ID:        id,
		Backend:   backend,
		Version:   version,
		StartTime: time.Now(),
	}
}
