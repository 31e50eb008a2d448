package models

import "time"

// PumpState is the run state of the pump motor.
// Speed is always 0 when Running is false.
type PumpState struct {
	Running bool `json:"running"`
	Speed   int  `json:"speed"`
}

// TimerState describes the countdown timer.
// Remaining is 0 whenever Active is false.
type TimerState struct {
	Active      bool   `json:"active"`
	Remaining   int    `json:"remaining"`
	TargetSpeed int    `json:"target_speed"`
	RunID       string `json:"run_id,omitempty"`
}

// Status is the snapshot returned to clients. Moisture holds calibrated
// percentages, MoistureRaw the readings they were computed from.
type Status struct {
	PumpRunning    bool                  `json:"pump_running"`
	PumpSpeed      int                   `json:"pump_speed"`
	TimerRunning   bool                  `json:"timer_running"`
	TimerRemaining int                   `json:"timer_remaining"`
	TimerSpeed     int                   `json:"timer_speed"`
	TimerRunID     string                `json:"timer_run_id,omitempty"`
	Temperature    float64               `json:"temperature"`
	Moisture       [MoistureChannels]int `json:"moisture"`
	MoistureRaw    MoistureReading       `json:"moisture_raw"`
	Backend        string                `json:"backend"`
	Timestamp      time.Time             `json:"timestamp"`
}

// Sample converts the status into a history sample.
func (s Status) Sample() Sample {
	return Sample{
		Timestamp:   s.Timestamp,
		MoistureRaw: s.MoistureRaw,
		Moisture:    s.Moisture,
		Temperature: s.Temperature,
		PumpRunning: s.PumpRunning,
		PumpSpeed:   s.PumpSpeed,
	}
}
