package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/afroash/pump-controller/internal/app"
	"github.com/afroash/pump-controller/internal/models"
	"github.com/afroash/pump-controller/internal/pump"
	"github.com/afroash/pump-controller/internal/schedule"
)

const (
	defaultPumpSpeed    = 100
	defaultTimerSeconds = 30
	defaultEventLimit   = 50
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
	defaultHistoryDays  = 7
)

// APIHandler handles HTTP API requests
type APIHandler struct {
	ctrl      Controller
	events    *EventStore
	history   HistoryStore
	schedules Schedules
	hub       *Hub
	logger    zerolog.Logger
}

// NewAPIHandler creates a new API handler. history may be nil when
// sample history is disabled, schedules when none are configured.
func NewAPIHandler(ctrl Controller, events *EventStore, history HistoryStore, schedules Schedules, hub *Hub, logger zerolog.Logger) *APIHandler {
	return &APIHandler{
		ctrl:      ctrl,
		events:    events,
		history:   history,
		schedules: schedules,
		hub:       hub,
		logger:    logger,
	}
}

// ActionResponse is returned by every pump and timer command
type ActionResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type pumpStartRequest struct {
	Speed *int `json:"speed"`
}

type timerStartRequest struct {
	Seconds *int `json:"seconds"`
	Speed   *int `json:"speed"`
}

// HandleStatus returns a fresh status snapshot
func (api *APIHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.ctrl.Status())
}

// HandlePumpStart starts the pump at the requested speed (default 100)
func (api *APIHandler) HandlePumpStart(w http.ResponseWriter, r *http.Request) {
	var req pumpStartRequest
	if !api.decode(w, r, &req) {
		return
	}
	speed := defaultPumpSpeed
	if req.Speed != nil {
		speed = *req.Speed
	}
	api.respond(w, api.ctrl.PumpStart(speed))
}

// HandlePumpStop stops the pump
func (api *APIHandler) HandlePumpStop(w http.ResponseWriter, r *http.Request) {
	api.respond(w, api.ctrl.PumpStop())
}

// HandleTimerStart starts a countdown run (defaults 30s at 100%)
func (api *APIHandler) HandleTimerStart(w http.ResponseWriter, r *http.Request) {
	var req timerStartRequest
	if !api.decode(w, r, &req) {
		return
	}
	seconds, speed := defaultTimerSeconds, defaultPumpSpeed
	if req.Seconds != nil {
		seconds = *req.Seconds
	}
	if req.Speed != nil {
		speed = *req.Speed
	}
	api.respond(w, api.ctrl.TimerStart(seconds, speed))
}

// HandleTimerStop cancels the active countdown
func (api *APIHandler) HandleTimerStop(w http.ResponseWriter, r *http.Request) {
	api.respond(w, api.ctrl.TimerStop())
}

// HandleEvents returns recent controller events, newest first. With
// ?source=history they come from the database instead of memory.
func (api *APIHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultEventLimit)

	switch r.URL.Query().Get("source") {
	case "", "memory":
		writeJSON(w, http.StatusOK, api.events.Latest(limit))
	case "history":
		if api.history == nil {
			http.Error(w, "History is disabled", http.StatusNotFound)
			return
		}
		if limit > maxHistoryLimit {
			limit = maxHistoryLimit
		}
		events, err := api.history.GetEvents(limit)
		if err != nil {
			api.logger.Error().Err(err).Msg("Failed to query events")
			http.Error(w, "Failed to query events", http.StatusInternalServerError)
			return
		}
		if events == nil {
			events = []*models.Event{}
		}
		writeJSON(w, http.StatusOK, events)
	default:
		http.Error(w, "Invalid source parameter", http.StatusBadRequest)
	}
}

// HandleHistory returns stored samples. Supports ?since=RFC3339 for a
// range ending now, or ?before=RFC3339 for scrolling back.
func (api *APIHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if api.history == nil {
		http.Error(w, "History is disabled", http.StatusNotFound)
		return
	}

	limit := queryInt(r, "limit", defaultHistoryLimit)
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	var samples []*models.Sample
	var err error
	if beforeStr := r.URL.Query().Get("before"); beforeStr != "" {
		before, perr := time.Parse(time.RFC3339, beforeStr)
		if perr != nil {
			http.Error(w, "Invalid before parameter", http.StatusBadRequest)
			return
		}
		samples, err = api.history.GetSamplesBefore(before, limit)
	} else {
		since := time.Now().Add(-24 * time.Hour)
		if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
			parsed, perr := time.Parse(time.RFC3339, sinceStr)
			if perr != nil {
				http.Error(w, "Invalid since parameter", http.StatusBadRequest)
				return
			}
			since = parsed
		}
		samples, err = api.history.GetSamplesInRange(since, time.Now(), limit)
	}
	if err != nil {
		api.logger.Error().Err(err).Msg("Failed to query history")
		http.Error(w, "Failed to query history", http.StatusInternalServerError)
		return
	}
	if samples == nil {
		samples = []*models.Sample{}
	}
	writeJSON(w, http.StatusOK, samples)
}

// HandleDailyStats returns per-day aggregates for the last ?days=n days
func (api *APIHandler) HandleDailyStats(w http.ResponseWriter, r *http.Request) {
	if api.history == nil {
		http.Error(w, "History is disabled", http.StatusNotFound)
		return
	}

	days := queryInt(r, "days", defaultHistoryDays)
	end := time.Now()
	start := end.AddDate(0, 0, -days)

	stats, err := api.history.GetDailyStats(start, end)
	if err != nil {
		api.logger.Error().Err(err).Msg("Failed to query daily stats")
		http.Error(w, "Failed to query daily stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// HandleHistoryStats returns database statistics
func (api *APIHandler) HandleHistoryStats(w http.ResponseWriter, r *http.Request) {
	if api.history == nil {
		http.Error(w, "History is disabled", http.StatusNotFound)
		return
	}

	stats, err := api.history.GetStorageStats()
	if err != nil {
		api.logger.Error().Err(err).Msg("Failed to get storage stats")
		http.Error(w, "Failed to get storage stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// HandleLatestSample returns the newest stored sample, or 204 when the
// history is still empty
func (api *APIHandler) HandleLatestSample(w http.ResponseWriter, r *http.Request) {
	if api.history == nil {
		http.Error(w, "History is disabled", http.StatusNotFound)
		return
	}

	sample, err := api.history.GetLatestSample()
	if err != nil {
		api.logger.Error().Err(err).Msg("Failed to query latest sample")
		http.Error(w, "Failed to query latest sample", http.StatusInternalServerError)
		return
	}
	if sample == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, sample)
}

// HandleSchedules lists the configured schedules with run counters
func (api *APIHandler) HandleSchedules(w http.ResponseWriter, r *http.Request) {
	entries := []schedule.EntryInfo{}
	if api.schedules != nil {
		entries = append(entries, api.schedules.Entries()...)
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleScheduleRun fires the named schedule now
func (api *APIHandler) HandleScheduleRun(w http.ResponseWriter, r *http.Request) {
	if api.schedules == nil {
		api.respond(w, schedule.ErrNotFound)
		return
	}
	api.respond(w, api.schedules.RunNow(mux.Vars(r)["name"]))
}

// HandleStream upgrades to a websocket and sends the current status first
func (api *APIHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	initial, err := models.NewMessage(models.MessageTypeStatus, api.ctrl.Status())
	if err != nil {
		api.logger.Error().Err(err).Msg("Failed to encode status message")
		initial = nil
	}
	api.hub.Serve(w, r, initial)
}

// decode reads an optional JSON body. An empty body leaves v untouched.
func (api *APIHandler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	writeJSON(w, http.StatusBadRequest, ActionResponse{Error: "invalid JSON body"})
	return false
}

// respond maps a controller result onto an HTTP status
func (api *APIHandler) respond(w http.ResponseWriter, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, ActionResponse{Success: true})
		return
	}
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		api.logger.Error().Err(err).Msg("Command failed")
	}
	writeJSON(w, status, ActionResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, app.ErrInvalidSpeed),
		errors.Is(err, app.ErrInvalidDuration),
		errors.Is(err, pump.ErrInvalidDuration):
		return http.StatusBadRequest
	case errors.Is(err, pump.ErrAlreadyRunning),
		errors.Is(err, pump.ErrNotRunning),
		errors.Is(err, pump.ErrTimerAlreadyActive),
		errors.Is(err, pump.ErrTimerNotActive):
		return http.StatusConflict
	case errors.Is(err, schedule.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, pump.ErrClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func queryInt(r *http.Request, key string, def int) int {
	if s := r.URL.Query().Get(key); s != "" {
		if parsed, err := strconv.Atoi(s); err == nil && parsed > 0 {
			return parsed
		}
	}
	return def
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
