package server

import (
	"fmt"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/afroash/pump-controller/internal/metrics"
)

// RouterConfig collects what the HTTP surface needs
type RouterConfig struct {
	Controller     Controller
	Events         *EventStore
	History        HistoryStore // nil when history is disabled
	Schedules      Schedules
	Hub            *Hub
	Metrics        *metrics.Metrics
	AllowedOrigins []string
	Version        string
	Logger         zerolog.Logger
}

// recoveryLogger adapts zerolog to handlers.RecoveryHandlerLogger
type recoveryLogger struct {
	logger zerolog.Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.logger.Error().Msg(fmt.Sprint(v...))
}

// NewRouter builds the HTTP handler with access logging and panic recovery
func NewRouter(cfg RouterConfig) http.Handler {
	api := NewAPIHandler(cfg.Controller, cfg.Events, cfg.History, cfg.Schedules, cfg.Hub, cfg.Logger)

	r := mux.NewRouter()

	route := func(path string, h http.HandlerFunc, methods ...string) {
		r.Handle(path, cfg.Metrics.WrapHandler(path, h)).Methods(methods...)
	}

	route("/api/status", api.HandleStatus, http.MethodGet)
	route("/api/pump/start", api.HandlePumpStart, http.MethodPost)
	route("/api/pump/stop", api.HandlePumpStop, http.MethodPost)
	route("/api/timer/start", api.HandleTimerStart, http.MethodPost)
	route("/api/timer/stop", api.HandleTimerStop, http.MethodPost)
	route("/api/events", api.HandleEvents, http.MethodGet)
	route("/api/history", api.HandleHistory, http.MethodGet)
	route("/api/history/daily", api.HandleDailyStats, http.MethodGet)
	route("/api/history/stats", api.HandleHistoryStats, http.MethodGet)
	route("/api/history/latest", api.HandleLatestSample, http.MethodGet)
	route("/api/schedules", api.HandleSchedules, http.MethodGet)
	route("/api/schedules/{name}/run", api.HandleScheduleRun, http.MethodPost)

	// the status recorder in WrapHandler cannot be hijacked
	r.HandleFunc("/api/stream", api.HandleStream).Methods(http.MethodGet)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": cfg.Version})
	}).Methods(http.MethodGet)

	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler()).Methods(http.MethodGet)
	}

	var h http.Handler = r
	if len(cfg.AllowedOrigins) > 0 {
		h = handlers.CORS(
			handlers.AllowedOrigins(cfg.AllowedOrigins),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost}),
			handlers.AllowedHeaders([]string{"Content-Type"}),
		)(h)
	}
	h = handlers.CombinedLoggingHandler(cfg.Logger.With().Str("component", "http").Logger(), h)
	h = handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{logger: cfg.Logger}),
		handlers.PrintRecoveryStack(true),
	)(h)
	return h
}
