// Package metrics exposes pump controller state to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/afroash/pump-controller/internal/models"
)

const namespace = "pump_controller"

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	pumpRunning     prometheus.Gauge
	pumpSpeed       prometheus.Gauge
	timerActive     prometheus.Gauge
	timerRemaining  prometheus.Gauge
	temperature     prometheus.Gauge
	moisture        *prometheus.GaugeVec
	moistureRaw     *prometheus.GaugeVec
	eventsTotal     *prometheus.CounterVec
	publishFailures prometheus.Counter

	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

// New creates the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		pumpRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pump_running",
			Help:      "1 when the pump motor is driven, 0 otherwise.",
		}),
		pumpSpeed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pump_speed_percent",
			Help:      "Current PWM duty cycle in percent.",
		}),
		timerActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "timer_active",
			Help:      "1 while a countdown run is active.",
		}),
		timerRemaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "timer_remaining_seconds",
			Help:      "Seconds left on the active countdown.",
		}),
		temperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "temperature_celsius",
			Help:      "Last temperature reading.",
		}),
		moisture: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "moisture_percent",
			Help:      "Calibrated soil moisture by channel.",
		}, []string{"channel"}),
		moistureRaw: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "moisture_raw",
			Help:      "Raw moisture ADC value by channel.",
		}, []string{"channel"}),
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Controller events by type.",
		}, []string{"type"}),
		publishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mqtt_publish_failures_total",
			Help:      "Events that could not be published to MQTT.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		m.pumpRunning,
		m.pumpSpeed,
		m.timerActive,
		m.timerRemaining,
		m.temperature,
		m.moisture,
		m.moistureRaw,
		m.eventsTotal,
		m.publishFailures,
		m.httpRequestsTotal,
		m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the registry backing Handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveStatus copies a status snapshot into the gauges.
func (m *Metrics) ObserveStatus(s models.Status) {
	if m == nil {
		return
	}
	m.pumpRunning.Set(boolToFloat(s.PumpRunning))
	m.pumpSpeed.Set(float64(s.PumpSpeed))
	m.timerActive.Set(boolToFloat(s.TimerRunning))
	m.timerRemaining.Set(float64(s.TimerRemaining))
	m.temperature.Set(s.Temperature)
	for ch := 0; ch < models.MoistureChannels; ch++ {
		label := strconv.Itoa(ch)
		m.moisture.WithLabelValues(label).Set(float64(s.Moisture[ch]))
		m.moistureRaw.WithLabelValues(label).Set(float64(s.MoistureRaw[ch]))
	}
}

// ObservePump records a pump state change.
func (m *Metrics) ObservePump(state models.PumpState) {
	if m == nil {
		return
	}
	m.pumpRunning.Set(boolToFloat(state.Running))
	m.pumpSpeed.Set(float64(state.Speed))
}

// ObserveTimer records countdown progress. remaining 0 marks the run finished.
func (m *Metrics) ObserveTimer(remaining int) {
	if m == nil {
		return
	}
	m.timerActive.Set(boolToFloat(remaining > 0))
	m.timerRemaining.Set(float64(remaining))
}

// CountEvent increments the per-type event counter.
func (m *Metrics) CountEvent(t models.EventType) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(string(t)).Inc()
}

// PublishFailed counts an MQTT publish error.
func (m *Metrics) PublishFailed() {
	if m == nil {
		return
	}
	m.publishFailures.Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler records request count and latency under route.
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		if m != nil {
			m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
			m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		}
	})
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
