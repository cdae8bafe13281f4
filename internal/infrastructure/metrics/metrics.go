// Package metrics exposes Prometheus collectors for the hub: HTTP traffic,
// progression commands and event handlers.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alphawulf/alphawulf-hub/internal/domain/shared"
)

const namespace = "alphawulf"

// Metrics owns a registry so tests can create isolated instances.
type Metrics struct {
	registry *prometheus.Registry

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	provisioned      *prometheus.CounterVec
	provisionRaces   prometheus.Counter
	experience       prometheus.Counter
	awards           prometheus.Counter
	levelUps         prometheus.Counter
	achievements     prometheus.Counter
	versionConflicts *prometheus.CounterVec

	eventsHandled  *prometheus.CounterVec
	eventsDuration *prometheus.HistogramVec

	botCommands *prometheus.CounterVec
	botDuration *prometheus.HistogramVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		}, []string{"method", "route"}),

		provisioned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "accounts",
			Name:      "provisioned_total",
			Help:      "Logins resolved to an account, by whether the account was created.",
		}, []string{"created"}),
		provisionRaces: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "accounts",
			Name:      "provision_races_total",
			Help:      "Concurrent first logins that lost the unique-index race.",
		}),
		experience: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "progress",
			Name:      "experience_awarded_total",
			Help:      "Sum of experience awarded.",
		}),
		awards: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "progress",
			Name:      "awards_total",
			Help:      "Committed experience awards.",
		}),
		levelUps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "progress",
			Name:      "level_ups_total",
			Help:      "Levels crossed by committed awards.",
		}),
		achievements: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "progress",
			Name:      "achievements_unlocked_total",
			Help:      "Achievements unlocked by committed awards.",
		}),
		versionConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "progress",
			Name:      "version_conflicts_total",
			Help:      "Lost compare-and-swap writes that were retried.",
		}, []string{"operation"}),

		eventsHandled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "handled_total",
			Help:      "Event handler invocations by event type and result.",
		}, []string{"type", "result"}),
		eventsDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "handler_duration_seconds",
			Help:      "Duration of event handlers.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		}, []string{"type"}),

		botCommands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bot",
			Name:      "commands_total",
			Help:      "Bot commands handled by command and result.",
		}, []string{"command", "result"}),
		botDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "bot",
			Name:      "command_duration_seconds",
			Help:      "Time to build a bot reply.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"command"}),
	}

	m.registry.MustRegister(
		m.httpInFlight,
		m.httpRequests,
		m.httpDuration,
		m.provisioned,
		m.provisionRaces,
		m.experience,
		m.awards,
		m.levelUps,
		m.achievements,
		m.versionConflicts,
		m.eventsHandled,
		m.eventsDuration,
		m.botCommands,
		m.botDuration,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ─────────────────────────────────────────────────────────────────────────────
// Command observer
// ─────────────────────────────────────────────────────────────────────────────

// AccountProvisioned counts resolved logins.
func (m *Metrics) AccountProvisioned(created bool) {
	m.provisioned.WithLabelValues(strconv.FormatBool(created)).Inc()
}

// ProvisionRace counts lost first-login races.
func (m *Metrics) ProvisionRace() {
	m.provisionRaces.Inc()
}

// ExperienceAwarded counts a committed award.
func (m *Metrics) ExperienceAwarded(amount int64, levelsCrossed, unlocked int) {
	m.awards.Inc()
	m.experience.Add(float64(amount))
	m.levelUps.Add(float64(levelsCrossed))
	m.achievements.Add(float64(unlocked))
}

// VersionConflict counts a lost compare-and-swap.
func (m *Metrics) VersionConflict(operation string) {
	m.versionConflicts.WithLabelValues(operation).Inc()
}

// ─────────────────────────────────────────────────────────────────────────────
// Event bus
// ─────────────────────────────────────────────────────────────────────────────

// EventHandled matches the event bus hook signature.
func (m *Metrics) EventHandled(eventType shared.EventType, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.eventsHandled.WithLabelValues(string(eventType), result).Inc()
	m.eventsDuration.WithLabelValues(string(eventType)).Observe(d.Seconds())
}

// ─────────────────────────────────────────────────────────────────────────────
// Bot
// ─────────────────────────────────────────────────────────────────────────────

// BotCommand records a handled bot command.
func (m *Metrics) BotCommand(command string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.botCommands.WithLabelValues(command, result).Inc()
	m.botDuration.WithLabelValues(command).Observe(d.Seconds())
}

// ─────────────────────────────────────────────────────────────────────────────
// HTTP
// ─────────────────────────────────────────────────────────────────────────────

// Middleware records HTTP metrics labelled by the mux route template.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		method := strings.ToUpper(r.Method)

		m.httpRequests.WithLabelValues(method, route, strconv.Itoa(rec.status)).Inc()
		m.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
