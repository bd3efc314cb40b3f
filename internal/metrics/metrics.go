// Package metrics exposes Prometheus collectors for the sync engine and the
// send path. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "chatsync"

// Metrics groups the collectors.
type Metrics struct {
	ticks              *prometheus.CounterVec
	tickDuration       prometheus.Histogram
	resyncs            prometheus.Counter
	loads              *prometheus.CounterVec
	mergedMessages     *prometheus.CounterVec
	mergedParticipants *prometheus.CounterVec
	sends              *prometheus.CounterVec
	storedMessages     prometheus.Gauge
	storedParticipants prometheus.Gauge
	liveSubscribers    prometheus.Gauge
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_ticks_total",
			Help:      "Poll ticks by result (ok, error, skipped).",
		}, []string{"result"}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_tick_duration_seconds",
			Help:      "Wall time of completed poll ticks.",
			Buckets:   prometheus.DefBuckets,
		}),
		resyncs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_resyncs_total",
			Help:      "Full reloads triggered by a session marker change.",
		}),
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "initial_loads_total",
			Help:      "Initial load attempts by result.",
		}, []string{"result"}),
		mergedMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merged_messages_total",
			Help:      "Message records merged from deltas, by outcome.",
		}, []string{"outcome"}),
		mergedParticipants: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merged_participants_total",
			Help:      "Participant records merged from deltas, by outcome.",
		}, []string{"outcome"}),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sends_total",
			Help:      "Message submissions by result (ok, empty, error).",
		}, []string{"result"}),
		storedMessages: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stored_messages",
			Help:      "Messages currently held in the store.",
		}),
		storedParticipants: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stored_participants",
			Help:      "Participants currently held in the store.",
		}),
		liveSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_subscribers",
			Help:      "Open WebSocket and SSE timeline feeds.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.ticks,
			m.tickDuration,
			m.resyncs,
			m.loads,
			m.mergedMessages,
			m.mergedParticipants,
			m.sends,
			m.storedMessages,
			m.storedParticipants,
			m.liveSubscribers,
		)
	}
	return m
}

// ObserveTick records a finished tick. result is "ok", "error" or "skipped".
func (m *Metrics) ObserveTick(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ticks.WithLabelValues(result).Inc()
	if result != "skipped" {
		m.tickDuration.Observe(elapsed.Seconds())
	}
}

// Resync counts a session-change reload.
func (m *Metrics) Resync() {
	if m == nil {
		return
	}
	m.resyncs.Inc()
}

// Load counts an initial load attempt.
func (m *Metrics) Load(ok bool) {
	if m == nil {
		return
	}
	m.loads.WithLabelValues(resultLabel(ok)).Inc()
}

// MergedMessages counts merged message records.
func (m *Metrics) MergedMessages(inserted, replaced, skipped int) {
	if m == nil {
		return
	}
	m.mergedMessages.WithLabelValues("inserted").Add(float64(inserted))
	m.mergedMessages.WithLabelValues("replaced").Add(float64(replaced))
	m.mergedMessages.WithLabelValues("skipped").Add(float64(skipped))
}

// MergedParticipants counts merged participant records.
func (m *Metrics) MergedParticipants(inserted, replaced, skipped int) {
	if m == nil {
		return
	}
	m.mergedParticipants.WithLabelValues("inserted").Add(float64(inserted))
	m.mergedParticipants.WithLabelValues("replaced").Add(float64(replaced))
	m.mergedParticipants.WithLabelValues("skipped").Add(float64(skipped))
}

// Send counts a submission. result is "ok", "empty" or "error".
func (m *Metrics) Send(result string) {
	if m == nil {
		return
	}
	m.sends.WithLabelValues(result).Inc()
}

// StoreSize sets the store gauges.
func (m *Metrics) StoreSize(messages, participants int) {
	if m == nil {
		return
	}
	m.storedMessages.Set(float64(messages))
	m.storedParticipants.Set(float64(participants))
}

// LiveSubscriberAdded and LiveSubscriberRemoved track open live feeds.
func (m *Metrics) LiveSubscriberAdded() {
	if m == nil {
		return
	}
	m.liveSubscribers.Inc()
}

func (m *Metrics) LiveSubscriberRemoved() {
	if m == nil {
		return
	}
	m.liveSubscribers.Dec()
}

func resultLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
