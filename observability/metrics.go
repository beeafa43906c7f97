package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BridgeMetrics exposes Prometheus collectors for the on-chain bridge module.
type BridgeMetrics struct {
	messagesAccepted  *prometheus.CounterVec
	messagesReceived  *prometheus.CounterVec
	messagesDelivered *prometheus.CounterVec
	dispatchErrors    *prometheus.CounterVec
	queuedMessages    *prometheus.GaugeVec
}

var (
	bridgeMetricsOnce sync.Once
	bridgeRegistry    *BridgeMetrics

	relayMetricsOnce sync.Once
	relayRegistry    *RelayMetrics
)

// Bridge returns the lazily-initialised bridge metrics registry.
func Bridge() *BridgeMetrics {
	bridgeMetricsOnce.Do(func() {
		bridgeRegistry = &BridgeMetrics{
			messagesAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lanebridge",
				Subsystem: "bridge",
				Name:      "messages_accepted_total",
				Help:      "Count of outbound messages accepted per lane.",
			}, []string{"lane"}),
			messagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lanebridge",
				Subsystem: "bridge",
				Name:      "messages_received_total",
				Help:      "Count of inbound message receptions segmented by outcome.",
			}, []string{"lane", "outcome"}),
			messagesDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lanebridge",
				Subsystem: "bridge",
				Name:      "messages_delivered_total",
				Help:      "Count of outbound messages confirmed delivered per lane.",
			}, []string{"lane"}),
			dispatchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lanebridge",
				Subsystem: "bridge",
				Name:      "dispatch_errors_total",
				Help:      "Count of dispatched payloads whose handler reported a failure.",
			}, []string{"lane"}),
			queuedMessages: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "lanebridge",
				Subsystem: "bridge",
				Name:      "queued_messages",
				Help:      "Current unconfirmed outbound backlog per lane.",
			}, []string{"lane"}),
		}
		prometheus.MustRegister(
			bridgeRegistry.messagesAccepted,
			bridgeRegistry.messagesReceived,
			bridgeRegistry.messagesDelivered,
			bridgeRegistry.dispatchErrors,
			bridgeRegistry.queuedMessages,
		)
	})
	return bridgeRegistry
}

// RecordAccepted notes an accepted outbound message and the resulting backlog.
func (m *BridgeMetrics) RecordAccepted(lane string, enqueued uint64) {
	if m == nil {
		return
	}
	m.messagesAccepted.WithLabelValues(lane).Inc()
	m.queuedMessages.WithLabelValues(lane).Set(float64(enqueued))
}

// RecordReception notes a single inbound message reception outcome.
func (m *BridgeMetrics) RecordReception(lane, outcome string) {
	if m == nil {
		return
	}
	m.messagesReceived.WithLabelValues(lane, outcome).Inc()
}

// RecordDelivered notes confirmed outbound messages and the remaining backlog.
func (m *BridgeMetrics) RecordDelivered(lane string, count, enqueued uint64) {
	if m == nil {
		return
	}
	m.messagesDelivered.WithLabelValues(lane).Add(float64(count))
	m.queuedMessages.WithLabelValues(lane).Set(float64(enqueued))
}

// RecordDispatchError notes a payload whose handler failed after delivery.
func (m *BridgeMetrics) RecordDispatchError(lane string) {
	if m == nil {
		return
	}
	m.dispatchErrors.WithLabelValues(lane).Inc()
}

// RelayMetrics exposes Prometheus collectors for the off-chain relay loops.
type RelayMetrics struct {
	bestSourceNonce *prometheus.GaugeVec
	bestTargetNonce *prometheus.GaugeVec
	submissions     *prometheus.CounterVec
	stepDuration    *prometheus.HistogramVec
}

// Relay returns the lazily-initialised relay metrics registry.
func Relay() *RelayMetrics {
	relayMetricsOnce.Do(func() {
		relayRegistry = &RelayMetrics{
			bestSourceNonce: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "lanebridge",
				Subsystem: "relay",
				Name:      "best_source_nonce",
				Help:      "Latest generated nonce observed at the source chain.",
			}, []string{"lane"}),
			bestTargetNonce: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "lanebridge",
				Subsystem: "relay",
				Name:      "best_target_nonce",
				Help:      "Latest received nonce observed at the target chain.",
			}, []string{"lane"}),
			submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lanebridge",
				Subsystem: "relay",
				Name:      "submissions_total",
				Help:      "Proof submissions segmented by race and outcome.",
			}, []string{"lane", "race", "outcome"}),
			stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "lanebridge",
				Subsystem: "relay",
				Name:      "step_duration_seconds",
				Help:      "Latency distribution of relay race steps.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"lane", "race"}),
		}
		prometheus.MustRegister(
			relayRegistry.bestSourceNonce,
			relayRegistry.bestTargetNonce,
			relayRegistry.submissions,
			relayRegistry.stepDuration,
		)
	})
	return relayRegistry
}

// UpdateNonces records the freshly observed best nonces for the lane.
func (m *RelayMetrics) UpdateNonces(lane string, source, target uint64) {
	if m == nil {
		return
	}
	m.bestSourceNonce.WithLabelValues(lane).Set(float64(source))
	m.bestTargetNonce.WithLabelValues(lane).Set(float64(target))
}

// RecordSubmission notes the outcome of one proof submission.
func (m *RelayMetrics) RecordSubmission(lane, race, outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(lane, race, outcome).Inc()
}

// ObserveStep records the wall-clock duration of one race step.
func (m *RelayMetrics) ObserveStep(lane, race string, d time.Duration) {
	if m == nil {
		return
	}
	m.stepDuration.WithLabelValues(lane, race).Observe(d.Seconds())
}
