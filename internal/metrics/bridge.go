package metrics

import "time"

// BridgeMetrics wraps the registry with the counters the relay paths emit.
type BridgeMetrics struct {
	registry *Registry
}

func NewBridgeMetrics(registry *Registry) *BridgeMetrics {
	return &BridgeMetrics{registry: registry}
}

// RelayDelivered records one successful relay in the given direction
// ("wa_to_tg" or "tg_to_wa") with its end-to-end latency.
func (m *BridgeMetrics) RelayDelivered(direction string, duration time.Duration) {
	labels := map[string]string{"direction": direction}
	m.registry.IncrementCounter("relay_delivered_total", labels, "Messages relayed successfully")
	m.registry.RecordTimer("relay_duration", duration, labels, "Relay delivery latency")
}

// RelayFailed records one failed relay attempt.
func (m *BridgeMetrics) RelayFailed(direction string) {
	m.registry.IncrementCounter("relay_failed_total",
		map[string]string{"direction": direction}, "Messages that could not be relayed")
}

// EventDropped records an inbound event discarded before relay.
func (m *BridgeMetrics) EventDropped(reason string) {
	m.registry.IncrementCounter("events_dropped_total",
		map[string]string{"reason": reason}, "Inbound events dropped before relay")
}

// TopicCreated records one forum topic creation.
func (m *BridgeMetrics) TopicCreated() {
	m.registry.IncrementCounter("topics_created_total", nil, "Forum topics created")
}

// TopicRepaired records one stale binding replaced during verification.
func (m *BridgeMetrics) TopicRepaired() {
	m.registry.IncrementCounter("topics_repaired_total", nil, "Forum topics recreated after deletion")
}

// ContactsSynced records contact names accepted during a sync pass.
func (m *BridgeMetrics) ContactsSynced(count int) {
	m.registry.AddToCounter("contacts_synced_total", float64(count), nil, "Contact names accepted")
}

// Snapshot returns the full metrics state for the HTTP endpoint.
func (m *BridgeMetrics) Snapshot() MetricsSnapshot {
	return m.registry.GetAllMetrics()
}
