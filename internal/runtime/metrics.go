package runtime

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Reasons reported by rpcflow_dispatch_dropped_total.
const (
	DropUndecodable   = "undecodable"
	DropUnknownType   = "unknown_type"
	DropUnknownTopic  = "unknown_topic"
	DropFiltered      = "filtered"
	DropEncodeFailure = "encode_failure"
	DropPublishFailed = "publish_failed"
)

// DispatchMetrics tracks dispatch outcomes per (channel, type).
type DispatchMetrics struct {
	mu sync.RWMutex

	handlers map[string]*HandlerStats

	responsesTotal  *prometheus.CounterVec
	droppedTotal    *prometheus.CounterVec
	handlerDuration *prometheus.HistogramVec

	registerer prometheus.Registerer
	registered bool
}

// HandlerStats holds the counters kept for one handler.
type HandlerStats struct {
	Channel         string           `json:"channel"`
	Type            string           `json:"type"`
	Responses       map[string]int64 `json:"responses"`
	Dropped         map[string]int64 `json:"dropped,omitempty"`
	TotalDuration   time.Duration    `json:"total_duration_ns"`
	LastStatus      string           `json:"last_status,omitempty"`
	LastError       string           `json:"last_error,omitempty"`
	LastProcessedAt time.Time        `json:"last_processed_at,omitempty"`
	Latency         LatencyMetrics   `json:"latency"`

	latency *latencyRing
}

// DispatchMetricsSnapshot provides a point-in-time view of dispatch metrics.
type DispatchMetricsSnapshot struct {
	TotalResponses int64                    `json:"total_responses"`
	TotalDropped   int64                    `json:"total_dropped"`
	Handlers       map[string]*HandlerStats `json:"handlers"`
	CollectedAt    time.Time                `json:"collected_at"`
}

func newDispatchCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rpcflow",
			Subsystem: "dispatch",
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

// NewDispatchMetrics creates a collector. A nil registerer means the
// Prometheus default registerer.
func NewDispatchMetrics(registerer prometheus.Registerer) *DispatchMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &DispatchMetrics{
		handlers:       make(map[string]*HandlerStats),
		registerer:     registerer,
		responsesTotal: newDispatchCounterVec("responses_total", "Total number of RPC responses published", []string{"channel", "type", "status"}),
		droppedTotal:   newDispatchCounterVec("dropped_total", "Total number of RPC requests dropped without a response", []string{"channel", "type", "reason"}),
		handlerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "rpcflow",
				Subsystem: "dispatch",
				Name:      "handler_duration_seconds",
				Help:      "Time spent inside RPC handlers",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"channel", "type"},
		),
	}
}

// Register registers the Prometheus collectors. Safe to call multiple times.
func (m *DispatchMetrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	var err error
	if m.responsesTotal, err = registerOrReuse(m.registerer, m.responsesTotal); err != nil {
		return err
	}
	if m.droppedTotal, err = registerOrReuse(m.registerer, m.droppedTotal); err != nil {
		return err
	}
	if m.handlerDuration, err = registerOrReuse(m.registerer, m.handlerDuration); err != nil {
		return err
	}

	m.registered = true
	return nil
}

// RecordResponse records a published response and the handler time behind it.
func (m *DispatchMetrics) RecordResponse(channel, rpcType, status string, duration time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := m.getOrCreateStats(channel, rpcType)
	stats.Responses[status]++
	stats.TotalDuration += duration
	stats.latency.add(duration)
	stats.LastStatus = status
	stats.LastProcessedAt = time.Now()
	if err != nil {
		stats.LastError = err.Error()
	}

	m.responsesTotal.WithLabelValues(channel, rpcType, status).Inc()
	m.handlerDuration.WithLabelValues(channel, rpcType).Observe(duration.Seconds())
}

// RecordDropped records a request that did not produce a response.
func (m *DispatchMetrics) RecordDropped(channel, rpcType, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := m.getOrCreateStats(channel, rpcType)
	stats.Dropped[reason]++
	stats.LastProcessedAt = time.Now()

	m.droppedTotal.WithLabelValues(channel, rpcType, reason).Inc()
}

// GetSnapshot returns a copy of the in-memory counters.
func (m *DispatchMetrics) GetSnapshot() DispatchMetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := DispatchMetricsSnapshot{
		Handlers:    make(map[string]*HandlerStats, len(m.handlers)),
		CollectedAt: time.Now(),
	}
	for k, stats := range m.handlers {
		snapshot.Handlers[k] = stats.clone()
		for _, n := range stats.Responses {
			snapshot.TotalResponses += n
		}
		for _, n := range stats.Dropped {
			snapshot.TotalDropped += n
		}
	}
	return snapshot
}

// GetHandlerStats returns a copy of the counters for one handler, or nil.
func (m *DispatchMetrics) GetHandlerStats(channel, rpcType string) *HandlerStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats, ok := m.handlers[statsKey(channel, rpcType)]
	if !ok {
		return nil
	}
	return stats.clone()
}

func (m *DispatchMetrics) getOrCreateStats(channel, rpcType string) *HandlerStats {
	k := statsKey(channel, rpcType)
	if stats, ok := m.handlers[k]; ok {
		return stats
	}
	stats := &HandlerStats{
		Channel:   channel,
		Type:      rpcType,
		Responses: make(map[string]int64),
		Dropped:   make(map[string]int64),
		latency:   newLatencyRing(latencySampleSize),
	}
	m.handlers[k] = stats
	return stats
}

// Reset resets all metrics (useful for testing).
func (m *DispatchMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.handlers = make(map[string]*HandlerStats)
	m.responsesTotal.Reset()
	m.droppedTotal.Reset()
	m.handlerDuration.Reset()
}

// registerOrReuse registers c, or returns the collector already registered
// under the same descriptor so several services can share one registry.
func registerOrReuse[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// clone copies the counters and resolves the latency summary.
func (h *HandlerStats) clone() *HandlerStats {
	c := *h
	c.Responses = cloneCounts(h.Responses)
	c.Dropped = cloneCounts(h.Dropped)
	c.Latency = h.latency.snapshot()
	c.latency = nil
	return &c
}

func statsKey(channel, rpcType string) string {
	return channel + "/" + rpcType
}

func cloneCounts(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
