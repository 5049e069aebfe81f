package hashstate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures binding metrics.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "hashstate").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels
}

// MetricsOption configures NewMetrics.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// Metrics counts binding activity. One Metrics is shared by every binding
// that points at it; series are labelled by key. A nil *Metrics records
// nothing.
//
// Metrics collected:
//   - hashstate_commits_total: successful commits by key
//   - hashstate_coalesced_writes_total: debounced writes replaced before firing
//   - hashstate_decode_errors_total: decode failures by key and source
//   - hashstate_write_errors_total: encode/write/remove failures by key and op
//   - hashstate_change_notifications_total: external change notifications by key and outcome
type Metrics struct {
	commits       *prometheus.CounterVec
	coalesced     *prometheus.CounterVec
	decodeErrors  *prometheus.CounterVec
	writeErrors   *prometheus.CounterVec
	notifications *prometheus.CounterVec
}

// NewMetrics creates binding metrics registered with reg. A nil reg creates
// unregistered collectors.
func NewMetrics(reg prometheus.Registerer, opts ...MetricsOption) *Metrics {
	config := MetricsConfig{Namespace: "hashstate"}
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(reg)

	return &Metrics{
		commits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "commits_total",
			Help:        "Total number of values committed to the fragment",
			ConstLabels: config.ConstLabels,
		}, []string{"key"}),

		coalesced: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "coalesced_writes_total",
			Help:        "Total number of debounced writes replaced by a later write",
			ConstLabels: config.ConstLabels,
		}, []string{"key"}),

		decodeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "decode_errors_total",
			Help:        "Total number of stored values that failed to decode",
			ConstLabels: config.ConstLabels,
		}, []string{"key", "source"}),

		writeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "write_errors_total",
			Help:        "Total number of failed encodes, writes and removes",
			ConstLabels: config.ConstLabels,
		}, []string{"key", "op"}),

		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "change_notifications_total",
			Help:        "Total number of external change notifications handled",
			ConstLabels: config.ConstLabels,
		}, []string{"key", "outcome"}),
	}
}

func (m *Metrics) recordCommit(key string) {
	if m != nil {
		m.commits.WithLabelValues(key).Inc()
	}
}

func (m *Metrics) recordCoalesced(key string) {
	if m != nil {
		m.coalesced.WithLabelValues(key).Inc()
	}
}

func (m *Metrics) recordDecodeError(key string, source Source) {
	if m != nil {
		m.decodeErrors.WithLabelValues(key, string(source)).Inc()
	}
}

func (m *Metrics) recordWriteError(key string, op Op) {
	if m != nil {
		m.writeErrors.WithLabelValues(key, string(op)).Inc()
	}
}

func (m *Metrics) recordNotification(key string, changed bool) {
	if m == nil {
		return
	}
	outcome := "unchanged"
	if changed {
		outcome = "changed"
	}
	m.notifications.WithLabelValues(key, outcome).Inc()
}
