package audio

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// StreamMetrics holds the Prometheus metrics of audio streams. One
// instance serves every stream registered against the same registry; a
// nil *StreamMetrics disables collection.
type StreamMetrics struct {
	transfers     *prometheus.CounterVec // By stream and direction
	bytes         *prometheus.CounterVec // By stream and direction
	errors        *prometheus.CounterVec // By stream and reason
	notifications *prometheus.CounterVec // By stream
	state         *prometheus.GaugeVec   // By stream
}

// NewStreamMetrics creates the stream metrics and registers them with reg.
// Collectors already registered by an earlier call are reused.
func NewStreamMetrics(reg prometheus.Registerer) (*StreamMetrics, error) {
	if reg == nil {
		return nil, nil
	}

	m := &StreamMetrics{
		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "softuac",
			Subsystem: "stream",
			Name:      "transfers_total",
			Help:      "Total number of completed isochronous transfers",
		}, []string{"stream", "direction"}),

		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "softuac",
			Subsystem: "stream",
			Name:      "bytes_total",
			Help:      "Total number of sample bytes moved on the wire",
		}, []string{"stream", "direction"}),

		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "softuac",
			Subsystem: "stream",
			Name:      "errors_total",
			Help:      "Total number of failed transfers and submissions",
		}, []string{"stream", "reason"}), // reason: transfer, submit, unplug

		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "softuac",
			Subsystem: "stream",
			Name:      "notifications_total",
			Help:      "Total number of position notifications delivered",
		}, []string{"stream"}),

		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "softuac",
			Subsystem: "stream",
			Name:      "state",
			Help:      "Current stream state (0 stopped, 1 starting, 2 started, 3 stopping, 4 stopping after unplug)",
		}, []string{"stream"}),
	}

	var err error
	if m.transfers, err = register(reg, m.transfers); err != nil {
		return nil, err
	}
	if m.bytes, err = register(reg, m.bytes); err != nil {
		return nil, err
	}
	if m.errors, err = register(reg, m.errors); err != nil {
		return nil, err
	}
	if m.notifications, err = register(reg, m.notifications); err != nil {
		return nil, err
	}
	if m.state, err = register(reg, m.state); err != nil {
		return nil, err
	}
	return m, nil
}

// register registers c, returning the existing collector when an equal one
// is already registered.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *StreamMetrics) recordTransfer(stream string, dir Direction, n int) {
	if m == nil {
		return
	}
	m.transfers.WithLabelValues(stream, dir.String()).Inc()
	m.bytes.WithLabelValues(stream, dir.String()).Add(float64(n))
}

func (m *StreamMetrics) recordError(stream, reason string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(stream, reason).Inc()
}

func (m *StreamMetrics) recordNotification(stream string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(stream).Inc()
}

func (m *StreamMetrics) recordState(stream string, s State) {
	if m == nil {
		return
	}
	m.state.WithLabelValues(stream).Set(float64(s - StateStopped))
}
