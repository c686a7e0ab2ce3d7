package linestream

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects framing counters. A nil *Metrics records nothing.
type Metrics struct {
	reads       prometheus.Counter
	bytesRead   prometheus.Counter
	frames      prometheus.Counter
	errors      *prometheus.CounterVec
	connections prometheus.Gauge
}

// NewMetrics creates the framing collectors and registers them with reg.
// A nil reg leaves them unregistered, which is useful in tests.
func NewMetrics(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	m := &Metrics{
		reads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "framer",
			Name:      "reads_total",
			Help:      "Reads that delivered bytes to a frame buffer.",
		}),
		bytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "framer",
			Name:      "read_bytes_total",
			Help:      "Bytes read into frame buffers.",
		}),
		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "framer",
			Name:      "frames_total",
			Help:      "Complete frames extracted from frame buffers.",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "framer",
			Name:      "errors_total",
			Help:      "Fatal framing errors by kind.",
		}, []string{"kind"}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "conn",
			Name:      "active",
			Help:      "Connections currently running.",
		}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{m.reads, m.bytesRead, m.frames, m.errors, m.connections} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) observeRead(n int) {
	if m == nil {
		return
	}
	m.reads.Inc()
	m.bytesRead.Add(float64(n))
}

func (m *Metrics) observeFrame() {
	if m == nil {
		return
	}
	m.frames.Inc()
}

func (m *Metrics) observeError(err error) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(errorKind(err)).Inc()
}

func (m *Metrics) connOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

func (m *Metrics) connClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}
