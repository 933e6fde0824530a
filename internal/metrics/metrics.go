// Package metrics defines the driver's Prometheus instrumentation, built
// the way the teacher's observability/metrics subpackages are: a struct
// of vectors registered against a caller-supplied registry, with one
// Record* method per event of interest.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// DriverMetrics tracks real-time data-path health: sink buffer
// under/overflow, block processing latency and clap-queue depth. None of
// these ever cause a real-time failure to propagate to the host; they
// exist purely for external observability (spec §7 propagation policy).
type DriverMetrics struct {
	sinkUnderflows   *prometheus.CounterVec
	sinkOverflows    *prometheus.CounterVec
	blockProcessTime prometheus.Histogram
	clapQueueDepth   prometheus.Gauge
	loopbackDrops    prometheus.Counter
}

// NewDriverMetrics constructs and registers every metric against reg.
func NewDriverMetrics(reg prometheus.Registerer) (*DriverMetrics, error) {
	m := &DriverMetrics{
		sinkUnderflows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trgk_asio",
			Subsystem: "sink",
			Name:      "underflows_total",
			Help:      "Number of render calls that fell back to silence due to insufficient queued samples.",
		}, []string{"endpoint"}),
		sinkOverflows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trgk_asio",
			Subsystem: "sink",
			Name:      "overflows_total",
			Help:      "Number of pushSamples calls dropped because a ring buffer lacked room.",
		}, []string{"endpoint"}),
		blockProcessTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "trgk_asio",
			Subsystem: "poll",
			Name:      "block_process_seconds",
			Help:      "Wall-clock time spent processing one poll-loop block tick.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 12),
		}),
		clapQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "trgk_asio",
			Subsystem: "clap",
			Name:      "queue_depth",
			Help:      "Number of active clap queue slots with pending events.",
		}),
		loopbackDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trgk_asio",
			Subsystem: "loopback",
			Name:      "packet_drops_total",
			Help:      "Number of captured loopback packets dropped due to ring buffer overflow.",
		}),
	}

	collectors := []prometheus.Collector{
		m.sinkUnderflows, m.sinkOverflows, m.blockProcessTime, m.clapQueueDepth, m.loopbackDrops,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordSinkUnderflow increments the underflow counter for an endpoint.
func (m *DriverMetrics) RecordSinkUnderflow(endpoint string) {
	m.sinkUnderflows.WithLabelValues(endpoint).Inc()
}

// RecordSinkOverflow increments the overflow counter for an endpoint.
func (m *DriverMetrics) RecordSinkOverflow(endpoint string) {
	m.sinkOverflows.WithLabelValues(endpoint).Inc()
}

// ObserveBlockProcessTime records how long one poll-loop block tick took.
func (m *DriverMetrics) ObserveBlockProcessTime(seconds float64) {
	m.blockProcessTime.Observe(seconds)
}

// SetClapQueueDepth reports the current number of active clap queue slots.
func (m *DriverMetrics) SetClapQueueDepth(depth int) {
	m.clapQueueDepth.Set(float64(depth))
}

// RecordLoopbackDrop increments the loopback packet-drop counter.
func (m *DriverMetrics) RecordLoopbackDrop() {
	m.loopbackDrops.Inc()
}
