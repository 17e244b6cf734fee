package check

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Round results as reported in metrics.
const (
	ResultDone    = "done"
	ResultFailed  = "failed"
	ResultTimeout = "timeout"
	ResultFatal   = "fatal"
)

// Metrics holds the Prometheus collectors updated by a Runner.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	rounds    *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	finished  *prometheus.GaugeVec
	aborts    prometheus.Counter
	collected []prometheus.Collector
}

// NewMetrics creates the collectors and registers them with reg, if non-nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		rounds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aemawait",
			Name:      "rounds_total",
			Help:      "Check rounds evaluated, by instance and result.",
		}, []string{"instance", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "aemawait",
			Name:      "round_duration_seconds",
			Help:      "Time taken to evaluate a check round.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"instance"}),
		finished: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "aemawait",
			Name:      "instance_finished",
			Help:      "Whether the instance reached the done quorum (1) or not (0).",
		}, []string{"instance"}),
		aborts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aemawait",
			Name:      "aborts_total",
			Help:      "Runs aborted by a fatal check error.",
		}),
	}
	m.collected = []prometheus.Collector{m.rounds, m.duration, m.finished, m.aborts}

	if reg != nil {
		for _, c := range m.collected {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) observeRound(name, result string, took time.Duration) {
	if m == nil {
		return
	}
	m.rounds.WithLabelValues(name, result).Inc()
	m.duration.WithLabelValues(name).Observe(took.Seconds())
}

func (m *Metrics) setFinished(name string, finished bool) {
	if m == nil {
		return
	}
	v := 0.0
	if finished {
		v = 1
	}
	m.finished.WithLabelValues(name).Set(v)
}

func (m *Metrics) observeAbort() {
	if m == nil {
		return
	}
	m.aborts.Inc()
}
