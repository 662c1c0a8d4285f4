package metrics

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	subsystemPrefix    = "courier_iot"
	subsystemConnect   = subsystemPrefix + "_connect"
	subsystemTokenMint = subsystemPrefix + "_token_mint"
	subsystemPublish   = subsystemPrefix + "_publish"
	subsystemSubscribe = subsystemPrefix + "_subscribe"

	metricSuccesses   = "successes"
	metricAttempts    = "attempts"
	metricErrors      = "errors"
	metricRunDuration = "run_duration"
	metricFailures    = "failures"
	metricBackoff     = "backoff_seconds"

	labelCategory = "category"
)

var (
	opSubsystemMap = map[Operation]string{
		ConnectOp:   subsystemConnect,
		TokenMintOp: subsystemTokenMint,
		PublishOp:   subsystemPublish,
		SubscribeOp: subsystemSubscribe,
	}

	counters = []string{metricSuccesses, metricAttempts, metricErrors}
)

type aggregator struct {
	attempts, successes, errors prometheus.Counter
	runDuration                 prometheus.Observer
}

// NewPrometheus creates a PrometheusMetrics instance which implements the Collector interface.
func NewPrometheus() *PrometheusMetrics {
	return &PrometheusMetrics{
		operationMap: map[Operation]*aggregator{
			ConnectOp:   {},
			TokenMintOp: {},
			PublishOp:   {},
			SubscribeOp: {},
		},
	}
}

// PrometheusMetrics is a prometheus collector for device session operations.
type PrometheusMetrics struct {
	sync.RWMutex
	operationMap map[Operation]*aggregator
	failures     *prometheus.CounterVec
	backoff      prometheus.Gauge
}

// Update implements Collector.
func (p *PrometheusMetrics) Update(r Result) {
	p.RWMutex.Lock()
	defer p.RWMutex.Unlock()

	a, ok := p.operationMap[r.OpType]
	if !ok {
		return
	}

	if r.Attempts > 0 && a.attempts != nil {
		a.attempts.Add(float64(r.Attempts))
	}
	if r.Errors > 0 && a.errors != nil {
		a.errors.Add(float64(r.Errors))
	}
	if r.Successes > 0 && a.successes != nil {
		a.successes.Add(float64(r.Successes))
	}
	if r.RunDuration > 0 && a.runDuration != nil {
		a.runDuration.Observe(r.RunDuration.Seconds())
	}

	if r.OpType != ConnectOp {
		return
	}

	if r.Errors > 0 && r.Category != "" && p.failures != nil {
		p.failures.WithLabelValues(r.Category).Inc()
	}
	if p.backoff != nil {
		p.backoff.Set(r.Backoff.Seconds())
	}
}

// AddToRegistry is used to register the collectors with a prometheus.Registerer.
func (p *PrometheusMetrics) AddToRegistry(registerer prometheus.Registerer) error {
	p.RWMutex.Lock()
	defer p.RWMutex.Unlock()

	for s, op := range p.operationMap {
		for _, c := range counters {
			cv := prometheus.NewCounter(prometheus.CounterOpts{
				Name:      c,
				Help:      fmt.Sprintf("%s counter", c),
				Subsystem: opSubsystemMap[s],
			})
			if err := registerer.Register(cv); err != nil {
				return err
			}
			addCounterToOp(c, cv, op)
		}

		hv := prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:      metricRunDuration,
			Help:      fmt.Sprintf("%s histogram", metricRunDuration),
			Subsystem: opSubsystemMap[s],
		})
		if err := registerer.Register(hv); err != nil {
			return err
		}
		op.runDuration = hv
	}

	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:      metricFailures,
		Help:      "connection failures by diagnosis category",
		Subsystem: subsystemConnect,
	}, []string{labelCategory})
	if err := registerer.Register(failures); err != nil {
		return err
	}
	p.failures = failures

	backoff := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:      metricBackoff,
		Help:      "reconnect delay currently in effect",
		Subsystem: subsystemConnect,
	})
	if err := registerer.Register(backoff); err != nil {
		return err
	}
	p.backoff = backoff

	return nil
}

func addCounterToOp(name string, c prometheus.Counter, a *aggregator) {
	switch name {
	case metricSuccesses:
		a.successes = c
	case metricAttempts:
		a.attempts = c
	case metricErrors:
		a.errors = c
	}
}
