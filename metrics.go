package courier

import (
	"time"

	"github.com/gojek/courier-iot/diagnostics"
	"github.com/gojek/courier-iot/metrics"
)

func (c *Controller) recordConnect(start time.Time, s State, d *diagnostics.Diagnosis) {
	r := metrics.Result{
		OpType:      metrics.ConnectOp,
		Attempts:    1,
		RunDuration: c.options.now().Sub(start),
		Backoff:     s.Backoff.Delay,
	}

	if d == nil {
		r.Successes = 1
	} else {
		r.Errors = 1
		r.Category = string(d.Category)
	}

	c.options.metricsCollector.Update(r)
}

func (c *Controller) recordPublish(start time.Time, ok bool) {
	r := metrics.Result{
		OpType:      metrics.PublishOp,
		Attempts:    1,
		RunDuration: time.Since(start),
	}

	if ok {
		r.Successes = 1
	} else {
		r.Errors = 1
	}

	c.options.metricsCollector.Update(r)
}
