package courier

import (
	"context"
	"time"
)

// PublishOption allows to configure a single publish.
// QOSLevel is itself a PublishOption.
type PublishOption interface{ apply(*publishOptions) }

type publishOptions struct {
	qos      QOSLevel
	retained bool
	subtopic string
}

type publishOptionFunc func(*publishOptions)

func (f publishOptionFunc) apply(o *publishOptions) { f(o) }

// WithSubtopic appends subtopic to the events topic, e.g. "/alerts".
// It applies to PublishTelemetry only, the state topic has no subtopics and
// PublishState ignores it.
func WithSubtopic(subtopic string) PublishOption {
	return publishOptionFunc(func(o *publishOptions) { o.subtopic = subtopic })
}

// WithRetained sets the MQTT retained flag.
func WithRetained(retained bool) PublishOption {
	return publishOptionFunc(func(o *publishOptions) { o.retained = retained })
}

func composeOptions(opts []PublishOption) *publishOptions {
	o := &publishOptions{qos: QOSZero}

	for _, opt := range opts {
		opt.apply(o)
	}

	return o
}

// PublishTelemetry publishes payload to the events topic. It returns false when
// the session is down or the transport refused the message; it never retries.
func (c *Controller) PublishTelemetry(ctx context.Context, payload []byte, opts ...PublishOption) bool {
	o := composeOptions(opts)

	return c.publish(ctx, c.topics.events+o.subtopic, payload, o)
}

// PublishState publishes payload to the state topic. WithSubtopic is ignored.
func (c *Controller) PublishState(ctx context.Context, payload []byte, opts ...PublishOption) bool {
	o := composeOptions(opts)
	if o.subtopic != "" {
		c.options.logger.Debug(ctx, "subtopic ignored for state publish", map[string]any{"subtopic": o.subtopic})
	}

	return c.publish(ctx, c.topics.state, payload, o)
}

func (c *Controller) publish(ctx context.Context, topic string, payload []byte, o *publishOptions) bool {
	t := c.options.transport
	start := time.Now()

	if !t.IsConnected() {
		c.options.logger.Debug(ctx, "not connected, publish skipped", map[string]any{"topic": topic})
		c.recordPublish(start, false)

		return false
	}

	ok := t.Publish(topic, payload, o.retained, o.qos)
	c.recordPublish(start, ok)

	if !ok {
		c.options.logger.Warn(ctx, "publish failed", map[string]any{
			"topic":           topic,
			"qos":             o.qos,
			"transport_error": t.LastError().String(),
		})
	}

	return ok
}
