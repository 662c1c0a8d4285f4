package courier

import (
	"context"
	"time"
)

// Run drives the Controller until ctx is cancelled: it ticks at the configured
// interval and hands every inbound message to handler, all on the calling
// goroutine. On cancellation it calls Stop and returns nil.
// This makes Controller compatible with github.com/gojekfarm/xrun package.
func (c *Controller) Run(ctx context.Context, handler MessageHandler) error {
	ticker := time.NewTicker(c.options.tickInterval)
	defer ticker.Stop()

	c.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			c.Stop(context.Background())

			return nil
		case <-ticker.C:
			c.Tick(ctx)
		case m, ok := <-c.inbox:
			if !ok {
				return nil
			}

			if handler != nil {
				handler(m)
			}
		}
	}
}
