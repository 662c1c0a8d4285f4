package courier

import (
	"context"
	"fmt"

	"github.com/gojek/courier-iot/diagnostics"
)

// ConnectError describes why a connection attempt failed.
type ConnectError struct {
	Diagnosis diagnostics.Diagnosis
	Err       error
}

func (e *ConnectError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("courier: connect failed (%s): %s: %v", e.Diagnosis.Category, e.Diagnosis.Description, e.Err)
	}

	return fmt.Sprintf("courier: connect failed (%s): %s", e.Diagnosis.Category, e.Diagnosis.Description)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// report logs a failed attempt together with the configuration it was made
// with, to help an operator tell network, credential and registry problems apart.
// The token itself is never logged.
func (c *Controller) report(ctx context.Context, s State, err *ConnectError) {
	d := err.Diagnosis

	c.options.logger.Error(ctx, err, map[string]any{
		"transport_error": d.Error.String(),
		"return_code":     d.ReturnCode.String(),
		"category":        string(d.Category),
		"broker":          c.BrokerAddress().String(),
		"client_id":       c.options.identity.ClientID(),
		"backoff":         s.Backoff.Delay.String(),
	})

	if d.InvalidateToken {
		c.options.logger.Info(ctx, "token invalidated, a new one will be minted on the next attempt", nil)
	}
}
