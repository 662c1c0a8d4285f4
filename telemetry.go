package courier

import (
	"fmt"
	"time"

	"github.com/gojekfarm/xtools/generic/slice"
)

// SessionInfo is an operator facing snapshot of a device session.
type SessionInfo struct {
	ClientID       string     `json:"client_id"`
	Broker         TCPAddress `json:"broker"`
	Status         string     `json:"status"`
	Connected      bool       `json:"connected"`
	Subscriptions  []string   `json:"subscriptions"`
	TokenExpiresAt time.Time  `json:"token_expires_at,omitzero"`
	Backoff        string     `json:"backoff"`
	LastAttempt    time.Time  `json:"last_attempt,omitzero"`
}

// SessionInfo returns a snapshot describing the session. It never includes the token.
func (c *Controller) SessionInfo() SessionInfo {
	s := c.State()

	return SessionInfo{
		ClientID:  c.options.identity.ClientID(),
		Broker:    c.BrokerAddress(),
		Status:    s.Status.String(),
		Connected: c.IsConnected(),
		Subscriptions: slice.Map(c.subscriptions(), func(sub subscription) string {
			return fmt.Sprintf("%s (qos %d)", sub.topic, sub.qos)
		}),
		TokenExpiresAt: s.Token.ExpiresAt,
		Backoff:        s.Backoff.Delay.String(),
		LastAttempt:    s.LastAttempt,
	}
}
