// Package metrics exposes device session operations to a metrics backend.
package metrics

import "time"

// Operation identifies a session operation being measured.
type Operation int

const (
	// ConnectOp is a single connection attempt, including token minting.
	ConnectOp Operation = iota
	// TokenMintOp is a call to the credential provider.
	TokenMintOp
	// PublishOp is a telemetry or state publish.
	PublishOp
	// SubscribeOp is a subscription to one of the device topics.
	SubscribeOp
)

// Result is one observation of an Operation.
type Result struct {
	OpType      Operation
	Attempts    int
	Successes   int
	Errors      int
	RunDuration time.Duration

	// Category is the diagnosis category of a failed ConnectOp.
	Category string
	// Backoff is the reconnect delay in effect after a ConnectOp.
	Backoff time.Duration
}

// Collector receives Results from a device session.
type Collector interface {
	Update(Result)
}

// Noop discards every Result.
type Noop struct{}

// Update implements Collector.
func (Noop) Update(Result) {}
