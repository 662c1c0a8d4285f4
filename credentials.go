package courier

import (
	"context"
	"time"
)

// Token is a signed, time-bounded authentication token used as the MQTT password.
type Token struct {
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Valid reports whether the token has been minted and not cleared since.
func (t Token) Valid() bool { return !t.IssuedAt.IsZero() && t.Value != "" }

// Expired reports whether a held token has reached its expiry at now.
func (t Token) Expired(now time.Time) bool {
	return t.Valid() && !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

// CredentialProvider mints tokens on demand.
type CredentialProvider interface {
	MintToken(context.Context) (Token, error)
}

// CredentialProviderFunc is an adapter to allow the use of ordinary functions as CredentialProvider.
type CredentialProviderFunc func(context.Context) (Token, error)

// MintToken implements CredentialProvider.
func (f CredentialProviderFunc) MintToken(ctx context.Context) (Token, error) { return f(ctx) }

// WithCredentialProvider sets the specified CredentialProvider.
func WithCredentialProvider(provider CredentialProvider) ClientOption {
	return optionFunc(func(o *controllerOptions) {
		o.credentialProvider = provider
	})
}
