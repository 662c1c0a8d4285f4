package courier

import (
	"errors"
)

var (
	// ErrConnectTimeout is reported when the broker does not complete the handshake in time.
	ErrConnectTimeout = errors.New("courier: client timed out while trying to connect to the broker")
	// ErrIdentityRequired is returned by NewController when no Identity is configured.
	ErrIdentityRequired = errors.New("courier: identity is required")
	// ErrCredentialProviderRequired is returned by NewController when no CredentialProvider is configured.
	ErrCredentialProviderRequired = errors.New("courier: credential provider is required")
	// ErrTransportRequired is returned by NewController when no Transport is configured.
	ErrTransportRequired = errors.New("courier: transport is required")
	// ErrEmptyToken is reported when a CredentialProvider returns a token without a value.
	ErrEmptyToken = errors.New("courier: credential provider returned an empty token")
	// ErrTokenExpired is reported when a CredentialProvider returns a token that has already expired.
	ErrTokenExpired = errors.New("courier: credential provider returned an expired token")
	// ErrSubscribeFailed is reported when the transport refuses a subscription.
	ErrSubscribeFailed = errors.New("courier: subscribe failed")
)
