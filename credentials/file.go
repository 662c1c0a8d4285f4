// Package credentials provides courier.CredentialProvider implementations.
//
// Token signing is out of scope: providers here hand out tokens that were
// signed elsewhere, e.g. by a provisioning service or a secure element.
package credentials

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	courier "github.com/gojek/courier-iot"
)

// ErrEmptyTokenFile is returned when the token file holds no token.
var ErrEmptyTokenFile = errors.New("credentials: token file is empty")

// DefaultLifetime is the lifetime assigned to a token that carries no expiry of its own.
const DefaultLifetime = time.Hour

// File reads a pre-signed token from disk on every MintToken call, so that a
// token rotated on disk is picked up by the next connection attempt.
type File struct {
	path     string
	lifetime time.Duration
	now      func() time.Time
}

var _ courier.CredentialProvider = (*File)(nil)

// Option allows to configure a File provider.
type Option func(*File)

// WithLifetime sets the lifetime given to tokens without an "exp" claim.
func WithLifetime(d time.Duration) Option {
	return func(f *File) {
		if d > 0 {
			f.lifetime = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(f *File) { f.now = now }
}

// NewFile returns a File provider reading from path.
func NewFile(path string, opts ...Option) *File {
	f := &File{path: path, lifetime: DefaultLifetime, now: time.Now}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// MintToken implements courier.CredentialProvider. When the token is a JWT its
// "iat" and "exp" claims are used and a JWT with unreadable claims is an error.
// Any other token is valid for the configured lifetime from now.
func (f *File) MintToken(ctx context.Context) (courier.Token, error) {
	if err := ctx.Err(); err != nil {
		return courier.Token{}, err
	}

	b, err := os.ReadFile(f.path)
	if err != nil {
		return courier.Token{}, fmt.Errorf("credentials: read token file: %w", err)
	}

	v := string(bytes.TrimSpace(b))
	if v == "" {
		return courier.Token{}, ErrEmptyTokenFile
	}

	now := f.now()
	tok := courier.Token{Value: v, IssuedAt: now, ExpiresAt: now.Add(f.lifetime)}

	if strings.Count(v, ".") != 2 {
		return tok, nil
	}

	iat, exp, err := claimTimes(v)
	if err != nil {
		return courier.Token{}, fmt.Errorf("credentials: parse token claims: %w", err)
	}

	if iat != nil {
		tok.IssuedAt = iat.Time
	}

	if exp != nil {
		tok.ExpiresAt = exp.Time
	}

	return tok, nil
}

// claimTimes reads the "iat" and "exp" claims of a compact JWT without
// verifying its signature, the broker does that.
func claimTimes(token string) (issuedAt, expiresAt *jwt.NumericDate, err error) {
	var claims jwt.RegisteredClaims

	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil, nil, err
	}

	return claims.IssuedAt, claims.ExpiresAt, nil
}
