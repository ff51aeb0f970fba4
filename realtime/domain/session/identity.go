package session

import (
	"context"
	"errors"
)

// ErrNoIdentity is returned when no valid session token is available.
// Callers should redirect to authentication instead of retrying.
var ErrNoIdentity = errors.New("no valid identity token")

// Identity is the opaque identity handed out by the session provider.
type Identity struct {
	UserID string
	Token  string
}

// IdentityProvider is the external authentication boundary. Current
// must fail with ErrNoIdentity when the session is missing or expired.
type IdentityProvider interface {
	Current(ctx context.Context) (Identity, error)
}

// StaticProvider serves a fixed identity; used by the headless runner
// and by tests.
type StaticProvider struct {
	Identity Identity
}

func (p StaticProvider) Current(ctx context.Context) (Identity, error) {
	if p.Identity.UserID == "" || p.Identity.Token == "" {
		return Identity{}, ErrNoIdentity
	}
	return p.Identity, nil
}
