// Package credential stores and resolves per-caller integration secrets.
//
// A secret is an opaque string — an OAuth refresh token for integrations a
// caller has connected, written when the authorization flow completes and
// deleted when the caller disconnects. Secrets are re-read on every
// invocation so that revocation takes effect promptly; nothing in this
// package caches them.
package credential

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotConnected is returned by [Resolver.Resolve] when the caller has no
// stored secret for the integration — either they never connected it or they
// have since disconnected. Callers should prompt the user to connect their
// account rather than surface a generic error.
var ErrNotConnected = errors.New("integration not connected")

// Store is the persistence boundary for caller credentials.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the secret stored for (callerID, integrationID), or
	// ("", nil) when none exists. A non-nil error indicates a store failure,
	// not absence.
	Get(ctx context.Context, callerID, integrationID string) (string, error)

	// Set stores or replaces the secret for (callerID, integrationID).
	Set(ctx context.Context, callerID, integrationID, secret string) error

	// Delete removes the secret for (callerID, integrationID). Deleting an
	// absent secret is not an error.
	Delete(ctx context.Context, callerID, integrationID string) error
}

// Resolver turns store lookups into the broker's credential contract:
// absence becomes [ErrNotConnected], store failures are wrapped and
// propagated.
type Resolver struct {
	store Store
}

// NewResolver creates a [Resolver] backed by store.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve fetches the secret for (callerID, integrationID). It returns
// [ErrNotConnected] when no secret is stored.
func (r *Resolver) Resolve(ctx context.Context, callerID, integrationID string) (string, error) {
	secret, err := r.store.Get(ctx, callerID, integrationID)
	if err != nil {
		return "", fmt.Errorf("credential: lookup %s for caller %s: %w", integrationID, callerID, err)
	}
	if secret == "" {
		return "", fmt.Errorf("%w: %s", ErrNotConnected, integrationID)
	}
	return secret, nil
}
