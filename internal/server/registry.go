// Package server tracks which authenticated identity is bound to which live
// connection via the Registry type.
package server

import (
	"errors"
	"sync"

	"github.com/parlorchat/parlor/internal/auth"
)

// CredentialVerifier is the external credential contract consumed at the
// connection handshake. Verify may block on an external call; Release
// retires an identity once its last connection is gone.
type CredentialVerifier interface {
	Verify(token string) (auth.Identity, error)
	Release(userID string)
}

var (
	// ErrAlreadyAuthenticated is returned when a connection attempts to
	// authenticate more than once.
	ErrAlreadyAuthenticated = errors.New("connection is already authenticated")
	// ErrNotAuthenticated is returned when an operation requires a bound
	// identity and the connection has none.
	ErrNotAuthenticated = errors.New("connection is not authenticated")
)

// Registry is the single source of truth for connection identity bindings.
// It owns the connection-to-identity mapping exclusively.
type Registry struct {
	verifier CredentialVerifier

	mu         sync.RWMutex
	identities map[string]auth.Identity // connection id -> identity
	pending    map[string]struct{}      // connection ids mid-handshake
	userConns  map[string]int           // user id -> bound connection count
}

// NewRegistry creates an empty registry backed by the verifier.
func NewRegistry(verifier CredentialVerifier) *Registry {
	return &Registry{
		verifier:   verifier,
		identities: make(map[string]auth.Identity),
		pending:    make(map[string]struct{}),
		userConns:  make(map[string]int),
	}
}

// Authenticate verifies the presented token and binds the resulting
// identity to the connection. Authentication happens at most once per
// connection: a second call, including one racing a first still in flight,
// fails with ErrAlreadyAuthenticated.
func (r *Registry) Authenticate(connID, token string) (auth.Identity, error) {
	r.mu.Lock()
	if _, bound := r.identities[connID]; bound {
		r.mu.Unlock()
		return auth.Identity{}, ErrAlreadyAuthenticated
	}
	if _, inFlight := r.pending[connID]; inFlight {
		r.mu.Unlock()
		return auth.Identity{}, ErrAlreadyAuthenticated
	}
	r.pending[connID] = struct{}{}
	r.mu.Unlock()

	// External call, kept outside the lock.
	identity, err := r.verifier.Verify(token)

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, connID)
	if err != nil {
		return auth.Identity{}, err
	}
	r.identities[connID] = identity
	r.userConns[identity.UserID]++
	return identity, nil
}

// IdentityOf returns the identity bound to the connection.
func (r *Registry) IdentityOf(connID string) (auth.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	identity, ok := r.identities[connID]
	if !ok {
		return auth.Identity{}, ErrNotAuthenticated
	}
	return identity, nil
}

// Remove deletes the connection's binding and reports the identity that was
// bound, if any. When the last connection for a user id is removed the
// identity is released back to the verifier. Remove is idempotent.
func (r *Registry) Remove(connID string) (auth.Identity, bool) {
	r.mu.Lock()
	identity, ok := r.identities[connID]
	if !ok {
		r.mu.Unlock()
		return auth.Identity{}, false
	}
	delete(r.identities, connID)
	r.userConns[identity.UserID]--
	release := r.userConns[identity.UserID] <= 0
	if release {
		delete(r.userConns, identity.UserID)
	}
	r.mu.Unlock()

	if release {
		r.verifier.Release(identity.UserID)
	}
	return identity, true
}

// Count returns the number of authenticated connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.identities)
}
