package auth

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNameTaken is returned when the display name is held by a
	// currently active identity.
	ErrNameTaken = errors.New("display name is already in use")
	// ErrEmptyName is returned when the display name is blank.
	ErrEmptyName = errors.New("display name cannot be empty")
)

// MaxDisplayNameLength bounds display names accepted at issuance.
const MaxDisplayNameLength = 50

// ErrNameTooLong is returned when the display name exceeds
// MaxDisplayNameLength.
var ErrNameTooLong = errors.New("display name is too long")

// Config holds credential issuer settings. In production the secret comes
// from the environment.
type Config struct {
	Secret   string
	TokenTTL time.Duration
}

// Credential is the result of a successful issuance.
type Credential struct {
	Identity
	Token string
}

type session struct {
	id          string
	displayName string
}

// Issuer mints and verifies credentials. Display-name uniqueness among
// active identities is enforced here with a check-then-insert under one
// lock; names are freed only when the identity is released after its last
// connection disconnects.
type Issuer struct {
	cfg Config

	mu       sync.Mutex
	names    map[string]string  // normalized display name -> user id
	sessions map[string]session // user id -> active session
}

// NewIssuer creates an Issuer with no active identities.
func NewIssuer(cfg Config) *Issuer {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	return &Issuer{
		cfg:      cfg,
		names:    make(map[string]string),
		sessions: make(map[string]session),
	}
}

// Issue mints a fresh identity and signed token for the display name. It
// fails with ErrNameTaken while another active identity holds the name.
func (i *Issuer) Issue(displayName string) (Credential, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return Credential{}, ErrEmptyName
	}
	if len(displayName) > MaxDisplayNameLength {
		return Credential{}, ErrNameTooLong
	}

	key := strings.ToLower(displayName)
	userID := uuid.NewString()
	sessionID := uuid.NewString()

	i.mu.Lock()
	if _, taken := i.names[key]; taken {
		i.mu.Unlock()
		return Credential{}, ErrNameTaken
	}
	i.names[key] = userID
	i.sessions[userID] = session{id: sessionID, displayName: displayName}
	i.mu.Unlock()

	token, err := i.signToken(userID, displayName, sessionID)
	if err != nil {
		// Roll back the reservation so the name is not leaked.
		i.Release(userID)
		return Credential{}, err
	}

	identity := Identity{UserID: userID, DisplayName: displayName}
	return Credential{Identity: identity, Token: token}, nil
}

// Verify validates a presented token and returns the identity it carries.
// A token whose session has been released or superseded fails with
// ErrRevokedToken.
func (i *Issuer) Verify(tokenString string) (Identity, error) {
	claims, err := i.parseToken(tokenString)
	if err != nil {
		return Identity{}, err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	sess, ok := i.sessions[claims.Subject]
	if !ok || sess.id != claims.ID {
		return Identity{}, ErrRevokedToken
	}
	return Identity{UserID: claims.Subject, DisplayName: sess.displayName}, nil
}

// Release retires the identity and frees its display name for reuse.
// Releasing an unknown user id is a no-op.
func (i *Issuer) Release(userID string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	sess, ok := i.sessions[userID]
	if !ok {
		return
	}
	delete(i.sessions, userID)
	delete(i.names, strings.ToLower(sess.displayName))
}

// Active reports whether the display name is currently held.
func (i *Issuer) Active(displayName string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	_, ok := i.names[strings.ToLower(displayName)]
	return ok
}
