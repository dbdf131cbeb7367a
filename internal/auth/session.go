// Package auth holds the catalog authorization state: per-user sessions,
// in-flight PKCE authorization requests, and the flow that turns one into
// the other.
//
// Both stores are interfaces so the daemon can keep state in memory (single
// process) or in SQL (see internal/storage) without the router noticing.
package auth

import (
	"context"
	"errors"
	"time"
)

// DefaultUserID is used when the deployment serves a single user.
const DefaultUserID = "default"

var (
	// ErrNoSession is returned when no session was ever stored for a user.
	ErrNoSession = errors.New("no session for user")

	// ErrUnknownState is returned when a callback carries a state that was
	// never issued (or was swept long ago).
	ErrUnknownState = errors.New("unknown authorization state")

	// ErrStateReused is returned when a callback replays a state that has
	// already been consumed.
	ErrStateReused = errors.New("authorization state already used")

	// ErrStateExpired is returned when the pending authorization outlived its TTL.
	ErrStateExpired = errors.New("authorization state expired")
)

// Session is the catalog credential held for one user.
type Session struct {
	UserID       string    `json:"user_id"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Valid reports whether the session may be used to act at time now.
// There is no implicit refresh: an expired session requires re-authorization.
func (s *Session) Valid(now time.Time) bool {
	return s != nil && s.AccessToken != "" && now.Before(s.ExpiresAt)
}

// IsValid is the nil-safe form of Session.Valid used by callers that hold
// an optional session.
func IsValid(s *Session, now time.Time) bool {
	return s.Valid(now)
}

// TokenStore keeps one session per user. Put overwrites; sessions are never
// deleted explicitly and simply expire in place.
type TokenStore interface {
	// Get returns the stored session or ErrNoSession.
	Get(ctx context.Context, userID string) (*Session, error)

	// Put stores (or replaces) the session for s.UserID.
	Put(ctx context.Context, s *Session) error
}

// PendingAuthorization correlates an issued authorization URL with its
// callback.
type PendingAuthorization struct {
	State     string
	Verifier  string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// ReuseMarkerRetention is how long a consumed state is remembered past its
// own expiry, so a replayed callback keeps failing with ErrStateReused
// rather than ErrUnknownState.
const ReuseMarkerRetention = 24 * time.Hour

// PendingStore keeps in-flight authorization requests keyed by state.
//
// Consume must be atomic per state: exactly one caller ever receives a given
// entry, and the entry is gone once Consume returns, whatever the outcome of
// the exchange that follows. The state is then kept as a reuse marker until
// ExpiresAt plus ReuseMarkerRetention; after Sweep drops the marker a replay
// reports ErrUnknownState.
type PendingStore interface {
	// Create records a new pending authorization.
	Create(ctx context.Context, p *PendingAuthorization) error

	// Consume removes and returns the pending authorization for state.
	// It fails with ErrUnknownState, ErrStateReused or ErrStateExpired.
	Consume(ctx context.Context, state string, now time.Time) (*PendingAuthorization, error)

	// Sweep drops expired entries and old reuse markers, returning how many
	// rows were removed.
	Sweep(ctx context.Context, now time.Time) (int, error)
}
