package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nadzzz/companion/internal/auth"
)

// SessionStore is a SQL-backed auth.TokenStore.
type SessionStore struct {
	db     *DB
	sealer *Sealer
}

// NewSessionStore creates a SessionStore. sealer may be nil.
func NewSessionStore(db *DB, sealer *Sealer) *SessionStore {
	return &SessionStore{db: db, sealer: sealer}
}

// Get returns the session for userID or auth.ErrNoSession.
func (s *SessionStore) Get(ctx context.Context, userID string) (*auth.Session, error) {
	var (
		access, refresh string
		expiresAt       int64
	)
	err := s.db.QueryRowContext(ctx,
		s.db.rebind(`SELECT access_token, refresh_token, expires_at FROM sessions WHERE user_id = ?`),
		userID,
	).Scan(&access, &refresh, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	if access, err = s.sealer.Open(access); err != nil {
		return nil, err
	}
	if refresh, err = s.sealer.Open(refresh); err != nil {
		return nil, err
	}

	return &auth.Session{
		UserID:       userID,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    time.UnixMilli(expiresAt),
	}, nil
}

// Put upserts the session for sess.UserID.
func (s *SessionStore) Put(ctx context.Context, sess *auth.Session) error {
	if sess == nil || sess.UserID == "" {
		return fmt.Errorf("session without user id")
	}
	access, err := s.sealer.Seal(sess.AccessToken)
	if err != nil {
		return err
	}
	refresh, err := s.sealer.Seal(sess.RefreshToken)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, s.db.rebind(`
		INSERT INTO sessions (user_id, access_token, refresh_token, expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`),
		sess.UserID, access, refresh, sess.ExpiresAt.UnixMilli(), time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("put session: %w", err)
	}
	return nil
}
