package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nadzzz/companion/internal/auth"
)

// PendingStore is a SQL-backed auth.PendingStore. Consumption deletes the
// row with DELETE ... RETURNING, which is atomic on both SQLite and Postgres,
// and leaves a row in consumed_states for auth.ReuseMarkerRetention past the
// original expiry.
type PendingStore struct {
	db *DB
}

// NewPendingStore creates a PendingStore.
func NewPendingStore(db *DB) *PendingStore {
	return &PendingStore{db: db}
}

// Create inserts p.
func (s *PendingStore) Create(ctx context.Context, p *auth.PendingAuthorization) error {
	if p == nil || p.State == "" {
		return fmt.Errorf("pending authorization without state")
	}
	_, err := s.db.ExecContext(ctx, s.db.rebind(`
		INSERT INTO pending_authorizations (state, verifier, user_id, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)`),
		p.State, p.Verifier, p.UserID, p.CreatedAt.UnixMilli(), p.ExpiresAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("create pending authorization: %w", err)
	}
	return nil
}

// Consume deletes and returns the pending authorization for state.
func (s *PendingStore) Consume(ctx context.Context, state string, now time.Time) (*auth.PendingAuthorization, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin consume: %w", err)
	}
	defer tx.Rollback()

	p := auth.PendingAuthorization{State: state}
	var createdAt, expiresAt int64
	err = tx.QueryRowContext(ctx, s.db.rebind(`
		DELETE FROM pending_authorizations WHERE state = ?
		RETURNING verifier, user_id, created_at, expires_at`),
		state,
	).Scan(&p.Verifier, &p.UserID, &createdAt, &expiresAt)

	if errors.Is(err, sql.ErrNoRows) {
		var one int
		lookup := tx.QueryRowContext(ctx, s.db.rebind(`SELECT 1 FROM consumed_states WHERE state = ?`), state).Scan(&one)
		if lookup == nil {
			return nil, auth.ErrStateReused
		}
		if !errors.Is(lookup, sql.ErrNoRows) {
			return nil, fmt.Errorf("lookup consumed state: %w", lookup)
		}
		return nil, auth.ErrUnknownState
	}
	if err != nil {
		return nil, fmt.Errorf("consume pending authorization: %w", err)
	}

	if _, err := tx.ExecContext(ctx, s.db.rebind(`INSERT INTO consumed_states (state, expires_at) VALUES (?, ?)`),
		state, expiresAt+auth.ReuseMarkerRetention.Milliseconds()); err != nil {
		return nil, fmt.Errorf("record consumed state: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit consume: %w", err)
	}

	p.CreatedAt = time.UnixMilli(createdAt)
	p.ExpiresAt = time.UnixMilli(expiresAt)
	if !now.Before(p.ExpiresAt) {
		return nil, auth.ErrStateExpired
	}
	return &p, nil
}

// Sweep removes expired pending rows and tombstones.
func (s *PendingStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.UnixMilli()
	total := 0
	for _, q := range []string{
		`DELETE FROM pending_authorizations WHERE expires_at <= ?`,
		`DELETE FROM consumed_states WHERE expires_at <= ?`,
	} {
		res, err := s.db.ExecContext(ctx, s.db.rebind(q), cutoff)
		if err != nil {
			return total, fmt.Errorf("sweep: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("sweep rows affected: %w", err)
		}
		total += int(n)
	}
	return total, nil
}
