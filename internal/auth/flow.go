package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/nadzzz/companion/internal/config"
)

// fallbackLifetime applies when the token endpoint omits expires_in.
const fallbackLifetime = time.Hour

// Request is an issued authorization URL and the state that identifies it.
type Request struct {
	URL   string `json:"url"`
	State string `json:"state"`
}

// Flow runs the PKCE authorization-code exchange against the catalog's
// OAuth endpoints and records the resulting session.
type Flow struct {
	oauth      *oauth2.Config
	method     string
	ttl        time.Duration
	tokens     TokenStore
	pending    PendingStore
	HTTPClient *http.Client
	Now        func() time.Time
}

// NewFlow creates a Flow from the catalog and auth settings.
func NewFlow(cat config.CatalogConfig, ac config.AuthConfig, tokens TokenStore, pending PendingStore) *Flow {
	ttl := ac.PendingTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Flow{
		oauth: &oauth2.Config{
			ClientID:     cat.ClientID,
			ClientSecret: cat.ClientSecret,
			RedirectURL:  cat.RedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cat.AuthURL,
				TokenURL:  cat.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		method:  cat.ChallengeMethod,
		ttl:     ttl,
		tokens:  tokens,
		pending: pending,
		Now:     time.Now,
	}
}

// AuthorizationRequest issues a new authorization URL for userID and
// remembers its verifier until the callback arrives.
func (f *Flow) AuthorizationRequest(ctx context.Context, userID string) (*Request, error) {
	state, err := GenerateState()
	if err != nil {
		return nil, err
	}
	verifier := GenerateVerifier()
	now := f.Now()

	err = f.pending.Create(ctx, &PendingAuthorization{
		State:     state,
		Verifier:  verifier,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(f.ttl),
	})
	if err != nil {
		return nil, fmt.Errorf("recording pending authorization: %w", err)
	}

	url := f.oauth.AuthCodeURL(state, challengeOptions(f.method, verifier)...)
	slog.Debug("authorization request issued", "user_id", userID, "method", f.method, "verifier_length", len(verifier))
	return &Request{URL: url, State: state}, nil
}

// CompleteAuthorization exchanges code for a session. The pending entry for
// state is consumed before the exchange, so a state can be used at most once
// whether or not the exchange succeeds.
func (f *Flow) CompleteAuthorization(ctx context.Context, code, state string) (*Session, error) {
	if state == "" {
		return nil, ErrUnknownState
	}

	p, err := f.pending.Consume(ctx, state, f.Now())
	if err != nil {
		return nil, err
	}
	if code == "" {
		return nil, fmt.Errorf("authorization code not provided")
	}

	if f.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, f.HTTPClient)
	}
	tok, err := f.oauth.Exchange(ctx, code, oauth2.VerifierOption(p.Verifier))
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return nil, fmt.Errorf("token exchange failed: %s %s", re.ErrorCode, re.ErrorDescription)
		}
		return nil, fmt.Errorf("token exchange: %w", err)
	}

	expires := tok.Expiry
	if expires.IsZero() {
		expires = f.Now().Add(fallbackLifetime)
	}
	s := &Session{
		UserID:       p.UserID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    expires,
	}
	if err := f.tokens.Put(ctx, s); err != nil {
		return nil, fmt.Errorf("storing session: %w", err)
	}

	slog.Info("catalog authorization complete", "user_id", s.UserID, "expires_at", s.ExpiresAt)
	return s, nil
}

// Abort consumes the pending authorization for state without exchanging a
// code, as when the user denies access at the provider.
func (f *Flow) Abort(ctx context.Context, state string) error {
	if state == "" {
		return ErrUnknownState
	}
	_, err := f.pending.Consume(ctx, state, f.Now())
	return err
}

// Status describes the authorization state of a user.
type Status struct {
	Authenticated bool      `json:"authenticated"`
	Expired       bool      `json:"expired"`
	ExpiresAt     time.Time `json:"expires_at,omitzero"`
}

// Status reports whether userID currently holds a usable session.
func (f *Flow) Status(ctx context.Context, userID string) (Status, error) {
	s, err := f.tokens.Get(ctx, userID)
	if errors.Is(err, ErrNoSession) {
		return Status{}, nil
	}
	if err != nil {
		return Status{}, err
	}
	valid := s.Valid(f.Now())
	return Status{Authenticated: valid, Expired: !valid, ExpiresAt: s.ExpiresAt}, nil
}
