// Package api serves the authorization flow and direct catalog operations
// over HTTP. Routes are mounted on the HTTP transport's chi router.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nadzzz/companion/internal/auth"
	"github.com/nadzzz/companion/internal/catalog"
	"github.com/nadzzz/companion/internal/config"
	"github.com/nadzzz/companion/internal/llm"
)

// HeaderUser selects the user whose session a request acts for.
const HeaderUser = "X-Companion-User"

// Catalog is the subset of the catalog client the API exposes.
type Catalog interface {
	Search(ctx context.Context, token, query string, limit int) ([]catalog.Entry, error)
	FetchList(ctx context.Context, token string, status catalog.Status, limit int) ([]catalog.ListItem, error)
	UpdateStatus(ctx context.Context, token string, id int, u catalog.Update) (*catalog.ListStatus, error)
	Remove(ctx context.Context, token string, id int) error
	Details(ctx context.Context, token string, id int) (*catalog.Details, error)
	Seasonal(ctx context.Context, token string, year int, season string, limit int) ([]catalog.Entry, error)
}

// Handler serves the API routes.
type Handler struct {
	flow    *auth.Flow
	tokens  auth.TokenStore
	catalog Catalog
	userID  string
	model   llm.Generator
	persona config.PersonaConfig

	// Now is the clock used for session validity.
	Now func() time.Time
}

// New creates a Handler. userID is used when a request names no user.
func New(flow *auth.Flow, tokens auth.TokenStore, cat Catalog, userID string, opts ...Option) *Handler {
	if userID == "" {
		userID = auth.DefaultUserID
	}
	h := &Handler{flow: flow, tokens: tokens, catalog: cat, userID: userID, Now: time.Now}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Mount registers the routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Get("/authorize", h.Authorize)
			r.Get("/callback", h.Callback)
			r.Get("/status", h.Status)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.requireSession)

			r.Get("/catalog/search", h.Search)
			r.Get("/catalog/seasonal", h.Seasonal)
			r.Get("/list", h.List)
			r.Get("/list/summary", h.Summary)
			r.Post("/recommend", h.Recommend)
			r.Route("/anime/{id}", func(r chi.Router) {
				r.Get("/", h.Details)
				r.Put("/status", h.UpdateStatus)
				r.Delete("/", h.Remove)
			})
		})
	})
}

// errorResponse is the uniform error body.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

func (h *Handler) requestUser(r *http.Request) string {
	if u := r.Header.Get(HeaderUser); u != "" {
		return u
	}
	return h.userID
}

type sessionKey struct{}

// requireSession refuses the request with 401 unless the user holds a
// valid session, and stores the session in the request context.
func (h *Handler) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := h.tokens.Get(r.Context(), h.requestUser(r))
		if err != nil && !errors.Is(err, auth.ErrNoSession) {
			slog.Error("session lookup failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal", "session lookup failed")
			return
		}
		if !auth.IsValid(sess, h.Now()) {
			writeError(w, http.StatusUnauthorized, "not_authorized", "connect your account first")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, sess)))
	})
}

func sessionFrom(ctx context.Context) *auth.Session {
	s, _ := ctx.Value(sessionKey{}).(*auth.Session)
	return s
}

// writeCatalogError maps the catalog error taxonomy to HTTP statuses.
func writeCatalogError(w http.ResponseWriter, err error) {
	var (
		ae *catalog.AuthError
		ne *catalog.NotFoundError
	)
	switch {
	case errors.As(err, &ae):
		writeError(w, http.StatusUnauthorized, "not_authorized", "the anime service rejected the session")
	case errors.As(err, &ne):
		writeError(w, http.StatusNotFound, "not_found", "no such anime")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "timeout", "the anime service took too long to respond")
	default:
		slog.Error("catalog request failed", "error", err)
		writeError(w, http.StatusBadGateway, "remote_error", "the anime service request failed")
	}
}
