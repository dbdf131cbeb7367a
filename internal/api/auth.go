package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/nadzzz/companion/internal/auth"
)

// Authorize issues an authorization URL.
//
// @Summary     Start catalog authorization
// @Description Issues a PKCE authorization URL. With redirect=true the response is a 302 to that URL.
// @Tags        auth
// @Produce     json
// @Param       redirect  query  bool  false  "Redirect to the authorization URL"
// @Success     200  {object}  auth.Request
// @Success     302
// @Router      /api/auth/authorize [get]
func (h *Handler) Authorize(w http.ResponseWriter, r *http.Request) {
	req, err := h.flow.AuthorizationRequest(r.Context(), h.requestUser(r))
	if err != nil {
		slog.Error("authorization request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not start authorization")
		return
	}
	if r.URL.Query().Get("redirect") == "true" {
		http.Redirect(w, r, req.URL, http.StatusFound)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

type callbackResponse struct {
	Success   bool      `json:"success"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Callback completes the authorization.
//
// @Summary     Complete catalog authorization
// @Tags        auth
// @Produce     json
// @Param       code   query  string  true  "Authorization code"
// @Param       state  query  string  true  "State issued by /api/auth/authorize"
// @Success     200  {object}  callbackResponse
// @Failure     400  {object}  errorResponse
// @Router      /api/auth/callback [get]
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		if state := q.Get("state"); state != "" {
			if err := h.flow.Abort(r.Context(), state); err != nil {
				slog.Debug("aborting authorization", "error", err)
			}
		}
		writeError(w, http.StatusBadRequest, e, "authorization was not granted")
		return
	}

	sess, err := h.flow.CompleteAuthorization(r.Context(), q.Get("code"), q.Get("state"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, callbackResponse{Success: true, UserID: sess.UserID, ExpiresAt: sess.ExpiresAt})
	case errors.Is(err, auth.ErrUnknownState):
		writeError(w, http.StatusBadRequest, "unknown_state", "unknown authorization state")
	case errors.Is(err, auth.ErrStateReused):
		writeError(w, http.StatusBadRequest, "state_reused", "authorization state already used")
	case errors.Is(err, auth.ErrStateExpired):
		writeError(w, http.StatusBadRequest, "state_expired", "authorization request expired, start again")
	default:
		slog.Warn("authorization exchange failed", "error", err)
		writeError(w, http.StatusBadRequest, "exchange_failed", "could not complete authorization")
	}
}

// Status reports the authorization state.
//
// @Summary     Authorization status
// @Tags        auth
// @Produce     json
// @Success     200  {object}  auth.Status
// @Router      /api/auth/status [get]
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.flow.Status(r.Context(), h.requestUser(r))
	if err != nil {
		slog.Error("status lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "status lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, st)
}
