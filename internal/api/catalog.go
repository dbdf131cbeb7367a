package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nadzzz/companion/internal/catalog"
	"github.com/nadzzz/companion/internal/intent"
)

const (
	defaultLimit = 10
	maxLimit     = 100
)

func limitParam(r *http.Request, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return def
	}
	return min(n, maxLimit)
}

func idParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_id", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

// Search looks titles up in the catalog.
//
// @Summary     Search the catalog
// @Tags        catalog
// @Produce     json
// @Param       q      query  string  true   "Search text"
// @Param       limit  query  int     false  "Result cap (default 10)"
// @Success     200  {array}   catalog.Entry
// @Failure     401  {object}  errorResponse
// @Router      /api/catalog/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "missing_query", "q is required")
		return
	}
	entries, err := h.catalog.Search(r.Context(), sessionFrom(r.Context()).AccessToken, q, limitParam(r, defaultLimit))
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// Seasonal lists a season's anime.
//
// @Summary     Seasonal anime
// @Tags        catalog
// @Produce     json
// @Param       year    query  int     true   "Year"
// @Param       season  query  string  true   "winter, spring, summer or fall"
// @Param       limit   query  int     false  "Result cap (default 10)"
// @Success     200  {array}   catalog.Entry
// @Router      /api/catalog/seasonal [get]
func (h *Handler) Seasonal(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil || year <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_year", "year must be a positive integer")
		return
	}
	season := strings.ToLower(r.URL.Query().Get("season"))
	switch season {
	case "winter", "spring", "summer", "fall":
	default:
		writeError(w, http.StatusBadRequest, "invalid_season", "season must be winter, spring, summer or fall")
		return
	}
	entries, err := h.catalog.Seasonal(r.Context(), sessionFrom(r.Context()).AccessToken, year, season, limitParam(r, defaultLimit))
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// List returns the user's list, optionally filtered by status.
//
// @Summary     The user's list
// @Tags        list
// @Produce     json
// @Param       status  query  string  false  "watching, completed, on_hold, dropped or plan_to_watch"
// @Param       limit   query  int     false  "Result cap (default 100)"
// @Success     200  {array}   catalog.ListItem
// @Router      /api/list [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	var status catalog.Status
	if s := r.URL.Query().Get("status"); s != "" {
		st, ok := catalog.ParseStatus(s)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown_status", "unknown list status")
			return
		}
		status = st
	}
	items, err := h.catalog.FetchList(r.Context(), sessionFrom(r.Context()).AccessToken, status, limitParam(r, maxLimit))
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

type summaryResponse struct {
	Summary string `json:"summary"`
	Entries int    `json:"entries"`
}

// Summary returns the grouped list summary.
//
// @Summary     List summary
// @Tags        list
// @Produce     json
// @Success     200  {object}  summaryResponse
// @Router      /api/list/summary [get]
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	items, err := h.catalog.FetchList(r.Context(), sessionFrom(r.Context()).AccessToken, "", limitParam(r, maxLimit))
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaryResponse{Summary: catalog.Summarize(items, catalog.DefaultSummaryLimits), Entries: len(items)})
}

// Details returns the extended record for one anime.
//
// @Summary     Anime details
// @Tags        catalog
// @Produce     json
// @Param       id  path  int  true  "Anime id"
// @Success     200  {object}  catalog.Details
// @Failure     404  {object}  errorResponse
// @Router      /api/anime/{id} [get]
func (h *Handler) Details(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	d, err := h.catalog.Details(r.Context(), sessionFrom(r.Context()).AccessToken, id)
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type updateRequest struct {
	Status          *string `json:"status,omitempty"`
	Score           *int    `json:"score,omitempty"`
	WatchedEpisodes *int    `json:"watched_episodes,omitempty"`
	IsRewatching    *bool   `json:"is_rewatching,omitempty"`
}

// UpdateStatus applies a partial list update.
//
// @Summary     Update list status
// @Description Only the fields present in the body are changed.
// @Tags        list
// @Accept      json
// @Produce     json
// @Param       id    path  int            true  "Anime id"
// @Param       body  body  updateRequest  true  "Fields to change"
// @Success     200  {object}  catalog.ListStatus
// @Failure     400  {object}  errorResponse
// @Router      /api/anime/{id}/status [put]
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be JSON")
		return
	}

	u := catalog.Update{Score: req.Score, WatchedEpisodes: req.WatchedEpisodes, IsRewatching: req.IsRewatching}
	if req.Status != nil {
		st, ok := catalog.ParseStatus(*req.Status)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown_status", "unknown list status")
			return
		}
		u.Status = &st
	}
	if u.Score != nil && (*u.Score < intent.MinScore || *u.Score > intent.MaxScore) {
		writeError(w, http.StatusBadRequest, "score_out_of_range", "score must be between 1 and 10")
		return
	}
	if u.WatchedEpisodes != nil && *u.WatchedEpisodes < 0 {
		writeError(w, http.StatusBadRequest, "invalid_episodes", "watched_episodes must not be negative")
		return
	}
	if u.Empty() {
		writeError(w, http.StatusBadRequest, "empty_update", "nothing to update")
		return
	}

	ls, err := h.catalog.UpdateStatus(r.Context(), sessionFrom(r.Context()).AccessToken, id, u)
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ls)
}

// Remove deletes an anime from the list. Removing an absent entry succeeds.
//
// @Summary     Remove from list
// @Tags        list
// @Param       id  path  int  true  "Anime id"
// @Success     204
// @Router      /api/anime/{id} [delete]
func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := h.catalog.Remove(r.Context(), sessionFrom(r.Context()).AccessToken, id); err != nil {
		writeCatalogError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
