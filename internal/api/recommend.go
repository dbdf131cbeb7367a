package api

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/nadzzz/companion/internal/catalog"
	"github.com/nadzzz/companion/internal/config"
	"github.com/nadzzz/companion/internal/llm"
)

const (
	maxRecommendBody = 64 << 10

	// recommendSample is how many completed titles go into the prompt.
	recommendSample = 25

	defaultRecommendCount = 5
	maxRecommendCount     = 10
)

// Option configures a Handler.
type Option func(*Handler)

// WithModel enables POST /api/recommend, answered by model in persona.
func WithModel(model llm.Generator, persona config.PersonaConfig) Option {
	return func(h *Handler) {
		h.model = model
		h.persona = persona
	}
}

type recommendRequest struct {
	// Preferences is free text such as "something short and calm".
	Preferences string   `json:"preferences,omitempty"`
	Genres      []string `json:"genres,omitempty"`
	Count       int      `json:"count,omitempty"`
}

type recommendResponse struct {
	Recommendations string   `json:"recommendations"`
	BasedOn         []string `json:"based_on"`
	Backend         string   `json:"backend"`
}

// Recommend suggests new anime from the user's completed list.
//
// @Summary     Recommend anime
// @Description Builds a prompt from the completed list (titles, genres and scores) plus the
// @Description caller's preferences and asks the conversation model for suggestions.
// @Tags        list
// @Accept      json
// @Produce     json
// @Param       body  body  recommendRequest  false  "Preferences"
// @Success     200  {object}  recommendResponse
// @Failure     400  {object}  errorResponse
// @Failure     503  {object}  errorResponse
// @Router      /api/recommend [post]
func (h *Handler) Recommend(w http.ResponseWriter, r *http.Request) {
	if h.model == nil {
		writeError(w, http.StatusServiceUnavailable, "model_unavailable", "no conversation model is configured")
		return
	}

	var req recommendRequest
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRecommendBody)).Decode(&req)
	var tooLarge *http.MaxBytesError
	switch {
	case err == nil, errors.Is(err, io.EOF):
	case errors.As(err, &tooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large")
		return
	default:
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be JSON")
		return
	}

	completed, err := h.catalog.FetchList(r.Context(), sessionFrom(r.Context()).AccessToken, catalog.StatusCompleted, maxLimit)
	if err != nil {
		writeCatalogError(w, err)
		return
	}

	prompt, basedOn := recommendPrompt(completed, req)
	out, err := h.model.Generate(r.Context(), prompt, llm.GenerateOpts{
		Temperature:   h.persona.Temperature,
		MaxTokens:     h.persona.MaxTokens,
		SystemPersona: h.persona.SystemPrompt,
	})
	if err == nil && strings.TrimSpace(out) == "" {
		err = errors.New("empty reply")
	}
	if err != nil {
		slog.Error("recommendation failed", "backend", h.model.Name(), "error", err)
		writeError(w, http.StatusBadGateway, "model_error", "could not produce recommendations")
		return
	}
	writeJSON(w, http.StatusOK, recommendResponse{
		Recommendations: strings.TrimSpace(out),
		BasedOn:         basedOn,
		Backend:         h.model.Name(),
	})
}

// recommendPrompt lists the best-scored completed titles with their genres
// and appends the caller's preferences. It returns the titles it used.
func recommendPrompt(completed []catalog.ListItem, req recommendRequest) (string, []string) {
	items := slices.Clone(completed)
	slices.SortStableFunc(items, func(a, b catalog.ListItem) int {
		return cmp.Compare(b.Membership.Score, a.Membership.Score)
	})
	if len(items) > recommendSample {
		items = items[:recommendSample]
	}

	count := req.Count
	if count <= 0 {
		count = defaultRecommendCount
	}
	count = min(count, maxRecommendCount)

	var b strings.Builder
	basedOn := make([]string, 0, len(items))
	if len(items) == 0 {
		b.WriteString("The user has not completed any anime yet.\n")
	} else {
		b.WriteString("Anime the user has completed:\n")
		for _, it := range items {
			basedOn = append(basedOn, it.Title)
			b.WriteString("- " + it.Title)
			var notes []string
			if len(it.Genres) > 0 {
				notes = append(notes, "genres: "+strings.Join(it.Genres, ", "))
			}
			if it.Membership.Score > 0 {
				notes = append(notes, fmt.Sprintf("scored %d/10", it.Membership.Score))
			}
			if len(notes) > 0 {
				b.WriteString(" (" + strings.Join(notes, "; ") + ")")
			}
			b.WriteString("\n")
		}
	}
	if len(req.Genres) > 0 {
		b.WriteString("Preferred genres: " + strings.Join(req.Genres, ", ") + "\n")
	}
	if p := strings.TrimSpace(req.Preferences); p != "" {
		b.WriteString("What they are in the mood for: " + p + "\n")
	}
	fmt.Fprintf(&b, "Recommend %d anime they have not completed, one per line with a short reason.", count)
	return b.String(), basedOn
}
