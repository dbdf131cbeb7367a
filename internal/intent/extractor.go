package intent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nadzzz/companion/internal/llm"
)

// Options controls a single extraction.
type Options struct {
	// AllowModel permits escalation to the model when no matcher binds.
	AllowModel bool
}

// Extractor runs matchers in order and optionally falls back to a model.
type Extractor struct {
	matchers []Matcher
	model    llm.Generator
}

// NewExtractor creates an Extractor. A nil matchers slice uses
// DefaultMatchers; a nil model disables the fallback.
func NewExtractor(matchers []Matcher, model llm.Generator) *Extractor {
	if matchers == nil {
		matchers = DefaultMatchers()
	}
	return &Extractor{matchers: matchers, model: model}
}

// Matchers returns the matchers in priority order.
func (e *Extractor) Matchers() []Matcher {
	return e.matchers
}

// Extract classifies text. It never fails: model errors yield None.
func (e *Extractor) Extract(ctx context.Context, text string, opts Options) Intent {
	text = strings.TrimSpace(text)
	if text == "" {
		return Intent{Kind: None}
	}

	for _, m := range e.matchers {
		if in, ok := m.TryMatch(text); ok {
			slog.Debug("intent matched", "matcher", m.Name(), "kind", in.Kind)
			return in
		}
	}

	if !opts.AllowModel || e.model == nil {
		return Intent{Kind: None}
	}
	return e.extractWithModel(ctx, text)
}

func (e *Extractor) extractWithModel(ctx context.Context, text string) Intent {
	out, err := e.model.Generate(ctx, buildExtractionPrompt(text), llm.GenerateOpts{Temperature: 0.2, MaxTokens: 256})
	if err != nil {
		slog.Warn("model extraction failed", "backend", e.model.Name(), "error", err)
		return Intent{Kind: None}
	}

	switch r := ParseModelOutput(out).(type) {
	case Parsed:
		slog.Debug("model extraction parsed", "kind", r.Intent.Kind)
		return r.Intent
	case Unparsed:
		return Intent{Kind: None, Explanation: r.Raw, Source: "model"}
	default:
		return Intent{Kind: None}
	}
}

func buildExtractionPrompt(text string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "The user said: %q\n\n", text)
	sb.WriteString("Decide whether they want to change their anime list.\n\n")
	sb.WriteString("If they want to add an anime and you can identify the title, reply with exactly:\n")
	sb.WriteString("ANIME_FOUND: <anime title>\n\n")
	sb.WriteString("If they want to change an anime's status and you can identify both title and status, reply with exactly:\n")
	sb.WriteString("UPDATE_FOUND: <anime title> | <status>\n")
	sb.WriteString("where <status> is one of: watching, completed, on_hold, dropped, plan_to_watch.\n\n")
	sb.WriteString("Otherwise reply with one short, friendly sentence asking which anime they mean.\n\n")
	sb.WriteString("Examples:\n")
	sb.WriteString("\"I wanna watch that attack on titan thing\" -> ANIME_FOUND: Attack on Titan\n")
	sb.WriteString("\"I finished watching naruto\" -> UPDATE_FOUND: Naruto | completed\n")
	sb.WriteString("\"add something good\" -> ask for clarification\n")
	return sb.String()
}
