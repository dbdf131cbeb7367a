// Package gemini implements llm.Backend on Google's Gemini API.
package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/nadzzz/companion/internal/config"
	"github.com/nadzzz/companion/internal/llm"
)

const (
	defaultModel = "gemini-2.5-flash"

	transcribePrompt = "Transcribe this audio exactly. Reply with the transcript only."
)

// Option customizes the client.
type Option func(*genai.ClientConfig)

// WithBaseURL points the client at another API host.
func WithBaseURL(u string) Option {
	return func(c *genai.ClientConfig) { c.HTTPOptions.BaseURL = u }
}

// WithHTTPClient sets the transport used for API calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *genai.ClientConfig) { c.HTTPClient = hc }
}

// Backend talks to Gemini.
type Backend struct {
	client          *genai.Client
	model           string
	transcribeModel string
}

// New creates a Gemini backend. An API key is required.
func New(ctx context.Context, cfg config.GeminiConfig, opts ...Option) (*Backend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	cc := &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI}
	for _, o := range opts {
		o(cc)
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	tm := cfg.TranscriptionModel
	if tm == "" {
		tm = model
	}
	return &Backend{client: client, model: model, transcribeModel: tm}, nil
}

// Name returns the backend identifier.
func (b *Backend) Name() string { return "gemini" }

// Generate sends the history and then prompt as the final user turn.
func (b *Backend) Generate(ctx context.Context, prompt string, opts llm.GenerateOpts) (string, error) {
	gc := &genai.GenerateContentConfig{
		ThinkingConfig: &genai.ThinkingConfig{ThinkingBudget: genai.Ptr[int32](0)},
	}
	if opts.SystemPersona != "" {
		gc.SystemInstruction = genai.NewContentFromText(opts.SystemPersona, genai.RoleUser)
	}
	if opts.Temperature > 0 {
		gc.Temperature = genai.Ptr(float32(opts.Temperature))
	}
	if opts.MaxTokens > 0 {
		gc.MaxOutputTokens = int32(opts.MaxTokens)
	}

	contents := make([]*genai.Content, 0, len(opts.History)+1)
	for _, t := range opts.History {
		role := genai.Role(genai.RoleUser)
		if t.Role == llm.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Text, role))
	}
	contents = append(contents, genai.NewContentFromText(prompt, genai.RoleUser))

	resp, err := b.client.Models.GenerateContent(ctx, b.model, contents, gc)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("gemini returned no text")
	}
	slog.Debug("gemini generate complete", "model", b.model, "reply_length", len(text))
	return text, nil
}

// Transcribe sends the audio inline with a transcription instruction.
func (b *Backend) Transcribe(ctx context.Context, audio []byte, contentType string, opts llm.TranscribeOpts) (*llm.TranscribeResult, error) {
	if contentType == "" {
		contentType = "audio/wav"
	}
	instruction := transcribePrompt
	if opts.Prompt != "" {
		instruction += " Context: " + opts.Prompt
	}
	parts := []*genai.Part{
		genai.NewPartFromText(instruction),
		genai.NewPartFromBytes(audio, contentType),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := b.client.Models.GenerateContent(ctx, b.transcribeModel, contents, &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0),
	})
	if err != nil {
		return nil, fmt.Errorf("gemini transcribe: %w", err)
	}
	lang := opts.Language
	if lang == "" {
		lang = "en"
	}
	return &llm.TranscribeResult{Text: strings.TrimSpace(resp.Text()), Language: lang}, nil
}

// Close is a no-op; the client holds no connections of its own.
func (b *Backend) Close() error { return nil }
