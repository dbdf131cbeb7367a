// Package llm defines the language-model capabilities the companion consumes.
//
// A Generator turns a prompt into text; a Transcriber turns audio into text.
// The companion ships with three backends: Gemini (default), OpenAI, and
// Local (self-hosted via Ollama/whisper.cpp). Each implements both.
package llm

import (
	"context"
	"strings"
)

// Conversation roles used in Turn.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one earlier message in a conversation.
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Transcript renders history followed by prompt as plain text, for backends
// that accept a single prompt string only.
func Transcript(history []Turn, prompt string) string {
	if len(history) == 0 {
		return prompt
	}
	var b strings.Builder
	for _, t := range history {
		who := "User"
		if t.Role == RoleAssistant {
			who = "Assistant"
		}
		b.WriteString(who + ": " + t.Text + "\n")
	}
	b.WriteString("User: " + prompt)
	return b.String()
}

// GenerateOpts controls a single generation.
type GenerateOpts struct {
	// Temperature is passed through to the backend; zero means backend default.
	Temperature float64

	// MaxTokens caps the reply length; zero means backend default.
	MaxTokens int

	// SystemPersona, when set, is sent as the system instruction.
	SystemPersona string

	// History holds the earlier turns of the conversation, oldest first.
	// The prompt is sent as the turn that follows them.
	History []Turn
}

// TranscribeOpts controls transcription behavior.
type TranscribeOpts struct {
	// Language is the ISO-639-1 code (e.g., "en", "ja") to guide transcription.
	Language string

	// Prompt provides context to improve recognition of titles and names.
	Prompt string
}

// TranscribeResult holds the output of a transcription call.
type TranscribeResult struct {
	Text     string
	Language string // ISO-639-1 code detected or used
}

// Generator produces text from a prompt.
type Generator interface {
	// Name returns the backend identifier (e.g., "gemini", "openai", "local").
	Name() string

	// Generate returns the model's reply to prompt.
	Generate(ctx context.Context, prompt string, opts GenerateOpts) (string, error)
}

// Transcriber converts speech to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, contentType string, opts TranscribeOpts) (*TranscribeResult, error)
}

// Backend is a full language-model backend.
type Backend interface {
	Generator
	Transcriber

	// Close releases any resources held by the backend.
	Close() error
}
