// Package openai implements llm.Backend using OpenAI's APIs.
//
// It uses the Audio Transcription API for speech-to-text and the Chat
// Completions API for generation. BaseURL may point at any compatible host.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/nadzzz/companion/internal/config"
	"github.com/nadzzz/companion/internal/llm"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Backend uses OpenAI APIs for transcription and generation.
type Backend struct {
	apiKey             string
	baseURL            string
	transcriptionModel string
	completionModel    string
	client             *http.Client
}

// New creates an OpenAI backend from config.
func New(cfg config.OpenAIConfig) *Backend {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	cm := cfg.CompletionModel
	if cm == "" {
		cm = "gpt-4o-mini"
	}
	tm := cfg.TranscriptionModel
	if tm == "" {
		tm = "whisper-1"
	}
	return &Backend{
		apiKey:             cfg.APIKey,
		baseURL:            base,
		transcriptionModel: tm,
		completionModel:    cm,
		client:             &http.Client{},
	}
}

// Name returns the backend identifier.
func (b *Backend) Name() string { return "openai" }

// Transcribe sends audio to the transcription endpoint.
func (b *Backend) Transcribe(ctx context.Context, audio []byte, contentType string, opts llm.TranscribeOpts) (*llm.TranscribeResult, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "audio"+llm.ExtFromContentType(contentType))
	if err != nil {
		return nil, fmt.Errorf("creating form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, fmt.Errorf("writing audio: %w", err)
	}
	_ = writer.WriteField("model", b.transcriptionModel)
	if opts.Language != "" {
		_ = writer.WriteField("language", opts.Language)
	}
	if opts.Prompt != "" {
		_ = writer.WriteField("prompt", opts.Prompt)
	}
	_ = writer.WriteField("response_format", "verbose_json")
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/audio/transcriptions", body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+b.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var result struct {
		Text     string `json:"text"`
		Language string `json:"language"`
	}
	if err := b.do(req, "transcription", &result); err != nil {
		return nil, err
	}

	lang := llm.NormalizeLanguage(result.Language)
	slog.Debug("transcription complete", "text_length", len(result.Text), "language", lang)
	return &llm.TranscribeResult{Text: result.Text, Language: lang}, nil
}

// Generate sends prompt to the Chat Completions API.
func (b *Backend) Generate(ctx context.Context, prompt string, opts llm.GenerateOpts) (string, error) {
	reqBody := chatRequest{Model: b.completionModel, Temperature: opts.Temperature, MaxTokens: opts.MaxTokens}
	if opts.SystemPersona != "" {
		reqBody.Messages = append(reqBody.Messages, chatMessage{Role: "system", Content: opts.SystemPersona})
	}
	for _, t := range opts.History {
		reqBody.Messages = append(reqBody.Messages, chatMessage{Role: chatRole(t.Role), Content: t.Text})
	}
	reqBody.Messages = append(reqBody.Messages, chatMessage{Role: "user", Content: prompt})

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshalling chat request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating chat request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+b.apiKey)
	req.Header.Set("Content-Type", "application/json")

	var chatResp chatResponse
	if err := b.do(req, "chat", &chatResp); err != nil {
		return "", err
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned from chat API")
	}
	text := strings.TrimSpace(chatResp.Choices[0].Message.Content)
	slog.Debug("chat complete", "model", b.completionModel, "reply_length", len(text))
	return text, nil
}

func chatRole(role string) string {
	if role == llm.RoleAssistant {
		return "assistant"
	}
	return "user"
}

func (b *Backend) do(req *http.Request, what string, out any) error {
	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", what, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("%s failed (status %d): %s", what, resp.StatusCode, respBody)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", what, err)
	}
	return nil
}

// Close is a no-op for the OpenAI backend.
func (b *Backend) Close() error { return nil }

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}
