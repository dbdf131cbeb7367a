// Package local implements llm.Backend using self-hosted models.
//
// Transcription goes to any Whisper-compatible endpoint (whisper.cpp server,
// faster-whisper). Generation goes to Ollama's /api/generate or to any
// OpenAI-compatible /v1/chat/completions endpoint (vLLM, llama.cpp server).
package local

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

// Backend uses self-hosted models.
type Backend struct {
	whisperEndpoint string
	llmEndpoint     string
	llmModel        string
	defaultLanguage string
	client          *http.Client
}

// New creates a local backend from config.
func New(cfg config.LocalConfig) *Backend {
	model := cfg.LLMModel
	if model == "" {
		model = "llama3"
	}
	return &Backend{
		whisperEndpoint: cfg.WhisperEndpoint,
		llmEndpoint:     cfg.LLMEndpoint,
		llmModel:        model,
		defaultLanguage: cfg.Language,
		client:          &http.Client{},
	}
}

// Name returns the backend identifier.
func (b *Backend) Name() string { return "local" }

// Transcribe sends audio to the Whisper-compatible endpoint.
func (b *Backend) Transcribe(ctx context.Context, audio []byte, contentType string, opts llm.TranscribeOpts) (*llm.TranscribeResult, error) {
	if b.whisperEndpoint == "" {
		return nil, fmt.Errorf("no whisper endpoint configured")
	}
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "audio"+llm.ExtFromContentType(contentType))
	if err != nil {
		return nil, fmt.Errorf("creating form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, fmt.Errorf("writing audio: %w", err)
	}
	lang := opts.Language
	if lang == "" {
		lang = b.defaultLanguage
	}
	if lang != "" {
		_ = writer.WriteField("language", lang)
	}
	if opts.Prompt != "" {
		_ = writer.WriteField("prompt", opts.Prompt)
	}
	_ = writer.WriteField("response_format", "verbose_json")
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.whisperEndpoint, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	data, err := b.do(req, "local transcription")
	if err != nil {
		return nil, err
	}
	var result struct {
		Text     string `json:"text"`
		Language string `json:"language"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decoding transcription: %w", err)
	}
	detected := llm.NormalizeLanguage(result.Language)
	if detected == "" {
		detected = lang
	}
	slog.Debug("local transcription complete", "text_length", len(result.Text), "language", detected)
	return &llm.TranscribeResult{Text: strings.TrimSpace(result.Text), Language: detected}, nil
}

// Generate sends prompt to the local LLM endpoint. An endpoint ending in
// /api/generate gets Ollama's native body; anything else gets a chat
// completions body.
func (b *Backend) Generate(ctx context.Context, prompt string, opts llm.GenerateOpts) (string, error) {
	if b.llmEndpoint == "" {
		return "", fmt.Errorf("no llm endpoint configured")
	}

	var reqBody map[string]any
	if strings.HasSuffix(b.llmEndpoint, "/api/generate") {
		reqBody = map[string]any{
			"model":  b.llmModel,
			"prompt": llm.Transcript(opts.History, prompt),
			"stream": false,
		}
		if opts.SystemPersona != "" {
			reqBody["system"] = opts.SystemPersona
		}
		ollamaOpts := map[string]any{}
		if opts.Temperature > 0 {
			ollamaOpts["temperature"] = opts.Temperature
		}
		if opts.MaxTokens > 0 {
			ollamaOpts["num_predict"] = opts.MaxTokens
		}
		if len(ollamaOpts) > 0 {
			reqBody["options"] = ollamaOpts
		}
	} else {
		msgs := []map[string]string{}
		if opts.SystemPersona != "" {
			msgs = append(msgs, map[string]string{"role": "system", "content": opts.SystemPersona})
		}
		for _, t := range opts.History {
			role := "user"
			if t.Role == llm.RoleAssistant {
				role = "assistant"
			}
			msgs = append(msgs, map[string]string{"role": role, "content": t.Text})
		}
		msgs = append(msgs, map[string]string{"role": "user", "content": prompt})
		reqBody = map[string]any{
			"model":    b.llmModel,
			"messages": msgs,
			"stream":   false,
		}
		if opts.Temperature > 0 {
			reqBody["temperature"] = opts.Temperature
		}
		if opts.MaxTokens > 0 {
			reqBody["max_tokens"] = opts.MaxTokens
		}
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshalling request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.llmEndpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	data, err := b.do(req, "local LLM")
	if err != nil {
		return "", err
	}
	content := strings.TrimSpace(extractContent(data))
	if content == "" {
		return "", fmt.Errorf("empty response from local LLM")
	}
	slog.Debug("local generate complete", "model", b.llmModel, "reply_length", len(content))
	return content, nil
}

func (b *Backend) do(req *http.Request, what string) ([]byte, error) {
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", what, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("%s failed (status %d): %s", what, resp.StatusCode, respBody)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", what, err)
	}
	return data, nil
}

// Close is a no-op for the local backend.
func (b *Backend) Close() error { return nil }

func extractContent(data []byte) string {
	var chatResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(data, &chatResp); err == nil && len(chatResp.Choices) > 0 {
		return chatResp.Choices[0].Message.Content
	}

	var ollamaResp struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(data, &ollamaResp); err == nil && ollamaResp.Response != "" {
		return ollamaResp.Response
	}

	return string(data)
}
