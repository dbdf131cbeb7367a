package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/companion/internal/config"
	"github.com/nadzzz/companion/internal/llm"
)

func TestGenerate(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" || r.Header.Get("Authorization") != "Bearer sk-test" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  ANIME_FOUND: Frieren \n"}}]}`))
	}))
	defer srv.Close()

	b := New(config.OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1/", CompletionModel: "gpt-test"})
	out, err := b.Generate(context.Background(), "add frieren", llm.GenerateOpts{Temperature: 0.2, MaxTokens: 64, SystemPersona: "be brief"})
	require.NoError(t, err)

	assert.Equal(t, "ANIME_FOUND: Frieren", out)
	assert.Equal(t, "gpt-test", got.Model)
	assert.Equal(t, 64, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, chatMessage{Role: "system", Content: "be brief"}, got.Messages[0])
	assert.Equal(t, chatMessage{Role: "user", Content: "add frieren"}, got.Messages[1])
}

func TestGenerateWithHistory(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"Season 2 is out."}}]}`))
	}))
	defer srv.Close()

	b := New(config.OpenAIConfig{BaseURL: srv.URL})
	_, err := b.Generate(context.Background(), "is there more?", llm.GenerateOpts{History: []llm.Turn{
		{Role: llm.RoleUser, Text: "I loved Frieren"},
		{Role: llm.RoleAssistant, Text: "It is a great show."},
	}})
	require.NoError(t, err)

	assert.Equal(t, []chatMessage{
		{Role: "user", Content: "I loved Frieren"},
		{Role: "assistant", Content: "It is a great show."},
		{Role: "user", Content: "is there more?"},
	}, got.Messages)
}

func TestGenerateErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	b := New(config.OpenAIConfig{BaseURL: srv.URL})
	_, err := b.Generate(context.Background(), "hi", llm.GenerateOpts{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.Close()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"text":     "add " + hdr.Filename + " " + r.FormValue("model") + " " + r.FormValue("language"),
			"language": "english",
		})
	}))
	defer srv.Close()

	b := New(config.OpenAIConfig{BaseURL: srv.URL + "/v1", TranscriptionModel: "whisper-test"})
	res, err := b.Transcribe(context.Background(), []byte("RIFF"), "audio/ogg", llm.TranscribeOpts{Language: "en"})
	require.NoError(t, err)
	assert.Equal(t, "add audio.ogg whisper-test en", res.Text)
	assert.Equal(t, "en", res.Language)
}

func TestDefaults(t *testing.T) {
	b := New(config.OpenAIConfig{})
	assert.Equal(t, defaultBaseURL, b.baseURL)
	assert.Equal(t, "openai", b.Name())
	assert.NoError(t, b.Close())
}
