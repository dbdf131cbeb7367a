package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/companion/internal/auth"
	"github.com/nadzzz/companion/internal/config"
	"github.com/nadzzz/companion/internal/dispatch"
	"github.com/nadzzz/companion/internal/intent"
	"github.com/nadzzz/companion/internal/message"
)

func testConfig(driver, dsn string) *config.Config {
	return &config.Config{
		LLM: config.LLMConfig{Backend: "local", Local: config.LocalConfig{
			WhisperEndpoint: "http://127.0.0.1:1/v1/audio/transcriptions",
			LLMEndpoint:     "http://127.0.0.1:1/api/generate",
		}},
		Catalog: config.CatalogConfig{
			BaseURL:         "http://127.0.0.1:1",
			AuthURL:         "https://catalog.example/authorize",
			TokenURL:        "http://127.0.0.1:1/token",
			ChallengeMethod: "plain",
		},
		Auth:    config.AuthConfig{UserID: auth.DefaultUserID, PendingTTL: 10 * time.Minute},
		Storage: config.StorageConfig{Driver: driver, DSN: dsn, Secret: "s3cret"},
		Router:  config.RouterConfig{Disambiguation: "first", CallTimeout: time.Second},
	}
}

func TestVersion(t *testing.T) {
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Equal(t, "companion dev\n", out.String())
}

func TestNewApp_Memory(t *testing.T) {
	a, err := newApp(context.Background(), testConfig("memory", ""))
	require.NoError(t, err)
	t.Cleanup(a.Close)

	assert.Nil(t, a.db)
	assert.Nil(t, a.synth)
	assert.Equal(t, "local", a.backend.Name())

	reply, err := a.router.Handle(context.Background(), &message.Message{Text: "add Frieren to my list"})
	require.NoError(t, err)
	assert.Equal(t, dispatch.ReplyNotAuthorized, reply.Response)
	assert.Equal(t, string(intent.AddToList), reply.Metadata.Intent)
}

func TestNewApp_SQLitePersistsPending(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "companion.db")
	ctx := context.Background()

	a, err := newApp(ctx, testConfig("sqlite", dsn))
	require.NoError(t, err)
	req, err := a.flow.AuthorizationRequest(ctx, auth.DefaultUserID)
	require.NoError(t, err)
	a.Close()

	b, err := newApp(ctx, testConfig("sqlite", dsn))
	require.NoError(t, err)
	t.Cleanup(b.Close)

	p, err := b.pending.Consume(ctx, req.State, time.Now())
	require.NoError(t, err)
	assert.Equal(t, auth.DefaultUserID, p.UserID)
}

func TestNewApp_UnknownTTSBackend(t *testing.T) {
	cfg := testConfig("memory", "")
	cfg.TTS = config.TTSConfig{Enabled: true, Backend: "espeak"}
	_, err := newApp(context.Background(), cfg)
	assert.ErrorContains(t, err, "unknown tts backend")
}
