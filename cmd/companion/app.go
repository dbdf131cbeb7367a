package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nadzzz/companion/internal/action"
	"github.com/nadzzz/companion/internal/auth"
	"github.com/nadzzz/companion/internal/catalog"
	"github.com/nadzzz/companion/internal/config"
	"github.com/nadzzz/companion/internal/dispatch"
	"github.com/nadzzz/companion/internal/intent"
	"github.com/nadzzz/companion/internal/llm"
	"github.com/nadzzz/companion/internal/llm/gemini"
	"github.com/nadzzz/companion/internal/llm/local"
	"github.com/nadzzz/companion/internal/llm/openai"
	"github.com/nadzzz/companion/internal/metrics"
	"github.com/nadzzz/companion/internal/storage"
	"github.com/nadzzz/companion/internal/tts"
	"github.com/nadzzz/companion/internal/tts/piper"
)

// app holds the wired components shared by every command.
type app struct {
	cfg *config.Config

	db      *storage.DB
	tokens  auth.TokenStore
	pending auth.PendingStore
	flow    *auth.Flow

	catalog  *catalog.Client
	backend  llm.Backend
	synth    tts.Synthesizer
	registry *prometheus.Registry
	router   *dispatch.Router
}

func loadApp(ctx context.Context, configFile string) (*app, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	config.SetupLogging(cfg.Logging)
	return newApp(ctx, cfg)
}

func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{cfg: cfg, registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(a.registry)

	if err := a.openStorage(); err != nil {
		return nil, err
	}
	a.flow = auth.NewFlow(cfg.Catalog, cfg.Auth, a.tokens, a.pending)
	a.catalog = catalog.New(cfg.Catalog, catalog.WithObserver(collector))

	if a.backend, err = newBackend(ctx, cfg.LLM); err != nil {
		return nil, err
	}

	if cfg.TTS.Enabled {
		switch cfg.TTS.Backend {
		case "piper":
			a.synth = piper.New(cfg.TTS.Piper)
			slog.Info("using Piper TTS", "endpoint", cfg.TTS.Piper.Endpoint, "language_endpoints", len(cfg.TTS.Piper.Endpoints))
		default:
			return nil, fmt.Errorf("unknown tts backend %q", cfg.TTS.Backend)
		}
	}

	executor := action.NewExecutor(a.catalog, action.Options{
		Policy:  cfg.Router.Disambiguation,
		Timeout: cfg.Router.CallTimeout,
	})
	a.router = dispatch.New(dispatch.Deps{
		Extractor:   intent.NewExtractor(intent.DefaultMatchers(), a.backend),
		Executor:    executor,
		Tokens:      a.tokens,
		Lists:       a.catalog,
		Model:       a.backend,
		Transcriber: a.backend,
		Synthesizer: a.synth,
		Profiles:    tts.NewProfiles(cfg.TTS),
		Metrics:     collector,
	}, cfg.Router, cfg.Persona, cfg.Auth.UserID)
	return a, nil
}

func (a *app) openStorage() error {
	sc := a.cfg.Storage
	if sc.Driver == "memory" {
		a.tokens = auth.NewMemoryTokenStore()
		a.pending = auth.NewMemoryPendingStore()
		slog.Info("using in-memory session storage")
		return nil
	}

	db, err := storage.Open(sc.Driver, sc.DSN)
	if err != nil {
		return err
	}
	a.db = db

	var sealer *storage.Sealer
	if sc.Secret != "" {
		if sealer, err = storage.NewSealer(sc.Secret, nil); err != nil {
			return err
		}
	} else {
		slog.Warn("storage.secret not set, tokens are stored unsealed")
	}
	a.tokens = storage.NewSessionStore(db, sealer)
	a.pending = storage.NewPendingStore(db)
	slog.Info("using SQL session storage", "driver", sc.Driver)
	return nil
}

func newBackend(ctx context.Context, cfg config.LLMConfig) (llm.Backend, error) {
	switch cfg.Backend {
	case "gemini":
		b, err := gemini.New(ctx, cfg.Gemini)
		if err != nil {
			return nil, err
		}
		slog.Info("using Gemini backend", "model", cfg.Gemini.Model)
		return b, nil
	case "openai":
		slog.Info("using OpenAI backend",
			"transcription_model", cfg.OpenAI.TranscriptionModel,
			"completion_model", cfg.OpenAI.CompletionModel)
		return openai.New(cfg.OpenAI), nil
	case "local":
		slog.Info("using local backend",
			"whisper", cfg.Local.WhisperEndpoint,
			"llm", cfg.Local.LLMEndpoint)
		return local.New(cfg.Local), nil
	}
	return nil, fmt.Errorf("unknown llm backend %q", cfg.Backend)
}

// Close releases everything newApp opened.
func (a *app) Close() {
	if a.synth != nil {
		_ = a.synth.Close()
	}
	if a.backend != nil {
		_ = a.backend.Close()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			slog.Error("closing database", "error", err)
		}
	}
}
