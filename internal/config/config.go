// Package config handles loading and validating the companion configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for the companion daemon.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Transports TransportsConfig `mapstructure:"transports"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Persona    PersonaConfig    `mapstructure:"persona"`
	Catalog    CatalogConfig    `mapstructure:"catalog"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Router     RouterConfig     `mapstructure:"router"`
	TTS        TTSConfig        `mapstructure:"tts"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig holds the health check server settings.
type ServerConfig struct {
	HealthPort int `mapstructure:"health_port"`
}

// TransportsConfig holds the configuration for each transport layer.
type TransportsConfig struct {
	GRPC GRPCConfig `mapstructure:"grpc"`
	HTTP HTTPConfig `mapstructure:"http"`
	MQTT MQTTConfig `mapstructure:"mqtt"`
}

// GRPCConfig configures the gRPC transport.
type GRPCConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// HTTPConfig configures the HTTP/WebSocket transport.
type HTTPConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// MQTTConfig configures the MQTT transport.
type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	ClientID    string `mapstructure:"client_id"`
	Topic       string `mapstructure:"topic"`        // inbound subscription, e.g. "companion/in/#"
	ReplyPrefix string `mapstructure:"reply_prefix"` // replies go to <reply_prefix>/<source>
}

// LLMConfig selects and configures the language-model backend.
type LLMConfig struct {
	Backend string       `mapstructure:"backend"` // "gemini", "openai" or "local"
	Gemini  GeminiConfig `mapstructure:"gemini"`
	OpenAI  OpenAIConfig `mapstructure:"openai"`
	Local   LocalConfig  `mapstructure:"local"`
}

// GeminiConfig holds Google Gemini API settings.
type GeminiConfig struct {
	APIKey             string `mapstructure:"api_key"`
	Model              string `mapstructure:"model"`
	TranscriptionModel string `mapstructure:"transcription_model"`
}

// OpenAIConfig holds OpenAI API settings.
type OpenAIConfig struct {
	APIKey             string `mapstructure:"api_key"`
	BaseURL            string `mapstructure:"base_url"`
	TranscriptionModel string `mapstructure:"transcription_model"`
	CompletionModel    string `mapstructure:"completion_model"`
}

// LocalConfig holds self-hosted LLM settings.
type LocalConfig struct {
	WhisperEndpoint string `mapstructure:"whisper_endpoint"`
	LLMEndpoint     string `mapstructure:"llm_endpoint"`
	LLMModel        string `mapstructure:"llm_model"` // Ollama model name (e.g., "llama3.2:1b")
	Language        string `mapstructure:"language"`  // ISO-639-1 default language (e.g., "en", "fr")
}

// PersonaConfig shapes the general conversation replies.
type PersonaConfig struct {
	SystemPrompt string  `mapstructure:"system_prompt"`
	Temperature  float64 `mapstructure:"temperature"`
	MaxTokens    int     `mapstructure:"max_tokens"`
}

// CatalogConfig points at the anime-tracking service and its OAuth endpoints.
type CatalogConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	AuthURL           string        `mapstructure:"auth_url"`
	TokenURL          string        `mapstructure:"token_url"`
	ClientID          string        `mapstructure:"client_id"`
	ClientSecret      string        `mapstructure:"client_secret"`
	RedirectURL       string        `mapstructure:"redirect_url"`
	ChallengeMethod   string        `mapstructure:"challenge_method"` // "plain" (MyAnimeList) or "S256"
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// AuthConfig controls the authorization lifecycle.
type AuthConfig struct {
	UserID        string        `mapstructure:"user_id"`
	PendingTTL    time.Duration `mapstructure:"pending_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// StorageConfig selects where sessions and pending authorizations live.
type StorageConfig struct {
	Driver string `mapstructure:"driver"` // "memory", "sqlite" or "postgres"
	DSN    string `mapstructure:"dsn"`
	Secret string `mapstructure:"secret"` // seals tokens at rest when set
}

// RouterConfig tunes the conversation router.
type RouterConfig struct {
	ListContext      bool          `mapstructure:"list_context"`
	ListContextLimit int           `mapstructure:"list_context_limit"`
	Disambiguation   string        `mapstructure:"disambiguation"` // "first" or "clarify"
	SmartFallback    bool          `mapstructure:"smart_fallback"`
	CallTimeout      time.Duration `mapstructure:"call_timeout"`
}

// TTSConfig selects and configures the text-to-speech backend.
type TTSConfig struct {
	Enabled        bool                    `mapstructure:"enabled"`
	Backend        string                  `mapstructure:"backend"` // "piper"
	DefaultProfile string                  `mapstructure:"default_profile"`
	Profiles       map[string]VoiceProfile `mapstructure:"profiles"`
	Piper          PiperConfig             `mapstructure:"piper"`
}

// VoiceProfile is a named voice the companion can speak with.
type VoiceProfile struct {
	Voice    string `mapstructure:"voice"`    // Piper voice model name
	Language string `mapstructure:"language"` // ISO-639-1
	Speaker  string `mapstructure:"speaker"`  // optional multi-speaker id
}

// PiperConfig holds Piper TTS settings (Wyoming protocol).
//
// For a single Piper instance that serves all languages, set Endpoint.
// For per-language instances, set Endpoints which maps ISO-639-1 codes to
// individual Wyoming TCP endpoints. Endpoints takes precedence.
type PiperConfig struct {
	Endpoint  string            `mapstructure:"endpoint"`  // Default Wyoming TCP endpoint (host:port)
	Endpoints map[string]string `mapstructure:"endpoints"` // ISO-639-1 language code -> Wyoming TCP endpoint
	Voices    map[string]string `mapstructure:"voices"`    // ISO-639-1 language code -> Piper voice model name
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// DefaultSystemPrompt is the persona used when none is configured.
const DefaultSystemPrompt = "You are a cheerful anime companion who lives on the user's desktop. " +
	"You are warm, playful and knowledgeable about anime. Keep replies short enough to be spoken aloud."

// Load reads the configuration from file, environment variables, and defaults.
// If configFile is non-empty it is used directly; otherwise the standard
// search order applies: ./companion.yaml, ./configs/companion.yaml, /etc/companion/companion.yaml.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("companion")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/companion")
	}

	// Environment variables: COMPANION_LLM_BACKEND, COMPANION_CATALOG_CLIENT_ID, etc.
	v.SetEnvPrefix("COMPANION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (optional, env vars and defaults are sufficient)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		slog.Info("no config file found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// Resolve env var references in sensitive fields (e.g., "${GEMINI_API_KEY}")
	cfg.LLM.Gemini.APIKey = resolveEnvRef(cfg.LLM.Gemini.APIKey)
	cfg.LLM.OpenAI.APIKey = resolveEnvRef(cfg.LLM.OpenAI.APIKey)
	cfg.Catalog.ClientID = resolveEnvRef(cfg.Catalog.ClientID)
	cfg.Catalog.ClientSecret = resolveEnvRef(cfg.Catalog.ClientSecret)
	cfg.Storage.DSN = resolveEnvRef(cfg.Storage.DSN)
	cfg.Storage.Secret = resolveEnvRef(cfg.Storage.Secret)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.health_port", 8081)
	v.SetDefault("transports.grpc.enabled", false)
	v.SetDefault("transports.grpc.port", 50051)
	v.SetDefault("transports.http.enabled", true)
	v.SetDefault("transports.http.port", 3001)
	v.SetDefault("transports.mqtt.enabled", false)
	v.SetDefault("transports.mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("transports.mqtt.client_id", "companion")
	v.SetDefault("transports.mqtt.topic", "companion/in/#")
	v.SetDefault("transports.mqtt.reply_prefix", "companion/out")
	v.SetDefault("llm.backend", "gemini")
	v.SetDefault("llm.gemini.model", "gemini-2.5-flash")
	v.SetDefault("llm.gemini.transcription_model", "gemini-2.5-flash")
	v.SetDefault("llm.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.openai.transcription_model", "gpt-4o-transcribe")
	v.SetDefault("llm.openai.completion_model", "gpt-4o")
	v.SetDefault("llm.local.whisper_endpoint", "http://localhost:8000/v1/audio/transcriptions")
	v.SetDefault("llm.local.llm_endpoint", "http://localhost:11434/api/generate")
	v.SetDefault("llm.local.llm_model", "llama3")
	v.SetDefault("persona.system_prompt", DefaultSystemPrompt)
	v.SetDefault("persona.temperature", 0.9)
	v.SetDefault("persona.max_tokens", 2048)
	v.SetDefault("catalog.base_url", "https://api.myanimelist.net/v2")
	v.SetDefault("catalog.auth_url", "https://myanimelist.net/v1/oauth2/authorize")
	v.SetDefault("catalog.token_url", "https://myanimelist.net/v1/oauth2/token")
	v.SetDefault("catalog.redirect_url", "http://localhost:3001/api/auth/callback")
	v.SetDefault("catalog.challenge_method", "plain")
	v.SetDefault("catalog.requests_per_second", 2.0)
	v.SetDefault("catalog.timeout", 30*time.Second)
	v.SetDefault("auth.user_id", "default")
	v.SetDefault("auth.pending_ttl", 10*time.Minute)
	v.SetDefault("auth.sweep_interval", time.Minute)
	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.dsn", "companion.db")
	v.SetDefault("router.list_context", true)
	v.SetDefault("router.list_context_limit", 20)
	v.SetDefault("router.disambiguation", "first")
	v.SetDefault("router.smart_fallback", false)
	v.SetDefault("router.call_timeout", 30*time.Second)
	v.SetDefault("tts.enabled", false)
	v.SetDefault("tts.backend", "piper")
	v.SetDefault("tts.default_profile", "companion")
	v.SetDefault("tts.piper.endpoint", "localhost:10200")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate rejects settings the daemon cannot run with.
func (c *Config) Validate() error {
	switch c.LLM.Backend {
	case "gemini", "openai", "local":
	default:
		return fmt.Errorf("unknown llm backend %q", c.LLM.Backend)
	}
	switch c.Storage.Driver {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Router.Disambiguation {
	case "first", "clarify":
	default:
		return fmt.Errorf("unknown disambiguation policy %q", c.Router.Disambiguation)
	}
	switch c.Catalog.ChallengeMethod {
	case "plain", "S256":
	default:
		return fmt.Errorf("unknown PKCE challenge method %q", c.Catalog.ChallengeMethod)
	}
	if c.Auth.PendingTTL <= 0 {
		return fmt.Errorf("auth.pending_ttl must be positive")
	}
	return nil
}

// resolveEnvRef replaces "${VAR_NAME}" patterns with the corresponding env var value.
func resolveEnvRef(val string) string {
	if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
		envKey := val[2 : len(val)-1]
		if envVal := os.Getenv(envKey); envVal != "" {
			return envVal
		}
	}
	return val
}

// SetupLogging configures the global slog logger based on config.
func SetupLogging(cfg LoggingConfig) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
