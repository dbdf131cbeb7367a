// Package piper speaks through a Piper server over the Wyoming protocol.
//
// One TCP connection is opened per utterance: a synthesize event goes out,
// and audio-start, audio-chunk* and audio-stop come back. The PCM chunks
// are wrapped in a WAV container.
package piper

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/nadzzz/companion/internal/config"
	"github.com/nadzzz/companion/internal/tts"
)

// languageVoices picks a Piper model when a profile names only a language.
var languageVoices = map[string]string{
	"en": "en_US-amy-medium",
	"ja": "ja_JP-amitaro-medium",
	"fr": "fr_FR-siwis-medium",
	"es": "es_ES-mls_10246-low",
	"de": "de_DE-thorsten-medium",
	"ko": "ko_KR-kss-x_low",
	"zh": "zh_CN-huayan-medium",
}

// Synthesizer implements tts.Synthesizer.
type Synthesizer struct {
	endpoint  string
	endpoints map[string]string
	voices    map[string]string
	dialer    net.Dialer
}

// New creates a Piper synthesizer from config.
func New(cfg config.PiperConfig) *Synthesizer {
	voices := make(map[string]string, len(languageVoices)+len(cfg.Voices))
	for k, v := range languageVoices {
		voices[k] = v
	}
	for k, v := range cfg.Voices {
		voices[k] = v
	}
	endpoints := make(map[string]string, len(cfg.Endpoints))
	for lang, ep := range cfg.Endpoints {
		endpoints[lang] = hostPort(ep)
	}
	return &Synthesizer{
		endpoint:  hostPort(cfg.Endpoint),
		endpoints: endpoints,
		voices:    voices,
		dialer:    net.Dialer{Timeout: 10 * time.Second},
	}
}

func hostPort(ep string) string {
	for _, scheme := range []string{"tcp://", "http://"} {
		ep = strings.TrimPrefix(ep, scheme)
	}
	return ep
}

// Synthesize speaks text with profile.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, profile tts.VoiceProfile) (*tts.SynthesizeResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("empty text for synthesis")
	}

	voice := profile.Voice
	if voice == "" {
		voice = s.voices[profile.Language]
	}
	if voice == "" {
		voice = s.voices["en"]
	}
	endpoint := s.endpoints[profile.Language]
	if endpoint == "" {
		endpoint = s.endpoint
	}
	if endpoint == "" {
		return nil, fmt.Errorf("no piper endpoint for language %q", profile.Language)
	}

	slog.Debug("piper synthesize", "profile", profile.Name, "voice", voice, "endpoint", endpoint, "text_length", len(text))

	conn, err := s.dialer.DialContext(ctx, "tcp", endpoint)
	if err != nil {
		return nil, fmt.Errorf("connecting to piper: %w", err)
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(30 * time.Second)
	}
	_ = conn.SetDeadline(deadline)

	voiceData := map[string]any{"name": voice}
	if profile.Speaker != "" {
		voiceData["speaker"] = profile.Speaker
	}
	if err := writeEvent(conn, event{Type: "synthesize", Data: map[string]any{"text": text, "voice": voiceData}}, nil); err != nil {
		return nil, fmt.Errorf("sending synthesize event: %w", err)
	}

	return collectAudio(bufio.NewReader(conn))
}

// collectAudio reads events until audio-stop or error.
func collectAudio(r *bufio.Reader) (*tts.SynthesizeResult, error) {
	var (
		pcm   bytes.Buffer
		rate  = 22050
		chans = 1
		width = 2
	)
	for {
		evt, payload, err := readEvent(r)
		if err != nil {
			return nil, fmt.Errorf("reading piper event: %w", err)
		}
		switch evt.Type {
		case "audio-start":
			rate = intField(evt.Data, "rate", rate)
			chans = intField(evt.Data, "channels", chans)
			width = intField(evt.Data, "width", width)
		case "audio-chunk":
			pcm.Write(payload)
		case "audio-stop":
			return &tts.SynthesizeResult{
				Audio:       wav(pcm.Bytes(), rate, chans, width),
				ContentType: "audio/wav",
				SampleRate:  rate,
				Channels:    chans,
			}, nil
		case "error":
			msg, _ := evt.Data["text"].(string)
			if msg == "" {
				msg = "unknown error"
			}
			return nil, fmt.Errorf("piper error: %s", msg)
		default:
			slog.Debug("piper event ignored", "type", evt.Type)
		}
	}
}

func intField(data map[string]any, key string, def int) int {
	if f, ok := data[key].(float64); ok && f > 0 {
		return int(f)
	}
	return def
}

// Close is a no-op; connections are per-utterance.
func (s *Synthesizer) Close() error { return nil }
