// Package tts defines the text-to-speech capability the companion speaks with.
//
// Replies are spoken with a named VoiceProfile so callers can pick a
// character voice per message without knowing backend voice model names.
package tts

import (
	"context"

	"github.com/nadzzz/companion/internal/config"
)

// VoiceProfile is a resolved voice.
type VoiceProfile struct {
	Name     string
	Voice    string // backend voice model; empty means pick by Language
	Language string // ISO-639-1
	Speaker  string // optional multi-speaker id
}

// Synthesizer converts text to audio.
type Synthesizer interface {
	// Synthesize speaks text with profile and returns a WAV file.
	Synthesize(ctx context.Context, text string, profile VoiceProfile) (*SynthesizeResult, error)

	// Close releases any resources held by the synthesizer.
	Close() error
}

// SynthesizeResult holds the output of TTS synthesis.
type SynthesizeResult struct {
	// Audio is the synthesized audio as a WAV file.
	Audio []byte

	// ContentType is the MIME type of the audio (e.g., "audio/wav").
	ContentType string

	// SampleRate is the audio sample rate in Hz (e.g., 22050).
	SampleRate int

	// Channels is the number of audio channels (typically 1).
	Channels int
}

// builtinProfile is used when the configuration names no profiles.
var builtinProfile = VoiceProfile{Name: "companion", Voice: "en_US-amy-medium", Language: "en"}

// Profiles resolves profile names to VoiceProfiles.
type Profiles struct {
	byName      map[string]VoiceProfile
	defaultName string
}

// NewProfiles builds the profile table from config.
func NewProfiles(cfg config.TTSConfig) *Profiles {
	p := &Profiles{byName: make(map[string]VoiceProfile, len(cfg.Profiles)+1), defaultName: cfg.DefaultProfile}
	for name, vp := range cfg.Profiles {
		p.byName[name] = VoiceProfile{Name: name, Voice: vp.Voice, Language: vp.Language, Speaker: vp.Speaker}
	}
	if _, ok := p.byName[builtinProfile.Name]; !ok {
		p.byName[builtinProfile.Name] = builtinProfile
	}
	if _, ok := p.byName[p.defaultName]; !ok {
		p.defaultName = builtinProfile.Name
	}
	return p
}

// Resolve returns the named profile, or the default profile when name is
// empty or unknown. A non-empty language overrides the profile language
// when the profile pins no voice model.
func (p *Profiles) Resolve(name, language string) VoiceProfile {
	vp, ok := p.byName[name]
	if !ok {
		vp = p.byName[p.defaultName]
	}
	if language != "" && vp.Voice == "" {
		vp.Language = language
	}
	if vp.Language == "" {
		vp.Language = "en"
	}
	return vp
}
