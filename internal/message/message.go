// Package message defines the data types flowing through the companion pipeline.
package message

import (
	"encoding/base64"
	"time"
)

// ResponseMode controls what output the caller wants. The caller declares
// it in the request; the router populates or omits reply fields accordingly.
type ResponseMode string

const (
	// ResponseModeText returns the reply as text.
	ResponseModeText ResponseMode = "text"

	// ResponseModeAudio returns TTS-synthesized audio only (no text).
	ResponseModeAudio ResponseMode = "audio"

	// ResponseModeTextAudio returns both text and synthesized audio.
	ResponseModeTextAudio ResponseMode = "text+audio"
)

// Message is an inbound chat turn from any transport.
type Message struct {
	// ID is a unique identifier for this message (UUID). Assigned by the
	// router when empty.
	ID string `json:"id"`

	// Source identifies the sender (e.g., "desktop-widget", "phone").
	Source string `json:"source"`

	// UserID selects the catalog session; empty means the configured user.
	UserID string `json:"user_id,omitempty"`

	// Text is the user's message. Ignored when Audio is set.
	Text string `json:"text,omitempty"`

	// Audio is a spoken message to transcribe first.
	Audio []byte `json:"audio,omitempty"`

	// ContentType is the MIME type of Audio (e.g., "audio/wav").
	ContentType string `json:"content_type,omitempty"`

	// Instruction tunes how the message is handled.
	Instruction Instruction `json:"instruction"`

	// History holds the earlier turns of the conversation, oldest first.
	// WebSocket sessions fill it in; one-shot callers may send their own.
	History []Turn `json:"history,omitempty"`

	// Timestamp is when the message was received.
	Timestamp time.Time `json:"timestamp"`
}

// HasAudio returns true if the message contains an audio payload.
func (m *Message) HasAudio() bool {
	return len(m.Audio) > 0
}

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one earlier message in a conversation.
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Instruction describes how to process a message.
type Instruction struct {
	// Smart lets intent extraction escalate to the language model when no
	// rule matches.
	Smart bool `json:"smart,omitempty"`

	// IncludeListContext overrides the configured default for enriching
	// conversation prompts with a list summary.
	IncludeListContext *bool `json:"include_list_context,omitempty"`

	// Voice names the voice profile for audio replies.
	Voice string `json:"voice,omitempty"`

	// ResponseMode defaults to "text" when TTS is disabled and "text+audio"
	// when it is enabled.
	ResponseMode ResponseMode `json:"response_mode,omitempty"`
}

// Metadata describes what the router did with a message. It never carries
// raw error text.
type Metadata struct {
	Intent      string `json:"intent"`
	Outcome     string `json:"outcome,omitempty"`
	FailureCode string `json:"failure_code,omitempty"`
	ListContext bool   `json:"list_context"`
	Backend     string `json:"backend,omitempty"`
}

// Reply is the answer returned to the sender.
type Reply struct {
	// MessageID is the original message ID.
	MessageID string `json:"message_id"`

	// Transcript is the text produced from Audio (empty for text input).
	Transcript string `json:"transcript,omitempty"`

	// Language is the ISO-639-1 code detected during transcription.
	Language string `json:"language,omitempty"`

	// Response is the narrated or conversational reply.
	Response string `json:"response,omitempty"`

	// ActionTaken is true only when a list mutation succeeded.
	ActionTaken bool `json:"action_taken"`

	Metadata Metadata `json:"metadata"`

	// ResponseAudio is the synthesized reply, base64-encoded.
	ResponseAudio string `json:"response_audio,omitempty"`

	// ResponseContentType is the MIME type of ResponseAudio.
	ResponseContentType string `json:"response_content_type,omitempty"`
}

// SetResponseAudioBytes base64-encodes raw audio bytes into ResponseAudio.
func (r *Reply) SetResponseAudioBytes(audio []byte) {
	if len(audio) > 0 {
		r.ResponseAudio = base64.StdEncoding.EncodeToString(audio)
	}
}
