// Package dispatch implements the conversation router.
//
// Every message takes exactly one path: a recognized list action goes to the
// executor and its outcome is narrated; anything else goes to the
// conversation model, optionally enriched with a summary of the user's list.
// The sender always receives a reply, even when a stage fails.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nadzzz/companion/internal/action"
	"github.com/nadzzz/companion/internal/auth"
	"github.com/nadzzz/companion/internal/catalog"
	"github.com/nadzzz/companion/internal/config"
	"github.com/nadzzz/companion/internal/intent"
	"github.com/nadzzz/companion/internal/llm"
	"github.com/nadzzz/companion/internal/message"
	"github.com/nadzzz/companion/internal/metrics"
	"github.com/nadzzz/companion/internal/tts"
)

// Failure codes reported in reply metadata.
const (
	FailureInternal        = "internal"
	FailureNoInput         = "empty_message"
	FailureTranscription   = "transcription_failed"
	FailureConversation    = "conversation_unavailable"
	FailureNotAuthorized   = "not_authorized"
	FailureScoreOutOfRange = action.ReasonScoreOutOfRange
)

const defaultListContextLimit = 100

// Route labels for metrics.
const (
	pathAction       = "action"
	pathConversation = "conversation"
	pathRefused      = "refused"
)

// Executor runs an actionable intent.
type Executor interface {
	Execute(ctx context.Context, in intent.Intent, sess *auth.Session) action.Outcome
}

// ListFetcher reads the user's list for context enrichment.
type ListFetcher interface {
	FetchList(ctx context.Context, token string, status catalog.Status, limit int) ([]catalog.ListItem, error)
}

// Deps are the collaborators a Router needs. Model, Transcriber, Synthesizer
// and Metrics may be nil.
type Deps struct {
	Extractor   *intent.Extractor
	Executor    Executor
	Tokens      auth.TokenStore
	Lists       ListFetcher
	Model       llm.Generator
	Transcriber llm.Transcriber
	Synthesizer tts.Synthesizer
	Profiles    *tts.Profiles
	Metrics     metrics.Recorder
}

// Router is the conversation router.
type Router struct {
	extractor   *intent.Extractor
	executor    Executor
	tokens      auth.TokenStore
	lists       ListFetcher
	model       llm.Generator
	transcriber llm.Transcriber
	synthesizer tts.Synthesizer
	profiles    *tts.Profiles
	metrics     metrics.Recorder

	cfg     config.RouterConfig
	persona config.PersonaConfig
	userID  string

	// Now is the clock used for session validity.
	Now func() time.Time
}

// New creates a Router.
func New(d Deps, cfg config.RouterConfig, persona config.PersonaConfig, userID string) *Router {
	if d.Extractor == nil {
		d.Extractor = intent.NewExtractor(nil, d.Model)
	}
	if d.Metrics == nil {
		d.Metrics = metrics.Nop{}
	}
	if d.Profiles == nil {
		d.Profiles = tts.NewProfiles(config.TTSConfig{})
	}
	if cfg.ListContextLimit <= 0 {
		cfg.ListContextLimit = defaultListContextLimit
	}
	if userID == "" {
		userID = auth.DefaultUserID
	}
	return &Router{
		extractor:   d.Extractor,
		executor:    d.Executor,
		tokens:      d.Tokens,
		lists:       d.Lists,
		model:       d.Model,
		transcriber: d.Transcriber,
		synthesizer: d.Synthesizer,
		profiles:    d.Profiles,
		metrics:     d.Metrics,
		cfg:         cfg,
		persona:     persona,
		userID:      userID,
		Now:         time.Now,
	}
}

// resolveResponseMode fills in the default when the caller left it empty.
func (r *Router) resolveResponseMode(mode message.ResponseMode) message.ResponseMode {
	switch mode {
	case message.ResponseModeText, message.ResponseModeAudio, message.ResponseModeTextAudio:
		return mode
	default:
		if r.synthesizer != nil {
			return message.ResponseModeTextAudio
		}
		return message.ResponseModeText
	}
}

func wantAudio(mode message.ResponseMode) bool {
	return mode == message.ResponseModeAudio || mode == message.ResponseModeTextAudio
}

// Handle routes one message and always produces a reply. It is the
// transport.Handler given to every transport; the error return is reserved
// for transports and is always nil.
func (r *Router) Handle(ctx context.Context, msg *message.Message) (reply *message.Reply, err error) {
	start := time.Now()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = start
	}
	logger := slog.With("message_id", msg.ID, "source", msg.Source)

	reply = &message.Reply{MessageID: msg.ID}
	path := pathRefused

	defer func() {
		if p := recover(); p != nil {
			logger.Error("router panic", "panic", p)
			reply = &message.Reply{
				MessageID: msg.ID,
				Response:  ReplyApology,
				Metadata: message.Metadata{
					Intent:      reply.Metadata.Intent,
					Outcome:     string(action.ExecutionFailed),
					FailureCode: FailureInternal,
				},
			}
			err = nil
		}
		r.metrics.RecordRoute(path, time.Since(start))
	}()

	text, ok := r.input(ctx, msg, reply, logger)
	if !ok {
		r.speak(ctx, msg, reply, logger)
		return reply, nil
	}

	userID := msg.UserID
	if userID == "" {
		userID = r.userID
	}
	sess := r.session(ctx, userID, logger)

	extractCtx, cancel := r.bounded(ctx)
	in := r.extractor.Extract(extractCtx, text, intent.Options{AllowModel: msg.Instruction.Smart || r.cfg.SmartFallback})
	extractExpired := timedOut(extractCtx)
	cancel()
	reply.Metadata.Intent = string(in.Kind)
	r.metrics.RecordMessage(msg.Source, string(in.Kind))
	logger = logger.With("intent", in.Kind)
	logger.Info("message classified", "source_rule", in.Source)

	switch {
	case extractExpired:
		logger.Warn("intent extraction timed out", "timeout", r.cfg.CallTimeout)
		failTimeout(reply)

	case in.Kind == intent.RatingOutOfRange:
		reply.Response = ReplyScoreOutOfRange
		reply.Metadata.Outcome = string(action.Invalid)
		reply.Metadata.FailureCode = FailureScoreOutOfRange

	case in.Actionable() && !auth.IsValid(sess, r.Now()):
		reply.Response = ReplyNotAuthorized
		reply.Metadata.Outcome = string(action.NotAuthorized)
		reply.Metadata.FailureCode = FailureNotAuthorized
		r.metrics.RecordOutcome(string(in.Kind), string(action.NotAuthorized))

	case in.Actionable():
		path = pathAction
		out := r.executor.Execute(ctx, in, sess)
		reply.Response = Narrate(out)
		reply.ActionTaken = out.Kind == action.Succeeded
		reply.Metadata.Outcome = string(out.Kind)
		if out.Kind == action.ExecutionFailed || out.Kind == action.Invalid {
			reply.Metadata.FailureCode = out.Reason
		}
		r.metrics.RecordOutcome(string(in.Kind), string(out.Kind))

	case in.Explanation != "":
		// The model answered in free text instead of a structured token.
		path = pathConversation
		reply.Response = in.Explanation
		if r.model != nil {
			reply.Metadata.Backend = r.model.Name()
		}

	default:
		path = pathConversation
		r.converse(ctx, msg, text, sess, reply, logger)
	}

	r.speak(ctx, msg, reply, logger)
	logger.Info("message routed", "path", path, "outcome", reply.Metadata.Outcome, "action_taken", reply.ActionTaken, "duration", time.Since(start))
	return reply, nil
}

// input returns the text to classify. For audio it transcribes first.
func (r *Router) input(ctx context.Context, msg *message.Message, reply *message.Reply, logger *slog.Logger) (string, bool) {
	if !msg.HasAudio() {
		text := strings.TrimSpace(msg.Text)
		if text == "" {
			reply.Response = ReplyNoInput
			reply.Metadata.Intent = string(intent.None)
			reply.Metadata.FailureCode = FailureNoInput
			return "", false
		}
		return text, true
	}

	if r.transcriber == nil {
		logger.Warn("audio received but no transcriber configured")
		reply.Response = ReplyUnclearAudio
		reply.Metadata.FailureCode = FailureTranscription
		return "", false
	}
	logger.Debug("transcribing audio", "content_type", msg.ContentType, "bytes", len(msg.Audio))
	tctx, cancel := r.bounded(ctx)
	defer cancel()
	res, err := r.transcriber.Transcribe(tctx, msg.Audio, msg.ContentType, llm.TranscribeOpts{})
	if err != nil && timedOut(tctx) {
		logger.Error("transcription timed out", "timeout", r.cfg.CallTimeout)
		failTimeout(reply)
		return "", false
	}
	if err != nil || strings.TrimSpace(res.Text) == "" {
		logger.Error("transcription failed", "error", err)
		reply.Response = ReplyUnclearAudio
		reply.Metadata.FailureCode = FailureTranscription
		return "", false
	}
	reply.Transcript = res.Text
	reply.Language = res.Language
	logger.Info("transcription complete", "text_length", len(res.Text), "language", res.Language)
	return strings.TrimSpace(res.Text), true
}

func (r *Router) session(ctx context.Context, userID string, logger *slog.Logger) *auth.Session {
	if r.tokens == nil {
		return nil
	}
	sess, err := r.tokens.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, auth.ErrNoSession) {
			logger.Warn("session lookup failed", "error", err)
		}
		return nil
	}
	return sess
}

func (r *Router) wantsListContext(msg *message.Message) bool {
	if msg.Instruction.IncludeListContext != nil {
		return *msg.Instruction.IncludeListContext
	}
	return r.cfg.ListContext
}

// converse hands the message to the conversation model.
func (r *Router) converse(ctx context.Context, msg *message.Message, text string, sess *auth.Session, reply *message.Reply, logger *slog.Logger) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	prompt := text
	if r.wantsListContext(msg) && auth.IsValid(sess, r.Now()) && r.lists != nil {
		items, err := r.lists.FetchList(ctx, sess.AccessToken, "", r.cfg.ListContextLimit)
		if err != nil {
			logger.Warn("list context unavailable", "error", err)
		} else {
			prompt = enrich(text, catalog.Summarize(items, catalog.DefaultSummaryLimits))
			reply.Metadata.ListContext = true
		}
	}

	if r.model == nil {
		reply.Response = ReplyConversationDown
		reply.Metadata.FailureCode = FailureConversation
		return
	}
	reply.Metadata.Backend = r.model.Name()

	out, err := r.model.Generate(ctx, prompt, llm.GenerateOpts{
		Temperature:   r.persona.Temperature,
		MaxTokens:     r.persona.MaxTokens,
		SystemPersona: r.persona.SystemPrompt,
		History:       history(msg.History),
	})
	if err != nil && timedOut(ctx) {
		logger.Error("conversation timed out", "timeout", r.cfg.CallTimeout)
		failTimeout(reply)
		return
	}
	if err != nil || strings.TrimSpace(out) == "" {
		logger.Error("conversation failed", "error", err)
		reply.Response = ReplyConversationDown
		reply.Metadata.FailureCode = FailureConversation
		return
	}
	reply.Response = strings.TrimSpace(out)
}

// bounded limits one model or synthesis call to the configured call timeout.
// maxHistoryTurns bounds the earlier turns forwarded to the model.
const maxHistoryTurns = 20

func history(turns []message.Turn) []llm.Turn {
	if len(turns) > maxHistoryTurns {
		turns = turns[len(turns)-maxHistoryTurns:]
	}
	var out []llm.Turn
	for _, t := range turns {
		if strings.TrimSpace(t.Text) == "" {
			continue
		}
		role := llm.RoleUser
		if t.Role == message.RoleAssistant {
			role = llm.RoleAssistant
		}
		out = append(out, llm.Turn{Role: role, Text: t.Text})
	}
	return out
}

func (r *Router) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.CallTimeout > 0 {
		return context.WithTimeout(ctx, r.cfg.CallTimeout)
	}
	return context.WithCancel(ctx)
}

func timedOut(ctx context.Context) bool {
	return errors.Is(ctx.Err(), context.DeadlineExceeded)
}

// failTimeout reports an expired call deadline on reply.
func failTimeout(reply *message.Reply) {
	reply.Response = Narrate(action.Outcome{Kind: action.ExecutionFailed, Reason: action.ReasonTimeout})
	reply.Metadata.Outcome = string(action.ExecutionFailed)
	reply.Metadata.FailureCode = action.ReasonTimeout
}

func enrich(text, summary string) string {
	return fmt.Sprintf("Here is the user's anime list for context:\n%s\n\nUser message: %s", summary, text)
}

// speak synthesizes the reply when the response mode asks for audio.
// Synthesis failure keeps the text reply.
func (r *Router) speak(ctx context.Context, msg *message.Message, reply *message.Reply, logger *slog.Logger) {
	mode := r.resolveResponseMode(msg.Instruction.ResponseMode)
	if !wantAudio(mode) || r.synthesizer == nil || reply.Response == "" {
		return
	}

	profile := r.profiles.Resolve(msg.Instruction.Voice, reply.Language)
	ctx, cancel := r.bounded(ctx)
	defer cancel()
	res, err := r.synthesizer.Synthesize(ctx, reply.Response, profile)
	if err != nil {
		logger.Warn("TTS synthesis failed, continuing without audio", "error", err)
		return
	}
	reply.SetResponseAudioBytes(res.Audio)
	reply.ResponseContentType = res.ContentType
	logger.Debug("TTS synthesis complete", "profile", profile.Name, "audio_bytes", len(res.Audio))

	if mode == message.ResponseModeAudio {
		reply.Response = ""
	}
}
