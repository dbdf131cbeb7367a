// Package http implements the HTTP/WebSocket transport for the companion.
//
// It exposes POST /chat for one-shot messages (JSON or raw audio), GET /ws
// for a long-lived chat session, the Swagger UI, and any extra routes
// mounted with WithRoutes (the auth and catalog API).
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/nadzzz/companion/internal/message"
	"github.com/nadzzz/companion/internal/transport"
)

const (
	defaultMaxAudioBytes = 25 << 20

	// maxHistoryTurns bounds the conversation kept per WebSocket session.
	maxHistoryTurns = 20
)

// Header names used for raw audio uploads.
const (
	HeaderSource      = "X-Companion-Source"
	HeaderUser        = "X-Companion-User"
	HeaderInstruction = "X-Companion-Instruction"
)

// Option configures the transport.
type Option func(*Transport)

// WithRoutes mounts additional routes on the transport's router.
func WithRoutes(mount func(chi.Router)) Option {
	return func(t *Transport) { t.mounts = append(t.mounts, mount) }
}

// WithMaxAudioBytes caps raw audio uploads. JSON bodies and WebSocket
// messages, which carry audio base64-encoded, may be twice as large.
func WithMaxAudioBytes(n int64) Option {
	return func(t *Transport) {
		if n > 0 {
			t.maxAudio = n
		}
	}
}

// Transport implements transport.Transport over HTTP and WebSocket.
type Transport struct {
	port     int
	maxAudio int64
	mounts   []func(chi.Router)
	server   *http.Server
}

// New creates a new HTTP transport on the given port.
func New(port int, opts ...Option) *Transport {
	t := &Transport{port: port, maxAudio: defaultMaxAudioBytes}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "http" }

// Router builds the HTTP handler for handler.
func (t *Transport) Router(handler transport.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Post("/chat", func(w http.ResponseWriter, r *http.Request) {
		t.handleChat(w, r, handler)
	})
	r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		t.handleWS(w, r, handler)
	})
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	for _, mount := range t.mounts {
		mount(r)
	}
	return r
}

// Listen starts the HTTP server and routes incoming requests to the handler.
func (t *Transport) Listen(ctx context.Context, handler transport.Handler) error {
	t.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", t.port),
		Handler:           t.Router(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("http transport listening", "port", t.port)

	go func() {
		<-ctx.Done()
		slog.Info("http transport shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = t.server.Shutdown(shutdownCtx)
	}()

	if err := t.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http listen: %w", err)
	}
	return nil
}

// handleChat processes a POST /chat request.
//
// @Summary     Send a chat message
// @Description Accepts a JSON message (text or base64 audio) or raw audio bytes.
// @Description List commands ("add Frieren to my list") are executed against the catalog;
// @Description anything else is answered by the conversation model.
// @Tags        chat
// @Accept      json
// @Accept      audio/wav
// @Accept      audio/ogg
// @Produce     json
// @Param       message  body      message.Message  true  "Chat message (JSON). For raw audio, POST the bytes directly with the appropriate Content-Type."
// @Param       X-Companion-Source       header  string  false  "Sender identifier (used with raw audio uploads)"
// @Param       X-Companion-User         header  string  false  "User whose catalog session is used"
// @Param       X-Companion-Instruction  header  string  false  "JSON-encoded Instruction (used with raw audio uploads)"
// @Success     200  {object}  message.Reply  "Reply"
// @Failure     400  {string}  string  "Invalid request body or headers"
// @Failure     413  {string}  string  "Body too large"
// @Failure     500  {string}  string  "Internal processing error"
// @Router      /chat [post]
func (t *Transport) handleChat(w http.ResponseWriter, r *http.Request, handler transport.Handler) {
	var msg message.Message

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/json") {
		r.Body = http.MaxBytesReader(w, r.Body, 2*t.maxAudio)
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			bodyError(w, "invalid json", err)
			return
		}
	} else {
		r.Body = http.MaxBytesReader(w, r.Body, t.maxAudio)
		audio, err := io.ReadAll(r.Body)
		if err != nil {
			bodyError(w, "reading audio", err)
			return
		}
		msg.Audio = audio
		msg.ContentType = contentType
		msg.Source = r.Header.Get(HeaderSource)
		msg.UserID = r.Header.Get(HeaderUser)

		if instr := r.Header.Get(HeaderInstruction); instr != "" {
			if err := json.Unmarshal([]byte(instr), &msg.Instruction); err != nil {
				http.Error(w, "invalid instruction header: "+err.Error(), http.StatusBadRequest)
				return
			}
		}
	}
	if msg.Source == "" {
		msg.Source = "http"
	}

	reply, err := handler(r.Context(), &msg)
	if err != nil {
		slog.Error("chat failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(reply)
}

func bodyError(w http.ResponseWriter, what string, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		http.Error(w, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit), http.StatusRequestEntityTooLarge)
		return
	}
	http.Error(w, what+": "+err.Error(), http.StatusBadRequest)
}

// handleWS runs a chat session: each JSON message read is answered with one
// JSON reply, in order. The session keeps the recent turns and hands them to
// the handler with every message.
func (t *Transport) handleWS(w http.ResponseWriter, r *http.Request, handler transport.Handler) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // companion clients run on the local network
	})
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(2 * t.maxAudio)

	ctx := r.Context()
	var history []message.Turn
	for {
		var msg message.Message
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				slog.Debug("websocket read ended", "error", err)
			}
			return
		}
		if msg.Source == "" {
			msg.Source = "ws"
		}
		msg.History = history
		reply, err := handler(ctx, &msg)
		if err != nil {
			slog.Error("chat failed", "error", err)
			conn.Close(websocket.StatusInternalError, "internal error")
			return
		}
		if err := wsjson.Write(ctx, conn, reply); err != nil {
			return
		}
		history = remember(history, &msg, reply)
	}
}

// remember appends the exchange to history, dropping the oldest turns past
// maxHistoryTurns.
func remember(history []message.Turn, msg *message.Message, reply *message.Reply) []message.Turn {
	said := msg.Text
	if reply.Transcript != "" {
		said = reply.Transcript
	}
	if said == "" || reply.Response == "" {
		return history
	}
	history = append(history,
		message.Turn{Role: message.RoleUser, Text: said},
		message.Turn{Role: message.RoleAssistant, Text: reply.Response},
	)
	if n := len(history) - maxHistoryTurns; n > 0 {
		history = append([]message.Turn(nil), history[n:]...)
	}
	return history
}

// Close gracefully shuts down the HTTP server.
func (t *Transport) Close() error {
	if t.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return t.server.Shutdown(ctx)
	}
	return nil
}
