// Package transport defines the interface for pluggable message transports.
//
// Each transport (gRPC, HTTP/WebSocket, MQTT) implements this interface and
// hands every inbound message to the router. The router doesn't care how
// messages arrive; it only works with the Handler contract.
package transport

import (
	"context"

	"github.com/nadzzz/companion/internal/message"
)

// Handler processes an inbound message and returns the reply for its sender.
// The router provides this handler to each transport.
type Handler func(ctx context.Context, msg *message.Message) (*message.Reply, error)

// Transport is the interface that every transport adapter must implement.
type Transport interface {
	// Name returns the transport identifier (e.g., "grpc", "http", "mqtt").
	Name() string

	// Listen starts accepting messages and passes them to handler.
	// It blocks until the context is cancelled.
	Listen(ctx context.Context, handler Handler) error

	// Close gracefully shuts down the transport, draining in-flight work.
	Close() error
}
