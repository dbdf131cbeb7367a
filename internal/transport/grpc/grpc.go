// Package grpc implements the gRPC transport for the companion.
//
// The service is companion.v1.Companion with a single unary Chat method.
// Messages travel as JSON under the "json" content subtype, so clients need
// no generated stubs: any gRPC client that sets the subtype can call it.
package grpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"

	"github.com/nadzzz/companion/internal/message"
	"github.com/nadzzz/companion/internal/transport"
)

// Service and method names.
const (
	ServiceName = "companion.v1.Companion"
	ChatMethod  = "/" + ServiceName + "/Chat"
)

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return "json" }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type chatServer interface {
	Chat(ctx context.Context, msg *message.Message) (*message.Reply, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*chatServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Chat", Handler: chatHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "companion/v1/companion.proto",
}

func chatHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(message.Message)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(chatServer).Chat(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ChatMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(chatServer).Chat(ctx, req.(*message.Message))
	}
	return interceptor(ctx, in, info, handler)
}

type server struct {
	handler transport.Handler
}

func (s *server) Chat(ctx context.Context, msg *message.Message) (*message.Reply, error) {
	if msg.Source == "" {
		msg.Source = "grpc"
	}
	reply, err := s.handler(ctx, msg)
	if err != nil {
		slog.Error("grpc chat failed", "error", err)
		return nil, status.Error(codes.Internal, "internal error")
	}
	return reply, nil
}

// Transport implements transport.Transport over gRPC.
type Transport struct {
	port   int
	impl   *server
	server *grpc.Server
}

// New creates a new gRPC transport on the given port.
func New(port int) *Transport {
	impl := &server{}
	gs := grpc.NewServer()
	gs.RegisterService(&serviceDesc, impl)
	return &Transport{port: port, impl: impl, server: gs}
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "grpc" }

// Listen starts the gRPC server and routes incoming requests to the handler.
func (t *Transport) Listen(ctx context.Context, handler transport.Handler) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", t.port))
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	slog.Info("grpc transport listening", "port", t.port)

	go func() {
		<-ctx.Done()
		slog.Info("grpc transport shutting down")
		t.server.GracefulStop()
	}()

	return t.Serve(lis, handler)
}

// Serve serves handler on lis until the server is stopped.
func (t *Transport) Serve(lis net.Listener, handler transport.Handler) error {
	t.impl.handler = handler
	if err := t.server.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}

// Close gracefully stops the gRPC server.
func (t *Transport) Close() error {
	t.server.GracefulStop()
	return nil
}

// Chat calls the Chat method over cc.
func Chat(ctx context.Context, cc grpc.ClientConnInterface, msg *message.Message) (*message.Reply, error) {
	reply := new(message.Reply)
	if err := cc.Invoke(ctx, ChatMethod, msg, reply, grpc.CallContentSubtype(jsonCodec{}.Name())); err != nil {
		return nil, err
	}
	return reply, nil
}
