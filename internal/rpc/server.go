package rpc

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/rabbitbridge/rabbitbridge/internal/broker"
)

// HandlerFunc services one method. The returned value is encoded into the
// reply; a returned error is carried to the caller as a remote failure.
type HandlerFunc func(ctx context.Context, args msgpack.RawMessage) (any, error)

// Server consumes a request queue and dispatches to registered handlers.
// Requests carrying correlation metadata are answered on their reply-to
// queue; fire-and-forget requests are not.
type Server struct {
	conn   broker.Connection
	queue  string
	logger *slog.Logger

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewServer creates a server consuming queue on conn.
func NewServer(conn broker.Connection, queue string, logger *slog.Logger) *Server {
	return &Server{
		conn:     conn,
		queue:    queue,
		logger:   logger,
		handlers: make(map[string]HandlerFunc),
	}
}

// Handle registers h for method, replacing any previous registration.
func (s *Server) Handle(method string, h HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = h
}

// Serve declares the request queue and starts consuming it. It returns once
// the consumer is installed; deliveries are dispatched on their own
// goroutines so a slow handler does not stall the queue.
func (s *Server) Serve(ctx context.Context) error {
	if _, err := s.conn.DeclareQueue(s.queue, false); err != nil {
		return fmt.Errorf("declare request queue: %w", err)
	}
	return s.conn.Subscribe(ctx, s.queue, func(d broker.Delivery) {
		go s.dispatch(ctx, d)
	})
}

func (s *Server) dispatch(ctx context.Context, d broker.Delivery) {
	req, err := decodeRequest(d.Body)
	if err != nil {
		s.logger.Error("dropping malformed request", "queue", s.queue, "error", err)
		s.reply(ctx, d, nil, err)
		return
	}

	s.mu.RLock()
	handler, ok := s.handlers[req.Method]
	s.mu.RUnlock()
	if !ok {
		s.logger.Warn("no handler registered", "method", req.Method)
		s.reply(ctx, d, nil, fmt.Errorf("unknown method %q", req.Method))
		return
	}

	result, err := handler(ctx, req.Args)
	if err != nil {
		s.logger.Error("handler failed", "method", req.Method, "error", err)
	}
	s.reply(ctx, d, result, err)
}

// reply answers a request-reply delivery on its reply-to queue. Deliveries
// without correlation metadata are fire-and-forget and get no answer.
func (s *Server) reply(ctx context.Context, d broker.Delivery, result any, handlerErr error) {
	if d.ReplyTo == "" || d.CorrelationID == "" {
		return
	}

	body, err := encodeResponse(result, handlerErr)
	if err != nil {
		s.logger.Error("encoding reply", "error", err)
		body, err = encodeResponse(nil, err)
		if err != nil {
			return
		}
	}

	err = s.conn.Publish(ctx, "", d.ReplyTo, broker.Message{
		Body:          body,
		ContentType:   contentTypeMsgpack,
		CorrelationID: d.CorrelationID,
	})
	if err != nil {
		s.logger.Error("publishing reply", "reply_to", d.ReplyTo, "error", err)
	}
}
