package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/netutil"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/station/internal/infrastructure/logging"
	"github.com/GriffinCanCode/station/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/station/internal/infrastructure/tracing"
)

// Handler receives every accepted envelope on its connection's goroutine
type Handler interface {
	HandleEnvelope(ctx context.Context, env Envelope)
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, env Envelope)

func (f HandlerFunc) HandleEnvelope(ctx context.Context, env Envelope) { f(ctx, env) }

// ServerConfig tunes the inbound listener
type ServerConfig struct {
	Addr           string
	MaxConnections int
	RateLimit      float64 // Envelopes per second
	Burst          int
	MaxMessageSize int64
	ReadTimeout    time.Duration
}

// Server accepts one envelope per TCP connection
type Server struct {
	cfg     ServerConfig
	handler Handler
	cipher  Cipher
	limiter *rate.Limiter
	metrics *monitoring.Metrics
	tracer  *tracing.Tracer
	logger  *logging.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    sync.WaitGroup
}

// NewServer creates a server. A nil cipher reads plain text.
func NewServer(cfg ServerConfig, handler Handler, cipher Cipher, metrics *monitoring.Metrics, logger *logging.Logger) *Server {
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 64
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 1 << 20
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	if cipher == nil {
		cipher = Plain{}
	}
	return &Server{
		cfg:     cfg,
		handler: handler,
		cipher:  cipher,
		limiter: rate.NewLimiter(limit, max(cfg.Burst, 1)),
		metrics: metrics,
		logger:  logger.Component("transport"),
	}
}

// WithTracer opens a span for every accepted envelope
func (s *Server) WithTracer(tracer *tracing.Tracer) *Server {
	s.tracer = tracer
	return s
}

// ListenAndServe listens on the configured address until ctx ends
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections from ln until ctx ends, then waits for
// in-flight handlers.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ln = netutil.LimitListener(ln, s.cfg.MaxConnections)
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("Listening for commands",
		zap.String("addr", ln.Addr().String()),
		zap.Int("max_connections", s.cfg.MaxConnections),
	)

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()
	defer s.conns.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Warn("Accept failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}
		s.conns.Add(1)
		go s.serveConn(ctx, conn)
	}
}

// Addr returns the listening address, or nil before Serve
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer s.conns.Done()
	defer conn.Close()
	defer s.logger.Recover("inbound connection")

	remote := conn.RemoteAddr().String()
	if err := conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout)); err != nil {
		s.logger.Debug("Failed to set read deadline", zap.Error(err))
	}

	data, err := io.ReadAll(io.LimitReader(conn, s.cfg.MaxMessageSize+1))
	if err != nil && len(data) == 0 {
		s.drop("read", remote, err)
		return
	}
	if int64(len(data)) > s.cfg.MaxMessageSize {
		s.drop("oversize", remote, nil)
		return
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return
	}
	if !s.limiter.Allow() {
		s.drop("rate_limited", remote, nil)
		return
	}

	plain, err := s.cipher.Decrypt(text)
	if err != nil {
		s.drop("decrypt", remote, err)
		return
	}
	env, err := ParseEnvelope(plain)
	if err != nil {
		s.drop("malformed", remote, err)
		return
	}

	s.metrics.RecordCommand(env.Namespace)
	span, ctx := s.tracer.StartSpan(ctx, "envelope")
	defer s.tracer.Submit(span)
	span.SetTag("source", env.Source)
	span.SetTag("namespace", env.Namespace)

	s.logger.Debug("Received command",
		zap.String("source", env.Source),
		zap.String("namespace", env.Namespace),
		tracing.Field(ctx),
	)
	s.handler.HandleEnvelope(ctx, env)
}

func (s *Server) drop(reason, remote string, err error) {
	s.metrics.RecordInboundDropped(reason)
	fields := []zap.Field{zap.String("reason", reason), zap.String("remote", remote)}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	s.logger.Warn("Dropped inbound message", fields...)
}
