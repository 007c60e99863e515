package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/station/internal/infrastructure/logging"
	"github.com/GriffinCanCode/station/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/station/internal/infrastructure/resilience"
)

// SenderConfig tunes outbound delivery
type SenderConfig struct {
	Addr        string // The NUC, which also relays to the tablet
	Source      string // This Station's name on the wire
	DialTimeout time.Duration
	QueueSize   int
	Breaker     resilience.Settings
}

type outbound struct {
	destination string
	payload     string
}

// Sender delivers outbound messages in order on a single worker. Send
// never blocks; a full queue drops the message.
type Sender struct {
	cfg     SenderConfig
	cipher  Cipher
	dialer  *net.Dialer
	queue   chan outbound
	breaker *resilience.Breaker
	metrics *monitoring.Metrics
	logger  *logging.Logger
}

// NewSender creates a sender. Call Run to start delivery.
func NewSender(cfg SenderConfig, cipher Cipher, metrics *monitoring.Metrics, logger *logging.Logger) *Sender {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 3 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cipher == nil {
		cipher = Plain{}
	}
	logger = logger.Component("sender")

	settings := cfg.Breaker
	onChange := settings.OnStateChange
	settings.OnStateChange = func(name string, from, to resilience.State) {
		metrics.SetBreakerState(int(to))
		logger.Info("Outbound breaker changed state",
			zap.String("peer", name),
			zap.Stringer("from", from),
			zap.Stringer("to", to),
		)
		if onChange != nil {
			onChange(name, from, to)
		}
	}

	return &Sender{
		cfg:     cfg,
		cipher:  cipher,
		dialer:  &net.Dialer{Timeout: cfg.DialTimeout},
		queue:   make(chan outbound, cfg.QueueSize),
		breaker: resilience.New(cfg.Addr, settings),
		metrics: metrics,
		logger:  logger,
	}
}

// Send queues payload for destination
func (s *Sender) Send(destination, payload string) {
	select {
	case s.queue <- outbound{destination: destination, payload: payload}:
	default:
		s.metrics.RecordSendFailure()
		s.logger.Warn("Outbound queue full, dropping message",
			zap.String("destination", destination),
			zap.String("payload", payload),
		)
	}
}

// Run delivers queued messages until ctx ends
func (s *Sender) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-s.queue:
			s.deliver(ctx, m)
		}
	}
}

// Breaker exposes the outbound circuit breaker
func (s *Sender) Breaker() *resilience.Breaker { return s.breaker }

func (s *Sender) deliver(ctx context.Context, m outbound) {
	defer s.logger.Recover("outbound send")

	text := Outbound(m.destination, s.cfg.Source, m.payload)
	err := s.breaker.Do(func() error {
		return s.write(ctx, text)
	})
	if err != nil {
		s.metrics.RecordSendFailure()
		s.logger.Warn("Failed to send message",
			zap.String("destination", m.destination),
			zap.String("payload", m.payload),
			zap.Error(err),
		)
	}
}

func (s *Sender) write(ctx context.Context, text string) error {
	sealed, err := s.cipher.Encrypt(text)
	if err != nil {
		return err
	}
	conn, err := s.dialer.DialContext(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", s.cfg.Addr, err)
	}
	defer conn.Close()

	if err := conn.SetWriteDeadline(time.Now().Add(s.cfg.DialTimeout)); err != nil {
		return err
	}
	if _, err := conn.Write([]byte(sealed)); err != nil {
		return fmt.Errorf("failed to write to %s: %w", s.cfg.Addr, err)
	}
	return nil
}
