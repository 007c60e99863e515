package transport

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/station/internal/infrastructure/logging"
	"github.com/GriffinCanCode/station/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/station/internal/infrastructure/tracing"
)

func startServer(t *testing.T, cfg ServerConfig, cipher Cipher) (*Server, chan Envelope, *monitoring.Metrics) {
	t.Helper()
	got := make(chan Envelope, 16)
	metrics := monitoring.NewMetrics()
	srv := NewServer(cfg, HandlerFunc(func(_ context.Context, env Envelope) { got <- env }), cipher, metrics, logging.NewNop())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})
	require.Eventually(t, func() bool { return srv.Addr() != nil }, time.Second, time.Millisecond)
	return srv, got, metrics
}

func write(t *testing.T, addr net.Addr, text string) {
	t.Helper()
	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	_, err = conn.Write([]byte(text))
	require.NoError(t, err)
	require.NoError(t, conn.Close())
}

func receive(t *testing.T, ch chan Envelope) Envelope {
	t.Helper()
	select {
	case env := <-ch:
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("no envelope received")
		return Envelope{}
	}
}

func TestServerDispatchesEnvelopes(t *testing.T) {
	srv, got, metrics := startServer(t, ServerConfig{}, nil)

	write(t, srv.Addr(), "NUC:Station1:Experience:Launch:620\n")
	assert.Equal(t, Envelope{Source: "NUC", Destination: "Station1", Namespace: "Experience", Payload: "Launch:620"}, receive(t, got))

	require.Eventually(t, func() bool {
		return metrics.Snapshot().CommandsIn == 1
	}, time.Second, time.Millisecond)
}

func TestServerDecrypts(t *testing.T) {
	box := NewSecretBox("secret")
	srv, got, _ := startServer(t, ServerConfig{}, box)

	sealed, err := box.Encrypt("NUC:Station1:Connection:Connect")
	require.NoError(t, err)
	write(t, srv.Addr(), sealed)
	assert.Equal(t, "Connection", receive(t, got).Namespace)

	// Plain text is rejected when a key is configured, and the server keeps accepting
	write(t, srv.Addr(), "NUC:Station1:Connection:Connect")
	write(t, srv.Addr(), sealed)
	assert.Equal(t, "Connect", receive(t, got).Payload)
	assert.Empty(t, got)
}

func TestServerDropsBadInput(t *testing.T) {
	srv, got, _ := startServer(t, ServerConfig{MaxMessageSize: 64}, nil)

	write(t, srv.Addr(), "garbage")
	write(t, srv.Addr(), "NUC:Station1:QA:"+strings.Repeat("x", 100))
	write(t, srv.Addr(), "")
	write(t, srv.Addr(), "NUC:Station1:Station:GetValue:volume")

	assert.Equal(t, "Station", receive(t, got).Namespace)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, got)
}

func TestServerRateLimit(t *testing.T) {
	srv, got, _ := startServer(t, ServerConfig{RateLimit: 0.001, Burst: 2}, nil)

	for i := 0; i < 4; i++ {
		write(t, srv.Addr(), "NUC:Station1:Connection:Connect")
	}
	receive(t, got)
	receive(t, got)
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, got)
}

func TestServerSurvivesHandlerPanic(t *testing.T) {
	got := make(chan Envelope, 4)
	srv := NewServer(ServerConfig{}, HandlerFunc(func(_ context.Context, env Envelope) {
		if env.Payload == "boom" {
			panic("handler failed")
		}
		got <- env
	}), nil, nil, logging.NewNop())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.Serve(ctx, ln) }()

	write(t, ln.Addr(), "NUC:Station1:QA:boom")
	write(t, ln.Addr(), "NUC:Station1:QA:ok")
	assert.Equal(t, "ok", receive(t, got).Payload)
}

func TestServerStopsOnCancel(t *testing.T) {
	srv := NewServer(ServerConfig{}, HandlerFunc(func(context.Context, Envelope) {}), nil, nil, logging.NewNop())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServerTracesEnvelopes(t *testing.T) {
	tracer := tracing.New(logging.NewNop())
	defer tracer.Close()

	ids := make(chan tracing.TraceID, 1)
	srv := NewServer(ServerConfig{}, HandlerFunc(func(ctx context.Context, _ Envelope) {
		ids <- tracing.GetTraceID(ctx)
	}), nil, nil, logging.NewNop()).WithTracer(tracer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()
	defer func() {
		cancel()
		assert.NoError(t, <-done)
	}()

	write(t, ln.Addr(), "NUC:Station1:Connection:Connect")
	select {
	case id := <-ids:
		assert.NotEmpty(t, id)
	case <-time.After(2 * time.Second):
		t.Fatal("handler not called")
	}
}
