package artwork

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/station/internal/infrastructure/logging"
	"github.com/GriffinCanCode/station/internal/infrastructure/resilience"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

type cdn struct {
	hits  atomic.Int32
	flaky atomic.Int32 // requests left to fail with 503
}

func (c *cdn) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.hits.Add(1)
	if c.flaky.Load() > 0 {
		c.flaky.Add(-1)
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	switch r.URL.Path {
	case "/620/header.jpg":
		_, _ = w.Write(pngBytes)
	case "/999/header.jpg":
		_, _ = w.Write([]byte("<html>maintenance</html>"))
	default:
		http.NotFound(w, r)
	}
}

func newClient(t *testing.T, handler http.Handler, tweak func(*Config)) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.CacheDir = t.TempDir()
	cfg.Timeout = 2 * time.Second
	cfg.RateLimit = 0
	cfg.RetryWaitMin = time.Millisecond
	cfg.RetryWaitMax = 5 * time.Millisecond
	if tweak != nil {
		tweak(&cfg)
	}
	return New(cfg, logging.NewNop())
}

func TestHeaderImage(t *testing.T) {
	tests := []struct {
		name         string
		appID        string
		flaky        int32
		wantErr      bool
		wantNotFound bool
	}{
		{name: "downloads image", appID: "620"},
		{name: "retries unavailable cdn", appID: "620", flaky: 2},
		{name: "missing artwork", appID: "1234", wantErr: true, wantNotFound: true},
		{name: "rejects non image", appID: "999", wantErr: true},
		{name: "rejects invalid id", appID: "../etc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := &cdn{}
			server.flaky.Store(tt.flaky)
			client := newClient(t, server, nil)

			path, err := client.HeaderImage(context.Background(), tt.appID)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.wantNotFound, errors.Is(err, ErrNotFound))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, client.Path(tt.appID), path)

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, pngBytes, data)
		})
	}
}

func TestHeaderImageServedFromCache(t *testing.T) {
	server := &cdn{}
	client := newClient(t, server, nil)

	_, err := client.HeaderImage(context.Background(), "620")
	require.NoError(t, err)
	_, err = client.HeaderImage(context.Background(), "620")
	require.NoError(t, err)

	assert.Equal(t, int32(1), server.hits.Load())
}

func TestBreakerOpensOnOutage(t *testing.T) {
	server := &cdn{}
	server.flaky.Store(1000)
	client := newClient(t, server, func(cfg *Config) {
		cfg.MaxRetries = 0
		cfg.Breaker = resilience.Settings{Threshold: 2, Cooldown: time.Hour}
	})

	for range 2 {
		_, err := client.HeaderImage(context.Background(), "620")
		require.Error(t, err)
	}
	assert.Equal(t, resilience.StateOpen, client.Breaker())

	hits := server.hits.Load()
	_, err := client.HeaderImage(context.Background(), "620")
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, hits, server.hits.Load())
}

func TestHeaderImageHonoursContext(t *testing.T) {
	client := newClient(t, &cdn{}, func(cfg *Config) {
		cfg.RateLimit = 0.001
	})
	// Drain the single token so the next call must wait
	_, err := client.HeaderImage(context.Background(), "620")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = client.HeaderImage(ctx, "440")
	assert.Error(t, err)
}
