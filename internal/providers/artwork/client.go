package artwork

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/station/internal/infrastructure/logging"
	"github.com/GriffinCanCode/station/internal/infrastructure/resilience"
)

// ErrNotFound is returned when the CDN has no artwork for an app
var ErrNotFound = errors.New("artwork not found")

// Config holds the download settings
type Config struct {
	BaseURL  string
	CacheDir string
	Timeout  time.Duration
	// RateLimit is requests per second; zero means unlimited
	RateLimit    float64
	MaxRetries   int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Breaker      resilience.Settings
}

// DefaultConfig returns settings suited to the public Steam CDN
func DefaultConfig() Config {
	return Config{
		BaseURL:      "https://cdn.cloudflare.steamstatic.com/steam/apps",
		Timeout:      15 * time.Second,
		RateLimit:    4,
		MaxRetries:   3,
		RetryWaitMin: time.Second,
		RetryWaitMax: 10 * time.Second,
		Breaker: resilience.Settings{
			Threshold: 10,
			Cooldown:  time.Minute,
		},
	}
}

// Client fetches and caches header images
type Client struct {
	cfg     Config
	resty   *resty.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
	flight  singleflight.Group
	logger  *logging.Logger
}

// New creates a client. cfg.BaseURL and cfg.CacheDir are required.
func New(cfg Config, logger *logging.Logger) *Client {
	logger = logger.Component("artwork")

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.MaxRetries
	retryClient.RetryWaitMin = cfg.RetryWaitMin
	retryClient.RetryWaitMax = cfg.RetryWaitMax
	retryClient.Logger = leveled{logger.Sugar()}

	restyClient := resty.NewWithClient(retryClient.StandardClient()).
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", "Station-Artwork/1.0")

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(1, int(cfg.RateLimit)))
	}

	return &Client{
		cfg:     cfg,
		resty:   restyClient,
		limiter: limiter,
		breaker: resilience.New("steam-artwork", cfg.Breaker),
		logger:  logger,
	}
}

// Path is where the header image of appID is cached
func (c *Client) Path(appID string) string {
	return filepath.Join(c.cfg.CacheDir, appID+"_header.jpg")
}

// HeaderImage returns the cached header image of appID, downloading it
// first if needed. Concurrent calls for one app share a download.
func (c *Client) HeaderImage(ctx context.Context, appID string) (string, error) {
	if _, err := strconv.ParseUint(appID, 10, 32); err != nil {
		return "", fmt.Errorf("invalid steam app id %q", appID)
	}
	path := c.Path(appID)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	_, err, _ := c.flight.Do(appID, func() (any, error) {
		return nil, c.download(ctx, appID, path)
	})
	if err != nil {
		return "", err
	}
	return path, nil
}

func (c *Client) download(ctx context.Context, appID, path string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit error: %w", err)
	}

	var body []byte
	err := c.breaker.Do(func() error {
		resp, err := c.resty.R().
			SetContext(ctx).
			SetPathParam("appid", appID).
			Get("/{appid}/header.jpg")
		if err != nil {
			return err
		}
		switch {
		case resp.StatusCode() == 404:
			// A missing image says nothing about CDN health
			body = nil
			return nil
		case resp.IsError():
			return fmt.Errorf("unexpected status %s", resp.Status())
		}
		body = resp.Body()
		return nil
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return fmt.Errorf("artwork service unavailable: %w", err)
	}
	if err != nil {
		return fmt.Errorf("failed to download artwork for %s: %w", appID, err)
	}
	if body == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, appID)
	}

	if mtype := mimetype.Detect(body); !strings.HasPrefix(mtype.String(), "image/") {
		return fmt.Errorf("artwork for %s is %s, not an image", appID, mtype.String())
	}
	if err := writeAtomic(path, body); err != nil {
		return err
	}
	c.logger.Debug("Downloaded artwork", zap.String("app_id", appID), zap.Int("bytes", len(body)))
	return nil
}

// Breaker exposes the download breaker state
func (c *Client) Breaker() resilience.State {
	return c.breaker.State()
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create artwork cache: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".artwork-*")
	if err != nil {
		return fmt.Errorf("failed to create artwork file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write artwork: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write artwork: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// leveled adapts zap to retryablehttp's LeveledLogger
type leveled struct {
	s *zap.SugaredLogger
}

func (l leveled) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveled) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
func (l leveled) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l leveled) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
