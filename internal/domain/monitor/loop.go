package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/GriffinCanCode/station/internal/infrastructure/logging"
	"github.com/GriffinCanCode/station/internal/infrastructure/monitoring"
)

// Loop calls tick every interval until stopped
type Loop struct {
	name     string
	interval time.Duration
	tick     func(ctx context.Context)
	metrics  *monitoring.Metrics
	logger   *logging.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewLoop creates a stopped loop. Non-positive intervals tick every second.
func NewLoop(name string, interval time.Duration, tick func(ctx context.Context), metrics *monitoring.Metrics, logger *logging.Logger) *Loop {
	if interval <= 0 {
		interval = time.Second
	}
	return &Loop{
		name:     name,
		interval: interval,
		tick:     tick,
		metrics:  metrics,
		logger:   logger,
	}
}

// Start begins ticking, restarting the loop if it is already running.
// The first tick runs immediately.
func (l *Loop) Start(ctx context.Context) {
	l.Stop()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	l.mu.Lock()
	l.cancel = cancel
	l.done = done
	l.mu.Unlock()

	go l.run(runCtx, done)
}

// Stop cancels the loop and waits for an in-flight tick to finish
func (l *Loop) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the loop is ticking
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cancel != nil
}

func (l *Loop) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		l.once(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (l *Loop) once(ctx context.Context) {
	defer l.logger.Recover(l.name + " tick")
	timer := monitoring.NewTimer(l.metrics, l.name)
	defer timer.Stop()
	l.tick(ctx)
}
