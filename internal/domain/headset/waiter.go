package headset

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/station/internal/infrastructure/logging"
	"github.com/GriffinCanCode/station/internal/shared/types"
)

var (
	ErrManualMode       = errors.New("automatic VR session start is disabled")
	ErrAlreadyLaunching = errors.New("an experience is already launching")
	ErrTimedOut         = errors.New("headset connection timed out")
	ErrCancelled        = errors.New("headset connection wait cancelled")
)

// Notices forwarded to the tablet while waiting
const (
	NoticeManualMode       = "ManualMode"
	NoticeAlreadyLaunching = "AlreadyLaunching"
	NoticeStartingSession  = "StartingVRSession"
	NoticeAwaitingHeadset  = "AwaitingHeadsetConnection"
	NoticeSessionRestarted = "SessionRestarted"
	NoticeHeadsetTimeout   = "HeadsetTimeout"
)

// LaunchGuard is the per-wrapper flag preventing concurrent launches
type LaunchGuard interface {
	// TryBeginLaunch sets the flag and reports whether it was clear
	TryBeginLaunch() bool
	// EndLaunch clears the flag
	EndLaunch()
}

// WaitConfig holds the polling budget of the protocol
type WaitConfig struct {
	AutoStart           bool
	PollInterval        time.Duration
	VendorStartInterval time.Duration
	OffRetries          int
	ConnectRetries      int
}

// Waiter runs the connection-wait protocol
type Waiter struct {
	cfg      WaitConfig
	status   func() types.DeviceStatus
	start    func(ctx context.Context) error
	reporter types.Reporter
	logger   *logging.Logger

	mu     sync.Mutex
	active map[chan struct{}]struct{} // One wake channel per running Wait
}

// NewWaiter creates a waiter that polls status and calls start while Off
func NewWaiter(cfg WaitConfig, status func() types.DeviceStatus, start func(ctx context.Context) error, reporter types.Reporter, logger *logging.Logger) *Waiter {
	return &Waiter{
		cfg:      cfg,
		status:   status,
		start:    start,
		reporter: reporter,
		logger:   logger.Component("headset.wait"),
		active:   make(map[chan struct{}]struct{}),
	}
}

// Stop cancels every wait in progress. A call made while no wait is
// polling is dropped.
func (w *Waiter) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for wake := range w.active {
		close(wake)
		delete(w.active, wake)
	}
}

// Polling reports whether a wait is in progress and not yet stopped
func (w *Waiter) Polling() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.active) > 0
}

// Wait blocks until the management software reports Connected. It
// returns ErrManualMode, ErrAlreadyLaunching, ErrTimedOut or ErrCancelled
// otherwise. The guard is always released on return if Wait acquired it.
func (w *Waiter) Wait(ctx context.Context, wrapper types.WrapperType, guard LaunchGuard) error {
	if !w.cfg.AutoStart {
		w.notice(NoticeManualMode, wrapper)
		return ErrManualMode
	}
	if !guard.TryBeginLaunch() {
		w.notice(NoticeAlreadyLaunching, wrapper)
		return ErrAlreadyLaunching
	}
	defer guard.EndLaunch()

	wake := make(chan struct{})
	w.mu.Lock()
	w.active[wake] = struct{}{}
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		delete(w.active, wake)
		w.mu.Unlock()
	}()

	offPolls, connectPolls := 0, 0
	awaiting := false
	for {
		if cancelled(wake) {
			w.logger.Info("Connection wait cancelled", zap.String("wrapper", string(wrapper)))
			// ApplicationClosed also resets the tablet status to On
			w.reporter.PassMessage(types.NewMessage(types.KindApplicationClosed))
			return ErrCancelled
		}

		var pause time.Duration
		switch w.status() {
		case types.DeviceConnected:
			w.logger.Info("Headset connected", zap.String("wrapper", string(wrapper)))
			w.state(types.StateReady)
			return nil

		case types.DeviceOff:
			if err := w.start(ctx); err != nil {
				w.logger.Warn("Failed to start VR session", zap.Error(err))
			}
			w.notice(NoticeStartingSession, wrapper)
			offPolls++
			if offPolls >= w.cfg.OffRetries {
				return w.timeout(wrapper, offPolls)
			}
			pause = w.cfg.VendorStartInterval

		default:
			if !awaiting {
				awaiting = true
				w.state(types.StateAwaiting)
				w.notice(NoticeAwaitingHeadset, wrapper)
				w.notice(NoticeSessionRestarted, wrapper)
			}
			connectPolls++
			if connectPolls >= w.cfg.ConnectRetries {
				return w.timeout(wrapper, connectPolls)
			}
			pause = w.cfg.PollInterval
		}

		select {
		case <-ctx.Done():
			return errors.Join(ErrCancelled, ctx.Err())
		case <-wake:
		case <-time.After(pause):
		}
	}
}

func cancelled(wake <-chan struct{}) bool {
	select {
	case <-wake:
		return true
	default:
		return false
	}
}

func (w *Waiter) timeout(wrapper types.WrapperType, polls int) error {
	w.logger.Warn("Headset connection timed out",
		zap.String("wrapper", string(wrapper)),
		zap.Int("polls", polls),
	)
	w.notice(NoticeHeadsetTimeout, wrapper)
	w.state(types.StateErrorVive)
	return ErrTimedOut
}

func (w *Waiter) notice(text string, wrapper types.WrapperType) {
	w.reporter.PassMessage(types.NewMessage(types.KindMessageToAndroid, text, string(wrapper)))
}

func (w *Waiter) state(label string) {
	w.reporter.PassMessage(types.NewMessage(types.KindSoftwareState, label))
}
