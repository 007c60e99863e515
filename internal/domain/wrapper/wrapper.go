package wrapper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/station/internal/domain/headset"
	"github.com/GriffinCanCode/station/internal/domain/process"
	"github.com/GriffinCanCode/station/internal/infrastructure/logging"
	"github.com/GriffinCanCode/station/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/station/internal/providers/manifest"
	"github.com/GriffinCanCode/station/internal/providers/vrruntime"
	"github.com/GriffinCanCode/station/internal/providers/window"
	"github.com/GriffinCanCode/station/internal/shared/types"
)

// Launching is the result string of an accepted launch
const Launching = "launching"

var (
	ErrUnknownExperience = errors.New("unknown experience")
	ErrNothingToRestart  = errors.New("no experience to restart")
	ErrDiscoveryFailed   = errors.New("experience process did not appear")
)

// Target is a resolved launch plan
type Target struct {
	Name       string
	RuntimeKey string // Launch through the VR runtime when registered
	Path       string
	Args       []string
	Dir        string
	MatchNames []string // Process names identifying the running experience
	MatchTitle string   // Window title substring identifying it
	Launcher   bool     // The started process only hands off to the experience
}

// Variant is the mechanism-specific half of a wrapper
type Variant interface {
	Type() types.WrapperType
	// Collect scans the variant's manifest
	Collect(ctx context.Context) ([]types.ExperienceSummary, error)
	Resolve(exp types.Experience) (Target, error)
	HeaderImage(id string) (string, error)
	// ProcessNames are the processes that must stay healthy while one of
	// the variant's experiences runs
	ProcessNames() []string
}

// Headset is the part of the headset driver wrappers rely on
type Headset interface {
	WaitForConnection(ctx context.Context, wrapper types.WrapperType, guard headset.LaunchGuard) error
	StopMonitoring()
	StopProcessesBeforeLaunch()
}

// ImageQueue accepts header images for delivery
type ImageQueue interface {
	Enqueue(kind, name, path string)
}

// Hooks start the session-level work a launch needs
type Hooks struct {
	StartSession    func(ctx context.Context, wrapper types.WrapperType)
	StartMonitoring func(wrapper types.WrapperType)
}

// Config holds the launch budget
type Config struct {
	RequireHeadset    bool
	DiscoveryAttempts int
	DiscoveryInterval time.Duration
	RuntimeTimeout    time.Duration
}

// Deps are the collaborators of a wrapper
type Deps struct {
	Supervisor process.Supervisor
	Runtime    vrruntime.Runtime
	Headset    Headset
	Windows    window.Manager
	Images     ImageQueue
	Reporter   types.Reporter
	Hooks      Hooks
	Metrics    *monitoring.Metrics
	Logger     *logging.Logger
}

// Wrapper owns the single tracked process of one launch mechanism
type Wrapper struct {
	variant Variant
	cfg     Config
	deps    Deps
	logger  *logging.Logger

	mu      sync.Mutex
	current *process.Handle
	last    types.Experience
	watched map[*process.Handle]bool
	cancel  context.CancelFunc // Ends the background half of the last launch

	launching      atomic.Bool
	runtimeTimeout atomic.Bool
}

// New creates a wrapper around variant
func New(variant Variant, cfg Config, deps Deps) *Wrapper {
	if deps.Runtime == nil {
		deps.Runtime = vrruntime.Null{}
	}
	if deps.Windows == nil {
		deps.Windows = window.NewRecorder()
	}
	if cfg.DiscoveryAttempts <= 0 {
		cfg.DiscoveryAttempts = 15
	}
	if cfg.DiscoveryInterval <= 0 {
		cfg.DiscoveryInterval = 3 * time.Second
	}
	if cfg.RuntimeTimeout <= 0 {
		cfg.RuntimeTimeout = 45 * time.Second
	}
	return &Wrapper{
		variant: variant,
		cfg:     cfg,
		deps:    deps,
		logger:  deps.Logger.Component("wrapper." + strings.ToLower(string(variant.Type()))),
		watched: make(map[*process.Handle]bool),
	}
}

// Type returns the launch mechanism of the wrapper
func (w *Wrapper) Type() types.WrapperType { return w.variant.Type() }

// ProcessNames lists the processes the wrapper loop checks
func (w *Wrapper) ProcessNames() []string { return w.variant.ProcessNames() }

// TryBeginLaunch implements headset.LaunchGuard
func (w *Wrapper) TryBeginLaunch() bool { return w.launching.CompareAndSwap(false, true) }

// EndLaunch implements headset.LaunchGuard
func (w *Wrapper) EndLaunch() { w.launching.Store(false) }

// Launching reports whether a headset wait is in progress
func (w *Wrapper) Launching() bool { return w.launching.Load() }

// LaunchFailedFromOpenVRTimeout reports whether the last runtime launch
// neither succeeded nor failed before its timeout
func (w *Wrapper) LaunchFailedFromOpenVRTimeout() bool { return w.runtimeTimeout.Load() }

// LastExperience returns the experience most recently launched
func (w *Wrapper) LastExperience() types.Experience {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

// SetLastExperience replaces the last experience
func (w *Wrapper) SetLastExperience(exp types.Experience) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.last = exp
}

// CurrentExperienceName returns the name of the last experience, if set
func (w *Wrapper) CurrentExperienceName() (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last.Name, w.last.Name != ""
}

// HasCurrentProcess reports whether a process is tracked
func (w *Wrapper) HasCurrentProcess() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current != nil
}

// CurrentProcess returns the tracked process handle
func (w *Wrapper) CurrentProcess() *process.Handle {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// CheckCurrentProcess reports whether the tracked process responds.
// known is false when nothing is tracked.
func (w *Wrapper) CheckCurrentProcess() (responding bool, known bool) {
	return w.deps.Supervisor.IsResponding(w.CurrentProcess())
}

// Launch runs WrapProcess and renders its outcome for the tablet
func (w *Wrapper) Launch(ctx context.Context, exp types.Experience) string {
	if err := w.WrapProcess(ctx, exp); err != nil {
		return err.Error()
	}
	return Launching
}

// WrapProcess launches exp. A nil error means the launch was accepted
// and continues in the background; every failure has already been
// reported when it returns.
func (w *Wrapper) WrapProcess(ctx context.Context, exp types.Experience) error {
	kind := w.Type()
	if exp.ID == "" || exp.Name == "" {
		w.report(types.KindGameLaunchFailed, "Unknown experience")
		w.deps.Metrics.RecordLaunch(string(kind), "unknown")
		return ErrUnknownExperience
	}
	exp.Type = kind

	target, err := w.variant.Resolve(exp)
	if err != nil {
		w.logger.Warn("Failed to resolve experience", zap.String("id", exp.ID), zap.Error(err))
		w.report(types.KindGameLaunchFailed, exp.Name)
		w.deps.Metrics.RecordLaunch(string(kind), "unresolved")
		return fmt.Errorf("failed to resolve experience %s: %w", exp.ID, err)
	}
	if target.Name != "" {
		exp.Name = target.Name
	}

	launchID := uuid.NewString()
	logger := w.logger.With(zap.String("launch", launchID), zap.String("id", exp.ID))
	logger.Info("Launching experience", zap.String("name", exp.Name))

	w.mu.Lock()
	w.last = exp
	w.mu.Unlock()

	if h := w.deps.Hooks.StartSession; h != nil {
		h(ctx, kind)
	}
	if h := w.deps.Hooks.StartMonitoring; h != nil {
		h(kind)
	}

	if w.cfg.RequireHeadset && exp.IsVR && w.deps.Headset != nil {
		if err := w.deps.Headset.WaitForConnection(ctx, kind, w); err != nil {
			w.mu.Lock()
			w.last.Name = ""
			w.mu.Unlock()
			logger.Warn("Headset not ready, launch abandoned", zap.Error(err))
			w.deps.Metrics.RecordLaunch(string(kind), "headset")
			return fmt.Errorf("headset not ready for %s: %w", exp.Name, err)
		}
	}
	if w.deps.Headset != nil {
		w.deps.Headset.StopProcessesBeforeLaunch()
	}

	w.killCurrent()
	launchCtx := w.beginLaunch(ctx)

	w.runtimeTimeout.Store(false)
	if target.RuntimeKey != "" {
		w.runtimeTimeout.Store(true)
		results, err := w.deps.Runtime.Launch(launchCtx, target.RuntimeKey)
		switch {
		case err == nil:
			w.deps.Metrics.RecordLaunch(string(kind), Launching)
			go w.awaitRuntime(launchCtx, exp, target, results, logger)
			return nil
		case errors.Is(err, vrruntime.ErrNotRegistered), errors.Is(err, vrruntime.ErrNotRunning):
			logger.Debug("Runtime launch not applicable, starting directly", zap.Error(err))
		default:
			logger.Warn("Runtime launch failed, starting directly", zap.Error(err))
		}
		w.runtimeTimeout.Store(false)
	}

	if err := w.launchDirect(launchCtx, exp, target, logger); err != nil {
		return err
	}
	w.deps.Metrics.RecordLaunch(string(kind), Launching)
	return nil
}

// beginLaunch cancels the background work of any previous launch and
// returns a context for the new one that outlives the caller's
func (w *Wrapper) beginLaunch(ctx context.Context) context.Context {
	launchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	w.mu.Lock()
	prev := w.cancel
	w.cancel = cancel
	w.mu.Unlock()
	if prev != nil {
		prev()
	}
	return launchCtx
}

func (w *Wrapper) cancelLaunch() {
	w.mu.Lock()
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// awaitRuntime resolves a runtime launch. The timeout flag is cleared
// only on a concrete result.
func (w *Wrapper) awaitRuntime(ctx context.Context, exp types.Experience, target Target, results <-chan vrruntime.LaunchResult, logger *logging.Logger) {
	defer logger.Recover("runtime launch")

	timer := time.NewTimer(w.cfg.RuntimeTimeout)
	defer timer.Stop()

	select {
	case res, ok := <-results:
		if !ok {
			return
		}
		w.runtimeTimeout.Store(false)
		if res.Err != nil {
			logger.Warn("Runtime reported launch failure, starting directly", zap.Error(res.Err))
			_ = w.launchDirect(ctx, exp, target, logger)
			return
		}
		h, err := w.deps.Supervisor.Attach(res.PID)
		if err != nil {
			logger.Warn("Runtime-launched process vanished", zap.Int("pid", res.PID), zap.Error(err))
			w.discover(ctx, exp, target, nil, logger)
			return
		}
		w.adopt(exp, h, logger)

	case <-timer.C:
		logger.Warn("Runtime launch timed out", zap.Duration("timeout", w.cfg.RuntimeTimeout))
		w.report(types.KindGameLaunchFailed, exp.Name)
		w.deps.Metrics.RecordLaunch(string(exp.Type), "timeout")

	case <-ctx.Done():
	}
}

// launchDirect starts target.Path and polls for the experience process
func (w *Wrapper) launchDirect(ctx context.Context, exp types.Experience, target Target, logger *logging.Logger) error {
	h, err := w.deps.Supervisor.Start(ctx, process.Spec{Path: target.Path, Args: target.Args, Dir: target.Dir})
	if err != nil {
		var nf *process.NotFoundError
		if errors.As(err, &nf) {
			logger.Warn("Executable not found", zap.String("path", nf.Path))
			w.report(types.KindStationError, "Executable not found: "+nf.Path)
			w.report(types.KindGameLaunchFailed, exp.Name)
			w.deps.Metrics.RecordLaunch(string(exp.Type), "not_found")
			return fmt.Errorf("failed to launch %s: %w", exp.Name, err)
		}
		logger.Warn("Failed to start experience", zap.Error(err))
		w.report(types.KindGameLaunchFailed, exp.Name)
		w.deps.Metrics.RecordLaunch(string(exp.Type), "start_failed")
		return fmt.Errorf("failed to launch %s: %w", exp.Name, err)
	}

	if target.Launcher {
		go w.discover(ctx, exp, target, nil, logger)
		return nil
	}
	w.track(h)
	go w.discover(ctx, exp, target, h, logger)
	return nil
}

// discover polls for the experience process, then maximizes it and
// announces the launch. started is the tracked process when the
// executable is the experience itself.
func (w *Wrapper) discover(ctx context.Context, exp types.Experience, target Target, started *process.Handle, logger *logging.Logger) {
	defer logger.Recover("discover")

	for attempt := 1; attempt <= w.cfg.DiscoveryAttempts; attempt++ {
		if started != nil && started.Exited() {
			return
		}
		if info, ok := w.find(target, started); ok {
			if started != nil {
				w.announce(exp, info.PID, logger)
				return
			}
			h, err := w.deps.Supervisor.Attach(info.PID)
			if err == nil {
				w.adopt(exp, h, logger)
				return
			}
			logger.Debug("Discovered process exited before attach", zap.Int("pid", info.PID))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.cfg.DiscoveryInterval):
		}
	}

	logger.Warn("Experience process not found", zap.Int("attempts", w.cfg.DiscoveryAttempts))
	if started != nil {
		w.mu.Lock()
		current := w.current == started
		if current {
			w.current = nil
		}
		w.mu.Unlock()
		if err := w.deps.Supervisor.Kill(started, true); err != nil {
			logger.Debug("Failed to clean up launch", zap.Error(err))
		}
	}
	w.report(types.KindGameLaunchFailed, exp.Name)
	w.deps.Metrics.RecordLaunch(string(exp.Type), "discovery")
}

// find looks for the experience by name, then by window title. A
// started process with no matchers is its own match.
func (w *Wrapper) find(target Target, started *process.Handle) (process.Info, bool) {
	if len(target.MatchNames) > 0 {
		infos, err := w.deps.Supervisor.FindByName(target.MatchNames...)
		if err == nil && len(infos) > 0 {
			return pick(infos, started), true
		}
	}
	if target.MatchTitle != "" {
		infos, err := w.deps.Supervisor.FindByWindowTitle(target.MatchTitle)
		if err == nil && len(infos) > 0 {
			return pick(infos, started), true
		}
	}
	if started != nil && len(target.MatchNames) == 0 && target.MatchTitle == "" {
		return process.Info{PID: started.PID, Name: started.Name}, true
	}
	return process.Info{}, false
}

// pick prefers the started process among several matches
func pick(infos []process.Info, started *process.Handle) process.Info {
	if started != nil {
		for _, info := range infos {
			if info.PID == started.PID {
				return info
			}
		}
	}
	return infos[0]
}

// track makes h the current process, killing any other
func (w *Wrapper) track(h *process.Handle) {
	w.mu.Lock()
	prev := w.current
	w.current = h
	w.last.Status = types.ExperienceRunning
	w.mu.Unlock()

	if prev != nil && prev != h {
		if err := w.deps.Supervisor.Kill(prev, true); err != nil {
			w.logger.Warn("Failed to stop previous experience", zap.Int("pid", prev.PID), zap.Error(err))
		}
	}
	w.listenForClose(h)
}

// adopt tracks a process the wrapper did not start and announces it
func (w *Wrapper) adopt(exp types.Experience, h *process.Handle, logger *logging.Logger) {
	w.track(h)
	w.announce(exp, h.PID, logger)
}

func (w *Wrapper) announce(exp types.Experience, pid int, logger *logging.Logger) {
	if err := w.deps.Windows.Maximize(pid); err != nil && !errors.Is(err, window.ErrUnsupported) {
		logger.Debug("Failed to maximize experience", zap.Int("pid", pid), zap.Error(err))
	}
	logger.Info("Experience running", zap.Int("pid", pid))
	w.report(types.KindApplicationUpdate, exp.Name, exp.ID, string(exp.Type))
	w.deps.Metrics.RecordLaunch(string(exp.Type), "launched")
}

// SetCurrentProcess tracks a process the VR runtime reports it started
func (w *Wrapper) SetCurrentProcess(h *process.Handle) {
	if h == nil {
		return
	}
	w.runtimeTimeout.Store(false)
	exp := w.LastExperience()
	w.adopt(exp, h, w.logger.With(zap.String("id", exp.ID)))
}

// ListenForClose watches the current process. ApplicationClosed is
// reported once, when the process exits while still current.
func (w *Wrapper) ListenForClose() {
	if h := w.CurrentProcess(); h != nil {
		w.listenForClose(h)
	}
}

func (w *Wrapper) listenForClose(h *process.Handle) {
	w.mu.Lock()
	if w.watched[h] {
		w.mu.Unlock()
		return
	}
	w.watched[h] = true
	w.mu.Unlock()

	go func() {
		defer w.logger.Recover("listen for close")
		_ = w.deps.Supervisor.WaitForExit(context.Background(), h)

		w.mu.Lock()
		delete(w.watched, h)
		current := w.current == h
		if current {
			w.current = nil
			w.last.Status = types.ExperienceStopped
		}
		w.mu.Unlock()

		if current {
			w.logger.Info("Experience closed", zap.Int("pid", h.PID))
			w.report(types.KindApplicationClosed)
		}
	}()
}

// killCurrent stops the tracked process without reporting a close
func (w *Wrapper) killCurrent() {
	w.mu.Lock()
	h := w.current
	w.current = nil
	w.mu.Unlock()
	if h == nil {
		return
	}
	if err := w.deps.Supervisor.Kill(h, true); err != nil {
		w.logger.Warn("Failed to stop experience", zap.Int("pid", h.PID), zap.Error(err))
	}
}

// StopCurrentProcess ends the running experience and any launch in
// progress, then resets the tablet
func (w *Wrapper) StopCurrentProcess() {
	w.cancelLaunch()
	if w.deps.Headset != nil {
		w.deps.Headset.StopMonitoring()
	}
	w.killCurrent()
	w.mu.Lock()
	w.last.Status = types.ExperienceStopped
	w.mu.Unlock()
	w.report(types.KindApplicationClosed)
}

// RestartCurrentExperience relaunches the last experience
func (w *Wrapper) RestartCurrentExperience(ctx context.Context) error {
	last := w.LastExperience()
	if last.ID == "" || last.Name == "" {
		return ErrNothingToRestart
	}
	w.logger.Info("Restarting experience", zap.String("id", last.ID))
	w.cancelLaunch()
	w.killCurrent()
	return w.WrapProcess(ctx, last)
}

// PassToExperience rewrites the parameters of the last experience from
// its subtype and relaunches it
func (w *Wrapper) PassToExperience(ctx context.Context, values map[string]string) error {
	last := w.LastExperience()
	if last.ID == "" || last.Name == "" {
		return ErrNothingToRestart
	}
	w.SetLastExperience(RewriteParameters(last, values))
	return w.RestartCurrentExperience(ctx)
}

// CollectApplications lists the experiences in the variant's manifest.
// A missing manifest is reported and yields no experiences.
func (w *Wrapper) CollectApplications(ctx context.Context) ([]types.ExperienceSummary, error) {
	summaries, err := w.variant.Collect(ctx)
	if errors.Is(err, manifest.ErrManifestNotFound) {
		w.logger.Warn("Manifest not found", zap.Error(err))
		w.report(types.KindStationError, err.Error())
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to collect %s applications: %w", w.Type(), err)
	}
	return summaries, nil
}

// CollectHeaderImage queues the header image of id for delivery
func (w *Wrapper) CollectHeaderImage(id string) {
	path, err := w.variant.HeaderImage(id)
	if err != nil {
		w.logger.Warn("Header image not found", zap.String("id", id), zap.Error(err))
		w.report(types.KindStationError, "Header image not found: "+id)
		w.report(types.KindThumbnailError, id)
		return
	}
	if w.deps.Images == nil {
		return
	}
	w.deps.Images.Enqueue(string(w.Type()), id, path)
}

func (w *Wrapper) report(kind types.MessageKind, values ...string) {
	if w.deps.Reporter == nil {
		return
	}
	w.deps.Reporter.PassMessage(types.NewMessage(kind, values...))
}
