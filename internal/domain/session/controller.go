package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/GriffinCanCode/station/internal/infrastructure/logging"
	"github.com/GriffinCanCode/station/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/station/internal/shared/types"
)

var (
	ErrManualMode     = errors.New("automatic session start is disabled")
	ErrNoSession      = errors.New("no active session")
	ErrUnknownWrapper = errors.New("no wrapper for experience type")
)

// Wrapper is the experience lifecycle the controller dispatches to
type Wrapper interface {
	Type() types.WrapperType
	Launch(ctx context.Context, exp types.Experience) string
	RestartCurrentExperience(ctx context.Context) error
	StopCurrentProcess()
	HasCurrentProcess() bool
	// Launching reports a launch still waiting for the headset
	Launching() bool
	CurrentExperienceName() (string, bool)
	LastExperience() types.Experience
}

// Sender delivers one payload to a destination. It must not block.
type Sender interface {
	Send(destination, payload string)
}

// Monitor is the wrapper monitoring loop
type Monitor interface {
	Start(wrapper types.WrapperType)
	Stop()
}

// Observer sees every payload the controller sends
type Observer func(destination, payload string)

// Catalog tracks which experience is running
type Catalog interface {
	MarkRunning(kind types.WrapperType, id string) bool
	MarkStopped()
}

// Config holds the controller settings
type Config struct {
	AutoStart        bool
	MinimizeAttempts int
	MinimizeInterval time.Duration
}

// Controller is the top-level session state machine and outward funnel
type Controller struct {
	cfg     Config
	profile Profile
	sender  Sender
	catalog Catalog
	metrics *monitoring.Metrics
	logger  *logging.Logger

	mu          sync.RWMutex
	wrappers    map[types.WrapperType]Wrapper
	monitor     Monitor
	observers   []Observer
	currentType types.WrapperType // Empty when no session is active

	stateMu sync.Mutex
	state   string

	restarts   singleflight.Group
	restarting atomic.Bool
	idle       atomic.Bool

	minimizeMu     sync.Mutex
	minimizeCancel context.CancelFunc

	mailMu   sync.Mutex
	mailbox  []types.Message
	draining bool
	drained  *sync.Cond
}

// NewController creates a controller in the Base state
func NewController(cfg Config, profile Profile, sender Sender, logger *logging.Logger) *Controller {
	if cfg.MinimizeAttempts <= 0 {
		cfg.MinimizeAttempts = 1
	}
	c := &Controller{
		cfg:      cfg,
		profile:  profile,
		sender:   sender,
		logger:   logger.Component("session"),
		wrappers: make(map[types.WrapperType]Wrapper),
		state:    types.StateBase,
	}
	c.drained = sync.NewCond(&c.mailMu)
	return c
}

// WithMetrics adds metrics tracking to the controller
func (c *Controller) WithMetrics(metrics *monitoring.Metrics) *Controller {
	c.metrics = metrics
	return c
}

// WithCatalog keeps catalog in step with launches and closes
func (c *Controller) WithCatalog(catalog Catalog) *Controller {
	c.catalog = catalog
	return c
}

// Register adds a wrapper; a later wrapper of the same type replaces it
func (c *Controller) Register(w Wrapper) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.wrappers[w.Type()] = w
}

// SetMonitor attaches the wrapper monitoring loop
func (c *Controller) SetMonitor(m Monitor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.monitor = m
}

// Observe registers fn for every outbound payload
func (c *Controller) Observe(fn Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

// Profile returns the session profile
func (c *Controller) Profile() Profile { return c.profile }

// Wrapper returns the wrapper for kind
func (c *Controller) Wrapper(kind types.WrapperType) (Wrapper, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	w, ok := c.wrappers[kind]
	return w, ok
}

// Wrappers returns every registered wrapper
func (c *Controller) Wrappers() []Wrapper {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Wrapper, 0, len(c.wrappers))
	for _, kind := range []types.WrapperType{types.WrapperEmbedded, types.WrapperSteam, types.WrapperRevive, types.WrapperCustom} {
		if w, ok := c.wrappers[kind]; ok {
			out = append(out, w)
		}
	}
	return out
}

// CurrentType returns the wrapper type of the active session
func (c *Controller) CurrentType() (types.WrapperType, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentType, c.currentType != ""
}

// CurrentWrapper returns the wrapper of the active session
func (c *Controller) CurrentWrapper() (Wrapper, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.currentType == "" {
		return nil, false
	}
	w, ok := c.wrappers[c.currentType]
	return w, ok
}

func (c *Controller) currentMonitor() Monitor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.monitor
}

// State returns the current state label
func (c *Controller) State() string {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

// SetState stores label and broadcasts it. Every call sends, even when
// the label is unchanged.
func (c *Controller) SetState(label string) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.state = label
	c.send(types.DestinationNUC, "SetValue:state:"+label)
	c.metrics.RecordState(label)
}

// ProcessingRestart reports whether a restart is running
func (c *Controller) ProcessingRestart() bool { return c.restarting.Load() }

// Idle reports whether idle mode is active
func (c *Controller) Idle() bool { return c.idle.Load() }

// SetIdle enters or leaves idle mode
func (c *Controller) SetIdle(idle bool) {
	if c.idle.Swap(idle) == idle {
		return
	}
	if idle {
		c.SetState(types.StateIdle)
	} else {
		c.SetState(types.StateExitIdle)
	}
}

// StartSession starts the software the profile requires for a session
// of kind, then hides its windows
func (c *Controller) StartSession(ctx context.Context, kind types.WrapperType) error {
	if !c.cfg.AutoStart {
		c.logger.Info("Auto start disabled, session not started", zap.String("wrapper", string(kind)))
		return ErrManualMode
	}
	c.mu.Lock()
	c.currentType = kind
	c.mu.Unlock()

	c.SetState(types.StateStartProcess)
	err := c.profile.StartSession(ctx)
	if err != nil {
		c.logger.Warn("Failed to start session software", zap.String("profile", c.profile.Name()), zap.Error(err))
	}
	c.minimize(ctx)
	return err
}

// RestartSession restarts the current experience. Requests arriving
// while a restart runs share its outcome.
func (c *Controller) RestartSession(ctx context.Context) error {
	_, err, shared := c.restarts.Do("restart", func() (any, error) {
		c.restarting.Store(true)
		defer c.restarting.Store(false)
		return nil, c.restart(ctx)
	})
	if shared {
		c.logger.Debug("Restart request coalesced")
	}
	return err
}

func (c *Controller) restart(ctx context.Context) error {
	w, ok := c.CurrentWrapper()
	if !ok {
		return ErrNoSession
	}
	c.SetState(types.StateRestartProcess)
	if m := c.currentMonitor(); m != nil {
		m.Stop()
	}

	c.logger.Info("Restarting session", zap.String("wrapper", string(w.Type())))
	c.metrics.IncRestarts()
	err := w.RestartCurrentExperience(ctx)
	c.minimize(ctx)
	if err != nil {
		return fmt.Errorf("failed to restart %s session: %w", w.Type(), err)
	}
	return nil
}

// EndSession stops wrapper monitoring and clears the active session
func (c *Controller) EndSession(ctx context.Context) {
	if m := c.currentMonitor(); m != nil {
		m.Stop()
	}
	c.mu.Lock()
	c.currentType = ""
	c.mu.Unlock()
	c.minimize(ctx)
}

// Launch starts exp on its wrapper. Any experience running or waiting
// for the headset on another wrapper is stopped first.
func (c *Controller) Launch(ctx context.Context, exp types.Experience) string {
	w, ok := c.Wrapper(exp.Type)
	if !ok {
		c.logger.Warn("No wrapper for experience", zap.String("type", string(exp.Type)), zap.String("id", exp.ID))
		c.PassMessage(types.NewMessage(types.KindGameLaunchFailed, "Unknown experience"))
		return ErrUnknownWrapper.Error()
	}
	for _, other := range c.Wrappers() {
		if other.Type() != exp.Type && (other.HasCurrentProcess() || other.Launching()) {
			other.StopCurrentProcess()
		}
	}
	c.mu.Lock()
	c.currentType = exp.Type
	c.mu.Unlock()
	return w.Launch(ctx, exp)
}

// StopExperience stops the running experience and ends the session
func (c *Controller) StopExperience(ctx context.Context) {
	if w, ok := c.CurrentWrapper(); ok {
		w.StopCurrentProcess()
	}
	c.EndSession(ctx)
}

// minimize hides profile windows on a bounded schedule, replacing any
// schedule already running
func (c *Controller) minimize(ctx context.Context) {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.minimizeMu.Lock()
	if c.minimizeCancel != nil {
		c.minimizeCancel()
	}
	c.minimizeCancel = cancel
	c.minimizeMu.Unlock()

	go func() {
		defer c.logger.Recover("minimize")
		for attempt := 1; attempt <= c.cfg.MinimizeAttempts; attempt++ {
			if err := c.profile.MinimizeSoftware(); err != nil {
				c.logger.Debug("Minimize attempt failed", zap.Int("attempt", attempt), zap.Error(err))
			}
			if attempt == c.cfg.MinimizeAttempts {
				return
			}
			select {
			case <-runCtx.Done():
				return
			case <-time.After(c.cfg.MinimizeInterval):
			}
		}
	}()
}

// Close stops background work started by the controller
func (c *Controller) Close() {
	c.minimizeMu.Lock()
	if c.minimizeCancel != nil {
		c.minimizeCancel()
	}
	c.minimizeMu.Unlock()
	c.Flush()
}

// PassMessage queues msg for delivery. It never blocks; messages are
// handled one at a time in the order they were passed.
func (c *Controller) PassMessage(msg types.Message) {
	c.mailMu.Lock()
	c.mailbox = append(c.mailbox, msg)
	start := !c.draining
	c.draining = true
	c.mailMu.Unlock()

	if start {
		go c.drain()
	}
}

// Flush blocks until every passed message has been handled
func (c *Controller) Flush() {
	c.mailMu.Lock()
	defer c.mailMu.Unlock()
	for c.draining {
		c.drained.Wait()
	}
}

func (c *Controller) drain() {
	for {
		c.mailMu.Lock()
		if len(c.mailbox) == 0 {
			c.draining = false
			c.drained.Broadcast()
			c.mailMu.Unlock()
			return
		}
		msg := c.mailbox[0]
		c.mailbox = c.mailbox[1:]
		c.mailMu.Unlock()

		c.handle(msg)
	}
}

func (c *Controller) handle(msg types.Message) {
	defer c.logger.Recover("pass message")

	c.metrics.RecordMessageOut(string(msg.Kind))
	switch msg.Kind {
	case types.KindSoftwareState:
		c.SetState(msg.Value(0))
		return
	case types.KindMessageToAndroid:
		c.send(types.DestinationAndroid, strings.Join(msg.Values, ":"))
		return
	case types.KindApplicationUpdate:
		if c.catalog != nil {
			c.catalog.MarkRunning(types.WrapperType(msg.Value(2)), msg.Value(1))
		}
	case types.KindApplicationClosed:
		if c.catalog != nil {
			c.catalog.MarkStopped()
		}
	case types.KindStationError, types.KindGameLaunchFailed:
		c.logger.Warn("Reporting failure", zap.String("message", msg.String()))
	}
	for _, payload := range msg.Wire() {
		c.send(types.DestinationNUC, payload)
	}
}

// SendDeviceStatus forwards a device status change to the NUC
func (c *Controller) SendDeviceStatus(key, value string) {
	c.send(types.DestinationNUC, "SetValue:"+key+":"+value)
}

// Reply sends a command response to destination
func (c *Controller) Reply(destination, payload string) {
	c.send(destination, payload)
}

func (c *Controller) send(destination, payload string) {
	c.sender.Send(destination, payload)

	c.mu.RLock()
	observers := c.observers
	c.mu.RUnlock()
	for _, fn := range observers {
		fn(destination, payload)
	}
}

// Snapshot is the session view served by the diagnostics API
type Snapshot struct {
	Type       types.WrapperType `json:"type,omitempty"`
	State      string            `json:"state"`
	Experience string            `json:"experience,omitempty"`
	Running    bool              `json:"running"`
	Restarting bool              `json:"restarting"`
	Idle       bool              `json:"idle"`
}

// Snapshot returns the current session view
func (c *Controller) Snapshot() Snapshot {
	snap := Snapshot{
		State:      c.State(),
		Restarting: c.ProcessingRestart(),
		Idle:       c.Idle(),
	}
	if w, ok := c.CurrentWrapper(); ok {
		snap.Type = w.Type()
		snap.Experience, _ = w.CurrentExperienceName()
		snap.Running = w.HasCurrentProcess()
	}
	return snap
}
