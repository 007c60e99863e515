package command

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/station/internal/domain/devices"
	"github.com/GriffinCanCode/station/internal/domain/executable"
	"github.com/GriffinCanCode/station/internal/domain/library"
	"github.com/GriffinCanCode/station/internal/domain/monitor"
	"github.com/GriffinCanCode/station/internal/domain/session"
	"github.com/GriffinCanCode/station/internal/domain/wrapper"
	"github.com/GriffinCanCode/station/internal/infrastructure/logging"
	"github.com/GriffinCanCode/station/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/station/internal/providers/audio"
	"github.com/GriffinCanCode/station/internal/shared/types"
	"github.com/GriffinCanCode/station/internal/transport"
)

// Keys of the Station GetValue/SetValue protocol
const (
	KeyInstalledApplications = "installedApplications"
	KeyVolume                = "volume"
	KeyMuted                 = "muted"
	KeyAudioDevices          = "audioDevices"
	KeyActiveAudioDevice     = "activeAudioDevice"
	KeyState                 = "state"
	KeyIdleMode              = "idleMode"
	KeyScheduledRestart      = "scheduledRestart"
)

// QA action answered with a station snapshot
const QAGetStationState = "GetStationState"

var ErrUnknownKey = errors.New("unknown value key")

// Session is the session controller as seen by the router
type Session interface {
	Launch(ctx context.Context, exp types.Experience) string
	RestartSession(ctx context.Context) error
	StopExperience(ctx context.Context)
	SetIdle(idle bool)
	State() string
	CurrentType() (types.WrapperType, bool)
	CurrentWrapper() (session.Wrapper, bool)
	Snapshot() session.Snapshot
	Reply(destination, payload string)
	PassMessage(msg types.Message)
}

// Source is a wrapper's catalog side
type Source interface {
	Type() types.WrapperType
	CollectApplications(ctx context.Context) ([]types.ExperienceSummary, error)
	CollectHeaderImage(id string)
	PassToExperience(ctx context.Context, values map[string]string) error
}

// Deps are the components commands act on
type Deps struct {
	Session     Session
	Sources     []Source
	Library     *library.Library
	Devices     *devices.Model
	Audio       *audio.Controller
	Executables *executable.Manager
	Timed       *monitor.TimedActions
	Logger      *logging.Logger
}

// Router dispatches inbound envelopes
type Router struct {
	deps    Deps
	sources map[types.WrapperType]Source
	logger  *logging.Logger
}

// NewRouter creates a router
func NewRouter(deps Deps) *Router {
	if deps.Library == nil {
		deps.Library = library.New()
	}
	r := &Router{
		deps:    deps,
		sources: make(map[types.WrapperType]Source, len(deps.Sources)),
		logger:  deps.Logger.Component("command"),
	}
	for _, s := range deps.Sources {
		r.sources[s.Type()] = s
	}
	return r
}

// HandleEnvelope parses and executes one inbound command. Failures are
// logged; nothing propagates to the transport.
func (r *Router) HandleEnvelope(ctx context.Context, env transport.Envelope) {
	cmd, err := Parse(env.Namespace, env.Payload)
	if err != nil {
		r.logger.Warn("Rejected command",
			zap.String("source", env.Source),
			zap.String("namespace", env.Namespace),
			tracing.Field(ctx),
			zap.Error(err),
		)
		return
	}
	if err := r.Execute(ctx, env.Source, cmd); err != nil {
		r.logger.Warn("Command failed",
			zap.String("source", env.Source),
			zap.String("namespace", env.Namespace),
			zap.String("command", fmt.Sprintf("%T", cmd)),
			tracing.Field(ctx),
			zap.Error(err),
		)
	}
}

// Execute runs cmd, replying to source where the command asks for data
func (r *Router) Execute(ctx context.Context, source string, cmd Command) error {
	switch c := cmd.(type) {
	case Connect:
		r.connect(source)
		return nil
	case GetValue:
		return r.getValue(source, c.Key)
	case SetValue:
		return r.setValue(c.Key, c.Value)
	case HandleExecutable:
		if r.deps.Executables == nil {
			return errors.New("executables are not managed on this station")
		}
		return r.deps.Executables.Handle(ctx, c.Request)
	case RefreshExperiences:
		return r.refresh(ctx, source)
	case RestartExperience:
		return r.deps.Session.RestartSession(ctx)
	case RequestThumbnails:
		r.thumbnails(c.IDs)
		return nil
	case LaunchExperience:
		return r.launch(ctx, c.ID)
	case PassToExperience:
		return r.passToExperience(ctx, c.Values)
	case EndExperience:
		r.deps.Session.StopExperience(ctx)
		return nil
	case QA:
		return r.qa(source, c)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownAction, cmd)
	}
}

// connect sends the full picture to a peer that just (re)connected
func (r *Router) connect(source string) {
	if r.deps.Devices != nil {
		r.deps.Devices.QueryStatuses()
	}
	r.reply(source, KeyState, r.deps.Session.State())
	if w, ok := r.deps.Session.CurrentWrapper(); ok && w.HasCurrentProcess() {
		exp := w.LastExperience()
		r.deps.Session.PassMessage(types.NewMessage(types.KindApplicationUpdate, exp.Name, exp.ID, string(exp.Type)))
	}
}

func (r *Router) getValue(source, key string) error {
	switch key {
	case KeyInstalledApplications:
		return r.replyJSON(source, key, r.deps.Library.Summaries())
	case KeyState:
		r.reply(source, key, r.deps.Session.State())
		return nil
	}

	if r.deps.Audio == nil {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	switch key {
	case KeyVolume:
		r.reply(source, key, strconv.Itoa(r.deps.Audio.Volume()))
	case KeyMuted:
		r.reply(source, key, strconv.FormatBool(r.deps.Audio.Muted()))
	case KeyAudioDevices:
		return r.replyJSON(source, key, r.deps.Audio.Devices())
	default:
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return nil
}

func (r *Router) setValue(key, value string) error {
	switch key {
	case KeyIdleMode:
		idle, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid idle mode %q: %w", value, err)
		}
		r.deps.Session.SetIdle(idle)
		return nil
	case KeyScheduledRestart:
		return r.scheduleRestart(value)
	}

	if r.deps.Audio == nil {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	switch key {
	case KeyVolume:
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid volume %q: %w", value, err)
		}
		r.deps.Audio.SetVolume(v)
	case KeyMuted:
		muted, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid mute flag %q: %w", value, err)
		}
		r.deps.Audio.SetMuted(muted)
	case KeyActiveAudioDevice:
		return r.deps.Audio.SetActiveDevice(value)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return nil
}

// scheduleRestart registers a nightly session restart at HH:MM. An empty
// value or "off" cancels it.
func (r *Router) scheduleRestart(value string) error {
	if r.deps.Timed == nil {
		return errors.New("timed actions are not available")
	}
	value = strings.TrimSpace(value)
	if value == "" || strings.EqualFold(value, "off") {
		r.deps.Timed.Cancel(KeyScheduledRestart)
		return nil
	}
	hour, minute, err := monitor.ParseDaily(value)
	if err != nil {
		return err
	}
	return r.deps.Timed.Daily(KeyScheduledRestart, hour, minute, func(ctx context.Context) {
		defer r.logger.Recover("scheduled restart")
		if err := r.deps.Session.RestartSession(ctx); err != nil {
			r.logger.Warn("Scheduled restart failed", zap.Error(err))
		}
	})
}

// refresh rescans every source and publishes the installed list
func (r *Router) refresh(ctx context.Context, source string) error {
	for _, s := range r.deps.Sources {
		found, err := s.CollectApplications(ctx)
		if err != nil {
			r.logger.Warn("Failed to collect experiences", zap.String("type", string(s.Type())), zap.Error(err))
			continue
		}
		r.deps.Library.Replace(s.Type(), found)
	}
	r.logger.Info("Refreshed experiences", zap.Int("total", r.deps.Library.Stats().Total))
	return r.replyJSON(source, KeyInstalledApplications, r.deps.Library.Summaries())
}

func (r *Router) thumbnails(ids []string) {
	for _, id := range ids {
		exp, ok := r.deps.Library.Find(id)
		if !ok {
			r.deps.Session.PassMessage(types.NewMessage(types.KindThumbnailError, id))
			continue
		}
		s, ok := r.sources[exp.Type]
		if !ok {
			r.deps.Session.PassMessage(types.NewMessage(types.KindThumbnailError, id))
			continue
		}
		s.CollectHeaderImage(id)
	}
}

func (r *Router) launch(ctx context.Context, id string) error {
	exp, ok := r.deps.Library.Find(id)
	if !ok {
		r.deps.Session.PassMessage(types.NewMessage(types.KindGameLaunchFailed, "Unknown experience"))
		return fmt.Errorf("experience %s is not installed", id)
	}
	if result := r.deps.Session.Launch(ctx, exp); result != wrapper.Launching {
		return errors.New(result)
	}
	return nil
}

func (r *Router) passToExperience(ctx context.Context, values map[string]string) error {
	kind, ok := r.deps.Session.CurrentType()
	if !ok {
		return session.ErrNoSession
	}
	s, ok := r.sources[kind]
	if !ok {
		return fmt.Errorf("%w: %s", session.ErrUnknownWrapper, kind)
	}
	return s.PassToExperience(ctx, values)
}

// stationState is the QA snapshot
type stationState struct {
	Session     session.Snapshot  `json:"session"`
	Devices     *devices.Snapshot `json:"devices,omitempty"`
	Experiences library.Stats     `json:"experiences"`
	Executables []string          `json:"executables"`
}

func (r *Router) qa(source string, c QA) error {
	if !strings.EqualFold(c.Action, QAGetStationState) {
		r.deps.Session.Reply(source, "QA:unsupported:"+c.Action)
		return nil
	}
	state := stationState{
		Session:     r.deps.Session.Snapshot(),
		Experiences: r.deps.Library.Stats(),
		Executables: []string{},
	}
	if r.deps.Devices != nil {
		snap := r.deps.Devices.Snapshot()
		state.Devices = &snap
	}
	if r.deps.Executables != nil {
		state.Executables = r.deps.Executables.Running()
	}
	data, err := sonic.MarshalString(state)
	if err != nil {
		return fmt.Errorf("failed to encode station state: %w", err)
	}
	r.deps.Session.Reply(source, "QA:"+data)
	return nil
}

func (r *Router) reply(destination, key, value string) {
	r.deps.Session.Reply(destination, "SetValue:"+key+":"+value)
}

func (r *Router) replyJSON(destination, key string, v any) error {
	data, err := sonic.MarshalString(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	r.reply(destination, key, data)
	return nil
}
