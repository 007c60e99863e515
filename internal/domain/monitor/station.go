package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/station/internal/domain/devices"
	"github.com/GriffinCanCode/station/internal/domain/process"
	"github.com/GriffinCanCode/station/internal/infrastructure/logging"
	"github.com/GriffinCanCode/station/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/station/internal/providers/thermal"
	"github.com/GriffinCanCode/station/internal/providers/vrruntime"
	"github.com/GriffinCanCode/station/internal/providers/window"
	"github.com/GriffinCanCode/station/internal/shared/types"
)

// Window title of the Steam hardware survey prompt
const SurveyTitle = "Steam Hardware Survey"

// Session is the part of the session controller the station loop reads
type Session interface {
	Idle() bool
	CurrentType() (types.WrapperType, bool)
}

// Adoptable is a wrapper whose runtime launch may need adopting
type Adoptable interface {
	LaunchFailedFromOpenVRTimeout() bool
	HasCurrentProcess() bool
	SetCurrentProcess(h *process.Handle)
}

// VendorPoller refreshes the vendor headset tracker
type VendorPoller interface {
	MonitorVRConnection(ctx context.Context)
}

// StationConfig tunes the station loop
type StationConfig struct {
	Interval             time.Duration
	VRMode               bool
	PollVendor           bool
	TemperatureThreshold float64
	TemperatureTicks     int
	TemperatureRearm     time.Duration
}

// StationDeps are the station loop collaborators. Nil optional fields
// disable the checks that need them.
type StationDeps struct {
	Session    Session
	Wrappers   []Adoptable
	Runtime    vrruntime.Runtime
	Vendor     VendorPoller
	Devices    *devices.Model
	Supervisor process.Supervisor
	Windows    window.Manager
	Sensor     thermal.Sensor
	Reporter   types.Reporter
	Timed      *TimedActions
	Metrics    *monitoring.Metrics
	Logger     *logging.Logger
}

// StationLoop performs the station-wide periodic checks
type StationLoop struct {
	*Loop
	cfg  StationConfig
	deps StationDeps

	ticks    int
	probing  atomic.Bool
	overheat rate.Sometimes

	steamMu sync.Mutex
	steam   map[int]struct{}
}

// NewStationLoop creates a stopped station loop
func NewStationLoop(cfg StationConfig, deps StationDeps) *StationLoop {
	if deps.Runtime == nil {
		deps.Runtime = vrruntime.Null{}
	}
	if deps.Timed == nil {
		deps.Timed = NewTimedActions()
	}
	if cfg.TemperatureTicks <= 0 {
		cfg.TemperatureTicks = 20
	}
	deps.Logger = deps.Logger.Component("station-loop")
	s := &StationLoop{
		cfg:      cfg,
		deps:     deps,
		overheat: rate.Sometimes{Interval: cfg.TemperatureRearm},
		steam:    make(map[int]struct{}),
	}
	s.Loop = NewLoop("station", cfg.Interval, s.Tick, deps.Metrics, deps.Logger)
	return s
}

// Timed returns the schedule consulted on every tick
func (s *StationLoop) Timed() *TimedActions { return s.deps.Timed }

// Tick runs one round of checks. A due timed action ends the round early.
func (s *StationLoop) Tick(ctx context.Context) {
	if s.deps.Timed.Due(ctx) {
		return
	}

	if s.cfg.VRMode && (s.deps.Session == nil || !s.deps.Session.Idle()) {
		s.probeRuntime(ctx)
	}
	if s.cfg.PollVendor && s.deps.Vendor != nil {
		s.deps.Vendor.MonitorVRConnection(ctx)
	}
	s.dismissSurvey()
	s.watchSteam(ctx)

	s.ticks++
	if s.ticks%s.cfg.TemperatureTicks == 0 {
		s.checkTemperature(ctx)
	}
}

// probeRuntime refreshes devices and adopts runtime launches without
// blocking the tick. Overlapping probes are skipped.
func (s *StationLoop) probeRuntime(ctx context.Context) {
	if !s.deps.Runtime.Running() || !s.probing.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer s.probing.Store(false)
		defer s.deps.Logger.Recover("runtime probe")

		if err := s.deps.Runtime.Init(ctx); err != nil {
			s.deps.Logger.Debug("VR runtime not ready", zap.Error(err))
			return
		}
		s.applyDevices(s.deps.Runtime.Devices())

		app, ok := s.deps.Runtime.CurrentApplication()
		if !ok || app.PID == 0 {
			return
		}
		for _, w := range s.deps.Wrappers {
			if !w.LaunchFailedFromOpenVRTimeout() || w.HasCurrentProcess() {
				continue
			}
			h, err := s.deps.Supervisor.Attach(app.PID)
			if err != nil {
				s.deps.Logger.Debug("Scene application vanished", zap.Int("pid", app.PID), zap.Error(err))
				return
			}
			s.deps.Logger.Info("Adopting scene application",
				zap.String("key", app.Key),
				zap.Int("pid", app.PID),
			)
			w.SetCurrentProcess(h)
			return
		}
	}()
}

func (s *StationLoop) applyDevices(list []vrruntime.Device) {
	if s.deps.Devices == nil {
		return
	}
	for _, d := range list {
		switch d.Class {
		case vrruntime.ClassHMD:
			s.deps.Devices.UpdateHeadset(types.TrackerOpenVR, d.Tracking)
		case vrruntime.ClassController:
			s.deps.Devices.UpdateController(d.Serial, d.Role, types.PropertyTracking, d.Tracking)
			if d.Battery >= 0 {
				s.deps.Devices.UpdateController(d.Serial, d.Role, types.PropertyBattery, d.Battery)
			}
		case vrruntime.ClassBaseStation:
			s.deps.Devices.UpdateBaseStation(d.Serial, types.PropertyTracking, d.Tracking)
		}
	}
}

func (s *StationLoop) dismissSurvey() {
	if s.deps.Windows == nil {
		return
	}
	n, err := s.deps.Windows.CloseByTitle(SurveyTitle)
	if err != nil {
		s.deps.Logger.Debug("Survey check failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.deps.Logger.Info("Dismissed Steam hardware survey")
	}
}

// watchSteam subscribes once to the lifecycle of each new Steam process.
// Steam exiting during an active session is an error state.
func (s *StationLoop) watchSteam(ctx context.Context) {
	if s.deps.Supervisor == nil {
		return
	}
	infos, err := s.deps.Supervisor.FindByName("steam")
	if err != nil {
		return
	}
	for _, info := range infos {
		s.steamMu.Lock()
		_, seen := s.steam[info.PID]
		s.steam[info.PID] = struct{}{}
		s.steamMu.Unlock()
		if seen {
			continue
		}

		h, err := s.deps.Supervisor.Attach(info.PID)
		if err != nil {
			continue
		}
		s.deps.Logger.Debug("Watching Steam", zap.Int("pid", info.PID))
		go s.awaitSteamExit(ctx, h)
	}
}

func (s *StationLoop) awaitSteamExit(ctx context.Context, h *process.Handle) {
	defer s.deps.Logger.Recover("steam watch")
	if err := s.deps.Supervisor.WaitForExit(ctx, h); err != nil {
		return
	}
	s.steamMu.Lock()
	delete(s.steam, h.PID)
	s.steamMu.Unlock()

	if s.deps.Session == nil {
		return
	}
	if _, active := s.deps.Session.CurrentType(); active {
		s.deps.Logger.Warn("Steam exited during a session", zap.Int("pid", h.PID))
		s.report(types.KindSoftwareState, types.StateErrorSteam)
	}
}

func (s *StationLoop) checkTemperature(ctx context.Context) {
	if s.deps.Sensor == nil {
		return
	}
	celsius, err := s.deps.Sensor.Temperature(ctx)
	if err != nil {
		s.deps.Logger.Debug("Temperature unavailable", zap.Error(err))
		return
	}
	s.deps.Metrics.SetTemperature(celsius)
	if celsius <= s.cfg.TemperatureThreshold {
		return
	}
	s.overheat.Do(func() {
		s.deps.Logger.Warn("Station temperature high", zap.Float64("celsius", celsius))
		s.report(types.KindHighTemperature)
	})
}

func (s *StationLoop) report(kind types.MessageKind, values ...string) {
	if s.deps.Reporter != nil {
		s.deps.Reporter.PassMessage(types.NewMessage(kind, values...))
	}
}
