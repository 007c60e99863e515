package headset

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/station/internal/domain/devices"
	"github.com/GriffinCanCode/station/internal/domain/process"
	"github.com/GriffinCanCode/station/internal/infrastructure/logging"
	"github.com/GriffinCanCode/station/internal/providers/window"
	"github.com/GriffinCanCode/station/internal/shared/types"
)

// SteamVRAppID is the Steam application id of SteamVR
const SteamVRAppID = "250820"

// Driver is the uniform headset capability set
type Driver interface {
	ProcessesToQuery() []string
	ProcessesToMinimize() []string
	ManagementProcessName() string
	ManagementSoftwareStatus() types.DeviceStatus
	// StartVRSession launches Steam, SteamVR and vendor software unless
	// they are already running.
	StartVRSession(ctx context.Context) error
	// MonitorVRConnection refreshes the vendor tracker from its own source
	MonitorVRConnection(ctx context.Context)
	WaitForConnection(ctx context.Context, wrapper types.WrapperType, guard LaunchGuard) error
	// StopMonitoring cancels an in-progress WaitForConnection
	StopMonitoring()
	StopProcessesBeforeLaunch()
	// MinimizeSoftware hides vendor and runtime windows
	MinimizeSoftware() error
}

// Steam holds what is needed to start the Steam client
type Steam struct {
	Exe      string
	Username string
	Password string
}

// Deps are the collaborators shared by every driver
type Deps struct {
	Supervisor process.Supervisor
	Devices    *devices.Model
	Windows    window.Manager
	Reporter   types.Reporter
	Steam      Steam
	Wait       WaitConfig
	Logger     *logging.Logger
}

// launchStep starts spec unless every process in satisfiedBy is running
type launchStep struct {
	spec        process.Spec
	satisfiedBy []string
}

// base implements the parts of Driver common to all headsets
type base struct {
	deps     Deps
	query    []string
	minimize []string
	manager  string
	tracker  types.Tracker
	launch   []launchStep
	preKill  []string
	waiter   *Waiter
	logger   *logging.Logger
}

func newBase(deps Deps, name string, tracker types.Tracker) *base {
	b := &base{
		deps:    deps,
		tracker: tracker,
		logger:  deps.Logger.Component("headset." + name),
	}
	b.waiter = NewWaiter(deps.Wait, b.ManagementSoftwareStatus, b.StartVRSession, deps.Reporter, deps.Logger)
	return b
}

// SteamExe returns the Steam client executable inside a Steam install directory
func SteamExe(installDir string) string {
	return filepath.Join(installDir, "steam.exe")
}

func (b *base) steamSpec() process.Spec {
	args := []string{}
	if b.deps.Steam.Username != "" {
		args = append(args, "-login", b.deps.Steam.Username, b.deps.Steam.Password)
	}
	args = append(args, "-applaunch", SteamVRAppID)
	return process.Spec{Path: b.deps.Steam.Exe, Args: args}
}

func (b *base) ProcessesToQuery() []string    { return append([]string(nil), b.query...) }
func (b *base) ProcessesToMinimize() []string { return append([]string(nil), b.minimize...) }
func (b *base) ManagementProcessName() string { return b.manager }

func (b *base) ManagementSoftwareStatus() types.DeviceStatus {
	return b.deps.Devices.Tracker(b.tracker)
}

func (b *base) StartVRSession(ctx context.Context) error {
	running, err := b.deps.Supervisor.FindByName(b.query...)
	if err != nil {
		return fmt.Errorf("failed to query VR processes: %w", err)
	}
	present := make(map[string]bool, len(running))
	for _, info := range running {
		present[process.NormalizeName(info.Name)] = true
	}

	if allPresent(present, b.query) {
		return nil
	}

	var errs []error
	for _, step := range b.launch {
		if allPresent(present, step.satisfiedBy) {
			continue
		}
		if _, err := b.deps.Supervisor.Start(ctx, step.spec); err != nil {
			b.logger.Warn("Failed to start VR software", zap.String("path", step.spec.Path), zap.Error(err))
			errs = append(errs, err)
		}
	}
	if err := b.MinimizeSoftware(); err != nil && !errors.Is(err, window.ErrUnsupported) {
		b.logger.Debug("Failed to minimize VR software", zap.Error(err))
	}
	return errors.Join(errs...)
}

func allPresent(present map[string]bool, names []string) bool {
	for _, name := range names {
		if !present[process.NormalizeName(name)] {
			return false
		}
	}
	return true
}

func (b *base) MinimizeSoftware() error {
	infos, err := b.deps.Supervisor.FindByName(b.minimize...)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		return nil
	}
	pids := make([]int, 0, len(infos))
	for _, info := range infos {
		pids = append(pids, info.PID)
	}
	return b.deps.Windows.Minimize(pids...)
}

func (b *base) WaitForConnection(ctx context.Context, wrapper types.WrapperType, guard LaunchGuard) error {
	return b.waiter.Wait(ctx, wrapper, guard)
}

func (b *base) StopMonitoring() {
	b.waiter.Stop()
}

func (b *base) StopProcessesBeforeLaunch() {
	if len(b.preKill) == 0 {
		return
	}
	if _, err := b.deps.Supervisor.KillByName(b.preKill...); err != nil {
		b.logger.Debug("Pre-launch cleanup failed", zap.Error(err))
	}
}

// OpenVR is the driver for headsets managed by SteamVR alone
type OpenVR struct {
	*base
}

// NewOpenVR creates the SteamVR-only driver
func NewOpenVR(deps Deps) *OpenVR {
	b := newBase(deps, "openvr", types.TrackerOpenVR)
	b.query = []string{"steam", "vrserver", "vrmonitor"}
	b.minimize = []string{"steam", "steamwebhelper", "vrmonitor"}
	b.manager = "vrmonitor"
	b.launch = []launchStep{{spec: b.steamSpec(), satisfiedBy: []string{"steam", "vrserver"}}}
	return &OpenVR{base: b}
}

// MonitorVRConnection is a no-op: the runtime probe updates the OpenVR tracker
func (d *OpenVR) MonitorVRConnection(context.Context) {}
