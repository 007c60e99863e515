package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/station/internal/domain/devices"
	"github.com/GriffinCanCode/station/internal/domain/process"
	"github.com/GriffinCanCode/station/internal/domain/process/processtest"
	"github.com/GriffinCanCode/station/internal/infrastructure/logging"
	"github.com/GriffinCanCode/station/internal/providers/thermal"
	"github.com/GriffinCanCode/station/internal/providers/vrruntime"
	"github.com/GriffinCanCode/station/internal/providers/window"
	"github.com/GriffinCanCode/station/internal/shared/types"
)

type fakeRuntime struct {
	vrruntime.Null
	app     vrruntime.Application
	devices []vrruntime.Device
}

func (f *fakeRuntime) Running() bool                                     { return true }
func (f *fakeRuntime) Init(context.Context) error                        { return nil }
func (f *fakeRuntime) Devices() []vrruntime.Device                       { return f.devices }
func (f *fakeRuntime) CurrentApplication() (vrruntime.Application, bool) { return f.app, f.app.PID != 0 }

type fakeSession struct {
	idle   atomic.Bool
	active atomic.Bool
}

func (s *fakeSession) Idle() bool { return s.idle.Load() }

func (s *fakeSession) CurrentType() (types.WrapperType, bool) {
	if s.active.Load() {
		return types.WrapperSteam, true
	}
	return "", false
}

type fakeAdoptable struct {
	mu       sync.Mutex
	timedOut bool
	current  *process.Handle
}

func (a *fakeAdoptable) LaunchFailedFromOpenVRTimeout() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.timedOut
}

func (a *fakeAdoptable) HasCurrentProcess() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current != nil
}

func (a *fakeAdoptable) SetCurrentProcess(h *process.Handle) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.current = h
	a.timedOut = false
}

type fakeVendor struct {
	polls atomic.Int32
}

func (v *fakeVendor) MonitorVRConnection(context.Context) { v.polls.Add(1) }

type stationHarness struct {
	loop     *StationLoop
	procs    *processtest.Fake
	windows  *window.Recorder
	session  *fakeSession
	vendor   *fakeVendor
	reporter *reporter
	devices  *devices.Model
}

func newStationHarness(cfg StationConfig, rt vrruntime.Runtime, sensor thermal.Sensor, wrappers ...Adoptable) *stationHarness {
	h := &stationHarness{
		procs:    processtest.New(),
		windows:  window.NewRecorder(),
		session:  &fakeSession{},
		vendor:   &fakeVendor{},
		reporter: newReporter(),
		devices:  devices.New(nil, logging.NewNop()),
	}
	if cfg.Interval == 0 {
		cfg.Interval = time.Hour
	}
	h.loop = NewStationLoop(cfg, StationDeps{
		Session:    h.session,
		Wrappers:   wrappers,
		Runtime:    rt,
		Vendor:     h.vendor,
		Devices:    h.devices,
		Supervisor: h.procs,
		Windows:    h.windows,
		Sensor:     sensor,
		Reporter:   h.reporter,
		Logger:     logging.NewNop(),
	})
	return h
}

func TestStationTimedActionShortCircuits(t *testing.T) {
	h := newStationHarness(StationConfig{PollVendor: true}, nil, nil)

	fired := make(chan struct{}, 1)
	h.loop.Timed().At("restart", time.Now().Add(-time.Second), func(context.Context) { fired <- struct{}{} })

	h.loop.Tick(context.Background())
	<-fired
	assert.Zero(t, h.vendor.polls.Load())
	assert.Empty(t, h.windows.Closed())

	// The next tick runs the regular checks
	h.loop.Tick(context.Background())
	assert.Equal(t, int32(1), h.vendor.polls.Load())
	assert.Equal(t, []string{SurveyTitle}, h.windows.Closed())
}

func TestStationAdoptsRuntimeLaunch(t *testing.T) {
	rt := &fakeRuntime{}
	w := &fakeAdoptable{timedOut: true}
	h := newStationHarness(StationConfig{VRMode: true}, rt, nil, w)

	game := h.procs.Run("game.exe", "Game")
	rt.app = vrruntime.Application{Key: "steam.app.620", PID: game.PID}

	h.loop.Tick(context.Background())
	require.Eventually(t, w.HasCurrentProcess, time.Second, time.Millisecond)
	assert.False(t, w.LaunchFailedFromOpenVRTimeout())
}

func TestStationSkipsProbeWhenIdle(t *testing.T) {
	rt := &fakeRuntime{}
	w := &fakeAdoptable{timedOut: true}
	h := newStationHarness(StationConfig{VRMode: true}, rt, nil, w)
	h.session.idle.Store(true)

	game := h.procs.Run("game.exe", "Game")
	rt.app = vrruntime.Application{PID: game.PID}

	h.loop.Tick(context.Background())
	time.Sleep(20 * time.Millisecond)
	assert.False(t, w.HasCurrentProcess())
}

func TestStationAppliesRuntimeDevices(t *testing.T) {
	rt := &fakeRuntime{devices: []vrruntime.Device{
		{Serial: "HMD-1", Class: vrruntime.ClassHMD, Tracking: types.DeviceConnected, Battery: -1},
		{Serial: "LHR-1", Class: vrruntime.ClassController, Role: types.RoleLeft, Tracking: types.DeviceConnected, Battery: 80},
		{Serial: "LHB-1", Class: vrruntime.ClassBaseStation, Tracking: types.DeviceConnected, Battery: -1},
	}}
	h := newStationHarness(StationConfig{VRMode: true}, rt, nil)

	h.loop.Tick(context.Background())
	require.Eventually(t, func() bool {
		return h.devices.Tracker(types.TrackerOpenVR) == types.DeviceConnected
	}, time.Second, time.Millisecond)

	require.Eventually(t, func() bool {
		snap := h.devices.Snapshot()
		return len(snap.Controllers) == 1 && snap.Controllers[0].Battery == 80 && len(snap.BaseStations) == 1
	}, time.Second, time.Millisecond)
}

func TestStationVendorPolling(t *testing.T) {
	tests := []struct {
		name  string
		poll  bool
		polls int32
	}{
		{name: "vendor profile", poll: true, polls: 1},
		{name: "content profile", poll: false, polls: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newStationHarness(StationConfig{PollVendor: tt.poll}, nil, nil)
			h.loop.Tick(context.Background())
			assert.Equal(t, tt.polls, h.vendor.polls.Load())
		})
	}
}

func TestStationTemperatureRearm(t *testing.T) {
	var reads atomic.Int32
	sensor := thermal.SensorFunc(func(context.Context) (float64, error) {
		reads.Add(1)
		return 95, nil
	})
	h := newStationHarness(StationConfig{
		TemperatureThreshold: 90,
		TemperatureTicks:     2,
		TemperatureRearm:     time.Hour,
	}, nil, sensor)

	for i := 0; i < 6; i++ {
		h.loop.Tick(context.Background())
	}
	assert.Equal(t, int32(3), reads.Load())
	assert.Equal(t, []types.MessageKind{types.KindHighTemperature}, h.reporter.kinds())
}

func TestStationTemperatureBelowThreshold(t *testing.T) {
	sensor := thermal.SensorFunc(func(context.Context) (float64, error) { return 60, nil })
	h := newStationHarness(StationConfig{TemperatureThreshold: 90, TemperatureTicks: 1}, nil, sensor)

	h.loop.Tick(context.Background())
	assert.Empty(t, h.reporter.drain())
}

func TestStationSteamExitDuringSession(t *testing.T) {
	h := newStationHarness(StationConfig{}, nil, nil)
	h.session.active.Store(true)
	steam := h.procs.Run("steam.exe", "Steam")

	h.loop.Tick(context.Background())
	// A second tick does not subscribe twice
	h.loop.Tick(context.Background())

	h.procs.Exit(steam.PID)
	select {
	case msg := <-h.reporter.ch:
		assert.Equal(t, types.NewMessage(types.KindSoftwareState, types.StateErrorSteam), msg)
	case <-time.After(time.Second):
		t.Fatal("no error state reported")
	}
	time.Sleep(10 * time.Millisecond)
	assert.Empty(t, h.reporter.drain())
}

func TestStationSteamExitWithoutSession(t *testing.T) {
	h := newStationHarness(StationConfig{}, nil, nil)
	steam := h.procs.Run("steam.exe", "Steam")

	h.loop.Tick(context.Background())
	h.procs.Exit(steam.PID)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, h.reporter.drain())
}
