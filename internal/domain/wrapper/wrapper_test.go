package wrapper

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/station/internal/domain/headset"
	"github.com/GriffinCanCode/station/internal/domain/process"
	"github.com/GriffinCanCode/station/internal/domain/process/processtest"
	"github.com/GriffinCanCode/station/internal/infrastructure/logging"
	"github.com/GriffinCanCode/station/internal/providers/manifest"
	"github.com/GriffinCanCode/station/internal/providers/vrruntime"
	"github.com/GriffinCanCode/station/internal/providers/window"
	"github.com/GriffinCanCode/station/internal/shared/types"
)

const waitFor = 2 * time.Second

type recorder struct {
	mu   sync.Mutex
	msgs []types.Message
}

func (r *recorder) PassMessage(msg types.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recorder) of(kind types.MessageKind) []types.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []types.Message
	for _, m := range r.msgs {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

type fakeHeadset struct {
	err       error
	waits     atomic.Int32
	stops     atomic.Int32
	preLaunch atomic.Int32
}

func (h *fakeHeadset) WaitForConnection(context.Context, types.WrapperType, headset.LaunchGuard) error {
	h.waits.Add(1)
	return h.err
}

func (h *fakeHeadset) StopMonitoring()            { h.stops.Add(1) }
func (h *fakeHeadset) StopProcessesBeforeLaunch() { h.preLaunch.Add(1) }

type fakeRuntime struct {
	vrruntime.Null
	err     error
	results chan vrruntime.LaunchResult

	mu   sync.Mutex
	keys []string
}

func (r *fakeRuntime) Launch(_ context.Context, key string) (<-chan vrruntime.LaunchResult, error) {
	r.mu.Lock()
	r.keys = append(r.keys, key)
	r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	return r.results, nil
}

type stubVariant struct {
	target Target
	err    error
}

func (stubVariant) Type() types.WrapperType { return types.WrapperCustom }
func (stubVariant) ProcessNames() []string  { return nil }

func (stubVariant) Collect(context.Context) ([]types.ExperienceSummary, error) { return nil, nil }

func (v stubVariant) Resolve(types.Experience) (Target, error) { return v.target, v.err }

func (stubVariant) HeaderImage(id string) (string, error) {
	return "", manifest.ErrEntryNotFound
}

type mockImages struct {
	mock.Mock
}

func (m *mockImages) Enqueue(kind, name, path string) {
	m.Called(kind, name, path)
}

type harness struct {
	wrapper  *Wrapper
	procs    *processtest.Fake
	reporter *recorder
	headset  *fakeHeadset
	windows  *window.Recorder
}

func newHarness(t *testing.T, variant Variant, cfg Config, runtime vrruntime.Runtime) *harness {
	t.Helper()
	h := &harness{
		procs:    processtest.New(),
		reporter: &recorder{},
		headset:  &fakeHeadset{},
		windows:  window.NewRecorder(),
	}
	if cfg.DiscoveryAttempts == 0 {
		cfg.DiscoveryAttempts = 5
	}
	if cfg.DiscoveryInterval == 0 {
		cfg.DiscoveryInterval = time.Millisecond
	}
	h.wrapper = New(variant, cfg, Deps{
		Supervisor: h.procs,
		Runtime:    runtime,
		Headset:    h.headset,
		Windows:    h.windows,
		Reporter:   h.reporter,
		Logger:     logging.NewNop(),
	})
	return h
}

func embedded(id, name, path string) types.Experience {
	return types.Experience{Type: types.WrapperEmbedded, ID: id, Name: name, AltPath: path}
}

func TestUnknownExperience(t *testing.T) {
	h := newHarness(t, Embedded{}, Config{}, nil)

	result := h.wrapper.Launch(context.Background(), types.Experience{ID: "1"})

	assert.NotEqual(t, Launching, result)
	failed := h.reporter.of(types.KindGameLaunchFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, "Unknown experience", failed[0].Value(0))
	assert.Empty(t, h.procs.Starts())
}

func TestUnresolvedExperience(t *testing.T) {
	h := newHarness(t, stubVariant{err: manifest.ErrEntryNotFound}, Config{}, nil)

	err := h.wrapper.WrapProcess(context.Background(), types.Experience{ID: "9", Name: "Ghost"})

	assert.ErrorIs(t, err, manifest.ErrEntryNotFound)
	require.Len(t, h.reporter.of(types.KindGameLaunchFailed), 1)
	assert.Empty(t, h.procs.Starts())
}

func TestMissingExecutableReportsStationError(t *testing.T) {
	reporter := &recorder{}
	w := New(Embedded{Path: "/nonexistent/experiences.yaml"}, Config{}, Deps{
		Supervisor: process.NewSystem(logging.NewNop()),
		Reporter:   reporter,
		Logger:     logging.NewNop(),
	})

	exp := types.Experience{ID: "220", Name: "HalfLife2", AltPath: "C:/nonexistent.exe", IsVR: false}
	result := w.Launch(context.Background(), exp)

	assert.NotEqual(t, Launching, result)
	assert.Contains(t, result, "C:/nonexistent.exe")

	stationErrors := reporter.of(types.KindStationError)
	require.Len(t, stationErrors, 1)
	assert.Contains(t, stationErrors[0].String(), "C:/nonexistent.exe")
	assert.Len(t, reporter.of(types.KindGameLaunchFailed), 1)
	assert.False(t, w.HasCurrentProcess())
}

func TestEmbeddedLaunch(t *testing.T) {
	h := newHarness(t, Embedded{}, Config{}, nil)

	exp := embedded("1", "Beat Saber", "C:/games/beat.exe")
	exp.Parameters = "-vrmode openvr"
	require.NoError(t, h.wrapper.WrapProcess(context.Background(), exp))

	starts := h.procs.Starts()
	require.Len(t, starts, 1)
	assert.Equal(t, "C:/games/beat.exe", starts[0].Path)
	assert.Equal(t, []string{"-vrmode", "openvr"}, starts[0].Args)
	assert.True(t, h.wrapper.HasCurrentProcess())
	assert.Equal(t, int32(1), h.headset.preLaunch.Load())

	assert.Eventually(t, func() bool {
		return len(h.reporter.of(types.KindApplicationUpdate)) == 1
	}, waitFor, time.Millisecond)
	update := h.reporter.of(types.KindApplicationUpdate)[0]
	assert.Equal(t, []string{"Beat Saber", "1", "Embedded"}, update.Values)
	assert.Equal(t, []int{h.wrapper.CurrentProcess().PID}, h.windows.Maximized())
	assert.Equal(t, types.ExperienceRunning, h.wrapper.LastExperience().Status)
}

func TestProcessExclusivity(t *testing.T) {
	h := newHarness(t, Embedded{}, Config{}, nil)
	ctx := context.Background()

	require.NoError(t, h.wrapper.WrapProcess(ctx, embedded("a", "A", "C:/games/a.exe")))
	first := h.wrapper.CurrentProcess()
	require.NotNil(t, first)

	require.NoError(t, h.wrapper.WrapProcess(ctx, embedded("b", "B", "C:/games/b.exe")))
	second := h.wrapper.CurrentProcess()
	require.NotNil(t, second)

	assert.NotEqual(t, first.PID, second.PID)
	assert.Contains(t, h.procs.Kills(), first.PID)
	assert.False(t, h.procs.Running(first.PID))
	assert.True(t, h.procs.Running(second.PID))

	// Replacing a process is not a close
	assert.Eventually(t, func() bool {
		return len(h.reporter.of(types.KindApplicationUpdate)) == 2
	}, waitFor, time.Millisecond)
	assert.Empty(t, h.reporter.of(types.KindApplicationClosed))
}

func TestHeadsetFailureAbortsLaunch(t *testing.T) {
	h := newHarness(t, Embedded{}, Config{RequireHeadset: true}, nil)
	h.headset.err = headset.ErrTimedOut

	exp := embedded("1", "Beat Saber", "C:/games/beat.exe")
	exp.IsVR = true
	err := h.wrapper.WrapProcess(context.Background(), exp)

	assert.ErrorIs(t, err, headset.ErrTimedOut)
	assert.Equal(t, int32(1), h.headset.waits.Load())
	assert.Empty(t, h.wrapper.LastExperience().Name)
	assert.Equal(t, "1", h.wrapper.LastExperience().ID)
	assert.Empty(t, h.procs.Starts())
}

func TestHeadsetSkipped(t *testing.T) {
	tests := []struct {
		name    string
		require bool
		isVR    bool
	}{
		{name: "not required", require: false, isVR: true},
		{name: "not vr", require: true, isVR: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Embedded{}, Config{RequireHeadset: tt.require}, nil)
			h.headset.err = headset.ErrTimedOut

			exp := embedded("1", "Beat Saber", "C:/games/beat.exe")
			exp.IsVR = tt.isVR
			require.NoError(t, h.wrapper.WrapProcess(context.Background(), exp))
			assert.Zero(t, h.headset.waits.Load())
		})
	}
}

func TestHooksRun(t *testing.T) {
	var sessions, monitors atomic.Int32
	w := New(Embedded{}, Config{DiscoveryInterval: time.Millisecond}, Deps{
		Supervisor: processtest.New(),
		Reporter:   &recorder{},
		Hooks: Hooks{
			StartSession:    func(context.Context, types.WrapperType) { sessions.Add(1) },
			StartMonitoring: func(types.WrapperType) { monitors.Add(1) },
		},
		Logger: logging.NewNop(),
	})

	require.NoError(t, w.WrapProcess(context.Background(), embedded("1", "A", "C:/a.exe")))
	assert.Equal(t, int32(1), sessions.Load())
	assert.Equal(t, int32(1), monitors.Load())
}

func runtimeTarget() Target {
	return Target{
		RuntimeKey: "steam.app.620",
		Path:       "C:/steam/steam.exe",
		Args:       []string{"-applaunch", "620"},
		MatchTitle: "Portal 2",
		Launcher:   true,
	}
}

func TestRuntimeLaunchSuccess(t *testing.T) {
	rt := &fakeRuntime{results: make(chan vrruntime.LaunchResult, 1)}
	h := newHarness(t, stubVariant{target: runtimeTarget()}, Config{}, rt)
	game := h.procs.Run("portal2.exe", "Portal 2")

	require.NoError(t, h.wrapper.WrapProcess(context.Background(), types.Experience{ID: "620", Name: "Portal 2"}))
	assert.True(t, h.wrapper.LaunchFailedFromOpenVRTimeout())
	assert.Empty(t, h.procs.Starts())

	rt.results <- vrruntime.LaunchResult{PID: game.PID}

	assert.Eventually(t, func() bool {
		return len(h.reporter.of(types.KindApplicationUpdate)) == 1
	}, waitFor, time.Millisecond)
	assert.False(t, h.wrapper.LaunchFailedFromOpenVRTimeout())
	assert.Equal(t, game.PID, h.wrapper.CurrentProcess().PID)
	assert.Equal(t, []string{"steam.app.620"}, rt.keys)
}

func TestRuntimeFailureFallsBack(t *testing.T) {
	rt := &fakeRuntime{results: make(chan vrruntime.LaunchResult, 1)}
	h := newHarness(t, stubVariant{target: runtimeTarget()}, Config{}, rt)
	h.procs.OnStart(func(spec process.Spec) []process.Info {
		return []process.Info{{Name: "portal2.exe", WindowTitle: "Portal 2"}}
	})

	require.NoError(t, h.wrapper.WrapProcess(context.Background(), types.Experience{ID: "620", Name: "Portal 2"}))
	rt.results <- vrruntime.LaunchResult{Err: vrruntime.ErrLaunchFailed}

	assert.Eventually(t, func() bool {
		return len(h.reporter.of(types.KindApplicationUpdate)) == 1
	}, waitFor, time.Millisecond)
	assert.False(t, h.wrapper.LaunchFailedFromOpenVRTimeout())
	require.Len(t, h.procs.Starts(), 1)
	assert.Equal(t, "C:/steam/steam.exe", h.procs.Starts()[0].Path)

	games, _ := h.procs.FindByName("portal2")
	require.Len(t, games, 1)
	assert.Equal(t, games[0].PID, h.wrapper.CurrentProcess().PID)
}

func TestRuntimeNotApplicable(t *testing.T) {
	for _, rtErr := range []error{vrruntime.ErrNotRegistered, vrruntime.ErrNotRunning} {
		t.Run(rtErr.Error(), func(t *testing.T) {
			rt := &fakeRuntime{err: rtErr}
			h := newHarness(t, stubVariant{target: runtimeTarget()}, Config{}, rt)

			require.NoError(t, h.wrapper.WrapProcess(context.Background(), types.Experience{ID: "620", Name: "Portal 2"}))
			assert.False(t, h.wrapper.LaunchFailedFromOpenVRTimeout())
			assert.Len(t, h.procs.Starts(), 1)
		})
	}
}

func TestRuntimeTimeoutKeepsFlag(t *testing.T) {
	rt := &fakeRuntime{results: make(chan vrruntime.LaunchResult)}
	h := newHarness(t, stubVariant{target: runtimeTarget()}, Config{RuntimeTimeout: 10 * time.Millisecond}, rt)

	require.NoError(t, h.wrapper.WrapProcess(context.Background(), types.Experience{ID: "620", Name: "Portal 2"}))

	assert.Eventually(t, func() bool {
		return len(h.reporter.of(types.KindGameLaunchFailed)) == 1
	}, waitFor, time.Millisecond)
	assert.True(t, h.wrapper.LaunchFailedFromOpenVRTimeout())
	assert.False(t, h.wrapper.HasCurrentProcess())

	// The runtime reports the process late
	late := h.procs.Run("portal2.exe", "Portal 2")
	h.wrapper.SetCurrentProcess(late)

	assert.False(t, h.wrapper.LaunchFailedFromOpenVRTimeout())
	assert.Equal(t, late.PID, h.wrapper.CurrentProcess().PID)
	assert.Len(t, h.reporter.of(types.KindApplicationUpdate), 1)
}

func TestLauncherDiscoveredByTitle(t *testing.T) {
	target := runtimeTarget()
	target.RuntimeKey = ""
	h := newHarness(t, stubVariant{target: target}, Config{}, nil)
	h.procs.OnStart(func(spec process.Spec) []process.Info {
		return []process.Info{{Name: "hl2.exe", WindowTitle: "Portal 2 - Direct3D 9"}}
	})

	require.NoError(t, h.wrapper.WrapProcess(context.Background(), types.Experience{ID: "620", Name: "Portal 2"}))

	assert.Eventually(t, h.wrapper.HasCurrentProcess, waitFor, time.Millisecond)
	games, _ := h.procs.FindByName("hl2")
	require.Len(t, games, 1)
	assert.Equal(t, games[0].PID, h.wrapper.CurrentProcess().PID)
	assert.Equal(t, []int{games[0].PID}, h.windows.Maximized())
}

func TestDiscoveryExhausted(t *testing.T) {
	target := runtimeTarget()
	target.RuntimeKey = ""
	target.MatchTitle = "Never Appears"
	h := newHarness(t, stubVariant{target: target}, Config{DiscoveryAttempts: 3}, nil)

	require.NoError(t, h.wrapper.WrapProcess(context.Background(), types.Experience{ID: "620", Name: "Portal 2"}))

	assert.Eventually(t, func() bool {
		return len(h.reporter.of(types.KindGameLaunchFailed)) == 1
	}, waitFor, time.Millisecond)
	assert.False(t, h.wrapper.HasCurrentProcess())
	assert.Empty(t, h.reporter.of(types.KindApplicationUpdate))
}

func TestDiscoveryExhaustedKillsStarted(t *testing.T) {
	target := Target{Path: "C:/games/a.exe", MatchNames: []string{"child"}}
	h := newHarness(t, stubVariant{target: target}, Config{DiscoveryAttempts: 2}, nil)

	require.NoError(t, h.wrapper.WrapProcess(context.Background(), types.Experience{ID: "a", Name: "A"}))
	started := h.wrapper.CurrentProcess()
	require.NotNil(t, started)

	assert.Eventually(t, func() bool {
		return len(h.reporter.of(types.KindGameLaunchFailed)) == 1
	}, waitFor, time.Millisecond)
	assert.False(t, h.wrapper.HasCurrentProcess())
	assert.Contains(t, h.procs.Kills(), started.PID)
	assert.Empty(t, h.reporter.of(types.KindApplicationClosed))
}

func TestListenForCloseFiresOnce(t *testing.T) {
	h := newHarness(t, Embedded{}, Config{}, nil)
	require.NoError(t, h.wrapper.WrapProcess(context.Background(), embedded("1", "A", "C:/a.exe")))
	current := h.wrapper.CurrentProcess()

	// Repeated listens share one watcher
	h.wrapper.ListenForClose()
	h.wrapper.ListenForClose()

	h.procs.Exit(current.PID)

	assert.Eventually(t, func() bool {
		return len(h.reporter.of(types.KindApplicationClosed)) == 1
	}, waitFor, time.Millisecond)
	assert.Never(t, func() bool {
		return len(h.reporter.of(types.KindApplicationClosed)) > 1
	}, 50*time.Millisecond, 5*time.Millisecond)
	assert.False(t, h.wrapper.HasCurrentProcess())
	assert.Equal(t, types.ExperienceStopped, h.wrapper.LastExperience().Status)
}

func TestStopCurrentProcess(t *testing.T) {
	h := newHarness(t, Embedded{}, Config{}, nil)
	require.NoError(t, h.wrapper.WrapProcess(context.Background(), embedded("1", "A", "C:/a.exe")))
	current := h.wrapper.CurrentProcess()

	h.wrapper.StopCurrentProcess()

	assert.False(t, h.wrapper.HasCurrentProcess())
	assert.Contains(t, h.procs.Kills(), current.PID)
	assert.Equal(t, int32(1), h.headset.stops.Load())
	assert.Never(t, func() bool {
		return len(h.reporter.of(types.KindApplicationClosed)) != 1
	}, 50*time.Millisecond, 5*time.Millisecond)
}

func TestCheckCurrentProcess(t *testing.T) {
	h := newHarness(t, Embedded{}, Config{}, nil)

	_, known := h.wrapper.CheckCurrentProcess()
	assert.False(t, known)

	require.NoError(t, h.wrapper.WrapProcess(context.Background(), embedded("1", "A", "C:/a.exe")))
	responding, known := h.wrapper.CheckCurrentProcess()
	assert.True(t, known)
	assert.True(t, responding)

	h.procs.SetResponding("a", false)
	responding, _ = h.wrapper.CheckCurrentProcess()
	assert.False(t, responding)
}

func TestRestartCurrentExperience(t *testing.T) {
	h := newHarness(t, Embedded{}, Config{}, nil)
	ctx := context.Background()

	assert.ErrorIs(t, h.wrapper.RestartCurrentExperience(ctx), ErrNothingToRestart)

	require.NoError(t, h.wrapper.WrapProcess(ctx, embedded("1", "A", "C:/a.exe")))
	first := h.wrapper.CurrentProcess()

	require.NoError(t, h.wrapper.RestartCurrentExperience(ctx))
	assert.Len(t, h.procs.Starts(), 2)
	assert.NotEqual(t, first.PID, h.wrapper.CurrentProcess().PID)
	assert.False(t, h.procs.Running(first.PID))
}

func TestPassToExperience(t *testing.T) {
	h := newHarness(t, Embedded{}, Config{}, nil)
	ctx := context.Background()

	exp := embedded("1", "Puzzle", "C:/puzzle.exe")
	exp.Subtype = map[string]string{SubtypeCategory: CategoryShareCode}
	require.NoError(t, h.wrapper.WrapProcess(ctx, exp))

	require.NoError(t, h.wrapper.PassToExperience(ctx, map[string]string{CategoryShareCode: "ABC123"}))

	starts := h.procs.Starts()
	require.Len(t, starts, 2)
	assert.Equal(t, []string{"-shareCode", "ABC123"}, starts[1].Args)
	assert.Equal(t, "-shareCode ABC123", h.wrapper.LastExperience().Parameters)
}

func TestRewriteParameters(t *testing.T) {
	share := map[string]string{SubtypeCategory: CategoryShareCode}
	tests := []struct {
		name    string
		params  string
		subtype map[string]string
		values  map[string]string
		want    string
	}{
		{name: "no subtype", params: "-x", values: map[string]string{CategoryShareCode: "A"}, want: "-x"},
		{name: "appends", params: "-x", subtype: share, values: map[string]string{CategoryShareCode: "A"}, want: "-x -shareCode A"},
		{name: "replaces", params: "-shareCode OLD -x", subtype: share, values: map[string]string{CategoryShareCode: "NEW"}, want: "-x -shareCode NEW"},
		{name: "custom flag", params: "", subtype: map[string]string{SubtypeCategory: CategoryShareCode, SubtypeArgument: "--code"}, values: map[string]string{CategoryShareCode: "Z"}, want: "--code Z"},
		{name: "empty code", params: "-x", subtype: share, values: map[string]string{}, want: "-x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exp := types.Experience{Parameters: tt.params, Subtype: tt.subtype}
			assert.Equal(t, tt.want, RewriteParameters(exp, tt.values).Parameters)
		})
	}
}

func TestCollectApplicationsMissingManifest(t *testing.T) {
	h := newHarness(t, Embedded{Path: "/nonexistent/experiences.yaml"}, Config{}, nil)

	apps, err := h.wrapper.CollectApplications(context.Background())

	require.NoError(t, err)
	assert.Empty(t, apps)
	assert.Len(t, h.reporter.of(types.KindStationError), 1)
}

func TestCollectHeaderImage(t *testing.T) {
	images := &mockImages{}
	images.On("Enqueue", "Custom", "7", "/img/7.png").Once()

	h := newHarness(t, stubVariant{}, Config{}, nil)
	h.wrapper.deps.Images = images

	h.wrapper.CollectHeaderImage("7")
	thumbs := h.reporter.of(types.KindThumbnailError)
	require.Len(t, thumbs, 1)
	assert.Equal(t, "7", thumbs[0].Value(0))
	assert.Len(t, h.reporter.of(types.KindStationError), 1)
	images.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything, mock.Anything)

	h.wrapper.variant = imageVariant{path: "/img/7.png"}
	h.wrapper.CollectHeaderImage("7")
	images.AssertExpectations(t)
}

type imageVariant struct {
	stubVariant
	path string
}

func (v imageVariant) HeaderImage(string) (string, error) { return v.path, nil }

func TestLaunchGuard(t *testing.T) {
	h := newHarness(t, Embedded{}, Config{}, nil)

	assert.True(t, h.wrapper.TryBeginLaunch())
	assert.True(t, h.wrapper.Launching())
	assert.False(t, h.wrapper.TryBeginLaunch())
	h.wrapper.EndLaunch()
	assert.False(t, h.wrapper.Launching())
}

func TestStartFailure(t *testing.T) {
	h := newHarness(t, Embedded{}, Config{}, nil)
	h.procs.FailStarts(errors.New("access denied"))

	err := h.wrapper.WrapProcess(context.Background(), embedded("1", "A", "C:/a.exe"))

	assert.Error(t, err)
	assert.NotErrorIs(t, err, process.ErrNotFound)
	assert.Len(t, h.reporter.of(types.KindGameLaunchFailed), 1)
	assert.Empty(t, h.reporter.of(types.KindStationError))
}
