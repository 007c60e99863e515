package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/GriffinCanCode/station/internal/domain/process/processtest"
	"github.com/GriffinCanCode/station/internal/infrastructure/logging"
	"github.com/GriffinCanCode/station/internal/shared/types"
)

type fakeWatched struct {
	mu         sync.Mutex
	names      []string
	responding bool
	known      bool
	experience string

	entered chan struct{} // Signalled when a tick reaches CheckCurrentProcess
	gate    chan struct{} // Holds the tick there until closed
}

func (f *fakeWatched) ProcessNames() []string { return f.names }

func (f *fakeWatched) CheckCurrentProcess() (bool, bool) {
	if f.entered != nil {
		select {
		case f.entered <- struct{}{}:
		default:
		}
	}
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.responding, f.known
}

func (f *fakeWatched) CurrentExperienceName() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.experience, f.experience != ""
}

func newWrapperHarness(watched *fakeWatched, extra ...string) (*WrapperLoop, *processtest.Fake, *reporter) {
	procs := processtest.New()
	rep := newReporter()
	loop := NewWrapperLoop(time.Hour, WrapperDeps{
		Wrappers:   map[types.WrapperType]Watched{types.WrapperSteam: watched},
		Supervisor: procs,
		Reporter:   rep,
		Extra:      func() []string { return extra },
		Logger:     logging.NewNop(),
	})
	loop.kind = types.WrapperSteam
	return loop, procs, rep
}

func TestWrapperLoopRespondingEdges(t *testing.T) {
	watched := &fakeWatched{names: []string{"steam"}}
	loop, procs, rep := newWrapperHarness(watched, "vrserver")
	procs.Run("steam.exe", "Steam")
	procs.Run("vrserver.exe", "")
	ctx := context.Background()

	loop.Tick(ctx)
	assert.Empty(t, rep.drain(), "healthy start is silent")

	procs.SetResponding("vrserver", false)
	loop.Tick(ctx)
	loop.Tick(ctx)
	assert.Equal(t, []types.Message{types.NewMessage(types.KindStatus, types.StatusNotResponding)}, rep.drain())

	procs.SetResponding("vrserver", true)
	loop.Tick(ctx)
	assert.Equal(t, []types.Message{types.NewMessage(types.KindStatus, types.StatusOn)}, rep.drain())
}

func TestWrapperLoopMissingProcess(t *testing.T) {
	watched := &fakeWatched{names: []string{"steam"}}
	loop, _, rep := newWrapperHarness(watched)

	loop.Tick(context.Background())
	assert.Equal(t, []types.Message{types.NewMessage(types.KindStatus, types.StatusNotResponding)}, rep.drain())
}

func TestWrapperLoopCurrentProcessHung(t *testing.T) {
	watched := &fakeWatched{known: true, responding: false}
	loop, _, rep := newWrapperHarness(watched)

	loop.Tick(context.Background())
	assert.Equal(t, []types.Message{types.NewMessage(types.KindStatus, types.StatusNotResponding)}, rep.drain())
}

func TestWrapperLoopSteamErrorOncePerEpisode(t *testing.T) {
	loop, procs, rep := newWrapperHarness(&fakeWatched{})
	ctx := context.Background()

	dialog := procs.Run("steam.exe", "Steam - Error")
	loop.Tick(ctx)
	loop.Tick(ctx)
	assert.Equal(t, []types.MessageKind{types.KindSteamError}, rep.kinds())

	procs.SetTitle(dialog.PID, "Steam")
	loop.Tick(ctx)
	procs.SetTitle(dialog.PID, "Steam Error")
	loop.Tick(ctx)
	assert.Equal(t, []types.MessageKind{types.KindSteamError}, rep.kinds())
}

func TestWrapperLoopKillsErrorReporter(t *testing.T) {
	loop, procs, _ := newWrapperHarness(&fakeWatched{})
	reporter := procs.Run("WerFault.exe", "")

	loop.Tick(context.Background())
	assert.False(t, procs.Running(reporter.PID))
	assert.Contains(t, procs.Kills(), reporter.PID)
}

func TestWrapperLoopPopupOncePerLaunch(t *testing.T) {
	watched := &fakeWatched{experience: "Half-Life: Alyx"}
	loop, procs, rep := newWrapperHarness(watched)
	ctx := context.Background()

	procs.Run("steam.exe", "Half-Life: Alyx - Steam")
	loop.Tick(ctx)
	loop.Tick(ctx)
	assert.Equal(t, []types.Message{types.NewMessage(types.KindPopupDetected, "Half-Life: Alyx")}, rep.drain())

	// A different experience gets its own popup report
	watched.mu.Lock()
	watched.experience = "Beat Saber"
	watched.mu.Unlock()
	procs.Run("steam.exe", "Beat Saber - Steam")
	loop.Tick(ctx)
	assert.Equal(t, []types.Message{types.NewMessage(types.KindPopupDetected, "Beat Saber")}, rep.drain())
}

func TestWrapperLoopGameWindowIsNotPopup(t *testing.T) {
	watched := &fakeWatched{experience: "Beat Saber"}
	loop, procs, rep := newWrapperHarness(watched)

	procs.Run("beatsaber.exe", "Beat Saber")
	loop.Tick(context.Background())
	assert.Empty(t, rep.drain())
}

func TestWrapperLoopUnknownKind(t *testing.T) {
	loop, procs, rep := newWrapperHarness(&fakeWatched{names: []string{"steam"}})
	loop.kind = types.WrapperRevive
	reporter := procs.Run("WerFault.exe", "")

	loop.Tick(context.Background())
	assert.Empty(t, rep.drain())
	assert.True(t, procs.Running(reporter.PID))
}

func TestWrapperLoopStartResetsEpisode(t *testing.T) {
	watched := &fakeWatched{names: []string{"steam"}}
	loop, _, rep := newWrapperHarness(watched)

	loop.Tick(context.Background())
	loop.Tick(context.Background())
	assert.Len(t, rep.drain(), 1)

	// A new launch forgets the previous episode and reports again
	loop.Start(types.WrapperSteam)
	defer loop.Stop()
	assert.Equal(t, types.WrapperSteam, loop.Kind())
	select {
	case msg := <-rep.ch:
		assert.Equal(t, types.NewMessage(types.KindStatus, types.StatusNotResponding), msg)
	case <-time.After(time.Second):
		t.Fatal("no status after restart")
	}
}

func TestWrapperLoopRestartAfterInFlightTick(t *testing.T) {
	watched := &fakeWatched{
		names:   []string{"steam"},
		entered: make(chan struct{}, 4),
		gate:    make(chan struct{}),
	}
	// Steam is not running, so every tick finds the wrapper unhealthy
	loop, _, rep := newWrapperHarness(watched)
	loop.Loop.Start(context.Background())

	select {
	case <-watched.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first tick did not run")
	}

	restarted := make(chan struct{})
	go func() {
		loop.Start(types.WrapperSteam)
		close(restarted)
	}()
	time.Sleep(20 * time.Millisecond)
	close(watched.gate)

	select {
	case <-restarted:
	case <-time.After(2 * time.Second):
		t.Fatal("restart did not complete")
	}
	defer loop.Stop()

	// The old tick reports its edge, then the restarted loop reports its own
	notResponding := types.NewMessage(types.KindStatus, types.StatusNotResponding)
	for i := range 2 {
		select {
		case msg := <-rep.ch:
			assert.Equal(t, notResponding, msg)
		case <-time.After(2 * time.Second):
			t.Fatalf("missing status report %d", i+1)
		}
	}
}
