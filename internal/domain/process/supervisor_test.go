package process

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/station/internal/infrastructure/logging"
)

func TestStartMissingExecutable(t *testing.T) {
	sup := NewSystem(logging.NewNop())

	_, err := sup.Start(context.Background(), Spec{Path: "C:/nonexistent.exe"})
	require.Error(t, err)

	assert.True(t, errors.Is(err, ErrNotFound))
	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "C:/nonexistent.exe", nf.Path)
	assert.Contains(t, err.Error(), "C:/nonexistent.exe")
}

func TestStartEmptyPath(t *testing.T) {
	sup := NewSystem(logging.NewNop())

	_, err := sup.Start(context.Background(), Spec{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNilHandle(t *testing.T) {
	sup := NewSystem(logging.NewNop())

	responding, known := sup.IsResponding(nil)
	assert.False(t, responding)
	assert.False(t, known)
	assert.NoError(t, sup.Kill(nil, true))
	assert.NoError(t, sup.WaitForExit(context.Background(), nil))
}

// listPlatform reports a fixed process table and counts list calls
type listPlatform struct {
	mu    sync.Mutex
	infos []Info
	calls atomic.Int32
}

func (p *listPlatform) list() ([]Info, error) {
	p.calls.Add(1)
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Info(nil), p.infos...), nil
}

func (p *listPlatform) set(infos ...Info) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.infos = infos
}

func (p *listPlatform) killTree(int) error { return nil }

func (p *listPlatform) configure(*exec.Cmd, Spec) {}

func newPolledSystem(p *listPlatform) *System {
	return &System{platform: p, pollInterval: time.Millisecond, logger: logging.NewNop()}
}

func TestWaitForExitAttached(t *testing.T) {
	p := &listPlatform{}
	p.set(Info{PID: 7, Name: "game"})
	sup := newPolledSystem(p)
	h := NewHandle(7, "game.exe")

	done := make(chan error, 1)
	go func() { done <- sup.WaitForExit(context.Background(), h) }()

	require.Eventually(t, func() bool { return p.calls.Load() > 0 }, time.Second, time.Millisecond)
	p.set()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("exit not detected")
	}
	assert.True(t, h.Exited())
}

func TestWaitForExitStopsPollingWithContext(t *testing.T) {
	p := &listPlatform{}
	p.set(Info{PID: 7, Name: "game"})
	sup := newPolledSystem(p)
	h := NewHandle(7, "game.exe")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	assert.ErrorIs(t, sup.WaitForExit(ctx, h), context.Canceled)

	// The poller winds down with the caller
	time.Sleep(20 * time.Millisecond)
	settled := p.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, settled, p.calls.Load())
	assert.False(t, h.Exited())
}

func TestHandleExitOnce(t *testing.T) {
	h := NewHandle(42, "Game.exe")
	assert.Equal(t, "game", h.Name)
	assert.False(t, h.Exited())

	h.MarkExited(nil)
	h.MarkExited(errors.New("second exit ignored"))

	assert.True(t, h.Exited())
	assert.NoError(t, h.exitErr)
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"vrmonitor.exe", "vrmonitor"},
		{"VRMonitor.EXE", "vrmonitor"},
		{"steam", "steam"},
		{"/usr/bin/steam", "steam"},
		{"  Steam.exe ", "steam"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeName(tt.in))
		})
	}
}

func TestParseTasklist(t *testing.T) {
	out := strings.Join([]string{
		`"steam.exe","4120","Console","1","95,304 K","Running","STATION\vr","0:01:02","Steam"`,
		`"vrmonitor.exe","5220","Console","1","40,120 K","Not Responding","STATION\vr","0:00:12","SteamVR Status"`,
		`"svchost.exe","912","Services","0","12,004 K","Unknown","N/A","0:00:00","N/A"`,
		`"broken.exe","notapid","Console","1","1 K","Running","x","0:00:00","N/A"`,
	}, "\r\n")

	infos, err := parseTasklist(strings.NewReader(out))
	require.NoError(t, err)
	require.Len(t, infos, 3)

	assert.Equal(t, Info{PID: 4120, Name: "steam.exe", WindowTitle: "Steam", Responding: true}, infos[0])
	assert.False(t, infos[1].Responding)
	assert.Equal(t, "SteamVR Status", infos[1].WindowTitle)
	assert.Equal(t, "", infos[2].WindowTitle)

	assert.Len(t, MatchNames(infos, "STEAM", "vrmonitor.exe"), 2)
	assert.Len(t, MatchTitle(infos, "steamvr"), 1)
	assert.Empty(t, MatchTitle(infos, ""))
}

func TestParsePS(t *testing.T) {
	out := "    1 Ss   systemd\n  812 Sl   steam\n  913 T    vrserver\n  914 Z    defunct thing\nbad line\n"

	infos, err := parsePS(strings.NewReader(out))
	require.NoError(t, err)
	require.Len(t, infos, 4)

	assert.Equal(t, 812, infos[1].PID)
	assert.True(t, infos[1].Responding)
	assert.False(t, infos[2].Responding)
	assert.Equal(t, "defunct thing", infos[3].Name)
	assert.False(t, infos[3].Responding)
}
