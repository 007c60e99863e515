// Package processtest provides an in-memory process.Supervisor for tests.
package processtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/GriffinCanCode/station/internal/domain/process"
)

// Fake is a scriptable process.Supervisor. Processes "run" when added
// with Run or started through Start; Exit terminates them.
type Fake struct {
	mu       sync.Mutex
	nextPID  int
	procs    map[int]*fakeProc
	missing  map[string]bool
	starts   []process.Spec
	kills    []int
	onStart  func(spec process.Spec) []process.Info
	startErr error
}

type fakeProc struct {
	info   process.Info
	handle *process.Handle
}

// New creates an empty fake
func New() *Fake {
	return &Fake{
		nextPID: 1000,
		procs:   make(map[int]*fakeProc),
		missing: make(map[string]bool),
	}
}

// Run registers a running process and returns its handle
func (f *Fake) Run(name, windowTitle string) *process.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addLocked(name, windowTitle)
}

func (f *Fake) addLocked(name, title string) *process.Handle {
	f.nextPID++
	h := process.NewHandle(f.nextPID, name)
	f.procs[h.PID] = &fakeProc{
		info: process.Info{
			PID:         h.PID,
			Name:        name,
			WindowTitle: title,
			Responding:  true,
		},
		handle: h,
	}
	return h
}

// MarkMissing makes Start fail with *process.NotFoundError for path
func (f *Fake) MarkMissing(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.missing[path] = true
}

// FailStarts makes every Start return err
func (f *Fake) FailStarts(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startErr = err
}

// OnStart registers extra processes that appear whenever Start is called,
// e.g. the game Steam spawns after -applaunch.
func (f *Fake) OnStart(fn func(spec process.Spec) []process.Info) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onStart = fn
}

// SetResponding flips the responsiveness of every process named name
func (f *Fake) SetResponding(name string, responding bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.procs {
		if process.NormalizeName(p.info.Name) == process.NormalizeName(name) {
			p.info.Responding = responding
		}
	}
}

// SetTitle changes the window title of the process with pid
func (f *Fake) SetTitle(pid int, title string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.procs[pid]; ok {
		p.info.WindowTitle = title
	}
}

// Exit terminates the process with pid
func (f *Fake) Exit(pid int) {
	f.mu.Lock()
	p, ok := f.procs[pid]
	delete(f.procs, pid)
	f.mu.Unlock()
	if ok {
		p.handle.MarkExited(nil)
	}
}

// ExitByName terminates every process named name
func (f *Fake) ExitByName(name string) {
	for _, info := range f.list() {
		if process.NormalizeName(info.Name) == process.NormalizeName(name) {
			f.Exit(info.PID)
		}
	}
}

// Starts returns every spec passed to Start
func (f *Fake) Starts() []process.Spec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]process.Spec(nil), f.starts...)
}

// Kills returns the pids passed to Kill and KillByName
func (f *Fake) Kills() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.kills...)
}

// Running reports whether pid is alive
func (f *Fake) Running(pid int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.procs[pid]
	return ok
}

func (f *Fake) list() []process.Info {
	f.mu.Lock()
	defer f.mu.Unlock()
	infos := make([]process.Info, 0, len(f.procs))
	for _, p := range f.procs {
		infos = append(infos, p.info)
	}
	return infos
}

// Start implements process.Supervisor
func (f *Fake) Start(ctx context.Context, spec process.Spec) (*process.Handle, error) {
	f.mu.Lock()
	f.starts = append(f.starts, spec)
	if f.startErr != nil {
		err := f.startErr
		f.mu.Unlock()
		return nil, err
	}
	if f.missing[spec.Path] {
		f.mu.Unlock()
		return nil, &process.NotFoundError{Path: spec.Path}
	}
	h := f.addLocked(spec.Path, "")
	onStart := f.onStart
	f.mu.Unlock()

	if onStart != nil {
		for _, extra := range onStart(spec) {
			f.Run(extra.Name, extra.WindowTitle)
		}
	}
	return h, nil
}

// Attach implements process.Supervisor
func (f *Fake) Attach(pid int) (*process.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.procs[pid]
	if !ok {
		return nil, fmt.Errorf("process %d is not running", pid)
	}
	return p.handle, nil
}

// IsResponding implements process.Supervisor
func (f *Fake) IsResponding(h *process.Handle) (bool, bool) {
	if h == nil {
		return false, false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.procs[h.PID]
	if !ok {
		return false, true
	}
	return p.info.Responding, true
}

// Kill implements process.Supervisor
func (f *Fake) Kill(h *process.Handle, _ bool) error {
	if h == nil {
		return nil
	}
	f.mu.Lock()
	f.kills = append(f.kills, h.PID)
	f.mu.Unlock()
	f.Exit(h.PID)
	h.MarkExited(nil)
	return nil
}

// KillByName implements process.Supervisor
func (f *Fake) KillByName(names ...string) (int, error) {
	matched := process.MatchNames(f.list(), names...)
	for _, info := range matched {
		f.mu.Lock()
		f.kills = append(f.kills, info.PID)
		f.mu.Unlock()
		f.Exit(info.PID)
	}
	return len(matched), nil
}

// WaitForExit implements process.Supervisor
func (f *Fake) WaitForExit(ctx context.Context, h *process.Handle) error {
	if h == nil {
		return nil
	}
	select {
	case <-h.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FindByName implements process.Supervisor
func (f *Fake) FindByName(names ...string) ([]process.Info, error) {
	return process.MatchNames(f.list(), names...), nil
}

// FindByWindowTitle implements process.Supervisor
func (f *Fake) FindByWindowTitle(substr string) ([]process.Info, error) {
	return process.MatchTitle(f.list(), substr), nil
}

var _ process.Supervisor = (*Fake)(nil)
