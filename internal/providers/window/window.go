// Package window minimizes, maximizes and dismisses top-level windows of
// processes the Station supervises.
package window

import (
	"errors"
	"sync"
)

// ErrUnsupported is returned on platforms without a window manager binding
var ErrUnsupported = errors.New("window management not supported on this platform")

// Manager controls top-level windows by owning process or title
type Manager interface {
	Minimize(pids ...int) error
	Maximize(pid int) error
	// CloseByTitle posts a close request to every window whose title
	// contains substr and returns how many were closed.
	CloseByTitle(substr string) (int, error)
	// Titles lists the visible window titles of pid
	Titles(pid int) ([]string, error)
}

// Recorder is a Manager that only records calls. It is used where no
// desktop session exists and by tests.
type Recorder struct {
	mu        sync.Mutex
	minimized []int
	maximized []int
	closed    []string
	titles    map[int][]string
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{titles: make(map[int][]string)}
}

// SetTitles sets the window titles reported for pid
func (r *Recorder) SetTitles(pid int, titles ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.titles[pid] = titles
}

func (r *Recorder) Minimize(pids ...int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.minimized = append(r.minimized, pids...)
	return nil
}

func (r *Recorder) Maximize(pid int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.maximized = append(r.maximized, pid)
	return nil
}

func (r *Recorder) CloseByTitle(substr string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = append(r.closed, substr)
	return 0, nil
}

func (r *Recorder) Titles(pid int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.titles[pid]...), nil
}

// Minimized returns every pid passed to Minimize
func (r *Recorder) Minimized() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.minimized...)
}

// Maximized returns every pid passed to Maximize
func (r *Recorder) Maximized() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.maximized...)
}

// Closed returns every title passed to CloseByTitle
func (r *Recorder) Closed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.closed...)
}
