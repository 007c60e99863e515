package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/station/internal/infrastructure/logging"
)

// ErrNotFound is returned when an executable does not exist
var ErrNotFound = errors.New("executable not found")

// NotFoundError carries the path that could not be launched
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("executable not found: %s", e.Path)
}

// Is lets errors.Is match ErrNotFound
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// Spec describes a process to launch
type Spec struct {
	Path   string
	Args   []string
	Dir    string // Defaults to the executable's directory
	Hidden bool   // Start without a visible window where supported
}

// Info is a snapshot of a running process
type Info struct {
	PID         int
	Name        string
	WindowTitle string
	Responding  bool
}

// Supervisor starts, inspects and stops OS processes
type Supervisor interface {
	Start(ctx context.Context, spec Spec) (*Handle, error)
	Attach(pid int) (*Handle, error)
	IsResponding(h *Handle) (responding bool, known bool)
	Kill(h *Handle, includeChildren bool) error
	KillByName(names ...string) (int, error)
	WaitForExit(ctx context.Context, h *Handle) error
	FindByName(names ...string) ([]Info, error)
	FindByWindowTitle(substr string) ([]Info, error)
}

// Handle references one OS process. The exit channel closes exactly
// once, when the process terminates.
type Handle struct {
	PID  int
	Name string

	proc     *os.Process
	done     chan struct{}
	exitOnce sync.Once
	exitErr  error
}

// NewHandle creates a handle for a process identified only by pid.
// Supervisors use it when attaching; fakes use it in tests.
func NewHandle(pid int, name string) *Handle {
	return &Handle{
		PID:  pid,
		Name: NormalizeName(name),
		done: make(chan struct{}),
	}
}

// Done returns a channel closed when the process exits
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Exited reports whether the process has terminated
func (h *Handle) Exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// MarkExited records termination. Safe to call more than once.
func (h *Handle) MarkExited(err error) {
	h.exitOnce.Do(func() {
		h.exitErr = err
		close(h.done)
	})
}

// NormalizeName lowercases a process name and strips a .exe suffix
func NormalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(filepath.Base(name)))
	return strings.TrimSuffix(name, ".exe")
}

// platform is the OS-specific half of System
type platform interface {
	list() ([]Info, error)
	killTree(pid int) error
	configure(cmd *exec.Cmd, spec Spec)
}

// System is the Supervisor backed by the host operating system
type System struct {
	platform     platform
	pollInterval time.Duration
	logger       *logging.Logger
}

// NewSystem creates a supervisor for the host OS
func NewSystem(logger *logging.Logger) *System {
	return &System{
		platform:     newPlatform(),
		pollInterval: time.Second,
		logger:       logger.Component("process"),
	}
}

// Start launches spec.Path. A missing executable yields *NotFoundError.
func (s *System) Start(ctx context.Context, spec Spec) (*Handle, error) {
	path, err := resolve(spec.Path)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := exec.Command(path, spec.Args...)
	cmd.Dir = spec.Dir
	if cmd.Dir == "" {
		cmd.Dir = filepath.Dir(path)
	}
	s.platform.configure(cmd, spec)

	if err := cmd.Start(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &NotFoundError{Path: spec.Path}
		}
		return nil, fmt.Errorf("failed to start %s: %w", spec.Path, err)
	}

	h := NewHandle(cmd.Process.Pid, path)
	h.proc = cmd.Process
	go func() {
		h.MarkExited(cmd.Wait())
	}()

	s.logger.Info("Started process",
		zap.String("path", path),
		zap.Int("pid", h.PID),
		zap.Strings("args", spec.Args),
	)
	return h, nil
}

// resolve turns a path or bare command into an executable location
func resolve(path string) (string, error) {
	if path == "" {
		return "", &NotFoundError{Path: path}
	}
	if !filepath.IsAbs(path) && !strings.ContainsAny(path, `/\`) {
		found, err := exec.LookPath(path)
		if err != nil {
			return "", &NotFoundError{Path: path}
		}
		return found, nil
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", &NotFoundError{Path: path}
	}
	return path, nil
}

// Attach returns a handle for a running process the Station did not start
func (s *System) Attach(pid int) (*Handle, error) {
	infos, err := s.platform.list()
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		if info.PID == pid {
			return NewHandle(pid, info.Name), nil
		}
	}
	return nil, fmt.Errorf("process %d is not running", pid)
}

// IsResponding reports whether h is alive and responding to the OS.
// known is false when h is nil.
func (s *System) IsResponding(h *Handle) (bool, bool) {
	if h == nil {
		return false, false
	}
	if h.Exited() {
		return false, true
	}
	infos, err := s.platform.list()
	if err != nil {
		s.logger.Warn("Failed to list processes", zap.Error(err))
		return false, false
	}
	for _, info := range infos {
		if info.PID == h.PID {
			return info.Responding, true
		}
	}
	return false, true
}

// Kill terminates h, optionally with its whole process tree
func (s *System) Kill(h *Handle, includeChildren bool) error {
	if h == nil || h.Exited() {
		return nil
	}
	if includeChildren {
		err := s.platform.killTree(h.PID)
		if err == nil {
			return nil
		}
		s.logger.Debug("Tree kill failed, killing root only", zap.Int("pid", h.PID), zap.Error(err))
	}
	proc := h.proc
	if proc == nil {
		found, err := os.FindProcess(h.PID)
		if err != nil {
			return fmt.Errorf("failed to find process %d: %w", h.PID, err)
		}
		proc = found
	}
	if err := proc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to kill process %d: %w", h.PID, err)
	}
	return nil
}

// KillByName kills every process matching one of names
func (s *System) KillByName(names ...string) (int, error) {
	infos, err := s.FindByName(names...)
	if err != nil {
		return 0, err
	}
	killed := 0
	for _, info := range infos {
		if err := s.platform.killTree(info.PID); err != nil {
			s.logger.Warn("Failed to kill process",
				zap.String("name", info.Name),
				zap.Int("pid", info.PID),
				zap.Error(err),
			)
			continue
		}
		killed++
	}
	return killed, nil
}

// WaitForExit blocks until h terminates or ctx is cancelled
func (s *System) WaitForExit(ctx context.Context, h *Handle) error {
	if h == nil {
		return nil
	}
	if h.proc == nil {
		pollCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go s.pollExit(pollCtx, h)
	}
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// pollExit watches an attached process until it disappears or ctx ends
func (s *System) pollExit(ctx context.Context, h *Handle) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
		}
		infos, err := s.platform.list()
		if err != nil {
			continue
		}
		alive := false
		for _, info := range infos {
			if info.PID == h.PID {
				alive = true
				break
			}
		}
		if !alive {
			h.MarkExited(nil)
			return
		}
	}
}

// FindByName lists running processes whose name matches one of names
func (s *System) FindByName(names ...string) ([]Info, error) {
	infos, err := s.platform.list()
	if err != nil {
		return nil, err
	}
	return MatchNames(infos, names...), nil
}

// FindByWindowTitle lists processes whose main window title contains substr
func (s *System) FindByWindowTitle(substr string) ([]Info, error) {
	infos, err := s.platform.list()
	if err != nil {
		return nil, err
	}
	return MatchTitle(infos, substr), nil
}

// MatchNames filters infos by normalized process name
func MatchNames(infos []Info, names ...string) []Info {
	wanted := make(map[string]struct{}, len(names))
	for _, n := range names {
		wanted[NormalizeName(n)] = struct{}{}
	}
	var out []Info
	for _, info := range infos {
		if _, ok := wanted[NormalizeName(info.Name)]; ok {
			out = append(out, info)
		}
	}
	return out
}

// MatchTitle filters infos by case-insensitive window title substring
func MatchTitle(infos []Info, substr string) []Info {
	if substr == "" {
		return nil
	}
	needle := strings.ToLower(substr)
	var out []Info
	for _, info := range infos {
		if strings.Contains(strings.ToLower(info.WindowTitle), needle) {
			out = append(out, info)
		}
	}
	return out
}
