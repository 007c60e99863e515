package executable

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/station/internal/domain/process"
	"github.com/GriffinCanCode/station/internal/infrastructure/logging"
	"github.com/GriffinCanCode/station/internal/shared/types"
)

var (
	ErrMalformedRequest = errors.New("malformed executable request")
	ErrUnknownAction    = errors.New("unknown executable action")
)

// Action is what to do with the executable
type Action string

const (
	ActionStart Action = "start"
	ActionStop  Action = "stop"
)

// LaunchType selects window visibility
type LaunchType string

const (
	LaunchVisible LaunchType = "visible"
	LaunchHidden  LaunchType = "hidden"
)

// Request is a decoded HandleExecutable command
type Request struct {
	Action     Action
	LaunchType LaunchType
	Path       string
	Params     string
	VR         bool
}

// Unescape reverses the sender's colon escaping
func Unescape(s string) string {
	return strings.ReplaceAll(s, "%", ":")
}

// ParseRequest decodes action:launchType:path:params:isVr fields
func ParseRequest(fields []string) (Request, error) {
	if len(fields) < 3 {
		return Request{}, fmt.Errorf("%w: %d fields", ErrMalformedRequest, len(fields))
	}
	req := Request{
		Action:     Action(strings.ToLower(fields[0])),
		LaunchType: LaunchType(strings.ToLower(fields[1])),
		Path:       Unescape(fields[2]),
	}
	if len(fields) > 3 {
		req.Params = Unescape(fields[3])
	}
	if len(fields) > 4 {
		vr, err := strconv.ParseBool(strings.ToLower(fields[4]))
		if err != nil {
			return Request{}, fmt.Errorf("%w: isVr %q", ErrMalformedRequest, fields[4])
		}
		req.VR = vr
	}
	switch req.Action {
	case ActionStart, ActionStop:
	default:
		return Request{}, fmt.Errorf("%w: %q", ErrUnknownAction, fields[0])
	}
	if req.LaunchType != LaunchHidden {
		req.LaunchType = LaunchVisible
	}
	if req.Path == "" {
		return Request{}, fmt.Errorf("%w: empty path", ErrMalformedRequest)
	}
	return req, nil
}

// Manager tracks the executables it started, one per path
type Manager struct {
	supervisor process.Supervisor
	reporter   types.Reporter
	logger     *logging.Logger

	// PrepareVR runs before a VR executable starts, typically bringing
	// up the headset session. Nil skips preparation.
	PrepareVR func(ctx context.Context) error

	mu      sync.Mutex
	running map[string]*process.Handle
}

// NewManager creates an executable manager
func NewManager(supervisor process.Supervisor, reporter types.Reporter, logger *logging.Logger) *Manager {
	return &Manager{
		supervisor: supervisor,
		reporter:   reporter,
		logger:     logger.Component("executable"),
		running:    make(map[string]*process.Handle),
	}
}

// Handle carries out req
func (m *Manager) Handle(ctx context.Context, req Request) error {
	switch req.Action {
	case ActionStart:
		return m.start(ctx, req)
	case ActionStop:
		return m.stop(req.Path)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, req.Action)
	}
}

func (m *Manager) start(ctx context.Context, req Request) error {
	key := process.NormalizeName(req.Path)
	m.mu.Lock()
	if h, ok := m.running[key]; ok && !h.Exited() {
		m.mu.Unlock()
		m.logger.Info("Executable already running", zap.String("path", req.Path), zap.Int("pid", h.PID))
		return nil
	}
	m.mu.Unlock()

	if req.VR && m.PrepareVR != nil {
		if err := m.PrepareVR(ctx); err != nil {
			return fmt.Errorf("failed to prepare VR for %s: %w", req.Path, err)
		}
	}

	h, err := m.supervisor.Start(ctx, process.Spec{
		Path:   req.Path,
		Args:   strings.Fields(req.Params),
		Hidden: req.LaunchType == LaunchHidden,
	})
	if err != nil {
		var nf *process.NotFoundError
		if errors.As(err, &nf) {
			m.report(types.KindStationError, "Executable not found: "+nf.Path)
		}
		return fmt.Errorf("failed to start %s: %w", req.Path, err)
	}

	m.mu.Lock()
	m.running[key] = h
	m.mu.Unlock()

	go m.reap(key, h)
	return nil
}

// reap forgets h once it exits
func (m *Manager) reap(key string, h *process.Handle) {
	defer m.logger.Recover("executable reap")
	if err := m.supervisor.WaitForExit(context.Background(), h); err != nil {
		return
	}
	m.mu.Lock()
	if m.running[key] == h {
		delete(m.running, key)
	}
	m.mu.Unlock()
	m.logger.Debug("Executable exited", zap.String("name", key), zap.Int("pid", h.PID))
}

func (m *Manager) stop(path string) error {
	key := process.NormalizeName(path)
	m.mu.Lock()
	h, ok := m.running[key]
	delete(m.running, key)
	m.mu.Unlock()

	if ok {
		return m.supervisor.Kill(h, true)
	}
	n, err := m.supervisor.KillByName(key)
	if err != nil {
		return fmt.Errorf("failed to stop %s: %w", path, err)
	}
	m.logger.Info("Stopped executable by name", zap.String("name", key), zap.Int("count", n))
	return nil
}

// Running lists the names of tracked executables that are still alive
func (m *Manager) Running() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.running))
	for name, h := range m.running {
		if !h.Exited() {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// StopAll kills every tracked executable
func (m *Manager) StopAll() {
	m.mu.Lock()
	handles := m.running
	m.running = make(map[string]*process.Handle)
	m.mu.Unlock()

	for name, h := range handles {
		if err := m.supervisor.Kill(h, true); err != nil {
			m.logger.Warn("Failed to stop executable", zap.String("name", name), zap.Error(err))
		}
	}
}

func (m *Manager) report(kind types.MessageKind, values ...string) {
	if m.reporter != nil {
		m.reporter.PassMessage(types.NewMessage(kind, values...))
	}
}
