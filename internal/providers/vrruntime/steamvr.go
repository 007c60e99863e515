package vrruntime

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/station/internal/domain/process"
	"github.com/GriffinCanCode/station/internal/infrastructure/logging"
	"github.com/GriffinCanCode/station/internal/providers/logtail"
	"github.com/GriffinCanCode/station/internal/shared/types"
)

// ServerProcess is the runtime process whose presence means SteamVR is up
const ServerProcess = "vrserver"

var (
	appStartedRe = regexp.MustCompile(`(?i)application (\S+) started with pid (\d+)`)
	appFailedRe  = regexp.MustCompile(`(?i)application (\S+) failed to launch`)
	appExitedRe  = regexp.MustCompile(`(?i)application (\S+) exited`)
	deviceRe     = regexp.MustCompile(`(?i)device (\S+) class (\w+)(?: role (\w+))? (connected|lost|off)(?: battery (\d+))?`)
)

// SteamVR is the Runtime backed by a local SteamVR install
type SteamVR struct {
	supervisor process.Supervisor
	steamExe   string
	tail       *logtail.Tailer
	logger     *logging.Logger

	mu       sync.Mutex
	registry map[string]string // app key -> launch URI
	current  Application
	devices  map[string]Device
	pending  map[string][]chan LaunchResult
}

// NewSteamVR creates a runtime that launches through steamExe and
// follows the vrserver log at logPath.
func NewSteamVR(sup process.Supervisor, steamExe, logPath string, logger *logging.Logger) *SteamVR {
	s := &SteamVR{
		supervisor: sup,
		steamExe:   steamExe,
		logger:     logger.Component("vrruntime"),
		registry:   make(map[string]string),
		devices:    make(map[string]Device),
		pending:    make(map[string][]chan LaunchResult),
	}
	s.tail = logtail.New(filepath.Dir(logPath), filepath.Base(logPath), s.handleLine, logger)
	return s
}

// Register makes key launchable through uri (e.g. steam://rungameid/620)
func (s *SteamVR) Register(key, uri string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registry[key] = uri
}

// SteamAppKey is the runtime key of a Steam application
func SteamAppKey(appID string) string {
	return "steam.app." + appID
}

func (s *SteamVR) Running() bool {
	infos, err := s.supervisor.FindByName(ServerProcess)
	return err == nil && len(infos) > 0
}

func (s *SteamVR) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.Running() {
		return ErrNotRunning
	}
	return s.tail.Poll()
}

// Follow keeps the log tail current until ctx ends
func (s *SteamVR) Follow(ctx context.Context) error {
	return s.tail.Run(ctx)
}

func (s *SteamVR) Registered(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.registry[key]
	return ok
}

func (s *SteamVR) Launch(ctx context.Context, key string) (<-chan LaunchResult, error) {
	s.mu.Lock()
	uri, ok := s.registry[key]
	s.mu.Unlock()
	if !ok {
		return nil, ErrNotRegistered
	}
	if !s.Running() {
		return nil, ErrNotRunning
	}

	ch := make(chan LaunchResult, 1)
	s.mu.Lock()
	s.pending[key] = append(s.pending[key], ch)
	s.mu.Unlock()

	if _, err := s.supervisor.Start(ctx, process.Spec{Path: s.steamExe, Args: []string{uri}}); err != nil {
		s.drop(key, ch)
		return nil, fmt.Errorf("failed to request runtime launch of %s: %w", key, err)
	}
	s.logger.Info("Requested runtime launch", zap.String("key", key))

	out := make(chan LaunchResult, 1)
	go func() {
		defer close(out)
		select {
		case res := <-ch:
			out <- res
		case <-ctx.Done():
			s.drop(key, ch)
		}
	}()
	return out, nil
}

func (s *SteamVR) drop(key string, ch chan LaunchResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	waiters := s.pending[key]
	for i, w := range waiters {
		if w == ch {
			s.pending[key] = append(waiters[:i], waiters[i+1:]...)
			break
		}
	}
	if len(s.pending[key]) == 0 {
		delete(s.pending, key)
	}
}

func (s *SteamVR) CurrentApplication() (Application, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.current.Key != ""
}

func (s *SteamVR) Devices() []Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Device, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, d)
	}
	return out
}

func (s *SteamVR) handleLine(line string) {
	switch {
	case appStartedRe.MatchString(line):
		m := appStartedRe.FindStringSubmatch(line)
		pid, _ := strconv.Atoi(m[2])
		s.resolve(m[1], LaunchResult{PID: pid})
		s.mu.Lock()
		s.current = Application{Key: m[1], PID: pid}
		s.mu.Unlock()

	case appFailedRe.MatchString(line):
		m := appFailedRe.FindStringSubmatch(line)
		s.resolve(m[1], LaunchResult{Err: ErrLaunchFailed})

	case appExitedRe.MatchString(line):
		m := appExitedRe.FindStringSubmatch(line)
		s.mu.Lock()
		if s.current.Key == m[1] {
			s.current = Application{}
		}
		s.mu.Unlock()

	case deviceRe.MatchString(line):
		s.updateDevice(deviceRe.FindStringSubmatch(line))
	}
}

func (s *SteamVR) resolve(key string, res LaunchResult) {
	s.mu.Lock()
	waiters := s.pending[key]
	delete(s.pending, key)
	s.mu.Unlock()

	for _, ch := range waiters {
		ch <- res
	}
}

func (s *SteamVR) updateDevice(m []string) {
	status, ok := types.ParseDeviceStatus(titleCase(m[4]))
	if !ok {
		return
	}
	d := Device{
		Serial:   m[1],
		Class:    parseClass(m[2]),
		Role:     types.Role(titleCase(m[3])),
		Tracking: status,
		Battery:  -1,
	}
	if m[5] != "" {
		d.Battery, _ = strconv.Atoi(m[5])
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.devices[d.Serial]; ok && d.Battery < 0 {
		d.Battery = prev.Battery
	}
	s.devices[d.Serial] = d
}

func parseClass(s string) DeviceClass {
	switch strings.ToLower(s) {
	case "hmd":
		return ClassHMD
	case "controller":
		return ClassController
	default:
		return ClassBaseStation
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
