package monitor

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/station/internal/domain/process"
	"github.com/GriffinCanCode/station/internal/infrastructure/logging"
	"github.com/GriffinCanCode/station/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/station/internal/shared/types"
)

// Window titles Steam uses for its error dialogs
var SteamErrorTitles = []string{"Steam - Error", "Steam Error"}

// Marker of Steam window chrome in launch popups
const SteamChromeMarker = "Steam"

// Process that reports crashes with its own modal dialogs
const ErrorReporterProcess = "WerFault"

// Watched is a wrapper as seen by the wrapper loop
type Watched interface {
	ProcessNames() []string
	CheckCurrentProcess() (responding bool, known bool)
	CurrentExperienceName() (string, bool)
}

// WrapperDeps are the wrapper loop collaborators
type WrapperDeps struct {
	Wrappers   map[types.WrapperType]Watched
	Supervisor process.Supervisor
	Reporter   types.Reporter
	// Extra returns additional processes that must be healthy, such as
	// headset software.
	Extra   func() []string
	Metrics *monitoring.Metrics
	Logger  *logging.Logger
}

// WrapperLoop watches the processes the active experience relies on
type WrapperLoop struct {
	*Loop
	deps WrapperDeps

	mu          sync.Mutex
	kind        types.WrapperType
	responding  bool
	steamError  bool
	popupShown  bool
	popupTarget string
}

// NewWrapperLoop creates a stopped wrapper loop
func NewWrapperLoop(interval time.Duration, deps WrapperDeps) *WrapperLoop {
	deps.Logger = deps.Logger.Component("wrapper-loop")
	w := &WrapperLoop{deps: deps, responding: true}
	w.Loop = NewLoop("wrapper", interval, w.Tick, deps.Metrics, deps.Logger)
	return w
}

// Start watches the wrapper of kind, restarting the loop. Edge state is
// reset only once any in-flight tick has finished.
func (w *WrapperLoop) Start(kind types.WrapperType) {
	w.Loop.Stop()

	w.mu.Lock()
	w.kind = kind
	w.responding = true
	w.steamError = false
	w.popupShown = false
	w.popupTarget = ""
	w.mu.Unlock()

	w.Loop.Start(context.Background())
}

// Kind returns the wrapper type being watched
func (w *WrapperLoop) Kind() types.WrapperType {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.kind
}

// Tick runs one round of wrapper checks
func (w *WrapperLoop) Tick(ctx context.Context) {
	watched, ok := w.deps.Wrappers[w.Kind()]
	if !ok {
		return
	}

	w.checkResponding(watched)
	w.checkSteamErrors()
	if n, err := w.deps.Supervisor.KillByName(ErrorReporterProcess); err == nil && n > 0 {
		w.deps.Logger.Info("Killed error reporter", zap.Int("count", n))
	}
	w.checkPopup(watched)
}

// checkResponding reports edges of the combined health of the expected
// processes. A hung process and a missing one are logged differently.
func (w *WrapperLoop) checkResponding(watched Watched) {
	names := watched.ProcessNames()
	if w.deps.Extra != nil {
		names = append(names, w.deps.Extra()...)
	}

	healthy := true
	if len(names) > 0 {
		infos, err := w.deps.Supervisor.FindByName(names...)
		if err != nil {
			w.deps.Logger.Debug("Process query failed", zap.Error(err))
			return
		}
		found := make(map[string]bool, len(infos))
		for _, info := range infos {
			found[process.NormalizeName(info.Name)] = true
			if !info.Responding {
				healthy = false
				w.deps.Logger.Warn("Process not responding", zap.String("name", info.Name), zap.Int("pid", info.PID))
			}
		}
		for _, n := range names {
			if !found[process.NormalizeName(n)] {
				healthy = false
				w.deps.Logger.Warn("Process not running", zap.String("name", n))
			}
		}
	}
	if responding, known := watched.CheckCurrentProcess(); known && !responding {
		healthy = false
	}

	w.mu.Lock()
	changed := healthy != w.responding
	w.responding = healthy
	w.mu.Unlock()
	if !changed {
		return
	}
	if healthy {
		w.report(types.KindStatus, types.StatusOn)
	} else {
		w.report(types.KindStatus, types.StatusNotResponding)
	}
}

func (w *WrapperLoop) checkSteamErrors() {
	present := false
	for _, title := range SteamErrorTitles {
		infos, err := w.deps.Supervisor.FindByWindowTitle(title)
		if err == nil && len(infos) > 0 {
			present = true
			break
		}
	}

	w.mu.Lock()
	fire := present && !w.steamError
	w.steamError = present
	w.mu.Unlock()
	if fire {
		w.deps.Logger.Warn("Steam error dialog detected")
		w.report(types.KindSteamError)
	}
}

// checkPopup reports a Steam launch dialog for the current experience
// once per launch.
func (w *WrapperLoop) checkPopup(watched Watched) {
	name, ok := watched.CurrentExperienceName()
	if !ok || name == "" {
		return
	}

	w.mu.Lock()
	if w.popupTarget != name {
		w.popupTarget = name
		w.popupShown = false
	}
	shown := w.popupShown
	w.mu.Unlock()
	if shown {
		return
	}

	infos, err := w.deps.Supervisor.FindByWindowTitle(name)
	if err != nil {
		return
	}
	for _, info := range infos {
		if !strings.Contains(info.WindowTitle, SteamChromeMarker) {
			continue
		}
		w.mu.Lock()
		w.popupShown = true
		w.mu.Unlock()
		w.deps.Logger.Info("Launch popup detected", zap.String("title", info.WindowTitle))
		w.report(types.KindPopupDetected, name)
		return
	}
}

func (w *WrapperLoop) report(kind types.MessageKind, values ...string) {
	if w.deps.Reporter != nil {
		w.deps.Reporter.PassMessage(types.NewMessage(kind, values...))
	}
}
