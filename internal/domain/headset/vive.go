package headset

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/station/internal/domain/process"
	"github.com/GriffinCanCode/station/internal/providers/logtail"
	"github.com/GriffinCanCode/station/internal/shared/types"
)

// ViveConnector is the process name of the Vive wireless connection utility
const ViveConnector = "HtcConnectionUtility"

var viveStateRe = regexp.MustCompile(`(?i)headset (?:state|status)\s*[:=]\s*(\w+)`)

// Vive is the driver for headsets paired through the Vive wireless utility
type Vive struct {
	*base
	tail *logtail.Tailer

	mu     sync.Mutex
	latest types.DeviceStatus
}

// NewVive creates the Vive driver. connector is the utility executable;
// logDir is where it writes its connection logs.
func NewVive(deps Deps, connector, logDir string) *Vive {
	b := newBase(deps, "vive", types.TrackerVendor)
	b.query = []string{"steam", "vrserver", "vrmonitor", ViveConnector}
	b.minimize = []string{"steam", "steamwebhelper", "vrmonitor", ViveConnector}
	b.manager = ViveConnector
	b.preKill = []string{"ViveSettings"}
	b.launch = []launchStep{
		{spec: b.steamSpec(), satisfiedBy: []string{"steam", "vrserver"}},
		{spec: process.Spec{Path: connector}, satisfiedBy: []string{ViveConnector}},
	}

	v := &Vive{base: b}
	v.tail = logtail.New(logDir, "**/*.log", v.handleLine, deps.Logger)
	return v
}

// Follow keeps the vendor log tail current until ctx ends
func (v *Vive) Follow(ctx context.Context) error {
	return v.tail.Run(ctx)
}

// MonitorVRConnection updates the vendor tracker. A missing utility
// means Off; otherwise the last state written to its log is used.
func (v *Vive) MonitorVRConnection(ctx context.Context) {
	infos, err := v.deps.Supervisor.FindByName(ViveConnector)
	if err != nil {
		v.logger.Debug("Failed to query vendor software", zap.Error(err))
		return
	}
	if len(infos) == 0 {
		v.set("")
		v.deps.Devices.UpdateHeadset(types.TrackerVendor, types.DeviceOff)
		return
	}

	if err := v.tail.Poll(); err != nil {
		v.logger.Debug("Vendor log unavailable", zap.Error(err))
	}

	v.mu.Lock()
	latest := v.latest
	v.mu.Unlock()
	if latest == "" {
		// Running but nothing logged yet: not paired
		latest = types.DeviceLost
	}
	v.deps.Devices.UpdateHeadset(types.TrackerVendor, latest)
}

func (v *Vive) handleLine(line string) {
	m := viveStateRe.FindStringSubmatch(line)
	if m == nil {
		return
	}
	var status types.DeviceStatus
	switch strings.ToLower(m[1]) {
	case "connected", "paired":
		status = types.DeviceConnected
	case "disconnected", "lost", "searching", "pairing":
		status = types.DeviceLost
	case "off", "closed":
		status = types.DeviceOff
	default:
		return
	}
	v.set(status)
}

func (v *Vive) set(status types.DeviceStatus) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.latest = status
}
