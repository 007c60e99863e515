package session

import (
	"context"

	"github.com/GriffinCanCode/station/internal/domain/headset"
	"github.com/GriffinCanCode/station/internal/domain/process"
	"github.com/GriffinCanCode/station/internal/providers/window"
)

// Profile is the external software a session mode requires
type Profile interface {
	Name() string
	// StartSession launches the required software unless it is running
	StartSession(ctx context.Context) error
	MinimizeSoftware() error
	// PollsVendor reports whether vendor headset software must be polled
	PollsVendor() bool
}

// VRProfile starts the VR runtime and headset vendor software
type VRProfile struct {
	driver headset.Driver
}

// NewVRProfile creates the VR profile around driver
func NewVRProfile(driver headset.Driver) *VRProfile {
	return &VRProfile{driver: driver}
}

func (p *VRProfile) Name() string { return "vr" }

func (p *VRProfile) StartSession(ctx context.Context) error {
	return p.driver.StartVRSession(ctx)
}

func (p *VRProfile) MinimizeSoftware() error { return p.driver.MinimizeSoftware() }
func (p *VRProfile) PollsVendor() bool       { return true }

// ContentProfile runs non-VR content; it needs no external software but
// keeps the Steam client out of the way.
type ContentProfile struct {
	supervisor process.Supervisor
	windows    window.Manager
}

// NewContentProfile creates the content profile
func NewContentProfile(sup process.Supervisor, windows window.Manager) *ContentProfile {
	return &ContentProfile{supervisor: sup, windows: windows}
}

func (p *ContentProfile) Name() string                       { return "content" }
func (p *ContentProfile) StartSession(context.Context) error { return nil }
func (p *ContentProfile) PollsVendor() bool                  { return false }

func (p *ContentProfile) MinimizeSoftware() error {
	infos, err := p.supervisor.FindByName("steam", "steamwebhelper")
	if err != nil || len(infos) == 0 {
		return err
	}
	pids := make([]int, 0, len(infos))
	for _, info := range infos {
		pids = append(pids, info.PID)
	}
	return p.windows.Minimize(pids...)
}
