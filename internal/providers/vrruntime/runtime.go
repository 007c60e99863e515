package vrruntime

import (
	"context"
	"errors"

	"github.com/GriffinCanCode/station/internal/shared/types"
)

var (
	// ErrNotRegistered means the runtime cannot launch this application
	// and the caller should fall back to starting it directly.
	ErrNotRegistered = errors.New("application not registered with the VR runtime")
	// ErrNotRunning means the runtime process is absent
	ErrNotRunning = errors.New("VR runtime is not running")
	// ErrLaunchFailed is delivered when the runtime reports a failed launch
	ErrLaunchFailed = errors.New("VR runtime reported launch failure")
)

// DeviceClass is the kind of a tracked device
type DeviceClass string

const (
	ClassHMD         DeviceClass = "HMD"
	ClassController  DeviceClass = "Controller"
	ClassBaseStation DeviceClass = "TrackingReference"
)

// Device is the runtime's view of one tracked device
type Device struct {
	Serial   string
	Class    DeviceClass
	Role     types.Role
	Tracking types.DeviceStatus
	Battery  int // -1 when not reported
}

// Application is the scene application the runtime is presenting
type Application struct {
	Key string
	PID int
}

// LaunchResult is delivered exactly once per accepted launch
type LaunchResult struct {
	PID int
	Err error
}

// Runtime is the VR runtime capability used by wrappers and the station loop
type Runtime interface {
	// Running reports whether the runtime process is present
	Running() bool
	// Init verifies the runtime connection and refreshes its state
	Init(ctx context.Context) error
	// Registered reports whether key can be launched through the runtime
	Registered(key string) bool
	// Launch asks the runtime to start key. The channel yields one result;
	// it is closed without a value if ctx ends first.
	Launch(ctx context.Context, key string) (<-chan LaunchResult, error)
	// CurrentApplication returns the scene application, if any
	CurrentApplication() (Application, bool)
	// Devices lists the tracked devices last reported by the runtime
	Devices() []Device
}

// Null is the Runtime of a Station without a VR runtime
type Null struct{}

func (Null) Running() bool                           { return false }
func (Null) Init(context.Context) error              { return ErrNotRunning }
func (Null) Registered(string) bool                  { return false }
func (Null) CurrentApplication() (Application, bool) { return Application{}, false }
func (Null) Devices() []Device                       { return nil }

func (Null) Launch(context.Context, string) (<-chan LaunchResult, error) {
	return nil, ErrNotRegistered
}
