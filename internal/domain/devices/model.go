package devices

import (
	"fmt"
	"sort"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/station/internal/infrastructure/logging"
	"github.com/GriffinCanCode/station/internal/shared/types"
)

// Outbound keys used with the Sink
const (
	KeyDeviceStatus       = "deviceStatus"
	KeyBaseStationsActive = "baseStationsActive"
)

// Sink receives device notifications as key/value pairs. It is called
// with the model lock held and must not block or call back into the model.
type Sink func(key, value string)

// Controller is a tracked hand controller
type Controller struct {
	Serial           string             `json:"serial"`
	Role             types.Role         `json:"role"`
	Tracking         types.DeviceStatus `json:"tracking"`
	Battery          int                `json:"battery"`
	FirmwareRequired bool               `json:"firmwareRequired"`
}

// BaseStation is a tracked lighthouse
type BaseStation struct {
	Serial           string             `json:"serial"`
	Tracking         types.DeviceStatus `json:"tracking"`
	FirmwareRequired bool               `json:"firmwareRequired"`
}

// Snapshot is a copy of every known device
type Snapshot struct {
	Headset      types.DeviceStatus                  `json:"headset"`
	Trackers     map[types.Tracker]types.DeviceStatus `json:"trackers"`
	Controllers  []Controller                        `json:"controllers"`
	BaseStations []BaseStation                       `json:"baseStations"`
	ActiveBases  int                                 `json:"activeBaseStations"`
}

// Model is the Station's device status model
type Model struct {
	mu          sync.Mutex
	trackers    map[types.Tracker]types.DeviceStatus
	lastTracker types.Tracker
	composite   types.DeviceStatus

	controllers  map[string]*Controller
	baseStations map[string]*BaseStation

	sink   Sink
	logger *logging.Logger
}

// New creates a model with every device Off
func New(sink Sink, logger *logging.Logger) *Model {
	if sink == nil {
		sink = func(string, string) {}
	}
	return &Model{
		trackers: map[types.Tracker]types.DeviceStatus{
			types.TrackerVendor: types.DeviceOff,
			types.TrackerOpenVR: types.DeviceOff,
		},
		composite:    types.DeviceOff,
		controllers:  make(map[string]*Controller),
		baseStations: make(map[string]*BaseStation),
		sink:         sink,
		logger:       logger.Component("devices"),
	}
}

// UpdateHeadset records a tracker report and notifies when the
// composite headset status changes.
func (m *Model) UpdateHeadset(tracker types.Tracker, status types.DeviceStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.trackers[tracker] = status
	m.lastTracker = tracker

	next := m.compositeLocked()
	if next == m.composite {
		return
	}
	m.logger.Info("Headset status changed",
		zap.String("from", string(m.composite)),
		zap.String("to", string(next)),
		zap.String("tracker", string(tracker)),
	)
	m.composite = next
	m.sink(KeyDeviceStatus, headsetValue(next))
}

func (m *Model) compositeLocked() types.DeviceStatus {
	for _, s := range m.trackers {
		if s == types.DeviceLost {
			return types.DeviceLost
		}
	}
	if m.lastTracker == "" {
		return m.composite
	}
	return m.trackers[m.lastTracker]
}

// Headset returns the composite headset status
func (m *Model) Headset() types.DeviceStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.composite
}

// Tracker returns the last status reported by one tracker
func (m *Model) Tracker(tracker types.Tracker) types.DeviceStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.trackers[tracker]; ok {
		return s
	}
	return types.DeviceOff
}

// UpdateController applies a typed property update to a controller,
// creating it on first sight. Values of the wrong type are discarded.
func (m *Model) UpdateController(serial string, role types.Role, prop types.DeviceProperty, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.controllers[serial]
	if !ok {
		c = &Controller{Serial: serial, Role: role, Tracking: types.DeviceOff}
		m.controllers[serial] = c
	}

	switch prop {
	case types.PropertyTracking:
		status, ok := asStatus(value)
		if !ok {
			m.discard("controller", serial, prop, value)
			return
		}
		if status == c.Tracking {
			return
		}
		c.Tracking = status
		m.sink(KeyDeviceStatus, controllerValue(c, prop, string(status)))
		switch status {
		case types.DeviceLost:
			m.sink(KeyDeviceStatus, controllerValue(c, types.PropertyBattery, "0"))
		case types.DeviceConnected:
			m.sink(KeyDeviceStatus, controllerValue(c, types.PropertyBattery, strconv.Itoa(c.Battery)))
		}

	case types.PropertyBattery:
		level, ok := asInt(value)
		if !ok || level < 0 || level > 100 {
			m.discard("controller", serial, prop, value)
			return
		}
		if level == c.Battery {
			return
		}
		c.Battery = level
		if c.Tracking == types.DeviceLost {
			return
		}
		m.sink(KeyDeviceStatus, controllerValue(c, prop, strconv.Itoa(level)))

	case types.PropertyFirmwareRequired:
		required, ok := asBool(value)
		if !ok {
			m.discard("controller", serial, prop, value)
			return
		}
		if required == c.FirmwareRequired {
			return
		}
		c.FirmwareRequired = required
		m.sink(KeyDeviceStatus, controllerValue(c, prop, strconv.FormatBool(required)))

	default:
		m.discard("controller", serial, prop, value)
	}
}

// UpdateBaseStation applies a typed property update to a base station.
// Tracking changes also publish the active/total aggregate.
func (m *Model) UpdateBaseStation(serial string, prop types.DeviceProperty, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.baseStations[serial]
	if !ok {
		b = &BaseStation{Serial: serial, Tracking: types.DeviceOff}
		m.baseStations[serial] = b
	}

	switch prop {
	case types.PropertyTracking:
		status, ok := asStatus(value)
		if !ok {
			m.discard("baseStation", serial, prop, value)
			return
		}
		if status == b.Tracking {
			return
		}
		b.Tracking = status
		m.sink(KeyDeviceStatus, baseStationValue(b, prop, string(status)))
		m.sink(KeyBaseStationsActive, m.activeBasesLocked())

	case types.PropertyFirmwareRequired:
		required, ok := asBool(value)
		if !ok {
			m.discard("baseStation", serial, prop, value)
			return
		}
		if required == b.FirmwareRequired {
			return
		}
		b.FirmwareRequired = required
		m.sink(KeyDeviceStatus, baseStationValue(b, prop, strconv.FormatBool(required)))

	default:
		m.discard("baseStation", serial, prop, value)
	}
}

func (m *Model) activeBasesLocked() string {
	active := 0
	for _, b := range m.baseStations {
		if b.Tracking == types.DeviceConnected {
			active++
		}
	}
	return fmt.Sprintf("%d/%d", active, len(m.baseStations))
}

// QueryStatuses sends a full snapshot through the sink so a newly
// connected peer starts in sync.
func (m *Model) QueryStatuses() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sink(KeyDeviceStatus, headsetValue(m.composite))
	for _, c := range m.sortedControllersLocked() {
		battery := c.Battery
		if c.Tracking == types.DeviceLost {
			battery = 0
		}
		m.sink(KeyDeviceStatus, controllerValue(c, types.PropertyTracking, string(c.Tracking)))
		m.sink(KeyDeviceStatus, controllerValue(c, types.PropertyBattery, strconv.Itoa(battery)))
	}
	for _, b := range m.sortedBasesLocked() {
		m.sink(KeyDeviceStatus, baseStationValue(b, types.PropertyTracking, string(b.Tracking)))
	}
	if len(m.baseStations) > 0 {
		m.sink(KeyBaseStationsActive, m.activeBasesLocked())
	}
}

// Snapshot returns a copy of the model for diagnostics
func (m *Model) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		Headset:  m.composite,
		Trackers: make(map[types.Tracker]types.DeviceStatus, len(m.trackers)),
	}
	for t, s := range m.trackers {
		snap.Trackers[t] = s
	}
	for _, c := range m.sortedControllersLocked() {
		snap.Controllers = append(snap.Controllers, *c)
	}
	for _, b := range m.sortedBasesLocked() {
		snap.BaseStations = append(snap.BaseStations, *b)
		if b.Tracking == types.DeviceConnected {
			snap.ActiveBases++
		}
	}
	return snap
}

func (m *Model) sortedControllersLocked() []*Controller {
	out := make([]*Controller, 0, len(m.controllers))
	for _, c := range m.controllers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Serial < out[j].Serial })
	return out
}

func (m *Model) sortedBasesLocked() []*BaseStation {
	out := make([]*BaseStation, 0, len(m.baseStations))
	for _, b := range m.baseStations {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Serial < out[j].Serial })
	return out
}

func (m *Model) discard(device, serial string, prop types.DeviceProperty, value any) {
	m.logger.Warn("Discarding device update with unexpected value",
		zap.String("device", device),
		zap.String("serial", serial),
		zap.String("property", string(prop)),
		zap.Any("value", value),
	)
}

func headsetValue(status types.DeviceStatus) string {
	return "Headset:" + string(types.PropertyTracking) + ":" + string(status)
}

func controllerValue(c *Controller, prop types.DeviceProperty, value string) string {
	return "Controller:" + c.Serial + ":" + string(c.Role) + ":" + string(prop) + ":" + value
}

func baseStationValue(b *BaseStation, prop types.DeviceProperty, value string) string {
	return "BaseStation:" + b.Serial + ":" + string(prop) + ":" + value
}

func asStatus(v any) (types.DeviceStatus, bool) {
	switch s := v.(type) {
	case types.DeviceStatus:
		return types.ParseDeviceStatus(string(s))
	case string:
		return types.ParseDeviceStatus(s)
	}
	return "", false
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	}
	return 0, false
}

func asBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}
