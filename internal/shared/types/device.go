package types

// DeviceStatus is the connection state of a tracked VR device
type DeviceStatus string

const (
	DeviceConnected DeviceStatus = "Connected"
	DeviceLost      DeviceStatus = "Lost"
	DeviceOff       DeviceStatus = "Off"
)

// ParseDeviceStatus maps a reported value to a DeviceStatus
func ParseDeviceStatus(s string) (DeviceStatus, bool) {
	switch DeviceStatus(s) {
	case DeviceConnected, DeviceLost, DeviceOff:
		return DeviceStatus(s), true
	}
	return "", false
}

// Tracker identifies which source reported a headset status
type Tracker string

const (
	TrackerVendor Tracker = "VendorSoftware"
	TrackerOpenVR Tracker = "OpenVR"
)

// Role is the hand a controller is bound to
type Role string

const (
	RoleLeft  Role = "Left"
	RoleRight Role = "Right"
)

// DeviceProperty names an updatable device attribute
type DeviceProperty string

const (
	PropertyTracking         DeviceProperty = "tracking"
	PropertyBattery          DeviceProperty = "battery"
	PropertyFirmwareRequired DeviceProperty = "firmwareRequired"
)
