// Package types provides shared data structures for the Station.
//
// This package defines the values passed between the session controller,
// wrappers, headset drivers and monitoring loops, so that none of them
// has to import another's package just to describe an experience or a
// device state.
//
// Core Types:
//   - Experience: Launchable application unit
//   - ExperienceSummary: Catalog entry reported to the tablet
//   - WrapperType: Launch mechanism tag (Embedded, Steam, Revive, Custom)
//   - DeviceStatus: Connected / Lost / Off
//   - Message: Tagged outward event routed through the session funnel
//
// Example Usage:
//
//	exp := types.Experience{
//	    Type: types.WrapperSteam,
//	    ID:   "546560",
//	    Name: "Half-Life: Alyx",
//	    IsVR: true,
//	}
//	if exp.IsNull() {
//	    return
//	}
package types
