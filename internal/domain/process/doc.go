// Package process supervises the operating system processes a Station
// launches and watches: experiences, Steam, SteamVR and vendor headset
// software.
//
// The Supervisor interface is the only way the rest of the Station
// touches OS processes. It starts executables, attaches to processes it
// did not start (for example an experience SteamVR launched on its own),
// answers "is this running / is it responding" queries, kills process
// trees and blocks until a process exits.
//
// Process names are compared case-insensitively with any ".exe" suffix
// removed, so "vrmonitor" matches "VRMonitor.exe" from tasklist.
//
// Platform notes:
//   - Windows: tasklist /V supplies window titles and the
//     "Not Responding" status; taskkill /T kills trees.
//   - Other platforms: ps supplies names and run state; window titles
//     are unavailable and children are killed through the process group.
//
// Example Usage:
//
//	sup := process.NewSystem(logger)
//	h, err := sup.Start(ctx, process.Spec{Path: exe, Args: []string{"-vr"}})
//	if errors.Is(err, process.ErrNotFound) {
//	    // report StationError with the missing path
//	}
//	go sup.WaitForExit(context.Background(), h)
package process
