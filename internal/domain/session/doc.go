// Package session provides the Station session controller.
//
// The controller owns which wrapper's session is active and the state
// label mirrored to the tablet. Every outward event passes through it:
// wrappers, headset drivers and monitoring loops report typed messages
// and the controller turns them into sends, in the order they were
// reported, without ever blocking the reporter.
//
// Components:
//   - Controller: session state, start/restart/end, message funnel
//   - Profile: VR or content (non-VR) session requirements
//   - Sender: outbound transport (connection per message)
//
// Restart Coalescing:
//
// Restart requests that arrive while a restart is running share its
// result; only one wrapper restart sequence executes.
//
// Example Usage:
//
//	ctrl := session.NewController(cfg, session.NewVRProfile(driver), sender, logger)
//	ctrl.Register(steamWrapper)
//	result := ctrl.Launch(ctx, exp)
//	err := ctrl.RestartSession(ctx)
package session
