/*
Package monitor runs the Station's periodic health checks.

Two loops tick independently:

  - StationLoop: timed actions, VR runtime probe, vendor headset
    polling, Steam popups and lifecycle, temperature.
  - WrapperLoop: responsiveness of the processes an experience needs,
    Steam error dialogs, the error reporter, launch popups.

Both are built on Loop, which can be started and stopped as a unit.
Stopping lets an in-flight tick finish. A panic in a tick is logged and
the loop keeps ticking.
*/
package monitor
