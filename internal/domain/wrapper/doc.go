/*
Package wrapper implements the experience lifecycle for every launch
mechanism: direct executables (Embedded), Steam, Revive and custom
OpenVR manifests.

A Wrapper pairs the shared lifecycle (launch, stop, restart, close
detection) with a Variant that knows how to list and resolve the
experiences of one mechanism.

Launch order:
 1. Validate and resolve the experience
 2. Start the VR session and wrapper monitoring
 3. Wait for the headset when the experience is VR
 4. Launch through the VR runtime when the experience is registered
 5. Otherwise start the executable and poll for its process

Expected failures (missing executable, timeouts, unregistered ids) are
reported through the message funnel and returned as errors; nothing is
raised past the wrapper.
*/
package wrapper
