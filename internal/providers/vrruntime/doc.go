/*
Package vrruntime talks to the OpenVR runtime (SteamVR).

SteamVR offers no stable out-of-process API to the Station, so the
SteamVR implementation drives launches through the Steam URL handler
and learns about applications and tracked devices by following
vrserver's log. Null is used when the Station runs without a headset.
*/
package vrruntime
