/*
Package devices holds the connection, tracking and battery state of the
headset, controllers and base stations attached to the Station.

Updates arrive from the headset drivers, the VR runtime probe and
inbound network messages. The model only notifies on transitions: a
repeated identical report is silently absorbed. Every notification is
routed through a single Sink so the model never touches the network.

The headset has two trackers (vendor software and OpenVR). Its
composite status is Lost when either tracker is Lost; otherwise it
follows whichever tracker reported last.
*/
package devices
