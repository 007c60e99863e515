/*
Package headset drives the headset-specific software the Station needs
before a VR experience can start.

A Driver is chosen once at startup from configuration:

  - OpenVR: the headset is managed by SteamVR alone
  - Vive: a vendor connection utility must also be running and paired

Both expose the same capability set. The connection-wait protocol
(Waiter) is shared: it polls the management software status, starting
the VR session while everything is Off, and gives up after a bounded
number of polls.
*/
package headset
