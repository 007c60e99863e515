// Package http serves the Station's local diagnostics API.
//
// The API is read-only: health, the session view, the device model, the
// experience library, Prometheus metrics and a live stream of every
// payload the Station sends to the NUC.
package http
