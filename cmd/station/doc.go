// Package main is the entry point of a Station.
//
// A Station runs VR or desktop experiences on one machine and reports
// their state to the NUC, which relays it to the operator's tablet:
//
//	Tablet → NUC → Station → Steam / SteamVR / vendor software / experience
//
// The process provides:
//   - the colon-delimited TCP command protocol
//   - experience launch, restart and monitoring
//   - headset connection tracking
//   - a local diagnostics API
//
// Configuration:
//   - Environment variables (see internal/infrastructure/config)
//   - CLI flags override the listen address, NUC address and logging
//
// Usage:
//
//	# Production mode
//	./station --nuc 192.168.1.10:55556
//
//	# Development mode (coloured logs, debug level)
//	./station --dev
//
//	# Print the effective configuration
//	./station config
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
