// Package logging provides structured logging using uber/zap.
//
// This package offers production-ready logging with two modes:
//   - Production: JSON output for machine parsing and log shipping
//   - Development: Colored console output for human readability
//
// Every Station component receives a named child logger so that log
// lines can be filtered by subsystem (session, wrapper.steam,
// headset.vive, monitor.station, transport).
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	wrapperLog := logger.Component("wrapper.steam")
//	wrapperLog.Info("Launching experience", zap.String("id", "546560"))
//	wrapperLog.Error("Failed to read manifest", zap.Error(err))
package logging
