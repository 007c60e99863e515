// Package server assembles a Station process.
//
// New resolves the headset driver, session profile and VR runtime once
// from configuration and hands the chosen implementations to every
// component that needs them. Run starts the long-lived parts under one
// errgroup:
//   - outbound sender and header-image queue
//   - inbound protocol listener
//   - vendor and runtime log followers (VR mode)
//   - diagnostics API, when an address is configured
//   - station monitoring loop, after the initial library refresh
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	station, err := server.New(cfg, logger, server.Options{})
//	if err != nil {
//	    return err
//	}
//	return station.Run(ctx)
package server
