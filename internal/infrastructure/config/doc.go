// Package config provides 12-factor configuration management for the Station.
//
// Configuration is loaded from environment variables with sensible defaults.
// CLI flags can override a handful of values for development flexibility.
//
// Configuration Sections:
//   - Station: Identity, mode (vr/content), headset model, auto-start
//   - Network: TCP listener, NUC address, encryption key, limits
//   - Steam: Install path and launch credentials
//   - Paths: Manifests, embedded catalog, vendor and SteamVR logs
//   - Timing: Polling intervals, retry budgets, temperature thresholds
//   - Logging: Log level, output format and optional log file
//   - Diagnostics: Local HTTP diagnostics listener
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Listening for the NUC on %s\n", cfg.Network.ListenAddr)
//
// Environment Variables:
//   - STATION_ID, STATION_MODE, HEADSET_TYPE, AUTO_START, REQUIRE_HEADSET
//   - LISTEN_ADDR, NUC_ADDR, ENCRYPTION_KEY, MAX_CONNECTIONS
//   - STEAM_PATH, STEAM_USERNAME, STEAM_PASSWORD
//   - LOG_LEVEL, LOG_DEV, LOG_FILE, DIAGNOSTICS_ADDR
package config
