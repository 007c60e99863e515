package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Mode selects the session profile of the Station.
type Mode string

const (
	ModeVR      Mode = "vr"
	ModeContent Mode = "content"
)

// HeadsetType selects the headset driver.
type HeadsetType string

const (
	HeadsetVive   HeadsetType = "vive"
	HeadsetOpenVR HeadsetType = "openvr"
)

// Config holds all application configuration.
type Config struct {
	Station     StationConfig
	Network     NetworkConfig
	Steam       SteamConfig
	Paths       PathsConfig
	Timing      TimingConfig
	Logging     LogConfig
	Diagnostics DiagnosticsConfig
}

// StationConfig holds the identity and session profile of this Station.
type StationConfig struct {
	ID             string      `envconfig:"STATION_ID" default:"1"`
	Mode           Mode        `envconfig:"STATION_MODE" default:"vr"`
	HeadsetType    HeadsetType `envconfig:"HEADSET_TYPE" default:"vive"`
	AutoStart      bool        `envconfig:"AUTO_START" default:"true"`
	RequireHeadset bool        `envconfig:"REQUIRE_HEADSET" default:"true"`
}

// NetworkConfig holds the TCP protocol settings.
type NetworkConfig struct {
	ListenAddr     string        `envconfig:"LISTEN_ADDR" default:"0.0.0.0:55557"`
	NUCAddr        string        `envconfig:"NUC_ADDR" default:"127.0.0.1:55556"`
	EncryptionKey  string        `envconfig:"ENCRYPTION_KEY"`
	MaxConnections int           `envconfig:"MAX_CONNECTIONS" default:"64"`
	RateLimitRPS   int           `envconfig:"INBOUND_RPS" default:"50"`
	RateLimitBurst int           `envconfig:"INBOUND_BURST" default:"100"`
	DialTimeout    time.Duration `envconfig:"DIAL_TIMEOUT" default:"3s"`
	SendQueueSize  int           `envconfig:"SEND_QUEUE_SIZE" default:"256"`
	MaxMessageSize int64         `envconfig:"MAX_MESSAGE_SIZE" default:"1048576"`
}

// SteamConfig holds the Steam install location and launch credentials.
type SteamConfig struct {
	Path     string `envconfig:"STEAM_PATH" default:"C:/Program Files (x86)/Steam"`
	Username string `envconfig:"STEAM_USERNAME"`
	Password string `envconfig:"STEAM_PASSWORD"`
	// ArtworkURL serves header images the Steam client has not cached.
	// Empty disables downloads.
	ArtworkURL   string `envconfig:"STEAM_ARTWORK_URL" default:"https://cdn.cloudflare.steamstatic.com/steam/apps"`
	ArtworkCache string `envconfig:"STEAM_ARTWORK_CACHE" default:"C:/Station/artwork"`
}

// PathsConfig holds manifest and log locations.
type PathsConfig struct {
	ReviveManifest  string `envconfig:"REVIVE_MANIFEST" default:"C:/Program Files/Revive/revive.vrmanifest"`
	CustomManifest  string `envconfig:"CUSTOM_MANIFEST" default:"C:/Station/custom.vrmanifest"`
	EmbeddedCatalog string `envconfig:"EMBEDDED_CATALOG" default:"C:/Station/experiences.yaml"`
	EmbeddedRoot    string `envconfig:"EMBEDDED_ROOT" default:"C:/Station/experiences"`
	ViveLogDir      string `envconfig:"VIVE_LOG_DIR" default:"C:/ProgramData/VIVE Wireless/ConnectionUtility/Log"`
	ViveConnector   string `envconfig:"VIVE_CONNECTOR" default:"C:/Program Files/VIVE Wireless/ConnectionUtility/HtcConnectionUtility.exe"`
	SteamVRLog      string `envconfig:"STEAMVR_LOG" default:"C:/Program Files (x86)/Steam/logs/vrserver.txt"`
	ThumbnailHost   string `envconfig:"THUMBNAIL_ADDR"`
}

// TimingConfig holds the tunable polling intervals and retry budgets.
type TimingConfig struct {
	ConnectPollInterval  time.Duration `envconfig:"CONNECT_POLL_INTERVAL" default:"2s"`
	VendorStartInterval  time.Duration `envconfig:"VENDOR_START_INTERVAL" default:"5s"`
	OffRetries           int           `envconfig:"OFF_RETRIES" default:"10"`
	ConnectRetries       int           `envconfig:"CONNECT_RETRIES" default:"30"`
	MonitorInterval      time.Duration `envconfig:"MONITOR_INTERVAL" default:"3s"`
	DiscoveryAttempts    int           `envconfig:"DISCOVERY_ATTEMPTS" default:"15"`
	DiscoveryInterval    time.Duration `envconfig:"DISCOVERY_INTERVAL" default:"3s"`
	RuntimeLaunchTimeout time.Duration `envconfig:"RUNTIME_LAUNCH_TIMEOUT" default:"45s"`
	MinimizeAttempts     int           `envconfig:"MINIMIZE_ATTEMPTS" default:"5"`
	MinimizeInterval     time.Duration `envconfig:"MINIMIZE_INTERVAL" default:"2s"`
	TemperatureThreshold float64       `envconfig:"TEMPERATURE_THRESHOLD" default:"90"`
	TemperatureTicks     int           `envconfig:"TEMPERATURE_TICKS" default:"20"`
	TemperatureRearm     time.Duration `envconfig:"TEMPERATURE_REARM" default:"5m"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
	File        string `envconfig:"LOG_FILE"`
}

// DiagnosticsConfig holds the local diagnostics HTTP listener.
type DiagnosticsConfig struct {
	Addr string `envconfig:"DIAGNOSTICS_ADDR" default:"127.0.0.1:8088"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Validate rejects values the Station cannot run with.
func (c *Config) Validate() error {
	switch c.Station.Mode {
	case ModeVR, ModeContent:
	default:
		return fmt.Errorf("invalid station mode %q", c.Station.Mode)
	}
	switch c.Station.HeadsetType {
	case HeadsetVive, HeadsetOpenVR:
	default:
		return fmt.Errorf("invalid headset type %q", c.Station.HeadsetType)
	}
	if c.Timing.OffRetries <= 0 || c.Timing.ConnectRetries <= 0 {
		return fmt.Errorf("connection retry budgets must be positive")
	}
	if c.Timing.MonitorInterval <= 0 {
		return fmt.Errorf("monitor interval must be positive")
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Station: StationConfig{
			ID:             "1",
			Mode:           ModeVR,
			HeadsetType:    HeadsetVive,
			AutoStart:      true,
			RequireHeadset: true,
		},
		Network: NetworkConfig{
			ListenAddr:     "0.0.0.0:55557",
			NUCAddr:        "127.0.0.1:55556",
			MaxConnections: 64,
			RateLimitRPS:   50,
			RateLimitBurst: 100,
			DialTimeout:    3 * time.Second,
			SendQueueSize:  256,
			MaxMessageSize: 1 << 20,
		},
		Steam: SteamConfig{
			Path:         "C:/Program Files (x86)/Steam",
			ArtworkURL:   "https://cdn.cloudflare.steamstatic.com/steam/apps",
			ArtworkCache: "C:/Station/artwork",
		},
		Paths: PathsConfig{
			ReviveManifest:  "C:/Program Files/Revive/revive.vrmanifest",
			CustomManifest:  "C:/Station/custom.vrmanifest",
			EmbeddedCatalog: "C:/Station/experiences.yaml",
			EmbeddedRoot:    "C:/Station/experiences",
			ViveLogDir:      "C:/ProgramData/VIVE Wireless/ConnectionUtility/Log",
			ViveConnector:   "C:/Program Files/VIVE Wireless/ConnectionUtility/HtcConnectionUtility.exe",
			SteamVRLog:      "C:/Program Files (x86)/Steam/logs/vrserver.txt",
		},
		Timing: TimingConfig{
			ConnectPollInterval:  2 * time.Second,
			VendorStartInterval:  5 * time.Second,
			OffRetries:           10,
			ConnectRetries:       30,
			MonitorInterval:      3 * time.Second,
			DiscoveryAttempts:    15,
			DiscoveryInterval:    3 * time.Second,
			RuntimeLaunchTimeout: 45 * time.Second,
			MinimizeAttempts:     5,
			MinimizeInterval:     2 * time.Second,
			TemperatureThreshold: 90,
			TemperatureTicks:     20,
			TemperatureRearm:     5 * time.Minute,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		Diagnostics: DiagnosticsConfig{
			Addr: "127.0.0.1:8088",
		},
	}
}
