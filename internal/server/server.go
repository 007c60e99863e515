package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	diagnostics "github.com/GriffinCanCode/station/internal/api/http"
	"github.com/GriffinCanCode/station/internal/domain/command"
	"github.com/GriffinCanCode/station/internal/domain/devices"
	"github.com/GriffinCanCode/station/internal/domain/executable"
	"github.com/GriffinCanCode/station/internal/domain/headset"
	"github.com/GriffinCanCode/station/internal/domain/library"
	"github.com/GriffinCanCode/station/internal/domain/monitor"
	"github.com/GriffinCanCode/station/internal/domain/process"
	"github.com/GriffinCanCode/station/internal/domain/session"
	"github.com/GriffinCanCode/station/internal/domain/wrapper"
	"github.com/GriffinCanCode/station/internal/infrastructure/config"
	"github.com/GriffinCanCode/station/internal/infrastructure/logging"
	"github.com/GriffinCanCode/station/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/station/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/station/internal/providers/artwork"
	"github.com/GriffinCanCode/station/internal/providers/audio"
	"github.com/GriffinCanCode/station/internal/providers/manifest"
	"github.com/GriffinCanCode/station/internal/providers/thermal"
	"github.com/GriffinCanCode/station/internal/providers/thumbnail"
	"github.com/GriffinCanCode/station/internal/providers/vrruntime"
	"github.com/GriffinCanCode/station/internal/providers/window"
	"github.com/GriffinCanCode/station/internal/shared/types"
	"github.com/GriffinCanCode/station/internal/transport"
)

const (
	imageQueueSize = 64
	eventLogSize   = 500
)

// follower tails a log until its context ends
type follower interface {
	Follow(ctx context.Context) error
}

// Station wires every component of one Station process
type Station struct {
	cfg     *config.Config
	logger  *logging.Logger
	metrics *monitoring.Metrics
	tracer  *tracing.Tracer

	supervisor process.Supervisor
	windows    window.Manager

	devices     *devices.Model
	driver      headset.Driver
	runtime     vrruntime.Runtime
	followers   map[string]follower
	library     *library.Library
	images      *thumbnail.Queue
	sender      *transport.Sender
	inbound     *transport.Server
	controller  *session.Controller
	wrappers    []*wrapper.Wrapper
	executables *executable.Manager
	router      *command.Router
	stationLoop *monitor.StationLoop
	wrapperLoop *monitor.WrapperLoop
	events      *diagnostics.EventLog
	diagnostics *diagnostics.Server
}

// Options replace host-bound collaborators, mainly in tests
type Options struct {
	Supervisor process.Supervisor
	Windows    window.Manager
	Sensor     thermal.Sensor
}

// New builds a Station from cfg
func New(cfg *config.Config, logger *logging.Logger, opts Options) (*Station, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Supervisor == nil {
		opts.Supervisor = process.NewSystem(logger)
	}
	if opts.Windows == nil {
		opts.Windows = window.NewSystem()
	}
	if opts.Sensor == nil {
		opts.Sensor = thermal.System()
	}

	s := &Station{
		cfg:        cfg,
		logger:     logger.Component("station"),
		metrics:    monitoring.NewMetrics(),
		tracer:     tracing.New(logger),
		supervisor: opts.Supervisor,
		windows:    opts.Windows,
		followers:  make(map[string]follower),
		library:    library.New(),
		events:     diagnostics.NewEventLog(eventLogSize),
	}
	vrMode := cfg.Station.Mode == config.ModeVR

	// Outbound path
	cipher := transport.NewCipher(cfg.Network.EncryptionKey)
	s.sender = transport.NewSender(transport.SenderConfig{
		Addr:        cfg.Network.NUCAddr,
		Source:      "Station" + cfg.Station.ID,
		DialTimeout: cfg.Network.DialTimeout,
		QueueSize:   cfg.Network.SendQueueSize,
	}, cipher, s.metrics, logger)

	// The controller is the reporter of every component below, so they
	// reach it through these late-bound funnels
	reporter := types.ReporterFunc(func(msg types.Message) { s.controller.PassMessage(msg) })
	s.devices = devices.New(func(key, value string) { s.controller.SendDeviceStatus(key, value) }, logger)

	steamExe := headset.SteamExe(cfg.Steam.Path)
	headsetDeps := headset.Deps{
		Supervisor: s.supervisor,
		Devices:    s.devices,
		Windows:    s.windows,
		Reporter:   reporter,
		Steam: headset.Steam{
			Exe:      steamExe,
			Username: cfg.Steam.Username,
			Password: cfg.Steam.Password,
		},
		Wait: headset.WaitConfig{
			AutoStart:           cfg.Station.AutoStart,
			PollInterval:        cfg.Timing.ConnectPollInterval,
			VendorStartInterval: cfg.Timing.VendorStartInterval,
			OffRetries:          cfg.Timing.OffRetries,
			ConnectRetries:      cfg.Timing.ConnectRetries,
		},
		Logger: logger,
	}
	switch cfg.Station.HeadsetType {
	case config.HeadsetVive:
		vive := headset.NewVive(headsetDeps, cfg.Paths.ViveConnector, cfg.Paths.ViveLogDir)
		s.driver = vive
		if vrMode {
			s.followers["vendor log"] = vive
		}
	default:
		s.driver = headset.NewOpenVR(headsetDeps)
	}

	var registrar wrapper.Registrar
	s.runtime = vrruntime.Null{}
	if vrMode {
		steamVR := vrruntime.NewSteamVR(s.supervisor, steamExe, cfg.Paths.SteamVRLog, logger)
		s.runtime = steamVR
		registrar = steamVR
		s.followers["runtime log"] = steamVR
	}

	var profile session.Profile = session.NewContentProfile(s.supervisor, s.windows)
	if vrMode {
		profile = session.NewVRProfile(s.driver)
	}

	s.controller = session.NewController(session.Config{
		AutoStart:        cfg.Station.AutoStart,
		MinimizeAttempts: cfg.Timing.MinimizeAttempts,
		MinimizeInterval: cfg.Timing.MinimizeInterval,
	}, profile, s.sender, logger).
		WithMetrics(s.metrics).
		WithCatalog(s.library)
	s.controller.Observe(s.events.Record)

	imageAddr := cfg.Paths.ThumbnailHost
	if imageAddr == "" {
		imageAddr = cfg.Network.NUCAddr
	}
	s.images = thumbnail.New(transport.FileSender{
		Addr:    imageAddr,
		Timeout: cfg.Network.DialTimeout,
	}, reporter, imageQueueSize, logger)

	// Wrappers and their monitoring loop
	watched := make(map[types.WrapperType]monitor.Watched)
	wrapperDeps := monitor.WrapperDeps{
		Wrappers:   watched,
		Supervisor: s.supervisor,
		Reporter:   reporter,
		Metrics:    s.metrics,
		Logger:     logger,
	}
	if vrMode {
		wrapperDeps.Extra = s.driver.ProcessesToQuery
	}
	s.wrapperLoop = monitor.NewWrapperLoop(cfg.Timing.MonitorInterval, wrapperDeps)
	s.controller.SetMonitor(s.wrapperLoop)

	deps := wrapper.Deps{
		Supervisor: s.supervisor,
		Runtime:    s.runtime,
		Headset:    s.driver,
		Windows:    s.windows,
		Images:     s.images,
		Reporter:   reporter,
		Hooks: wrapper.Hooks{
			StartSession:    s.startSession,
			StartMonitoring: s.wrapperLoop.Start,
		},
		Metrics: s.metrics,
		Logger:  logger,
	}
	wrapperCfg := wrapper.Config{
		RequireHeadset:    vrMode && cfg.Station.RequireHeadset,
		DiscoveryAttempts: cfg.Timing.DiscoveryAttempts,
		DiscoveryInterval: cfg.Timing.DiscoveryInterval,
		RuntimeTimeout:    cfg.Timing.RuntimeLaunchTimeout,
	}
	steam := wrapper.Steam{
		SteamApps: filepath.Join(cfg.Steam.Path, "steamapps"),
		SteamRoot: cfg.Steam.Path,
		SteamExe:  steamExe,
		Registrar: registrar,
	}
	if cfg.Steam.ArtworkURL != "" {
		artCfg := artwork.DefaultConfig()
		artCfg.BaseURL = cfg.Steam.ArtworkURL
		artCfg.CacheDir = cfg.Steam.ArtworkCache
		steam.Artwork = artwork.New(artCfg, logger)
	}
	variants := []wrapper.Variant{
		wrapper.Embedded{
			Catalog: manifest.Catalog{Root: cfg.Paths.EmbeddedRoot},
			Path:    cfg.Paths.EmbeddedCatalog,
		},
		steam,
		wrapper.NewRevive(cfg.Paths.ReviveManifest),
		wrapper.NewCustom(cfg.Paths.CustomManifest),
	}

	var (
		sources   []command.Source
		adoptable []monitor.Adoptable
	)
	for _, v := range variants {
		w := wrapper.New(v, wrapperCfg, deps)
		s.wrappers = append(s.wrappers, w)
		s.controller.Register(w)
		watched[w.Type()] = w
		sources = append(sources, w)
		adoptable = append(adoptable, w)
	}

	// Commands
	s.executables = executable.NewManager(s.supervisor, reporter, logger)
	if vrMode {
		s.executables.PrepareVR = profile.StartSession
	}
	timed := monitor.NewTimedActions()
	s.router = command.NewRouter(command.Deps{
		Session:     s.controller,
		Sources:     sources,
		Library:     s.library,
		Devices:     s.devices,
		Audio:       audio.NewController(),
		Executables: s.executables,
		Timed:       timed,
		Logger:      logger,
	})
	s.inbound = transport.NewServer(transport.ServerConfig{
		Addr:           cfg.Network.ListenAddr,
		MaxConnections: cfg.Network.MaxConnections,
		RateLimit:      float64(cfg.Network.RateLimitRPS),
		Burst:          cfg.Network.RateLimitBurst,
		MaxMessageSize: cfg.Network.MaxMessageSize,
	}, s.router, cipher, s.metrics, logger).WithTracer(s.tracer)

	// Station-wide monitoring
	stationDeps := monitor.StationDeps{
		Session:    s.controller,
		Wrappers:   adoptable,
		Runtime:    s.runtime,
		Devices:    s.devices,
		Supervisor: s.supervisor,
		Windows:    s.windows,
		Sensor:     opts.Sensor,
		Reporter:   reporter,
		Timed:      timed,
		Metrics:    s.metrics,
		Logger:     logger,
	}
	if profile.PollsVendor() {
		stationDeps.Vendor = s.driver
	}
	s.stationLoop = monitor.NewStationLoop(monitor.StationConfig{
		Interval:             cfg.Timing.MonitorInterval,
		VRMode:               vrMode,
		PollVendor:           profile.PollsVendor(),
		TemperatureThreshold: cfg.Timing.TemperatureThreshold,
		TemperatureTicks:     cfg.Timing.TemperatureTicks,
		TemperatureRearm:     cfg.Timing.TemperatureRearm,
	}, stationDeps)

	if cfg.Diagnostics.Addr != "" {
		routerCfg := diagnostics.DefaultRouterConfig()
		routerCfg.Development = cfg.Logging.Development
		routerCfg.Tracer = s.tracer
		handlers := diagnostics.NewHandlers(diagnostics.Deps{
			StationID: cfg.Station.ID,
			Session:   s.controller,
			Devices:   s.devices,
			Library:   s.library,
			Events:    s.events,
			Metrics:   s.metrics,
			Logger:    logger,
		})
		engine := diagnostics.NewRouter(routerCfg, handlers, s.metrics)
		s.diagnostics = diagnostics.NewServer(engine, s.events, logger)
	}

	s.logger.Info("Station assembled",
		zap.String("id", cfg.Station.ID),
		zap.String("mode", string(cfg.Station.Mode)),
		zap.String("headset", string(cfg.Station.HeadsetType)),
		zap.Int("wrappers", len(s.wrappers)),
	)
	return s, nil
}

// startSession is the wrapper hook that brings up the session a launch needs
func (s *Station) startSession(ctx context.Context, kind types.WrapperType) {
	if err := s.controller.StartSession(ctx, kind); err != nil && !errors.Is(err, session.ErrManualMode) {
		s.logger.Warn("Failed to start session", zap.String("wrapper", string(kind)), zap.Error(err))
	}
}

// Metrics returns the Station's metrics collector
func (s *Station) Metrics() *monitoring.Metrics { return s.metrics }

// Controller returns the session controller
func (s *Station) Controller() *session.Controller { return s.controller }

// Router returns the inbound command router
func (s *Station) Router() *command.Router { return s.router }

// InboundAddr returns the bound protocol address, nil before Run listens
func (s *Station) InboundAddr() net.Addr { return s.inbound.Addr() }

// Run serves until ctx is cancelled or a component fails
func (s *Station) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.sender.Run(ctx) })
	g.Go(func() error {
		s.images.Run(ctx)
		return nil
	})
	g.Go(func() error {
		if err := s.inbound.ListenAndServe(ctx); err != nil {
			return fmt.Errorf("inbound listener: %w", err)
		}
		return nil
	})
	if s.diagnostics != nil {
		g.Go(func() error {
			if err := s.diagnostics.ListenAndServe(ctx, s.cfg.Diagnostics.Addr); err != nil {
				return fmt.Errorf("diagnostics listener: %w", err)
			}
			return nil
		})
	}
	for name, f := range s.followers {
		g.Go(func() error {
			// Missing vendor logs only degrade status reporting
			if err := f.Follow(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("Stopped following log", zap.String("log", name), zap.Error(err))
			}
			return nil
		})
	}

	g.Go(func() error {
		s.boot(ctx)
		<-ctx.Done()
		s.shutdown()
		return nil
	})

	return g.Wait()
}

// boot collects the library and starts the session software
func (s *Station) boot(ctx context.Context) {
	defer s.logger.Recover("boot")

	if err := s.router.Execute(ctx, types.DestinationNUC, command.RefreshExperiences{}); err != nil {
		s.logger.Warn("Initial experience refresh failed", zap.Error(err))
	}
	if s.cfg.Station.AutoStart && s.cfg.Station.Mode == config.ModeVR {
		go func() {
			defer s.logger.Recover("session software start")
			if err := s.controller.Profile().StartSession(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("Failed to start session software", zap.Error(err))
			}
		}()
	}
	s.stationLoop.Start(ctx)
	s.logger.Info("Station running",
		zap.String("listen", s.cfg.Network.ListenAddr),
		zap.String("nuc", s.cfg.Network.NUCAddr),
	)
}

func (s *Station) shutdown() {
	s.stationLoop.Stop()
	s.wrapperLoop.Stop()
	s.controller.Close()
	s.tracer.Close()
	s.logger.Info("Station stopped")
}
