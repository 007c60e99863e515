package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/goccy/go-yaml"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/station/internal/infrastructure/config"
	"github.com/GriffinCanCode/station/internal/infrastructure/logging"
	"github.com/GriffinCanCode/station/internal/server"
)

// CLI represents the command-line interface structure
type CLI struct {
	Version  kong.VersionFlag `help:"Show version information"`
	Listen   string           `help:"Protocol listen address (overrides LISTEN_ADDR)" placeholder:"HOST:PORT"`
	NUC      string           `name:"nuc" help:"NUC address (overrides NUC_ADDR)" placeholder:"HOST:PORT"`
	LogLevel string           `help:"Log level: debug, info, warn or error (overrides LOG_LEVEL)"`
	Dev      bool             `help:"Development mode: coloured console logs at debug level" short:"d"`

	Serve  ServeCmd  `cmd:"" help:"Run the Station (default)" default:"1"`
	Config ConfigCmd `cmd:"config" help:"Print the effective configuration"`
}

// load reads the environment and applies flag overrides
func (c *CLI) load() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	c.apply(cfg)
	return cfg, cfg.Validate()
}

func (c *CLI) apply(cfg *config.Config) {
	if c.Listen != "" {
		cfg.Network.ListenAddr = c.Listen
	}
	if c.NUC != "" {
		cfg.Network.NUCAddr = c.NUC
	}
	if c.LogLevel != "" {
		cfg.Logging.Level = c.LogLevel
	}
	if c.Dev {
		cfg.Logging.Development = true
		if c.LogLevel == "" {
			cfg.Logging.Level = "debug"
		}
	}
}

// ServeCmd runs the Station until interrupted
type ServeCmd struct{}

// Run starts every component and blocks until SIGINT or SIGTERM
func (s *ServeCmd) Run(cli *CLI) error {
	cfg, err := cli.load()
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		File:        cfg.Logging.File,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting Station",
		zap.String("version", version),
		zap.String("id", cfg.Station.ID),
		zap.String("listen", cfg.Network.ListenAddr),
		zap.String("nuc", cfg.Network.NUCAddr),
	)

	station, err := server.New(cfg, logger, server.Options{})
	if err != nil {
		return fmt.Errorf("failed to assemble station: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := station.Run(ctx); err != nil {
		logger.Error("Station failed", zap.Error(err))
		return err
	}
	logger.Info("Shutdown complete")
	return nil
}

// ConfigCmd prints the configuration the Station would run with
type ConfigCmd struct {
	ShowSecrets bool `help:"Include credentials and the encryption key"`
}

// Run prints the effective configuration as YAML
func (c *ConfigCmd) Run(cli *CLI) error {
	cfg, err := cli.load()
	if err != nil {
		return err
	}
	return c.write(os.Stdout, cfg)
}

func (c *ConfigCmd) write(w io.Writer, cfg *config.Config) error {
	out := *cfg
	if !c.ShowSecrets {
		out.Steam.Password = redact(out.Steam.Password)
		out.Network.EncryptionKey = redact(out.Network.EncryptionKey)
	}
	data, err := yaml.Marshal(out)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	_, err = w.Write(data)
	return err
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}
