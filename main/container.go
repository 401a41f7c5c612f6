package main

import (
	"context"
	"fmt"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/synqronlabs/mailtrust"
	"github.com/synqronlabs/mailtrust/config"
	"github.com/synqronlabs/mailtrust/dns"
	"github.com/synqronlabs/mailtrust/logging"
	"github.com/synqronlabs/mailtrust/report"
)

// globalFlags are the flags shared by all commands.
type globalFlags struct {
	ConfigFile string
	LogLevel   string
	SessionID  string
}

// reports is the DMARC report pipeline: a queue feeding the spool. Both are
// nil when no spool is configured.
type reports struct {
	Queue *report.Queue
	Spool *report.Spool
}

// start runs the queue until Close.
func (r *reports) start(ctx context.Context) {
	if r.Queue != nil {
		go r.Queue.Run(ctx)
	}
}

// Close delivers pending entries and closes the spool.
func (r *reports) Close(ctx context.Context) error {
	if r.Queue == nil {
		return nil
	}
	if err := r.Queue.Close(ctx); err != nil {
		return err
	}
	return r.Spool.Close()
}

// buildContainer creates the dependency injection container for the
// commands.
func buildContainer(flags *globalFlags) (*dig.Container, error) {
	container := dig.New()

	// Register flags
	if err := container.Provide(func() *globalFlags { return flags }); err != nil {
		return nil, err
	}

	// Register configuration
	if err := container.Provide(func(flags *globalFlags) (*config.Config, error) {
		return config.Load(flags.ConfigFile)
	}); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(func(cfg *config.Config, flags *globalFlags) (*zap.Logger, error) {
		lc := cfg.Logging
		if flags.LogLevel != "" {
			lc.Level = flags.LogLevel
		}
		return logging.New(lc)
	}); err != nil {
		return nil, err
	}

	// Register resolver
	if err := container.Provide(func(cfg *config.Config) dns.Resolver {
		return mailtrust.NewResolver(cfg)
	}); err != nil {
		return nil, err
	}

	// Register report pipeline
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) (*reports, error) {
		if cfg.Report.SpoolPath == "" {
			return &reports{}, nil
		}
		spool, err := report.OpenSpool(cfg.Report.SpoolPath)
		if err != nil {
			return nil, fmt.Errorf("opening report spool: %w", err)
		}
		return &reports{
			Queue: report.NewQueue(cfg.Report.QueueSize, spool.Store, logger),
			Spool: spool,
		}, nil
	}); err != nil {
		return nil, err
	}

	// Register engine
	if err := container.Provide(func(resolver dns.Resolver, cfg *config.Config, logger *zap.Logger, r *reports) (*mailtrust.Engine, error) {
		opts := []mailtrust.Option{mailtrust.WithLogger(logger)}
		if r.Queue != nil {
			opts = append(opts, mailtrust.WithReportSink(r.Queue))
		}
		return mailtrust.New(resolver, cfg, opts...)
	}); err != nil {
		return nil, err
	}

	return container, nil
}
