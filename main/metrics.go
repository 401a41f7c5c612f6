package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/synqronlabs/mailtrust"
	"github.com/synqronlabs/mailtrust/config"
)

func newServeMetricsCommand(flags *globalFlags) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve-metrics",
		Short: "Serve validator metrics for Prometheus until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return invoke(cmd.Context(), flags, func(engine *mailtrust.Engine, cfg *config.Config, logger *zap.Logger) error {
				if listen == "" {
					listen = cfg.Metrics.Listen
				}
				return serveMetrics(cmd.Context(), engine, listen, cfg.Metrics.Path, logger)
			})
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (default: metrics.listen)")
	return cmd
}

func metricsHandler(engine *mailtrust.Engine) (http.Handler, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(engine.Metrics); err != nil {
		return nil, err
	}
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}

func serveMetrics(ctx context.Context, engine *mailtrust.Engine, listen, path string, logger *zap.Logger) error {
	handler, err := metricsHandler(engine)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle(path, handler)
	srv := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	logger.Info("serving metrics", zap.String("addr", listen), zap.String("path", path))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
