package main

import (
	"crypto/sha256"

	"github.com/goliatone/go-print"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/goliatone/go-holocrypt"
	"github.com/goliatone/go-holocrypt/activitymap"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			return runServe(cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides the config")
	return cmd
}

func runServe(cmd *cobra.Command, cfg *holocrypt.BaseConfig) error {
	ctx := cmd.Context()
	slogger := defaultLogger(cfg.GetDebug())
	logger := holocrypt.NewSlogLogger(slogger)

	if cfg.GetDebug() {
		logger.Debug("configuration", "config", print.MaybePrettyJSON(cfg.Redacted()))
	}

	// the app keeps running degraded, every store call then reports it
	for _, w := range cfg.Warnings() {
		logger.Warn("configuration warning", "warning", w)
	}

	stores, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var csrfKey []byte
	if secret := cfg.GetStore().JWTSecret; secret != "" {
		sum := sha256.Sum256([]byte("holocrypt-csrf:" + secret))
		csrfKey = sum[:]
	}

	srv, err := holocrypt.NewServer(holocrypt.ServerOptions{
		Config:         cfg,
		Factory:        stores.Factory,
		Logger:         logger,
		Metrics:        holocrypt.NewMetrics(registry),
		Gatherer:       registry,
		Activity:       activitymap.Sink(logger),
		TokenValidator: stores.Validator,
		CSRFKey:        csrfKey,
	})
	if err != nil {
		return err
	}
	defer srv.Close()

	return srv.Run(ctx)
}
