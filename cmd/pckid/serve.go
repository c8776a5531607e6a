package main

import (
	"fmt"

	"github.com/edgelesssys/go-pckid/config"
	"github.com/edgelesssys/go-pckid/identity"
	"github.com/edgelesssys/go-pckid/metrics"
	"github.com/edgelesssys/go-pckid/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve platform identity extraction over HTTP",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	log, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	cfg, err := config.LoadServiceConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("Starting platform identity service",
		zap.Int("port", cfg.ServicePort),
		zap.Int("batchConcurrency", cfg.BatchConcurrency))

	m := metrics.New()
	extractor := identity.NewExtractor(log.Named("extractor"), m, cfg.BatchConcurrency)
	if err := server.New(log.Named("server"), extractor, m.Handler(), cfg.ServicePort).Run(cmd.Context()); err != nil {
		log.Error("Service stopped", zap.Error(err))
		return err
	}
	return nil
}
