package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/persona-transformer/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server and the worker pool",
	Long:  `Start an HTTP server that exposes the content, persona, template, job and review endpoints, backed by the job worker pool.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides TRANSFORMER_PORT)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck
	if servePort != 0 {
		cfg.Port = servePort
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := server.New(server.Config{Port: cfg.Port}, server.Deps{
		Store:     a.store,
		Templates: a.templates,
		Jobs:      a.orchestrator,
		Reviews:   a.controller,
		Metrics:   a.metrics,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	if err := a.orchestrator.Start(ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("stopping workers")
		return a.orchestrator.Stop()
	})
	if err := g.Wait(); err != nil {
		logger.Error("shutdown with error", zap.Error(err))
		return err
	}
	return nil
}
