package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"dupegraph/internal/config"
	"dupegraph/internal/dupes"
	"dupegraph/internal/maintenance"
	"dupegraph/internal/server"
	"dupegraph/internal/store"
)

const shutdownTimeout = 10 * time.Second

func newSrvCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "srv",
		Short: "Run the dupegraph API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg == nil {
				return fmt.Errorf("config not initialized")
			}
			if cfg.DBPath == "" {
				return fmt.Errorf("db path is required")
			}

			logger := componentLogger(componentServer)

			addr, err := server.ListenAddr(cfg.APIURL)
			if err != nil {
				return err
			}

			logger.Info("opening database", "path", cfg.DBPath)
			st, err := store.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runServer(ctx, cfg, st, addr, logger)
		},
	}
}

func runServer(ctx context.Context, cfg *config.Config, st *store.Store, addr string, logger *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := dupes.NewMetrics(reg)

	processor := dupes.NewProcessor(st, dupes.Options{
		MaxBatchFiles:     cfg.Duplicates.MaxBatchFiles,
		LargeBatchWarning: cfg.Duplicates.LargeBatchWarning,
		Logger:            componentLogger(componentProcessor),
		Metrics:           metrics,
	})
	queue := dupes.NewQueue(st, processor, metrics, cfg.Potentials.DefaultBatch)

	srv := server.New(addr, st, processor, queue, server.Options{
		Logger:       logger,
		TokenHash:    cfg.Auth.TokenHash,
		EnqueueRate:  cfg.Potentials.EnqueueRate,
		EnqueueBurst: cfg.Potentials.EnqueueBurst,
		Gatherer:     reg,
	})

	scheduler, err := maintenance.NewScheduler(st, cfg.Maintenance.Schedule, componentLogger(componentMaintenance))
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return scheduler.Run(gctx)
	})
	return g.Wait()
}
