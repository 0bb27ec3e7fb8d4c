package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/gpufleet/orchestrator/internal/aggregator"
	"github.com/gpufleet/orchestrator/internal/config"
	"github.com/gpufleet/orchestrator/internal/descriptor"
	"github.com/gpufleet/orchestrator/internal/httpapi"
	"github.com/gpufleet/orchestrator/internal/log"
	"github.com/gpufleet/orchestrator/internal/mapping"
	"github.com/gpufleet/orchestrator/internal/metrics"
	"github.com/gpufleet/orchestrator/internal/orchestrator"
	"github.com/gpufleet/orchestrator/internal/platform"
	"github.com/gpufleet/orchestrator/internal/structure"
	"github.com/gpufleet/orchestrator/internal/supervisor"
)

var (
	descriptorPath string
	noDescriptor   bool
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Resolve the machine structure and run the full startup + supervision loop",
		Long: `run wires the descriptor loader, structure builder, startup orchestrator,
status aggregator and admin HTTP surface together and blocks until an
interrupt or terminate signal is received.`,
		RunE: runMachine,
	}

	paths := platform.DefaultPaths()
	cmd.Flags().StringVar(&descriptorPath, "descriptor", defaultDescriptorPath(paths), "path to the process-ecosystem descriptor")
	cmd.Flags().BoolVar(&noDescriptor, "no-descriptor", false, "skip the descriptor and build the worker and service structure from the mapping table alone")

	return cmd
}

func defaultDescriptorPath(paths *platform.Paths) string {
	return paths.ConfigDir() + "/ecosystem.config.json"
}

func runMachine(cmd *cobra.Command, args []string) error {
	start := time.Now()
	logger := log.Default.WithComponent("ggod")

	cfg, err := config.Load()
	if err != nil {
		logger.Error().Err(err).Msg("configuration invalid")
		return err
	}

	paths := platform.DefaultPaths()
	if err := paths.EnsureAllDirs(); err != nil {
		return fmt.Errorf("preparing state directories: %w", err)
	}

	tbl := mapping.Default

	var st *structure.Structure
	var records []descriptor.AppRecord
	if noDescriptor {
		st, err = structure.BuildFromMappingOnly(cfg.Workers, tbl, cfg.ServicePortOverrides)
	} else {
		records, err = descriptor.Load(descriptorPath)
		if err != nil {
			logger.Error().Err(err).Str("path", descriptorPath).Msg("failed to load descriptor")
			return err
		}
		st, err = structure.Build(cfg.Workers, tbl, records, cfg.ServicePortOverrides)
	}
	if err != nil {
		logger.Error().Err(err).Msg("failed to build machine structure")
		return err
	}

	cfgMgr := config.NewManager(paths)
	if err := cfgMgr.SaveStructure(st); err != nil {
		logger.Warn().Err(err).Msg("failed to persist structure cache")
	}

	sup := supervisor.New(paths)
	defer sup.Shutdown()

	orch := orchestrator.New(sup, tbl, st, records, orchestrator.Config{
		WorkerAuthToken: cfg.WorkerAuthToken,
		GPUMode:         cfg.GPUMode,
	})

	rdb, err := newRedisClient(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer rdb.Close()

	healthURL := fmt.Sprintf("http://localhost%s/health", cfg.AdminAddr)
	agg := aggregator.New(rdb, sup, st, aggregator.Config{
		MachineID:    cfg.MachineID,
		PollInterval: cfg.StatusUpdateInterval,
		HealthURL:    healthURL,
	})

	admin := httpapi.NewServer(cfg.AdminAddr, &httpapi.Dependencies{Aggregator: agg})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := orch.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("startup failed")
		return err
	}

	aggCtx, cancelAgg := context.WithCancel(context.Background())
	aggDone := make(chan error, 1)
	go func() { aggDone <- agg.Run(aggCtx) }()

	if err := agg.MarkReady(aggCtx); err != nil {
		logger.Warn().Err(err).Msg("failed to publish machine-ready snapshot")
	}

	go func() {
		if err := admin.Start(); err != nil {
			logger.Error().Err(err).Msg("admin server exited")
		}
	}()

	metrics.StartupDuration.Observe(time.Since(start).Seconds())
	logger.Info().Dur("elapsed", time.Since(start)).Msg("machine ready")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := admin.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("admin server shutdown error")
	}

	cancelAgg()
	<-aggDone

	return nil
}

func newRedisClient(url string) (*redis.Client, error) {
	if url == "" {
		return redis.NewClient(&redis.Options{Addr: "localhost:6379"}), nil
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opt), nil
}
