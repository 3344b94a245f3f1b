package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/surgewatch/internal/bus"
	"github.com/sawpanic/surgewatch/internal/config"
	"github.com/sawpanic/surgewatch/internal/exchange"
	"github.com/sawpanic/surgewatch/internal/metrics"
	"github.com/sawpanic/surgewatch/internal/ops"
	"github.com/sawpanic/surgewatch/internal/sink"
	"github.com/sawpanic/surgewatch/internal/stream"
	"github.com/sawpanic/surgewatch/internal/warn"
)

const (
	appName = "surgewatch"
	version = "v1.0.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Streaming crypto market watcher with early pump/dump warnings",
		Version: version,
		Long: `surgewatch multiplexes exchange websocket streams into in-memory candle
caches, derives indicator-based trading signals, and sweeps tracked symbols
through a three-phase early-warning detector.`,
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the stream manager and detector sweep loop",
		RunE:  runService,
	}
	runCmd.Flags().String("config", "config/surgewatch.yaml", "Path to configuration file")

	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one detector sweep and exit",
		RunE:  runScan,
	}
	scanCmd.Flags().String("config", "config/surgewatch.yaml", "Path to configuration file")
	scanCmd.Flags().Duration("warmup", 15*time.Second, "Stream warmup before the sweep")

	rootCmd.AddCommand(runCmd, scanCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func runService(cmd *cobra.Command, _ []string) error {
	app, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer app.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app.server.Start()
	app.runner.Start(ctx)
	log.Info().
		Strs("symbols", app.cfg.Symbols).
		Dur("interval", app.cfg.Sweep.Interval).
		Msg("surgewatch running")

	<-ctx.Done()
	log.Info().Msg("shutting down")

	app.runner.Stop()
	if err := app.server.Shutdown(context.Background()); err != nil {
		log.Warn().Err(err).Msg("ops server shutdown")
	}
	return nil
}

func runScan(cmd *cobra.Command, _ []string) error {
	app, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer app.close()

	warmup, _ := cmd.Flags().GetDuration("warmup")
	log.Info().Dur("warmup", warmup).Msg("warming stream caches")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(warmup):
	}

	app.runner.Sweep(ctx)
	return nil
}

// app holds the wired service graph for one process.
type app struct {
	cfg     config.Config
	manager *stream.Manager
	runner  *warn.Runner
	server  *ops.Server
	sink    *sink.RedisSink
}

func buildApp(cmd *cobra.Command) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	zerolog.SetGlobalLevel(level)

	mtr := metrics.NewRegistry()
	events := bus.New()
	rest := exchange.NewClient(cfg.Exchange, mtr)
	manager := stream.NewManager(cfg.Stream, rest, events, mtr)
	manager.TrackSymbols(cfg.Symbols)

	var redisSink *sink.RedisSink
	onAlert := func(alert warn.Alert) {
		events.Publish("alert", alert)
	}
	if cfg.Sink.Addr != "" {
		redisSink, err = sink.NewRedisSink(cmd.Context(), cfg.Sink)
		if err != nil {
			manager.Close()
			return nil, fmt.Errorf("connect alert sink: %w", err)
		}
		publish := onAlert
		onAlert = func(alert warn.Alert) {
			publish(alert)
			redisSink.HandleAlert(alert)
		}
	}

	detector := warn.NewDetector(cfg.Detector, manager, nil)
	runner := warn.NewRunner(cfg.Sweep, detector, manager.TrackedSymbols, onAlert, mtr)
	server := ops.NewServer(cfg.Ops, manager, mtr)

	return &app{
		cfg:     cfg,
		manager: manager,
		runner:  runner,
		server:  server,
		sink:    redisSink,
	}, nil
}

func (a *app) close() {
	a.manager.Close()
	if a.sink != nil {
		a.sink.Close()
	}
}
