package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"watcher/internal/bus"
	"watcher/internal/config"
	"watcher/internal/database"
	"watcher/internal/detector"
	"watcher/internal/enrich"
	"watcher/internal/exchange"
	"watcher/internal/history"
	"watcher/internal/metrics"
	"watcher/internal/model"
	"watcher/internal/scanner"
	"watcher/internal/server"
	"watcher/internal/sink"
	"watcher/internal/store"
)

func main() {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		slog.Error("cannot load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(logger, &cfg); err != nil {
		logger.Error("watcher stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("watcher stopped")
}

func newLogger(level string) *slog.Logger {
	logLevel := slog.LevelInfo
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}

func run(logger *slog.Logger, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	b := bus.New(cfg.Bus.Capacity, bus.WithDropHook(m.RecordBusDropped))
	st := store.New(cfg.Detector.WindowSize)
	det := detector.New(detector.ParamsFromConfig(cfg.Detector))

	var enricher scanner.Enricher
	if cfg.Enrichment.Enabled {
		client := enrich.NewBinanceFuturesClient(cfg.Enrichment.BaseURL, cfg.Enrichment.Timeout, logger)
		enricher = enrich.NewEnricher(client, cfg.Enrichment, logger, m)
	}
	engine := scanner.NewEngine(logger, st, det, enricher, b, m, cfg)

	tracker := history.NewTracker(logger, history.NewFileStore(cfg.History.File), st, m, cfg.History)

	feed, err := exchange.NewClient(logger, cfg.Feed)
	if err != nil {
		return fmt.Errorf("create feed client: %w", err)
	}

	sinks, closeSinks := buildSinks(ctx, logger, cfg)
	defer closeSinks()

	srv := server.New(logger, cfg.Server.Addr, b, tracker, m)

	// Internal consumers subscribe before any producer starts.
	historySub := b.Subscribe()
	defer historySub.Close()

	ticks := make(chan []model.Tick, cfg.Feed.Buffer)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return feed.StartStream(gctx, ticks)
	})
	g.Go(func() error {
		err := engine.Run(gctx, ticks)
		engine.Wait()
		return err
	})
	g.Go(func() error {
		return tracker.Run(gctx, historySub.C(), b)
	})
	g.Go(func() error {
		return srv.Run(gctx)
	})
	if len(sinks) > 0 {
		sinkSub := b.Subscribe()
		defer sinkSub.Close()
		dispatcher := sink.NewDispatcher(logger, m, sinks...)
		g.Go(func() error {
			return dispatcher.Run(gctx, sinkSub.C())
		})
	}

	logger.Info("watcher started",
		"exchange", feed.GetName(),
		"addr", cfg.Server.Addr,
		"enrichment", cfg.Enrichment.Enabled,
		"sinks", len(sinks),
	)

	return g.Wait()
}

// buildSinks connects the enabled sinks. A sink that cannot connect is logged
// and left out; the pipeline runs without it.
func buildSinks(ctx context.Context, logger *slog.Logger, cfg *config.Config) ([]sink.Sink, func()) {
	var (
		sinks   []sink.Sink
		closers []func()
	)

	if cfg.Database.Enabled {
		repo, err := database.NewPostgresRepository(ctx, cfg.Database.DSN())
		if err != nil {
			logger.Error("postgres sink disabled", "error", err)
		} else if err := repo.Migrate(ctx); err != nil {
			logger.Error("postgres sink disabled", "error", err)
			repo.Close()
		} else {
			sinks = append(sinks, repo)
			closers = append(closers, repo.Close)
		}
	}

	if cfg.Redis.Enabled {
		rs, err := sink.NewRedisSink(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Error("redis sink disabled", "error", err)
		} else {
			sinks = append(sinks, rs)
			closers = append(closers, func() { _ = rs.Close() })
		}
	}

	if cfg.Kafka.Enabled {
		ks := sink.NewKafkaSink(cfg.Kafka, logger)
		sinks = append(sinks, ks)
		closers = append(closers, func() {
			if err := ks.Close(); err != nil {
				logger.Error("failed to close kafka writer", "error", err)
			}
		})
	}

	return sinks, func() {
		for _, c := range closers {
			c()
		}
	}
}
