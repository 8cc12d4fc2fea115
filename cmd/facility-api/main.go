package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mohammed-shakir/h3-facility-locator/internal/api"
	"github.com/mohammed-shakir/h3-facility-locator/internal/cache/cellindex"
	"github.com/mohammed-shakir/h3-facility-locator/internal/cache/redisstore"
	"github.com/mohammed-shakir/h3-facility-locator/internal/core/config"
	"github.com/mohammed-shakir/h3-facility-locator/internal/core/health"
	"github.com/mohammed-shakir/h3-facility-locator/internal/core/server"
	"github.com/mohammed-shakir/h3-facility-locator/internal/events"
	"github.com/mohammed-shakir/h3-facility-locator/internal/hotness/expdecay"
	"github.com/mohammed-shakir/h3-facility-locator/internal/hotness/metricswrap"
	"github.com/mohammed-shakir/h3-facility-locator/internal/logger"
	"github.com/mohammed-shakir/h3-facility-locator/internal/metrics"
	"github.com/mohammed-shakir/h3-facility-locator/internal/nearest"
	"github.com/mohammed-shakir/h3-facility-locator/internal/store"
	"github.com/mohammed-shakir/h3-facility-locator/internal/store/memory"
	"github.com/mohammed-shakir/h3-facility-locator/internal/store/postgres"
)

var (
	Version   = "dev"
	Revision  = ""
	BuildDate = ""
)

const service = "h3-facility-locator"

func main() {
	os.Exit(run())
}

func run() int {
	// a missing .env is fine; real env vars always win
	_ = godotenv.Load(".env")
	cfg := config.FromEnv()

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   int(cfg.LogSampleN),
		Service:   service,
		Component: "facility-api",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	prov := metrics.Init(metrics.Config{
		Enabled: cfg.Metrics.Enabled,
		Addr:    cfg.Metrics.Addr,
		Path:    cfg.Metrics.Path,
		Service: service,
		Build:   metrics.BuildInfo{Version: Version, Revision: Revision, BuildDate: BuildDate},
	})

	appLog.Info("starting facility api",
		"addr", cfg.Addr,
		"version", Version,
		"store", cfg.StoreDriver,
		"cache", cfg.Cache.Enabled,
		"events", cfg.Events.Enabled)

	base, err := openStore(ctx, cfg, appLog)
	if err != nil {
		appLog.Error("store setup failed", "err", err)
		return 1
	}
	defer func() { _ = base.Close() }()

	tracker := expdecay.New(cfg.Cache.HotHalfLife)
	// cells decayed below a hundredth of the threshold are forgotten
	go tracker.RunPruner(ctx, 0, cfg.Cache.HotThreshold/100)
	hot := metricswrap.New(tracker, metricswrap.Options{
		Threshold: cfg.Cache.HotThreshold,
		LogSample: 0.01,
		Logger:    &zl,
	})

	st := base
	var cached *cellindex.CachedStore
	if cfg.Cache.Enabled {
		rc, err := redisstore.New(ctx, cfg.Cache.RedisAddr)
		if err != nil {
			appLog.Error("redis setup failed", "addr", cfg.Cache.RedisAddr, "err", err)
			return 1
		}
		defer func() { _ = rc.Close() }()
		cached = cellindex.New(base, rc, cellindex.Options{
			TTL:       cfg.Cache.TTLDefault,
			OpTimeout: cfg.Cache.OpTimeout,
			Hot:       hot,
			Logger:    &zl,
		})
		st = cached
	}

	evCfg := events.Config{
		Enabled: cfg.Events.Enabled,
		Brokers: cfg.Events.Brokers,
		Topic:   cfg.Events.Topic,
		GroupID: cfg.Events.GroupID,
	}
	var pub api.Publisher
	checks := health.Checks{Store: st}
	if cfg.Events.Enabled {
		p, err := events.NewPublisher(evCfg, &zl)
		if err != nil {
			appLog.Error("event publisher setup failed", "err", err)
			return 1
		}
		defer func() { _ = p.Close() }()
		pub = p

		if cached != nil {
			cons := events.NewConsumer(evCfg, cached, events.ConsumerOptions{Logger: appLog, Hotness: hot})
			if err := cons.Start(ctx); err != nil {
				appLog.Error("event consumer setup failed", "err", err)
				return 1
			}
			defer cons.Stop()
			checks.Events = cons
		} else {
			appLog.Warn("events enabled without cache; consumer not started")
		}
	}

	h := api.New(api.Options{
		Store:         st,
		Finder:        nearest.NewInstrumented(nearest.New(st), &zl, hot),
		Publisher:     pub,
		Logger:        appLog,
		HeatmapRes:    &cfg.HeatmapResDefault,
		MaxDistanceKm: &cfg.NearestMaxDistanceKm,
		Service:       service,
		Version:       Version,
	})

	opts := server.Options{
		Logger: appLog,
		Checks: checks,
		Mount:  h.Routes,
	}
	if cfg.Metrics.Enabled {
		if cfg.Metrics.Addr == "" {
			opts.Metrics, opts.MetricsPath = prov.Handler(), cfg.Metrics.Path
		} else {
			go serveMetrics(ctx, cfg.Metrics, prov, appLog)
		}
	}

	if err := server.Run(ctx, cfg.Addr, appLog, server.Router(opts)); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}

func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (store.Store, error) {
	if cfg.StoreDriver != config.StorePostgres {
		log.Warn("using in-memory store; data is lost on restart")
		return memory.New(), nil
	}
	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pg, err := postgres.Open(openCtx, cfg.Database.URL, cfg.Database.MaxConnections)
	if err != nil {
		return nil, err
	}
	if err := pg.EnsureSchema(openCtx); err != nil {
		_ = pg.Close()
		return nil, err
	}
	return pg, nil
}

func serveMetrics(ctx context.Context, mc config.MetricsCfg, prov *metrics.Provider, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle(mc.Path, prov.Handler())
	srv := &http.Server{
		Addr:              mc.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("metrics shutdown error", "err", err)
		}
	}()
	log.Info("metrics listening", "addr", mc.Addr, "path", mc.Path)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("metrics server exited", "err", err)
	}
}
