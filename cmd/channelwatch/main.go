package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"channelwatch/internal/bot"
	"channelwatch/internal/config"
	"channelwatch/internal/history"
	"channelwatch/internal/metrics"
	"channelwatch/internal/monitor"
	"channelwatch/internal/store"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := config.BuildLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	monitors, err := store.OpenMonitorStore(cfg.MonitoredPath)
	if err != nil {
		logger.Fatal("monitor store init failed", zap.Error(err))
	}
	guilds, err := store.OpenConfigStore(cfg.GuildConfigPath)
	if err != nil {
		logger.Fatal("guild config init failed", zap.Error(err))
	}
	logger.Info("state loaded",
		zap.Int("guilds", len(guilds.Guilds())),
		zap.Strings("channels", monitors.Channels()))

	historyStore, err := history.New(cfg.HistoryPath)
	if err != nil {
		logger.Fatal("history init failed", zap.Error(err))
	}
	defer historyStore.Close()
	if err := historyStore.Migrate(); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}
	recorder := history.NewRecorder(historyStore, logger)

	meters := metrics.New()

	botSvc, err := bot.New(cfg, logger, guilds, historyStore)
	if err != nil {
		logger.Fatal("bot init failed", zap.Error(err))
	}

	engine := monitor.NewEngine(logger, monitors, guilds, botSvc, monitor.SettingsFromConfig(cfg)).
		WithRecorder(recorder).
		WithMetrics(meters)
	botSvc.SetEngine(engine)
	botSvc.SetMetrics(meters)

	if err := botSvc.Start(); err != nil {
		logger.Fatal("bot start failed", zap.Error(err))
	}
	logger.Info("bot started")

	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()
	go engine.Run(runCtx)
	recorder.StartCleanup(runCtx, cfg.RetentionDays)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	if err := config.Watch(runCtx, configPath, logger, func(next config.Config) {
		engine.UpdateSettings(monitor.SettingsFromConfig(next))
	}); err != nil {
		logger.Warn("config watch unavailable", zap.Error(err))
	}

	var server *http.Server
	if cfg.Health.Enabled {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		if cfg.Health.Metrics {
			mux.Handle("/metrics", meters.Handler())
		}
		server = &http.Server{Addr: cfg.Health.Addr, Handler: mux}
		go func() {
			logger.Info("health endpoint enabled", zap.String("addr", cfg.Health.Addr))
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("health server error", zap.Error(err))
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown requested")

	stopRun()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if server != nil {
		_ = server.Shutdown(ctx)
	}
	botSvc.Close(ctx)
}
