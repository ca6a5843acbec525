package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/hypercart/internal/api"
	"github.com/shehryarbajwa/hypercart/internal/automation"
	"github.com/shehryarbajwa/hypercart/internal/browser"
	"github.com/shehryarbajwa/hypercart/internal/config"
	"github.com/shehryarbajwa/hypercart/internal/dispatch"
	"github.com/shehryarbajwa/hypercart/internal/engine"
	"github.com/shehryarbajwa/hypercart/internal/events"
	"github.com/shehryarbajwa/hypercart/internal/logging"
	"github.com/shehryarbajwa/hypercart/internal/metrics"
	"github.com/shehryarbajwa/hypercart/internal/partition"
	"github.com/shehryarbajwa/hypercart/internal/proxy"
	"github.com/shehryarbajwa/hypercart/internal/ratelimit"
	"github.com/shehryarbajwa/hypercart/internal/session"
	"github.com/shehryarbajwa/hypercart/internal/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type rootFlags struct {
	configFile string
	listen     string
	backend    string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	v := viper.New()

	cmd := &cobra.Command{
		Use:          "hypercart",
		Short:        "Multi-account storefront automation server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(v, flags)
		},
	}

	cmd.PersistentFlags().StringVar(&flags.configFile, "config", "", "config file (default ./hypercart.yaml)")
	cmd.Flags().StringVar(&flags.listen, "listen", "", "HTTP listen address")
	cmd.Flags().StringVar(&flags.backend, "backend", "", "browser backend: local or docker")
	v.BindPFlag("listen_addr", cmd.Flags().Lookup("listen"))
	v.BindPFlag("backend", cmd.Flags().Lookup("backend"))

	cmd.AddCommand(newCardsCmd(v, flags))
	return cmd
}

func runServer(v *viper.Viper, flags *rootFlags) error {
	cfg, err := config.Load(v, flags.configFile)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("Starting Hypercart...",
		zap.String("backend", string(cfg.Backend)),
		zap.String("data_dir", cfg.DataDir))

	db, err := store.Open(cfg.DBPath, logger)
	if err != nil {
		return err
	}
	defer db.Close()
	orders := store.NewOrderStore(db)
	cards := store.NewCardStore(db, cfg.SnapshotDir)

	partitions, err := partition.NewManager(cfg.PartitionDir())
	if err != nil {
		return err
	}
	logger.Info("✓ Partition manager initialized", zap.String("root", cfg.PartitionDir()))

	launcher, err := newLauncher(cfg, logger)
	if err != nil {
		return err
	}
	defer launcher.Close()

	bus := events.NewBus(logger)
	logger.Info("✓ Event bus initialized")

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.MustNew(registry)

	deps := engine.Deps{
		Orders:  orders,
		Cards:   cards,
		Metrics: m,
		Logger:  logger,
	}
	sessionMgr := session.NewManager(session.Options{
		Launcher:    launcher,
		Partitions:  partitions,
		Broadcaster: bus,
		NewRunner: func(id string, p automation.Page) session.Runner {
			return engine.NewRunner(id, p, bus.ForSession(id), deps)
		},
		Metrics:     m,
		Logger:      logger,
		MaxSessions: cfg.MaxSessions,
		HostWidth:   cfg.HostWidth,
		HostHeight:  cfg.HostHeight,
		LoadTimeout: cfg.LoadTimeout,
	})
	logger.Info("✓ Session manager initialized", zap.Int("max_sessions", cfg.MaxSessions))

	dispatcher := dispatch.New(sessionMgr, bus, automation.RealClock{}, cfg.SettleDelay, logger)
	logger.Info("✓ Dispatch channel initialized")

	rateLimiter := ratelimit.NewLimiter(cfg.RateLimitPerHour, cfg.RateLimitBurst)
	logger.Info("✓ Rate limiter initialized",
		zap.Int("per_hour", cfg.RateLimitPerHour),
		zap.Int("burst", cfg.RateLimitBurst))

	proxyServer := proxy.NewServer(sessionMgr, bus, logger)
	handler := api.NewHandler(sessionMgr, dispatcher, orders, cards, logger)
	partitionHandler := api.NewPartitionHandler(partitions, sessionMgr)
	router := handler.SetupRoutes(partitionHandler, proxyServer, rateLimiter, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	logger.Info("✓ HTTP routes configured")

	// Lazily opened sessions hold a run request for a full page load plus the
	// settle delay
	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.LoadTimeout + cfg.SettleDelay + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("🚀 Server starting", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("⏳ Shutting down server gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("⚠️ Server forced to shutdown", zap.Error(err))
	}
	if err := sessionMgr.CloseAll(ctx); err != nil {
		logger.Warn("⚠️ Some sessions did not close cleanly", zap.Error(err))
	}

	logger.Info("✓ Server stopped cleanly")
	return nil
}

func newLauncher(cfg *config.Config, logger *zap.Logger) (browser.Launcher, error) {
	if cfg.Backend == config.BackendLocal {
		logger.Info("✓ Local Chrome launcher initialized", zap.Bool("headless", cfg.Headless))
		return browser.NewLocalLauncher(cfg.ChromePath, cfg.Headless, logger), nil
	}

	pool, err := browser.NewPool(cfg.DockerImage, logger)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	logger.Info("⏳ Ensuring browser image is available...", zap.String("image", cfg.DockerImage))
	if err := pool.EnsureImage(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure image: %w", err)
	}
	logger.Info("✓ Docker browser pool initialized")
	return pool, nil
}
