package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"

	"github.com/nodeport-labs/swapd/internal/api"
	"github.com/nodeport-labs/swapd/internal/coordinator"
	"github.com/nodeport-labs/swapd/internal/history"
	"github.com/nodeport-labs/swapd/internal/maker"
	"github.com/nodeport-labs/swapd/internal/poller"
	"github.com/nodeport-labs/swapd/internal/publisher"
	"github.com/nodeport-labs/swapd/internal/rate"
	"github.com/nodeport-labs/swapd/internal/stream"
	"github.com/nodeport-labs/swapd/pkg/config"
	"github.com/nodeport-labs/swapd/pkg/logger"
	"github.com/nodeport-labs/swapd/pkg/secrets"
	"github.com/nodeport-labs/swapd/pkg/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Load configuration ---
	cfg := config.Load()

	logger.Init(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	defer logger.Sync()
	logg := logger.S()
	logg.Info("starting [swapd]...")
	if cfg.DatabaseURL != "" {
		logg.Info("audit DSN: ", utils.MaskDSN(cfg.DatabaseURL))
	}
	if cfg.MakerAPIKey != "" {
		logg.Info("maker API key: ", utils.MaskKey(cfg.MakerAPIKey))
	}

	// --- Connect to NATS ---
	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		logg.Fatalw("failed to connect to NATS", "error", err)
	}
	defer nc.Drain() //nolint:errcheck

	// --- Maker credentials (AWS Secrets Manager, static key in dev) ---
	cache := secrets.NewCache[secrets.MakerCredentials](cfg.SecretCacheTTL)
	var provider secrets.Provider
	if cfg.MakerSecretName != "" {
		provider, err = secrets.NewAWSProvider(cfg.AWSRegion)
		if err != nil {
			logg.Fatalw("failed to init AWS provider", "error", err)
		}
	}
	creds := secrets.NewResolver(provider, cache, cfg.MakerSecretName, cfg.MakerAPIKey)

	// --- Publisher ---
	pub, err := publisher.New(nc, cfg.ServiceName, logger.L())
	if err != nil {
		logg.Fatalw("failed to init publisher", "error", err)
	}

	// --- Rate limiter ---
	rateMgr := rate.NewManager(rate.Config{
		RequestsPerSecond: cfg.MakerRPS,
		Burst:             cfg.MakerBurst,
	})

	// --- History store (Redis + optional Postgres audit) ---
	st, err := history.NewHybrid(cfg.RedisAddr, cfg.RedisDB, cfg.DatabaseURL, cfg.HistoryCapacity, logger.L())
	if err != nil {
		logg.Fatalw("failed to init history store", "error", err)
	}
	defer st.Close() //nolint:errcheck

	// --- Maker client + status poller ---
	client := maker.NewClient(logger.L(), cfg.MakerBaseURL, cfg.StatusBaseURL, creds, rateMgr)
	watcher := poller.New(logger.L(), client.TradeStatus, cfg.PollInterval, cfg.PollMaxDuration)

	// --- Swap coordinator ---
	coord := coordinator.New(
		ctx,
		logger.L(),
		client,
		client,
		watcher,
		st,
		pub,
		cfg.KeepPollingAfterReset,
	)

	// --- HTTP API ---
	app := fiber.New()
	h := api.NewSwapHandler(logger.L(), coord, st)
	api.RegisterRoutes(app, nc, st, h)

	go func() {
		logg.Infof("HTTP API listening on :%d", cfg.Port)
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logg.Fatalw("fiber.listen_failed", "error", err)
		}
	}()

	// --- Live state stream (websocket) ---
	hub := stream.NewHub(logger.L(), coord)
	streamMux := http.NewServeMux()
	streamMux.Handle("/ws/swap", hub)
	streamSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler: streamMux,
	}
	go func() {
		logg.Infof("state stream listening on :%d", cfg.MetricsPort)
		if err := streamSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logg.Fatalw("stream.listen_failed", "error", err)
		}
	}()

	logg.Infow("[swapd] running",
		"nats", cfg.NATSURL,
		"maker", cfg.MakerBaseURL,
		"poll_interval", cfg.PollInterval)

	<-ctx.Done()
	stop()
	logg.Info("shutting down [swapd]...")

	coord.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	streamSrv.Shutdown(shutdownCtx)          //nolint:errcheck
	app.ShutdownWithContext(shutdownCtx)     //nolint:errcheck
}
