package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/contentflow/uploadflow/internal/browser"
	"github.com/contentflow/uploadflow/internal/config"
	"github.com/contentflow/uploadflow/internal/coordination"
	"github.com/contentflow/uploadflow/internal/events"
	"github.com/contentflow/uploadflow/internal/handlers"
	"github.com/contentflow/uploadflow/internal/models"
	"github.com/contentflow/uploadflow/internal/network"
	"github.com/contentflow/uploadflow/internal/notify"
	"github.com/contentflow/uploadflow/internal/orchestrator"
	"github.com/contentflow/uploadflow/internal/profile"
	"github.com/contentflow/uploadflow/internal/queue"
	"github.com/contentflow/uploadflow/internal/service"
	"github.com/contentflow/uploadflow/internal/state"
	"github.com/contentflow/uploadflow/internal/upload"
	"github.com/contentflow/uploadflow/pkg/logger"
)

func main() {
	cfg, err := config.Load(os.Getenv("UPLOADFLOW_CONFIG_PATH"))
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	log := logger.New(cfg.App.LogLevel, cfg.App.LogFormat)
	logger.SetDefault(log)

	log.Info("Starting uploadflow",
		logger.Field{Key: "port", Value: cfg.App.Port},
		logger.Field{Key: "plan", Value: string(cfg.Limits.Plan)})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A second process running against the same launcher would fight over
	// profiles, so take a distributed lock when Redis is configured.
	var runLock *coordination.RunLock
	if cfg.Redis.Addr != "" {
		runLock, err = coordination.NewRunLock(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.LockTTL, log)
		if err != nil {
			log.Fatal("Failed to connect to Redis", logger.Field{Key: "error", Value: err.Error()})
		}
		if err := runLock.Acquire(ctx); err != nil {
			log.Fatal("Another instance holds the run lock", logger.Field{Key: "error", Value: err.Error()})
		}
		defer runLock.Close()
		defer runLock.Release(context.Background())
		runLock.PublishStatus(ctx, "started")
	}

	var publisher *events.Publisher
	if cfg.RabbitMQ.URL != "" {
		publisher, err = events.NewPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, log)
		if err != nil {
			log.Fatal("Failed to connect to RabbitMQ", logger.Field{Key: "error", Value: err.Error()})
		}
		defer publisher.Close()
	}

	var notifier *notify.Notifier
	if cfg.Telegram.Token != "" {
		notifier, err = notify.NewNotifier(cfg.Telegram.Token, cfg.Telegram.ChatID, log)
		if err != nil {
			log.Fatal("Failed to initialize Telegram notifier", logger.Field{Key: "error", Value: err.Error()})
		}
	}

	store, err := state.NewStore(cfg.Data.StateDir, log)
	if err != nil {
		log.Fatal("Failed to open state store", logger.Field{Key: "error", Value: err.Error()})
	}

	metrics := service.NewMetrics()

	checker := network.NewEscalatingChecker(
		cfg.Network.DialAddr,
		cfg.Network.PrimaryURL,
		cfg.Network.SecondaryURL,
		cfg.Network.CheckTimeout,
	)
	monitor := network.NewMonitor(checker, cfg.Network.CheckInterval, log)
	monitor.SetRecorder(store)
	monitor.OnDrop(func(status models.NetworkStatus) {
		metrics.IncrementNetworkChecks(string(status))
		publisher.NetworkDropped(string(status))
	})
	monitor.OnRecover(func() {
		metrics.IncrementNetworkChecks("recovered")
		publisher.NetworkRecovered()
	})
	monitor.Start(ctx)
	defer monitor.Stop()

	launcher := browser.NewLauncherClient(cfg.Launcher.BaseURL, cfg.Launcher.APIKey, cfg.Launcher.Timeout, log)
	sessions := browser.NewSessionManager(launcher, store, cfg.Upload, cfg.Human.EnableStealth, log)
	sessions.CleanupOrphan(ctx)
	defer sessions.Shutdown()

	profiles := profile.NewManager(launcher, sessions, store, log)
	folderQueue := queue.NewFolderQueue(cfg.Data.BaseDir, store, log)

	catalog, err := config.LoadSelectors(cfg.Data.SelectorsPath)
	if err != nil {
		log.Fatal("Failed to load selector catalog", logger.Field{Key: "error", Value: err.Error()})
	}

	human := browser.NewHumanizer(cfg.Human)
	uploader := upload.NewHelper(store, monitor, human, catalog, cfg.Upload, cfg.Network, cfg.Data.QuarantineDir, metrics, log)

	orch := orchestrator.New(cfg, store, profiles, folderQueue, uploader, metrics, publisher, notifier, log)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handler := handlers.NewHandler(orch, store, monitor, handlers.NewAuthMiddleware(cfg.Auth.JWTSecret), log)
	handler.RegisterRoutes(router)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.App.Port),
		Handler: router,
	}

	go func() {
		log.Info("Starting HTTP server", logger.Field{Key: "addr", Value: server.Addr})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", logger.Field{Key: "error", Value: err.Error()})
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutting down")

	if runLock != nil {
		runLock.PublishStatus(context.Background(), "stopping")
	}
	orch.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", logger.Field{Key: "error", Value: err.Error()})
	}
}
