package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"wagercourt/internal/client/tonledger"
	"wagercourt/internal/config"
	cronrunner "wagercourt/internal/cron"
	"wagercourt/internal/db"
	"wagercourt/internal/escrow"
	"wagercourt/internal/handler"
	"wagercourt/internal/logger"
	"wagercourt/internal/notify"
	"wagercourt/internal/repository"
	gormrepository "wagercourt/internal/repository/gorm"
	memoryrepository "wagercourt/internal/repository/memory"
	"wagercourt/internal/service"
	"wagercourt/internal/stream"
)

func main() {
	configPath := os.Getenv("WC_CONFIG")
	cfg, err := config.Load(configPath, configPath == "")
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if cfg.App.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Persistence: postgres when a DSN is configured, in-memory otherwise.
	var repo repository.Repository
	var database *db.DB
	if cfg.DB.DSN != "" {
		database, err = db.Open(cfg.DB)
		if err != nil {
			log.Fatal("open database", zap.Error(err))
		}
		defer db.Close(database)
		if err := db.SetTimezone(database, cfg.DB.Timezone); err != nil {
			log.Fatal("set timezone", zap.Error(err))
		}
		if err := db.AutoMigrate(database); err != nil {
			log.Fatal("migrate", zap.Error(err))
		}
		repo = gormrepository.New(database.Gorm)
	} else {
		log.Warn("no database configured, using in-memory repository")
		repo = memoryrepository.New()
	}

	// Fund custody: external gateway or the in-process engine.
	var ledger escrow.Ledger
	if cfg.Escrow.Mode == "gateway" {
		ledger = tonledger.NewClient(
			&http.Client{Timeout: cfg.Escrow.Gateway.Timeout},
			cfg.Escrow.Gateway.BaseURL,
		)
	} else {
		ledger = escrow.NewMemory()
	}

	var notifier notify.Sender
	if cfg.Notify.Enabled {
		notifier = notify.NewClient(cfg.Notify.BaseURL, cfg.Notify.Timeout)
	}

	var hub *stream.Hub
	var events service.Publisher
	if cfg.Stream.Enabled {
		hub = stream.NewHub(log)
		events = hub
		defer hub.Close()
	}

	locks := service.NewKeyedMutex()
	disputes := service.NewDisputeService(repo, ledger, notifier, events, log, locks,
		cfg.Escrow.RetryAttempts, cfg.Escrow.RetryBackoff)
	investigations := service.NewInvestigationService(repo, disputes, notifier, events, log,
		cfg.Investigation.Quorum, cfg.Investigation.ReviewWindow,
		cfg.Investigation.SweepBatch, cfg.Investigation.SweepWorkers)
	evidence := service.NewEvidenceService(repo, disputes, investigations, log)
	leaderboard := service.NewLeaderboardService(repo, log, cfg.Leaderboard.Scoring, cfg.Leaderboard.DefaultLimit)
	users := service.NewUserService(repo, log)

	h := &handler.Handler{
		Disputes:       disputes,
		Evidence:       evidence,
		Investigations: investigations,
		Leaderboard:    leaderboard,
		Users:          users,
		Logger:         log,
	}
	if hub != nil {
		h.Stream = hub
	}
	if database != nil {
		h.Ready = func(context.Context) error { return db.Ping(database) }
	}

	r := gin.New()
	r.Use(gin.Recovery())
	h.Register(r, handler.PassthroughVerifier{}, cfg.Auth.Disabled)

	// Deadline sweep: closes investigations whose review window elapsed even
	// when no request touches them.
	runner := cronrunner.New(log, ctx)
	if _, err := runner.Add(cfg.Cron.Sweep, func(ctx context.Context) {
		if err := investigations.Sweep(ctx); err != nil {
			log.Warn("investigation sweep failed", zap.Error(err))
		}
	}); err != nil {
		log.Fatal("schedule sweep", zap.Error(err))
	}
	runner.Start()
	defer runner.Stop()

	server := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: r,
	}
	go func() {
		log.Info("http server listening", zap.String("addr", cfg.Server.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
}
