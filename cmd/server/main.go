package main // Entry point package

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/nestwork/loyalty-discount-service/internal/config"
	"github.com/nestwork/loyalty-discount-service/internal/database"
	"github.com/nestwork/loyalty-discount-service/internal/handler"
	"github.com/nestwork/loyalty-discount-service/internal/logger"
	"github.com/nestwork/loyalty-discount-service/internal/queue"
	"github.com/nestwork/loyalty-discount-service/internal/repository"
	"github.com/nestwork/loyalty-discount-service/internal/router"
	"github.com/nestwork/loyalty-discount-service/internal/runstore"
	"github.com/nestwork/loyalty-discount-service/internal/scheduler"
	"github.com/nestwork/loyalty-discount-service/internal/service"
)

func main() {
	cfg := config.Load() // Load environment config
	zlog := logger.New(cfg.Env)
	defer func() { _ = zlog.Sync() }()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer func() { _ = db.Close() }()

	// Repositories over the shared pool.
	users := repository.NewUserRepo(db)
	spend := repository.NewSpendRepo(db)
	attrs := repository.NewAttributeRepo(db)
	products := repository.NewProductRepo(db)
	settings := repository.NewSettingsRepo(db)

	// Run store: Redis when reachable, otherwise in-process. The in-process
	// fallback only guards a single instance against itself.
	var (
		lock     runstore.LockService
		progress runstore.ProgressStore
	)
	if rdb := config.NewRedisClient(); rdb != nil {
		store := runstore.NewRedisStore(rdb)
		lock, progress = store, store
		zlog.Info("run store: redis")
	} else {
		store := runstore.NewMemoryStore()
		lock, progress = store, store
		zlog.Warn("run store: redis unreachable, using in-process store")
	}

	publisher := queue.NewPublisher(zlog)

	syncEngine := service.NewSyncEngine(spend, attrs, settings, progress, lock, publisher,
		service.SyncEngineConfig{
			LockLease:    cfg.LockLease,
			StaleTimeout: cfg.StaleTimeout,
			BatchPause:   cfg.BatchPause,
		}, zlog)
	discountEngine := service.NewDiscountEngine(attrs, products, settings, zlog)

	// Background workers stop on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go scheduler.New(syncEngine, settings, zlog).Run(ctx)
	go queue.StartOrderConsumer(ctx, syncEngine, zlog)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())

	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users), cfg.JWTSecret)
	router.RegisterAdmin(e, handler.NewAdminHandler(syncEngine, settings, attrs, products, zlog), cfg.JWTSecret)
	router.RegisterCheckout(e, handler.NewCheckoutHandler(discountEngine, zlog), handler.NewCustomerHandler(attrs, settings, zlog), cfg.JWTSecret)

	addr := ":" + cfg.Port
	zlog.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
