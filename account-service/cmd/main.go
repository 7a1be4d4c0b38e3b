package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	accountcmd "github.com/eaglebank/ledger/account-service/internal/command"
	"github.com/eaglebank/ledger/account-service/internal/handler"
	accountqry "github.com/eaglebank/ledger/account-service/internal/query"
	"github.com/eaglebank/ledger/account-service/internal/repository"
	"github.com/eaglebank/ledger/shared/config"
	"github.com/eaglebank/ledger/shared/events"
	"github.com/eaglebank/ledger/shared/lock"
	"github.com/eaglebank/ledger/shared/middleware"
	sharedredis "github.com/eaglebank/ledger/shared/redis"
	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)).With("service", "account-service"))

	cfg, err := config.LoadConfig(".", "8083")
	if err != nil {
		slog.Error("failed to load config", "component", "config", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database connection (write store)
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "component", "db", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		slog.Error("failed to ping database", "component", "db", "err", err)
		os.Exit(1)
	}

	// Redis connection (lock store, read model and event streaming)
	redis, err := sharedredis.NewClient(ctx, sharedredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		slog.Error("failed to connect to redis", "component", "redis", "err", err)
		os.Exit(1)
	}
	defer redis.Close()

	// --- CQRS wiring ---
	guard := lock.NewGuard(
		sharedredis.NewAccountLock(redis.Client, cfg.LockKeyPrefix, cfg.LockTTL),
		lock.Options{
			RetryInterval: cfg.LockRetryInterval,
			MaxWait:       cfg.LockMaxWait,
			RenewInterval: cfg.LockRenewInterval,
		},
	)
	publisher := events.NewPublisher(redis.Client)

	writeRepo := repository.NewAccountWriteRepository(db)
	readRepo := repository.NewAccountReadRepository(db, redis.Client, cfg.ViewCacheTTL)
	userRepo := repository.NewUserRepository(db)

	commandSvc := accountcmd.NewAccountCommandService(guard, userRepo, writeRepo, readRepo, publisher)
	querySvc := accountqry.NewAccountQueryService(userRepo, readRepo)

	accountHandler := handler.NewAccountHandler(commandSvc, querySvc)

	router := gin.New()
	router.Use(gin.Recovery(), middleware.LoggingMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/v1/accounts")
	{
		v1.POST("", accountHandler.CreateAccount)
		v1.GET("", accountHandler.ListAccounts)
		v1.GET("/:accountNumber", accountHandler.GetAccount)
		v1.DELETE("/:accountNumber", accountHandler.CloseAccount)
	}

	consumer, _ := os.Hostname()
	if consumer == "" {
		consumer = "account-consumer-1"
	}
	go func() {
		subscriber := events.NewSubscriber(redis.Client, events.SubscriberConfig{
			Group:    "account-service-group",
			Consumer: consumer,
			Stream:   events.TransactionEventsStream,
			Handler:  commandSvc.HandleTransactionEvent,
		})
		if err := subscriber.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("subscriber stopped", "component", "server", "err", err)
		}
	}()

	srv := &http.Server{Addr: ":" + cfg.ServerPort, Handler: router}
	go func() {
		slog.Info("starting", "component", "server", "port", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start server", "component", "server", "err", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down", "component", "server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown failed", "component", "server", "err", err)
	}
}
