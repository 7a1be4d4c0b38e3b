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

	"github.com/eaglebank/ledger/shared/config"
	"github.com/eaglebank/ledger/shared/events"
	"github.com/eaglebank/ledger/shared/lock"
	"github.com/eaglebank/ledger/shared/middleware"
	sharedredis "github.com/eaglebank/ledger/shared/redis"
	txcmd "github.com/eaglebank/ledger/transaction-service/internal/command"
	"github.com/eaglebank/ledger/transaction-service/internal/handler"
	txqry "github.com/eaglebank/ledger/transaction-service/internal/query"
	"github.com/eaglebank/ledger/transaction-service/internal/repository"
	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)).With("service", "transaction-service"))

	cfg, err := config.LoadConfig(".", "8084")
	if err != nil {
		slog.Error("failed to load config", "component", "config", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database connection
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

	// Redis connection: lock store, read model and event stream
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

	guard := lock.NewGuard(
		sharedredis.NewAccountLock(redis.Client, cfg.LockKeyPrefix, cfg.LockTTL),
		lock.Options{
			RetryInterval: cfg.LockRetryInterval,
			MaxWait:       cfg.LockMaxWait,
			RenewInterval: cfg.LockRenewInterval,
		},
	)
	publisher := events.NewPublisher(redis.Client)

	writeRepo := repository.NewTransactionWriteRepository(db)
	readRepo := repository.NewTransactionReadRepository(db, redis.Client)
	accountRepo := repository.NewAccountRepository(db)
	userRepo := repository.NewUserRepository(db)

	commandSvc := txcmd.NewTransactionCommandService(guard, userRepo, accountRepo, writeRepo, readRepo, publisher)
	querySvc := txqry.NewTransactionQueryService(readRepo)

	transactionHandler := handler.NewTransactionHandler(commandSvc, querySvc)

	router := gin.New()
	router.Use(gin.Recovery(), middleware.LoggingMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/v1/transactions")
	{
		v1.POST("/use", transactionHandler.UseBalance)
		v1.POST("/cancel", transactionHandler.CancelBalance)
		v1.GET("/:transactionId", transactionHandler.QueryTransaction)
	}

	srv := &http.Server{Addr: ":" + cfg.ServerPort, Handler: router}
	go func() {
		slog.Info("starting", "component", "server", "port", cfg.ServerPort, "lock_ttl", cfg.LockTTL, "lock_max_wait", cfg.LockMaxWait)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start server", "component", "server", "err", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown failed", "component", "server", "err", err)
	}
}
