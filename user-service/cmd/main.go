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
	"github.com/eaglebank/ledger/shared/middleware"
	sharedredis "github.com/eaglebank/ledger/shared/redis"
	usercmd "github.com/eaglebank/ledger/user-service/internal/command"
	"github.com/eaglebank/ledger/user-service/internal/handler"
	userqry "github.com/eaglebank/ledger/user-service/internal/query"
	"github.com/eaglebank/ledger/user-service/internal/repository"
	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)).With("service", "user-service"))

	cfg, err := config.LoadConfig(".", "8082")
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

	// Redis connection (read model store + event streaming)
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
	publisher := events.NewPublisher(redis.Client)

	writeRepo := repository.NewUserWriteRepository(db)
	readRepo := repository.NewUserReadRepository(db, redis.Client, cfg.ViewCacheTTL)

	commandSvc := usercmd.NewUserCommandService(writeRepo, readRepo, publisher)
	querySvc := userqry.NewUserQueryService(readRepo)

	userHandler := handler.NewUserHandler(commandSvc, querySvc)

	router := gin.New()
	router.Use(gin.Recovery(), middleware.LoggingMiddleware())

	v1 := router.Group("/v1/users")
	{
		v1.POST("", userHandler.CreateUser)
		v1.GET("/:userId", userHandler.GetUser)
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	srv := &http.Server{Addr: ":" + cfg.ServerPort, Handler: router}
	go func() {
		slog.Info("starting", "component", "server", "port", cfg.ServerPort)
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
