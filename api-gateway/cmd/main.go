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

	"github.com/eaglebank/ledger/api-gateway/internal/proxy"
	"github.com/eaglebank/ledger/shared/config"
	"github.com/eaglebank/ledger/shared/middleware"
	"github.com/gin-gonic/gin"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)).With("service", "api-gateway"))

	cfg, err := config.LoadConfig(".", "8080")
	if err != nil {
		slog.Error("failed to load config", "component", "config", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Upstream calls may sit behind the account lock for up to MaxWait.
	forward := proxy.NewForwarder(cfg.LockMaxWait + 10*time.Second)

	router := gin.New()
	router.Use(gin.Recovery(), middleware.LoggingMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "api-gateway"})
	})

	// User routes
	router.POST("/v1/users", forward.To(cfg.UserServiceURL))
	router.GET("/v1/users/:userId", forward.To(cfg.UserServiceURL))

	// Account routes
	router.POST("/v1/accounts", forward.To(cfg.AccountServiceURL))
	router.GET("/v1/accounts", forward.To(cfg.AccountServiceURL))
	router.GET("/v1/accounts/:accountNumber", forward.To(cfg.AccountServiceURL))
	router.DELETE("/v1/accounts/:accountNumber", forward.To(cfg.AccountServiceURL))

	// Transaction routes
	router.POST("/v1/transactions/use", forward.To(cfg.TransactionServiceURL))
	router.POST("/v1/transactions/cancel", forward.To(cfg.TransactionServiceURL))
	router.GET("/v1/transactions/:transactionId", forward.To(cfg.TransactionServiceURL))

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
