package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gorm.io/gorm"

	"github.com/Skotchmaster/laundry_pos/internal/backend/httpserver"
	"github.com/Skotchmaster/laundry_pos/internal/backend/repo"
	"github.com/Skotchmaster/laundry_pos/internal/backend/service"
	"github.com/Skotchmaster/laundry_pos/internal/config"
	"github.com/Skotchmaster/laundry_pos/internal/logging"
	"github.com/Skotchmaster/laundry_pos/pkg/db"
)

func main() {
	cfg := config.LoadBackend()
	logger := logging.New(cfg.LogLevel, os.Stdout)

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	gdb, err := openDB(initCtx, cfg)
	cancel()
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}

	gormRepo, err := repo.New(gdb)
	if err != nil {
		log.Fatalf("db migrate error: %v", err)
	}

	authSvc := &service.AuthService{
		Repo:          gormRepo,
		JWTSecret:     cfg.JWTSecret,
		RefreshSecret: cfg.RefreshSecret,
		AccessTTL:     cfg.AccessTTL,
		RefreshTTL:    cfg.RefreshTTL,
	}

	if cfg.AdminPassword != "" {
		if err := authSvc.SeedUser(context.Background(), cfg.AdminUsername, cfg.AdminPassword, cfg.AdminRole); err != nil {
			log.Fatalf("seed admin: %v", err)
		}
	}

	e := httpserver.New(&httpserver.Deps{
		AuthHandler: &httpserver.AuthHTTP{Svc: authSvc},
		JWTSecret:   cfg.JWTSecret,
		Logger:      logger,
	})

	go func() {
		logger.Info("mockbackend listening", "addr", cfg.Addr)
		if err := e.Start(cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("echo start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		log.Printf("echo shutdown: %v", err)
	}

	if sqlDB, err := gdb.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Printf("db close error: %v", err)
		}
	}
}

func openDB(ctx context.Context, cfg *config.Backend) (*gorm.DB, error) {
	if cfg.DatabaseURL != "" {
		return db.Open(ctx, cfg.DatabaseURL)
	}
	return db.OpenSQLite(ctx, cfg.SQLitePath)
}
