package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/blogspace/backend/internal/config"
	"github.com/blogspace/backend/internal/events"
	"github.com/blogspace/backend/internal/httpserver"
	"github.com/blogspace/backend/internal/logging"
	"github.com/blogspace/backend/internal/mailer"
	"github.com/blogspace/backend/internal/middleware"
	"github.com/blogspace/backend/internal/repo"
	"github.com/blogspace/backend/internal/service"
	"github.com/blogspace/backend/pkg/tokens"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load: %v", err)
	}
	config.MustNonEmptyBytes(cfg.JWTSecret, "JWT_SECRET")
	config.MustNonEmptyBytes(cfg.RefreshSecret, "REFRESH_TOKEN_SECRET")

	l := logging.New(cfg.LogLevel)
	slog.SetDefault(l)

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	db, err := cfg.InitDB(initCtx)
	cancel()
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}

	gormRepo := &repo.GormRepo{DB: db}
	signer := &tokens.Signer{
		AccessSecret:  cfg.JWTSecret,
		RefreshSecret: cfg.RefreshSecret,
		AccessTTL:     cfg.AccessTTL,
		RefreshTTL:    cfg.RefreshTTL,
	}

	publisher := events.NewFromBrokers(cfg.KafkaBrokers)
	defer publisher.Close()

	svc := &service.AuthService{
		Repo:      gormRepo,
		Signer:    signer,
		Mailer:    mailer.NewFromConfig(cfg, l),
		Events:    publisher,
		ClientURL: cfg.ClientURL,
	}

	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 15 * time.Second
	e.Server.ReadHeaderTimeout = 3 * time.Second
	e.Use(middleware.RequestLogger(l))

	httpserver.Register(e, &httpserver.Deps{
		AuthHandler: &httpserver.AuthHTTP{Svc: svc},
		AuthMw:      middleware.NewAuth(signer, gormRepo),
		DB:          db,
		ClientURL:   cfg.ClientURL,
	})

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("echo start: %v", err)
		}
	}()
	l.Info("server started", "port", cfg.Port)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("echo shutdown: %v", err)
	}
}
