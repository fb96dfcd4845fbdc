// Package main запускает HTTP-сервер сервиса бустер-паков.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mkravcova/boosterpack-system/internal/config"
	"github.com/mkravcova/boosterpack-system/internal/draw"
	"github.com/mkravcova/boosterpack-system/internal/handler"
	"github.com/mkravcova/boosterpack-system/internal/match"
	"github.com/mkravcova/boosterpack-system/internal/middleware"
	"github.com/mkravcova/boosterpack-system/internal/model"
	"github.com/mkravcova/boosterpack-system/internal/pool"
	"github.com/mkravcova/boosterpack-system/internal/repository"
	"github.com/mkravcova/boosterpack-system/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	engine, err := draw.NewEngine(model.DefaultRarityWeights, nil)
	if err != nil {
		sugar.Fatalw("draw engine initialization error", "error", err.Error())
	}

	// Интерфейсная переменная остаётся nil, если адрес сервиса матчей не
	// задан: типизированный nil-клиент включил бы фоновую сверку впустую.
	var matcher service.Matcher
	if cfg.MatchServiceAddress != "" {
		matcher = match.NewClient(cfg.MatchServiceAddress)
	}

	poolClient := pool.NewClient(cfg.ProfilePoolAddress)

	svc := service.NewService(repo, matcher, poolClient, engine,
		cfg.PackSize, time.Duration(cfg.CooldownSeconds)*time.Second)
	defer svc.Close()

	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret)
	h := handler.NewHandler(svc, logger, authMiddleware)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск фоновой сверки недоставленных лайков
	g.Go(func() error {
		svc.StartDecisionResync(ctx)
		return nil
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting boosterpack server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
