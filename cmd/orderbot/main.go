// Package main запускает бота приёма заказов и HTTP API операторов.
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

	"github.com/mmeshcher/orderbot/internal/bot"
	"github.com/mmeshcher/orderbot/internal/chat/telegram"
	"github.com/mmeshcher/orderbot/internal/config"
	"github.com/mmeshcher/orderbot/internal/discount"
	"github.com/mmeshcher/orderbot/internal/engine"
	"github.com/mmeshcher/orderbot/internal/handler"
	"github.com/mmeshcher/orderbot/internal/middleware"
	"github.com/mmeshcher/orderbot/internal/notify"
	"github.com/mmeshcher/orderbot/internal/repository"
	"github.com/mmeshcher/orderbot/internal/service"
	"github.com/mmeshcher/orderbot/internal/session"
)

const sweepInterval = time.Minute

// store объединяет возможности хранилища, нужные компонентам бота.
type store interface {
	engine.Ledger
	discount.UserStore
	discount.PromoRedeemer
	service.Repository
	Close() error
}

func openStore(dsn string) (store, error) {
	if dsn == "" {
		return repository.NewMemoryRepository(), nil
	}
	return repository.NewPostgresRepository(dsn)
}

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}
	if cfg.BotToken == "" {
		sugar.Fatal("bot token is required")
	}

	repo, err := openStore(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()
	if cfg.DatabaseURI == "" {
		sugar.Warn("DATABASE_URI is empty, orders are kept in memory")
	}

	client, err := telegram.NewClient(cfg.BotToken, cfg.AssetsDir, logger)
	if err != nil {
		sugar.Fatalw("telegram initialization error", "error", err.Error())
	}

	dispatcher := notify.NewDispatcher(client, cfg.OperatorIDs, logger)
	svc := service.NewService(repo, dispatcher, cfg.OperatorIDs, logger)

	sessions := session.NewStore[engine.Session]()
	eng := engine.New(repo, discount.NewResolver(repo, repo), sessions, logger, engine.Options{
		PaymentDetails: cfg.PaymentDetails,
	})

	authMiddleware := middleware.NewAuthMiddleware(cfg.OperatorSecret)
	if cfg.OperatorSecret == "" {
		sugar.Warn("OPERATOR_SECRET is empty, operator tokens are valid until restart")
	}

	b := bot.New(eng, svc, dispatcher, authMiddleware, logger, bot.Options{
		BotName:        client.Username(),
		SupportContact: cfg.SupportContact,
	})

	h := handler.NewHandler(svc, logger, authMiddleware)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Приём событий чата
	g.Go(func() error {
		sugar.Infow("starting bot", "username", client.Username(), "operators", len(cfg.OperatorIDs))
		b.Run(ctx, client.Updates(ctx))
		sugar.Info("bot stopped")
		return nil
	})

	// Удаление заброшенных диалогов
	g.Go(func() error {
		sessions.StartSweeper(ctx, sweepInterval, cfg.SessionTTL, logger)
		return nil
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting operator API", "addr", cfg.RunAddress)
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
