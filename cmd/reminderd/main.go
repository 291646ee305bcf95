package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/shipping-reminder/internal/api/handlers/notification"
	"github.com/aliskhannn/shipping-reminder/internal/api/handlers/reminder"
	"github.com/aliskhannn/shipping-reminder/internal/api/router"
	"github.com/aliskhannn/shipping-reminder/internal/api/server"
	"github.com/aliskhannn/shipping-reminder/internal/app"
	"github.com/aliskhannn/shipping-reminder/internal/config"
	"github.com/aliskhannn/shipping-reminder/internal/rabbitmq/handlers/reconcile"
	"github.com/aliskhannn/shipping-reminder/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zlog.Init()
	cfg := config.Must()
	val := validator.New()

	a, err := app.New(ctx, cfg, app.Options{Events: true, Telegram: true})
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to initialise application")
	}
	defer a.Close()

	zlog.Logger.Info().
		Str("storage", cfg.Storage.Driver).
		Str("lock", cfg.Lock.Driver).
		Str("sender", cfg.Sender.Provider).
		Str("unit", cfg.Reminder.Unit).
		Int("alert_channels", a.Alerts.Len()).
		Msg("reminder daemon starting")

	var wg sync.WaitGroup

	reminderWorker := worker.NewReminder(a.Reminders, cfg.Reminder.Schedule)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := reminderWorker.Run(ctx); err != nil {
			zlog.Logger.Fatal().Err(err).Msg("failed to start reminder worker")
		}
	}()

	if a.Queue != nil {
		reconciler := worker.NewReconciler(a.Queue, reconcile.NewHandler(a.Store, a.Locker, a.Alerts))
		wg.Add(1)
		go func() {
			defer wg.Done()
			reconciler.Run(ctx, cfg.Retry, 1)
		}()
	}

	if a.Telegram != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Telegram.Listen(ctx, a.Reminders)
		}()
	}

	notifHandler := notification.NewHandler(a.Notifications, val, cfg)
	reminderHandler := reminder.NewHandler(a.Reminders)

	r := router.New(notifHandler, reminderHandler)
	s := server.New(cfg.Server.HTTPPort, r)

	go func() {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	zlog.Logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	zlog.Logger.Info().Msg("shutting down server")
	if err := s.Shutdown(shutdownCtx); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to shutdown server")
	}

	if errors.Is(shutdownCtx.Err(), context.DeadlineExceeded) {
		zlog.Logger.Info().Msg("timeout exceeded, forcing shutdown")
	}

	// In-flight reminders finish their store write before the workers return.
	wg.Wait()
	zlog.Logger.Info().Msg("reminder daemon stopped")
}
