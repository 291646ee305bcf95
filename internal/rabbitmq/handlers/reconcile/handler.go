package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/shipping-reminder/internal/lock"
	"github.com/aliskhannn/shipping-reminder/internal/rabbitmq/queue"
	"github.com/aliskhannn/shipping-reminder/internal/repository"
)

//go:generate mockgen -source=handler.go -destination=../../../mocks/rabbitmq/handlers/reconcile/mock.go -package=mocks
type notificationStore interface {
	MarkReminderSent(ctx context.Context, id string, sentAt time.Time) error
}

type locker interface {
	TryLock(ctx context.Context, id string) (lock.Unlocker, error)
}

type alerter interface {
	Alert(ctx context.Context, text string) error
}

// Handler stores the "sent" mark for reminders that were delivered but whose
// mark failed at send time. It never sends anything itself.
type Handler struct {
	store   notificationStore
	locker  locker
	alerter alerter
}

// NewHandler creates a reconcile handler. locker must be the one the
// scheduler uses. alerter may be nil.
func NewHandler(store notificationStore, locker locker, alerter alerter) *Handler {
	return &Handler{store: store, locker: locker, alerter: alerter}
}

// HandleEvent retries MarkReminderSent with the original send time, each
// attempt under the notification's lock. A held lock counts as a failed
// attempt and is retried after the strategy delay. An already-marked or
// deleted notification needs no further work.
func (h *Handler) HandleEvent(ctx context.Context, ev queue.ReminderEvent, strategy retry.Strategy) {
	log := zlog.Logger.With().Str("id", ev.NotificationID).Logger()

	attempt := 0
	currentDelay := strategy.Delay

	var err error
	for attempt < max(strategy.Attempts, 1) {
		var done bool
		done, err = h.markLocked(ctx, ev)
		if done {
			return
		}

		attempt++
		if errors.Is(err, lock.ErrLocked) {
			log.Debug().Int("attempt", attempt).Msg("notification locked, waiting to reconcile")
		} else {
			log.Warn().Err(err).Int("attempt", attempt).Int("attempts", strategy.Attempts).Msg("failed to reconcile reminder")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(currentDelay):
		}
		currentDelay = time.Duration(float64(currentDelay) * strategy.Backoff)
	}

	log.Error().Err(err).Bool("reconcile", true).Msg("reminder still unmarked after reconcile attempts")

	if h.alerter != nil {
		text := fmt.Sprintf(
			"Reminder %s for %s (%s) was delivered at %s and still cannot be marked as sent: %v. It may be sent again.",
			ev.NotificationID, ev.CustomerName, ev.PhoneNumber, ev.SentAt.Format(time.RFC3339), err,
		)
		if aerr := h.alerter.Alert(ctx, text); aerr != nil {
			log.Error().Err(aerr).Msg("failed to alert operators")
		}
	}
}

// markLocked makes one mark attempt. done reports that nothing is left to do.
func (h *Handler) markLocked(ctx context.Context, ev queue.ReminderEvent) (done bool, err error) {
	log := zlog.Logger.With().Str("id", ev.NotificationID).Logger()

	unlocker, err := h.locker.TryLock(ctx, ev.NotificationID)
	if err != nil {
		return false, err
	}
	defer func() {
		if uerr := unlocker.Unlock(context.WithoutCancel(ctx)); uerr != nil {
			log.Warn().Err(uerr).Msg("failed to release notification lock")
		}
	}()

	err = h.store.MarkReminderSent(ctx, ev.NotificationID, ev.SentAt)
	switch {
	case err == nil:
		log.Info().Time("sent_at", ev.SentAt).Msg("reminder reconciled")
		return true, nil
	case errors.Is(err, repository.ErrReminderAlreadySent):
		log.Info().Msg("reminder already marked, nothing to reconcile")
		return true, nil
	case errors.Is(err, repository.ErrNotificationNotFound):
		log.Warn().Msg("notification deleted, nothing to reconcile")
		return true, nil
	}

	return false, err
}
