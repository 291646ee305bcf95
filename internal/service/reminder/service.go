package reminder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"text/template"
	"time"

	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/shipping-reminder/internal/lock"
	"github.com/aliskhannn/shipping-reminder/internal/model"
	"github.com/aliskhannn/shipping-reminder/internal/rabbitmq/queue"
	"github.com/aliskhannn/shipping-reminder/internal/repository"
)

//go:generate mockgen -source=service.go -destination=../../mocks/service/reminder/mock.go -package=mocks

// ErrStoreUnavailable is returned when the notification set cannot be read.
var ErrStoreUnavailable = errors.New("notification store unavailable")

type notificationStore interface {
	ListAll(ctx context.Context) ([]model.Notification, error)
	Get(ctx context.Context, id string) (model.Notification, error)
	MarkReminderSent(ctx context.Context, id string, sentAt time.Time) error
}

type locker interface {
	TryLock(ctx context.Context, id string) (lock.Unlocker, error)
}

// MessageSender delivers a WhatsApp message. imageURL may be empty.
type MessageSender interface {
	Send(ctx context.Context, phone, text, imageURL string) error
}

type eventPublisher interface {
	PublishSent(ctx context.Context, ev queue.ReminderEvent) error
	PublishReconcile(ctx context.Context, ev queue.ReminderEvent) error
}

type alerter interface {
	Alert(ctx context.Context, text string) error
}

// Options tune a Service. Zero values fall back to defaults.
type Options struct {
	Unit         time.Duration      // length of one reminder_hours step
	SendTimeout  time.Duration      // bound on a single send
	MarkTimeout  time.Duration      // bound on the store write after a send
	Workers      int                // candidates processed in parallel
	Template     *template.Template // reminder text
	ListStrategy retry.Strategy     // retries of the snapshot read
	Now          func() time.Time
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeLocked
	outcomeSkipped
	outcomeFailed
)

// Service finds due reminders, sends each through the MessageSender and marks
// it sent. RunDueReminders may be called concurrently from any number of
// goroutines or processes sharing the same store and locker.
type Service struct {
	store   notificationStore
	locker  locker
	sender  MessageSender
	events  eventPublisher
	alerter alerter
	opts    Options

	stats statsCounters
}

// NewService creates a reminder service. events and alerter may be nil.
func NewService(
	store notificationStore,
	locker locker,
	sender MessageSender,
	events eventPublisher,
	alerter alerter,
	opts Options,
) *Service {
	if opts.Unit <= 0 {
		opts.Unit = time.Hour
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 20 * time.Second
	}
	if opts.MarkTimeout <= 0 {
		opts.MarkTimeout = 10 * time.Second
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Template == nil {
		opts.Template = template.Must(ParseTemplate(""))
	}
	if opts.ListStrategy.Attempts <= 0 {
		opts.ListStrategy.Attempts = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		store:   store,
		locker:  locker,
		sender:  sender,
		events:  events,
		alerter: alerter,
		opts:    opts,
	}
}

// Unit returns the configured length of one reminder_hours step.
func (s *Service) Unit() time.Duration {
	return s.opts.Unit
}

// RunDueReminders sends every due reminder once and returns how many
// notifications were newly marked sent by this call.
//
// Only a failure to read the notification set aborts the call; it then
// returns 0 and an error wrapping ErrStoreUnavailable. Per-notification
// failures are logged and left for the next call.
func (s *Service) RunDueReminders(ctx context.Context) (int, error) {
	s.stats.runs.Add(1)

	var all []model.Notification
	err := retry.Do(func() error {
		var err error
		all, err = s.store.ListAll(ctx)
		return err
	}, s.opts.ListStrategy)
	if err != nil {
		s.stats.storeFailures.Add(1)
		zlog.Logger.Error().Err(err).Msg("failed to list notifications")
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	now := s.opts.Now()
	candidates := make([]model.Notification, 0)
	for _, n := range all {
		if n.IsDue(now, s.opts.Unit) {
			candidates = append(candidates, n)
		}
	}

	if len(candidates) == 0 {
		s.stats.finishRun(now, 0)
		return 0, nil
	}

	zlog.Logger.Info().Int("candidates", len(candidates)).Msg("processing due reminders")

	var (
		wg   sync.WaitGroup
		sent atomic.Int64
		jobs = make(chan model.Notification)
	)

	workers := min(s.opts.Workers, len(candidates))
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()

			for n := range jobs {
				if s.process(ctx, n) == outcomeSent {
					sent.Add(1)
				}
			}
		}()
	}

feed:
	for _, n := range candidates {
		select {
		case jobs <- n:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	count := int(sent.Load())
	s.stats.finishRun(now, count)
	zlog.Logger.Info().Int("sent", count).Int("candidates", len(candidates)).Msg("due reminders processed")

	return count, ctx.Err()
}

// process handles one candidate under its per-notification lock.
func (s *Service) process(ctx context.Context, candidate model.Notification) outcome {
	log := zlog.Logger.With().Str("id", candidate.ID).Logger()

	unlocker, err := s.locker.TryLock(ctx, candidate.ID)
	if errors.Is(err, lock.ErrLocked) {
		s.stats.lockContention.Add(1)
		log.Debug().Msg("notification locked by another worker, skipping")
		return outcomeLocked
	}
	if err != nil {
		s.stats.lockFailures.Add(1)
		log.Error().Err(err).Msg("failed to acquire notification lock")
		return outcomeFailed
	}
	defer func() {
		if err := unlocker.Unlock(context.WithoutCancel(ctx)); err != nil {
			log.Warn().Err(err).Msg("failed to release notification lock")
		}
	}()

	// The snapshot may be stale: another worker could have sent it since.
	n, err := s.store.Get(ctx, candidate.ID)
	if errors.Is(err, repository.ErrNotificationNotFound) {
		s.stats.skipped.Add(1)
		log.Info().Msg("notification disappeared before send, skipping")
		return outcomeSkipped
	}
	if err != nil {
		s.stats.storeFailures.Add(1)
		log.Error().Err(err).Msg("failed to re-read notification")
		return outcomeFailed
	}
	if !n.IsDue(s.opts.Now(), s.opts.Unit) {
		s.stats.skipped.Add(1)
		log.Debug().Bool("reminder_sent", n.ReminderSent).Msg("reminder no longer due, skipping")
		return outcomeSkipped
	}

	text, err := Render(s.opts.Template, n)
	if err != nil {
		s.stats.sendFailures.Add(1)
		log.Error().Err(err).Msg("failed to render reminder text")
		return outcomeFailed
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.opts.SendTimeout)
	err = s.sender.Send(sendCtx, n.PhoneNumber, text, n.ImageURL)
	cancel()
	if err != nil {
		s.stats.sendFailures.Add(1)
		log.Warn().Err(err).Str("phone", n.PhoneNumber).Msg("failed to send reminder, will retry on next run")
		return outcomeFailed
	}

	sentAt := s.opts.Now()

	// The message is out; record it even if the caller is shutting down.
	persistCtx, cancelPersist := context.WithTimeout(context.WithoutCancel(ctx), s.opts.MarkTimeout)
	defer cancelPersist()

	err = s.store.MarkReminderSent(persistCtx, n.ID, sentAt)
	switch {
	case errors.Is(err, repository.ErrReminderAlreadySent):
		s.stats.skipped.Add(1)
		log.Warn().Time("sent_at", sentAt).Msg("reminder was marked by someone else during send")
		return outcomeSkipped
	case errors.Is(err, repository.ErrNotificationNotFound):
		s.stats.skipped.Add(1)
		log.Warn().Time("sent_at", sentAt).Msg("notification deleted during send")
		return outcomeSkipped
	case err != nil:
		s.reconcile(persistCtx, n, sentAt, err)
		return outcomeFailed
	}

	s.stats.sent.Add(1)
	log.Info().Time("sent_at", sentAt).Msg("reminder sent")

	if s.events != nil {
		if err := s.events.PublishSent(persistCtx, event(n, sentAt, nil)); err != nil {
			log.Warn().Err(err).Msg("failed to publish reminder sent event")
		}
	}

	return outcomeSent
}

// reconcile reports a reminder that reached the customer but could not be
// marked. It may be sent again on the next run until an operator fixes it.
func (s *Service) reconcile(ctx context.Context, n model.Notification, sentAt time.Time, cause error) {
	s.stats.persistFailures.Add(1)

	zlog.Logger.Error().
		Err(cause).
		Bool("reconcile", true).
		Str("id", n.ID).
		Str("phone", n.PhoneNumber).
		Time("sent_at", sentAt).
		Msg("reminder sent but not marked, risk of duplicate send")

	if s.events != nil {
		if err := s.events.PublishReconcile(ctx, event(n, sentAt, cause)); err != nil {
			zlog.Logger.Error().Err(err).Str("id", n.ID).Msg("failed to publish reconcile event")
		}
	}

	if s.alerter != nil {
		text := fmt.Sprintf(
			"Reminder for %s (%s, id %s) was delivered at %s but could not be marked as sent: %v",
			n.CustomerName, n.PhoneNumber, n.ID, sentAt.Format(time.RFC3339), cause,
		)
		if err := s.alerter.Alert(ctx, text); err != nil {
			zlog.Logger.Error().Err(err).Str("id", n.ID).Msg("failed to alert operators")
		}
	}
}

func event(n model.Notification, sentAt time.Time, cause error) queue.ReminderEvent {
	ev := queue.ReminderEvent{
		NotificationID: n.ID,
		CustomerName:   n.CustomerName,
		PhoneNumber:    n.PhoneNumber,
		SentAt:         sentAt,
	}
	if cause != nil {
		ev.Error = cause.Error()
	}

	return ev
}
