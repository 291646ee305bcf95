package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/shipping-reminder/internal/model"
	"github.com/aliskhannn/shipping-reminder/internal/repository"
)

//go:generate mockgen -source=service.go -destination=../../mocks/service/notification/mock.go -package=mocks
type notificationRepository interface {
	CreateNotification(ctx context.Context, n model.Notification) error
	Get(ctx context.Context, id string) (model.Notification, error)
	ListAll(ctx context.Context) ([]model.Notification, error)
	DeleteNotification(ctx context.Context, id string) error
}

// Service manages shipment notifications on behalf of admins.
type Service struct {
	repo notificationRepository
	unit time.Duration // reminder_hours step, used to compute states
	now  func() time.Time
}

// NewService creates a notification service. unit must match the one the
// reminder scheduler uses.
func NewService(repo notificationRepository, unit time.Duration) *Service {
	return &Service{repo: repo, unit: unit, now: time.Now}
}

// CreateNotification stores a new notification with a fresh UUID and the
// current time as created_at. Any reminder flags on n are reset.
func (s *Service) CreateNotification(ctx context.Context, n model.Notification) (string, error) {
	n.ID = uuid.NewString()
	n.CustomerName = strings.TrimSpace(n.CustomerName)
	n.PhoneNumber = strings.TrimSpace(n.PhoneNumber)
	n.CreatedAt = s.now().UTC()
	n.ReminderSent = false
	n.ReminderSentAt = nil

	if err := s.repo.CreateNotification(ctx, n); err != nil {
		return "", fmt.Errorf("create notification: %w", err)
	}

	zlog.Logger.Info().
		Str("id", n.ID).
		Float64("reminder_hours", n.ReminderHours).
		Msg("notification created")

	return n.ID, nil
}

// GetNotification returns a notification with its reminder state.
func (s *Service) GetNotification(ctx context.Context, strategy retry.Strategy, id string) (model.NotificationView, error) {
	var (
		n        model.Notification
		notFound error
	)
	err := retry.Do(func() error {
		var err error
		n, err = s.repo.Get(ctx, id)
		if errors.Is(err, repository.ErrNotificationNotFound) {
			notFound = err
			return nil
		}
		return err
	}, strategy)
	if err == nil {
		err = notFound
	}
	if err != nil {
		return model.NotificationView{}, fmt.Errorf("get notification: %w", err)
	}

	return n.View(s.now(), s.unit), nil
}

// GetAllNotifications returns every notification with its reminder state.
func (s *Service) GetAllNotifications(ctx context.Context, strategy retry.Strategy) ([]model.NotificationView, error) {
	var all []model.Notification
	err := retry.Do(func() error {
		var err error
		all, err = s.repo.ListAll(ctx)
		return err
	}, strategy)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}

	now := s.now()
	views := make([]model.NotificationView, 0, len(all))
	for _, n := range all {
		views = append(views, n.View(now, s.unit))
	}

	return views, nil
}

// DeleteNotification removes a notification. A reminder in flight for it is
// skipped by the scheduler's re-check.
func (s *Service) DeleteNotification(ctx context.Context, id string) error {
	if err := s.repo.DeleteNotification(ctx, id); err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}

	return nil
}
