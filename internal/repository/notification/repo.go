package notification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/wb-go/wbf/dbpg"

	"github.com/aliskhannn/shipping-reminder/internal/model"
	"github.com/aliskhannn/shipping-reminder/internal/repository"
)

// Repository provides methods to interact with the notifications table in PostgreSQL.
type Repository struct {
	db *dbpg.DB
}

// NewRepository creates a new notification repository.
func NewRepository(db *dbpg.DB) *Repository {
	return &Repository{db: db}
}

// CreateNotification inserts a new notification into the database.
func (r *Repository) CreateNotification(ctx context.Context, n model.Notification) error {
	query := `
		INSERT INTO notifications (
		    id, customer_name, phone_number, image_url, created_at, reminder_hours
		) VALUES ($1, $2, $3, $4, $5, $6);
    `

	_, err := r.db.ExecContext(
		ctx, query, n.ID, n.CustomerName, n.PhoneNumber, n.ImageURL, n.CreatedAt, n.ReminderHours,
	)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	return nil
}

// Get retrieves a notification by its ID. It reads from the master so the
// re-check before a send never sees replica lag.
func (r *Repository) Get(ctx context.Context, id string) (model.Notification, error) {
	query := `
		SELECT id, customer_name, phone_number, image_url, created_at,
		       reminder_hours, reminder_sent, reminder_sent_at
		FROM notifications
		WHERE id = $1;
    `

	n, err := scanNotification(r.db.Master.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Notification{}, repository.ErrNotificationNotFound
		}

		return model.Notification{}, fmt.Errorf("failed to get notification: %w", err)
	}

	return n, nil
}

// ListAll retrieves all notifications ordered by creation time.
func (r *Repository) ListAll(ctx context.Context) ([]model.Notification, error) {
	query := `
		SELECT id, customer_name, phone_number, image_url, created_at,
		       reminder_hours, reminder_sent, reminder_sent_at
		FROM notifications
		ORDER BY created_at;
    `

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	notifications := make([]model.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}

		notifications = append(notifications, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}

	return notifications, nil
}

// MarkReminderSent sets reminder_sent and reminder_sent_at in one statement.
//
// The update only applies to a notification that is not marked yet, so an
// earlier mark is never overwritten.
func (r *Repository) MarkReminderSent(ctx context.Context, id string, sentAt time.Time) error {
	query := `
		UPDATE notifications
		SET reminder_sent = TRUE, reminder_sent_at = $1
		WHERE id = $2 AND reminder_sent = FALSE;
    `

	res, err := r.db.ExecContext(ctx, query, sentAt, id)
	if err != nil {
		return fmt.Errorf("failed to mark reminder sent: %w", err)
	}

	rows, _ := res.RowsAffected()
	if rows == 1 {
		return nil
	}

	if _, err := r.Get(ctx, id); err != nil {
		return err
	}

	return repository.ErrReminderAlreadySent
}

// DeleteNotification removes a notification by its ID.
func (r *Repository) DeleteNotification(ctx context.Context, id string) error {
	query := `
		DELETE FROM notifications
		WHERE id = $1;
    `

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete notification: %w", err)
	}

	rows, _ := res.RowsAffected()
	if rows == 0 {
		return repository.ErrNotificationNotFound
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNotification(s scanner) (model.Notification, error) {
	var (
		n      model.Notification
		sentAt sql.NullTime
	)

	err := s.Scan(
		&n.ID, &n.CustomerName, &n.PhoneNumber, &n.ImageURL, &n.CreatedAt,
		&n.ReminderHours, &n.ReminderSent, &sentAt,
	)
	if err != nil {
		return model.Notification{}, err
	}

	if sentAt.Valid {
		t := sentAt.Time
		n.ReminderSentAt = &t
	}

	return n, nil
}
