// Package sqlite is the single-host notification store used when the bot runs
// without PostgreSQL.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/aliskhannn/shipping-reminder/internal/model"
	"github.com/aliskhannn/shipping-reminder/internal/repository"
)

// Repository stores notifications in an embedded SQLite database.
type Repository struct {
	db *sql.DB
}

// Open opens (and migrates) the database at path. ":memory:" is accepted for tests.
func Open(path string) (*Repository, error) {
	dsn := "file::memory:?_pragma=busy_timeout(5000)"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, err
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// One writer at a time; also keeps a :memory: database on a single connection.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	r := &Repository{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return r, nil
}

// Close closes the underlying database.
func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS notifications (
			id TEXT PRIMARY KEY,
			customer_name TEXT NOT NULL,
			phone_number TEXT NOT NULL,
			image_url TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			reminder_hours REAL NOT NULL DEFAULT 0,
			reminder_sent INTEGER NOT NULL DEFAULT 0,
			reminder_sent_at INTEGER
		);`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_pending ON notifications(reminder_sent, created_at);`,
	}
	for _, s := range stmts {
		if _, err := r.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	return nil
}

// CreateNotification inserts n.
func (r *Repository) CreateNotification(ctx context.Context, n model.Notification) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO notifications(id,customer_name,phone_number,image_url,created_at,reminder_hours) VALUES(?,?,?,?,?,?)`,
		n.ID, n.CustomerName, n.PhoneNumber, n.ImageURL, n.CreatedAt.UnixNano(), n.ReminderHours)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	return nil
}

// Get returns the notification with the given id.
func (r *Repository) Get(ctx context.Context, id string) (model.Notification, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id,customer_name,phone_number,image_url,created_at,reminder_hours,reminder_sent,reminder_sent_at
		 FROM notifications WHERE id=?`, id)

	n, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Notification{}, repository.ErrNotificationNotFound
	}
	if err != nil {
		return model.Notification{}, fmt.Errorf("failed to get notification: %w", err)
	}

	return n, nil
}

// ListAll returns every notification ordered by creation time.
func (r *Repository) ListAll(ctx context.Context) ([]model.Notification, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id,customer_name,phone_number,image_url,created_at,reminder_hours,reminder_sent,reminder_sent_at
		 FROM notifications ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	out := make([]model.Notification, 0)
	for rows.Next() {
		n, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		out = append(out, n)
	}

	return out, rows.Err()
}

// MarkReminderSent flips reminder_sent and stores sentAt, only if not already marked.
func (r *Repository) MarkReminderSent(ctx context.Context, id string, sentAt time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET reminder_sent=1, reminder_sent_at=? WHERE id=? AND reminder_sent=0`,
		sentAt.UnixNano(), id)
	if err != nil {
		return fmt.Errorf("failed to mark reminder sent: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}

	return repository.ErrReminderAlreadySent
}

// DeleteNotification removes a notification.
func (r *Repository) DeleteNotification(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete notification: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotificationNotFound
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (model.Notification, error) {
	var (
		n       model.Notification
		created int64
		sent    int
		sentAt  sql.NullInt64
	)
	if err := s.Scan(&n.ID, &n.CustomerName, &n.PhoneNumber, &n.ImageURL, &created, &n.ReminderHours, &sent, &sentAt); err != nil {
		return model.Notification{}, err
	}

	n.CreatedAt = time.Unix(0, created).UTC()
	n.ReminderSent = sent == 1
	if sentAt.Valid {
		t := time.Unix(0, sentAt.Int64).UTC()
		n.ReminderSentAt = &t
	}

	return n, nil
}
