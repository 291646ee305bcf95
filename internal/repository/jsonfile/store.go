// Package jsonfile keeps notifications in a single JSON document on disk.
//
// Every mutation is a read-modify-write of the whole file under an exclusive
// flock on a sidecar ".lock" file, followed by an atomic rename, so several
// processes on one host can share the file.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/aliskhannn/shipping-reminder/internal/model"
	"github.com/aliskhannn/shipping-reminder/internal/repository"
)

// Store is a file-backed notification store.
type Store struct {
	path string
	mu   sync.Mutex // serialises goroutines of this process; flock handles other processes
}

// document is the on-disk layout: notifications keyed by id.
type document struct {
	Notifications map[string]model.Notification `json:"notifications"`
}

// New returns a store for path, creating its directory.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	return &Store{path: path}, nil
}

// CreateNotification adds n. An existing id is rejected.
func (s *Store) CreateNotification(_ context.Context, n model.Notification) error {
	return s.update(func(doc *document) error {
		if _, ok := doc.Notifications[n.ID]; ok {
			return fmt.Errorf("notification %s already exists", n.ID)
		}
		doc.Notifications[n.ID] = n
		return nil
	})
}

// Get returns the notification with the given id.
func (s *Store) Get(_ context.Context, id string) (model.Notification, error) {
	var (
		n  model.Notification
		ok bool
	)
	err := s.view(func(doc *document) error {
		n, ok = doc.Notifications[id]
		return nil
	})
	if err != nil {
		return model.Notification{}, err
	}
	if !ok {
		return model.Notification{}, repository.ErrNotificationNotFound
	}

	return n, nil
}

// ListAll returns every notification ordered by creation time.
func (s *Store) ListAll(_ context.Context) ([]model.Notification, error) {
	out := make([]model.Notification, 0)
	err := s.view(func(doc *document) error {
		for _, n := range doc.Notifications {
			out = append(out, n)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	return out, nil
}

// MarkReminderSent sets the flag and timestamp together in one file write.
func (s *Store) MarkReminderSent(_ context.Context, id string, sentAt time.Time) error {
	return s.update(func(doc *document) error {
		n, ok := doc.Notifications[id]
		if !ok {
			return repository.ErrNotificationNotFound
		}
		if n.ReminderSent {
			return repository.ErrReminderAlreadySent
		}

		at := sentAt
		n.ReminderSent = true
		n.ReminderSentAt = &at
		doc.Notifications[id] = n
		return nil
	})
}

// DeleteNotification removes a notification.
func (s *Store) DeleteNotification(_ context.Context, id string) error {
	return s.update(func(doc *document) error {
		if _, ok := doc.Notifications[id]; !ok {
			return repository.ErrNotificationNotFound
		}
		delete(doc.Notifications, id)
		return nil
	})
}

func (s *Store) view(fn func(doc *document) error) error {
	return s.withFileLock(unix.LOCK_SH, func() error {
		doc, err := s.read()
		if err != nil {
			return err
		}
		return fn(doc)
	})
}

func (s *Store) update(fn func(doc *document) error) error {
	return s.withFileLock(unix.LOCK_EX, func() error {
		doc, err := s.read()
		if err != nil {
			return err
		}
		if err := fn(doc); err != nil {
			return err
		}
		return s.write(doc)
	})
}

func (s *Store) withFileLock(how int, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path+".lock", os.O_CREATE|os.O_RDWR, 0o640)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	defer f.Close()

	if err := unix.Flock(int(f.Fd()), how); err != nil {
		return fmt.Errorf("flock: %w", err)
	}
	defer func() { _ = unix.Flock(int(f.Fd()), unix.LOCK_UN) }()

	return fn()
}

func (s *Store) read() (*document, error) {
	doc := &document{Notifications: map[string]model.Notification{}}

	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read notifications file: %w", err)
	}
	if len(b) == 0 {
		return doc, nil
	}

	if err := json.Unmarshal(b, doc); err != nil {
		return nil, fmt.Errorf("decode notifications file: %w", err)
	}
	if doc.Notifications == nil {
		doc.Notifications = map[string]model.Notification{}
	}

	return doc, nil
}

func (s *Store) write(doc *document) error {
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode notifications: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace notifications file: %w", err)
	}

	return nil
}
