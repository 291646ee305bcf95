// Package app builds the components shared by the daemon and the CLI from
// configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/rabbitmq"
	wbfredis "github.com/wb-go/wbf/redis"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/shipping-reminder/internal/alert"
	"github.com/aliskhannn/shipping-reminder/internal/config"
	"github.com/aliskhannn/shipping-reminder/internal/lock"
	"github.com/aliskhannn/shipping-reminder/internal/model"
	"github.com/aliskhannn/shipping-reminder/internal/rabbitmq/queue"
	notifrepo "github.com/aliskhannn/shipping-reminder/internal/repository/notification"
	"github.com/aliskhannn/shipping-reminder/internal/repository/jsonfile"
	"github.com/aliskhannn/shipping-reminder/internal/repository/sqlite"
	"github.com/aliskhannn/shipping-reminder/internal/service/notification"
	"github.com/aliskhannn/shipping-reminder/internal/service/reminder"
	"github.com/aliskhannn/shipping-reminder/pkg/email"
	"github.com/aliskhannn/shipping-reminder/pkg/telegram"
	"github.com/aliskhannn/shipping-reminder/pkg/twilio"
	"github.com/aliskhannn/shipping-reminder/pkg/ultramsg"
)

// Store is the notification persistence every backend implements.
type Store interface {
	CreateNotification(ctx context.Context, n model.Notification) error
	Get(ctx context.Context, id string) (model.Notification, error)
	ListAll(ctx context.Context) ([]model.Notification, error)
	MarkReminderSent(ctx context.Context, id string, sentAt time.Time) error
	DeleteNotification(ctx context.Context, id string) error
}

// Locker hands out per-notification locks.
type Locker interface {
	TryLock(ctx context.Context, id string) (lock.Unlocker, error)
}

type eventPublisher interface {
	PublishSent(ctx context.Context, ev queue.ReminderEvent) error
	PublishReconcile(ctx context.Context, ev queue.ReminderEvent) error
}

// Options select the optional parts of an App.
type Options struct {
	Events   bool // connect to RabbitMQ when enabled in config
	Telegram bool // connect the admin bot when a token is configured
}

// App holds the wired components.
type App struct {
	Store         Store
	Locker        Locker
	Sender        reminder.MessageSender
	Alerts        *alert.Fanout
	Queue         *queue.ReminderQueue // nil unless events are enabled
	Telegram      *telegram.Client     // nil unless configured
	Reminders     *reminder.Service
	Notifications *notification.Service

	closers []func() error
}

// New connects every configured backend. On error, whatever was opened is closed.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	a := &App{}
	if err := a.init(ctx, cfg, opts); err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

func (a *App) init(ctx context.Context, cfg *config.Config, opts Options) error {
	var err error

	if a.Store, err = a.openStore(cfg); err != nil {
		return err
	}
	if a.Locker, err = a.newLocker(ctx, cfg); err != nil {
		return err
	}
	if a.Sender, err = NewSender(cfg); err != nil {
		return err
	}

	var alerters []alert.Alerter
	if opts.Telegram && cfg.Telegram.Token != "" {
		if a.Telegram, err = telegram.NewClient(cfg.Telegram.Token, cfg.Telegram.AdminIDs); err != nil {
			return err
		}
		alerters = append(alerters, a.Telegram)
	}
	if cfg.Email.SMTPHost != "" && cfg.Email.To != "" {
		alerters = append(alerters, email.NewClient(
			cfg.Email.SMTPHost, cfg.Email.SMTPPort, cfg.Email.Username, cfg.Email.Password, cfg.Email.From, cfg.Email.To,
		))
	}
	a.Alerts = alert.NewFanout(alerters...)

	var events eventPublisher
	if opts.Events && cfg.RabbitMQ.Enabled {
		if a.Queue, err = a.newQueue(cfg); err != nil {
			return err
		}
		events = a.Queue
	}

	tmpl, err := reminder.ParseTemplate(cfg.Reminder.Template)
	if err != nil {
		return fmt.Errorf("parse reminder template: %w", err)
	}

	a.Reminders = reminder.NewService(a.Store, a.Locker, a.Sender, events, a.Alerts, reminder.Options{
		Unit:         cfg.Reminder.UnitDuration(),
		SendTimeout:  cfg.Sender.Timeout,
		MarkTimeout:  cfg.Reminder.MarkTimeoutDuration(),
		Workers:      cfg.Reminder.Workers,
		Template:     tmpl,
		ListStrategy: cfg.Retry,
	})
	a.Notifications = notification.NewService(a.Store, cfg.Reminder.UnitDuration())

	return nil
}

// Close releases every connection in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			zlog.Logger.Error().Err(err).Msg("failed to close resource")
		}
	}
	a.closers = nil
}

func (a *App) openStore(cfg *config.Config) (Store, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		opts := &dbpg.Options{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		}

		slaveDSNs := make([]string, 0, len(cfg.Database.Slaves))
		for _, s := range cfg.Database.Slaves {
			slaveDSNs = append(slaveDSNs, s.DSN())
		}

		db, err := dbpg.New(cfg.Database.Master.DSN(), slaveDSNs, opts)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		a.closers = append(a.closers, func() error {
			errs := []error{db.Master.Close()}
			for _, s := range db.Slaves {
				errs = append(errs, s.Close())
			}
			return errors.Join(errs...)
		})

		return notifrepo.NewRepository(db), nil
	case "sqlite":
		repo, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		a.closers = append(a.closers, repo.Close)

		return repo, nil
	case "json":
		store, err := jsonfile.New(cfg.JSONFile.Path)
		if err != nil {
			return nil, fmt.Errorf("open json store: %w", err)
		}

		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func (a *App) newLocker(ctx context.Context, cfg *config.Config) (Locker, error) {
	switch cfg.Lock.Driver {
	case "redis":
		rdb := wbfredis.New(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.Database)
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.closers = append(a.closers, rdb.Close)

		return lock.NewRedisLocker(rdb, "reminder:lock:", cfg.Lock.TTL), nil
	case "memory":
		return lock.NewMemoryLocker(), nil
	default:
		return nil, fmt.Errorf("unknown lock driver %q", cfg.Lock.Driver)
	}
}

func (a *App) newQueue(cfg *config.Config) (*queue.ReminderQueue, error) {
	conn, err := rabbitmq.Connect(cfg.RabbitMQ.URL(), cfg.RabbitMQ.Retries, cfg.RabbitMQ.Pause)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	a.closers = append(a.closers, conn.Close)

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	a.closers = append(a.closers, ch.Close)

	q, err := queue.NewReminderQueue(ch, cfg)
	if err != nil {
		return nil, fmt.Errorf("declare reminder queues: %w", err)
	}

	return q, nil
}

// NewSender returns the WhatsApp client for the configured provider.
func NewSender(cfg *config.Config) (reminder.MessageSender, error) {
	switch cfg.Sender.Provider {
	case "ultramsg":
		if cfg.UltraMsg.InstanceID == "" || cfg.UltraMsg.Token == "" {
			return nil, errors.New("ultramsg instance id and token are required")
		}
		return ultramsg.NewClient(cfg.UltraMsg.BaseURL, cfg.UltraMsg.InstanceID, cfg.UltraMsg.Token), nil
	case "twilio":
		if cfg.Twilio.AccountSID == "" || cfg.Twilio.AuthToken == "" || cfg.Twilio.From == "" {
			return nil, errors.New("twilio account sid, auth token and sender number are required")
		}
		return twilio.NewClient(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.From), nil
	default:
		return nil, fmt.Errorf("unknown sender provider %q", cfg.Sender.Provider)
	}
}
