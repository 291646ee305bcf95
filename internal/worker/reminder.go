package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/shipping-reminder/internal/service/reminder"
)

//go:generate mockgen -source=reminder.go -destination=../mocks/worker/mock.go -package=mocks
type reminderRunner interface {
	RunDueReminders(ctx context.Context) (int, error)
}

// Reminder invokes the reminder scheduler on a cron schedule.
//
// Overlapping ticks of the same worker are skipped; overlapping runs from other
// invokers are resolved by the scheduler's per-notification locks.
type Reminder struct {
	runner   reminderRunner
	schedule string
}

// NewReminder creates a Reminder worker. schedule is a cron spec such as
// "@every 1m" or "*/5 * * * *".
func NewReminder(r reminderRunner, schedule string) *Reminder {
	return &Reminder{
		runner:   r,
		schedule: schedule,
	}
}

// Run executes one pass immediately, then one per schedule tick, until ctx is
// done. It waits for an in-flight pass before returning.
func (w *Reminder) Run(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{})))

	if _, err := c.AddFunc(w.schedule, func() { w.tick(ctx) }); err != nil {
		return fmt.Errorf("invalid reminder schedule %q: %w", w.schedule, err)
	}

	zlog.Logger.Info().Str("schedule", w.schedule).Msg("reminder worker started")

	w.tick(ctx)
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()

	zlog.Logger.Info().Msg("reminder worker stopped")

	return nil
}

func (w *Reminder) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	sent, err := w.runner.RunDueReminders(ctx)
	switch {
	case errors.Is(err, reminder.ErrStoreUnavailable):
		zlog.Logger.Error().Err(err).Msg("reminder pass aborted")
	case errors.Is(err, context.Canceled):
		zlog.Logger.Info().Int("sent", sent).Msg("reminder pass interrupted by shutdown")
	case err != nil:
		zlog.Logger.Error().Err(err).Int("sent", sent).Msg("reminder pass failed")
	case sent > 0:
		zlog.Logger.Info().Int("sent", sent).Msg("reminder pass finished")
	}
}

// cronLogger routes cron's internal messages to zlog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	zlog.Logger.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	zlog.Logger.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
