package worker

import (
	"context"

	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/shipping-reminder/internal/rabbitmq/queue"
)

//go:generate mockgen -source=reconciler.go -destination=../mocks/worker/reconciler_mock.go -package=mocks
type reconcileConsumer interface {
	ConsumeReconcile(out chan<- queue.ReminderEvent) error
}

type eventHandler interface {
	HandleEvent(ctx context.Context, ev queue.ReminderEvent, strategy retry.Strategy)
}

// Reconciler drains reconcile events and hands them to the reconcile handler.
type Reconciler struct {
	queue   reconcileConsumer
	handler eventHandler
}

// NewReconciler creates a Reconciler.
func NewReconciler(q reconcileConsumer, h eventHandler) *Reconciler {
	return &Reconciler{
		queue:   q,
		handler: h,
	}
}

// Run consumes events with workerCount goroutines until ctx is done.
func (r *Reconciler) Run(ctx context.Context, strategy retry.Strategy, workerCount int) {
	events := make(chan queue.ReminderEvent)

	go func() {
		if err := r.queue.ConsumeReconcile(events); err != nil {
			zlog.Logger.Error().Err(err).Msg("failed to consume reconcile events")
		}
	}()

	for i := 0; i < workerCount; i++ {
		go func(id int) {
			zlog.Logger.Debug().Int("worker", id).Msg("reconcile worker started")

			for {
				select {
				case <-ctx.Done():
					return
				case ev := <-events:
					r.handler.HandleEvent(ctx, ev, strategy)
				}
			}
		}(i)
	}

	<-ctx.Done()
	zlog.Logger.Info().Msg("reconciler stopped")
}
