package reconcile

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/retry"

	"github.com/aliskhannn/shipping-reminder/internal/lock"
	mocks "github.com/aliskhannn/shipping-reminder/internal/mocks/rabbitmq/handlers/reconcile"
	"github.com/aliskhannn/shipping-reminder/internal/rabbitmq/queue"
	"github.com/aliskhannn/shipping-reminder/internal/repository"
)

var event = queue.ReminderEvent{
	NotificationID: "n1",
	CustomerName:   "Ali",
	PhoneNumber:    "+966500000000",
	SentAt:         time.Date(2025, 3, 2, 11, 0, 0, 0, time.UTC),
	Error:          "disk full",
}

func TestHandler_HandleEvent_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockStore := mocks.NewMocknotificationStore(ctrl)
	h := NewHandler(mockStore, lock.NewMemoryLocker(), nil)

	strategy := retry.Strategy{Attempts: 3, Delay: time.Millisecond, Backoff: 1}

	mockStore.EXPECT().MarkReminderSent(gomock.Any(), "n1", event.SentAt).Return(nil)

	h.HandleEvent(context.Background(), event, strategy)
}

func TestHandler_HandleEvent_AlreadyResolved(t *testing.T) {
	for _, resolved := range []error{repository.ErrReminderAlreadySent, repository.ErrNotificationNotFound} {
		t.Run(resolved.Error(), func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			mockStore := mocks.NewMocknotificationStore(ctrl)
			mockAlerter := mocks.NewMockalerter(ctrl)
			h := NewHandler(mockStore, lock.NewMemoryLocker(), mockAlerter)

			strategy := retry.Strategy{Attempts: 3, Delay: time.Millisecond, Backoff: 1}

			mockStore.EXPECT().MarkReminderSent(gomock.Any(), "n1", event.SentAt).Return(resolved).Times(1)

			h.HandleEvent(context.Background(), event, strategy)
		})
	}
}

func TestHandler_HandleEvent_RetriesThenSucceeds(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockStore := mocks.NewMocknotificationStore(ctrl)
	h := NewHandler(mockStore, lock.NewMemoryLocker(), nil)

	strategy := retry.Strategy{Attempts: 3, Delay: time.Millisecond, Backoff: 2}

	gomock.InOrder(
		mockStore.EXPECT().MarkReminderSent(gomock.Any(), "n1", event.SentAt).Return(errors.New("disk full")),
		mockStore.EXPECT().MarkReminderSent(gomock.Any(), "n1", event.SentAt).Return(nil),
	)

	h.HandleEvent(context.Background(), event, strategy)
}

func TestHandler_HandleEvent_GivesUpAndAlerts(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockStore := mocks.NewMocknotificationStore(ctrl)
	mockAlerter := mocks.NewMockalerter(ctrl)
	h := NewHandler(mockStore, lock.NewMemoryLocker(), mockAlerter)

	strategy := retry.Strategy{Attempts: 2, Delay: time.Millisecond, Backoff: 1}

	mockStore.EXPECT().MarkReminderSent(gomock.Any(), "n1", event.SentAt).Return(errors.New("disk full")).Times(2)
	mockAlerter.EXPECT().Alert(gomock.Any(), gomock.Any()).Return(nil)

	h.HandleEvent(context.Background(), event, strategy)
}

func TestHandler_HandleEvent_WaitsForHeldLock(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	locker := lock.NewMemoryLocker()
	held, err := locker.TryLock(context.Background(), "n1")
	require.NoError(t, err)

	var released atomic.Bool
	mockStore := mocks.NewMocknotificationStore(ctrl)
	mockStore.EXPECT().MarkReminderSent(gomock.Any(), "n1", event.SentAt).DoAndReturn(
		func(context.Context, string, time.Time) error {
			assert.True(t, released.Load(), "mark attempted while the lock was held")
			return nil
		},
	).Times(1)

	h := NewHandler(mockStore, locker, nil)
	strategy := retry.Strategy{Attempts: 500, Delay: 2 * time.Millisecond, Backoff: 1}

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.HandleEvent(context.Background(), event, strategy)
	}()

	time.Sleep(30 * time.Millisecond)
	released.Store(true)
	require.NoError(t, held.Unlock(context.Background()))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("HandleEvent did not finish after the lock was released")
	}

	_, err = locker.TryLock(context.Background(), "n1")
	assert.NoError(t, err, "lock must be released after reconciling")
}

func TestHandler_HandleEvent_LockNeverFreesAlerts(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	locker := lock.NewMemoryLocker()
	_, err := locker.TryLock(context.Background(), "n1")
	require.NoError(t, err)

	mockStore := mocks.NewMocknotificationStore(ctrl)
	mockAlerter := mocks.NewMockalerter(ctrl)
	h := NewHandler(mockStore, locker, mockAlerter)

	strategy := retry.Strategy{Attempts: 3, Delay: time.Millisecond, Backoff: 1}

	mockStore.EXPECT().MarkReminderSent(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
	mockAlerter.EXPECT().Alert(gomock.Any(), gomock.Any()).Return(nil)

	h.HandleEvent(context.Background(), event, strategy)
}

func TestHandler_HandleEvent_LockBackendError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockStore := mocks.NewMocknotificationStore(ctrl)
	mockLocker := mocks.NewMocklocker(ctrl)
	h := NewHandler(mockStore, mockLocker, nil)

	strategy := retry.Strategy{Attempts: 2, Delay: time.Millisecond, Backoff: 1}

	mockLocker.EXPECT().TryLock(gomock.Any(), "n1").Return(nil, errors.New("redis down")).Times(2)
	mockStore.EXPECT().MarkReminderSent(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	h.HandleEvent(context.Background(), event, strategy)
}
