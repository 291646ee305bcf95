package reminder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/retry"

	"github.com/aliskhannn/shipping-reminder/internal/lock"
	mocks "github.com/aliskhannn/shipping-reminder/internal/mocks/service/reminder"
	"github.com/aliskhannn/shipping-reminder/internal/model"
	"github.com/aliskhannn/shipping-reminder/internal/rabbitmq/handlers/reconcile"
	"github.com/aliskhannn/shipping-reminder/internal/rabbitmq/queue"
	"github.com/aliskhannn/shipping-reminder/internal/repository"
)

var baseTime = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

// memStore is an in-memory store with the same conditional mark semantics as
// the real backends. It counts successful marks per id.
type memStore struct {
	mu      sync.Mutex
	items   map[string]model.Notification
	marks   map[string]int
	listErr error
	markErr error
}

func newMemStore(ns ...model.Notification) *memStore {
	s := &memStore{items: map[string]model.Notification{}, marks: map[string]int{}}
	for _, n := range ns {
		s.items[n.ID] = n
	}
	return s
}

func (s *memStore) ListAll(context.Context) ([]model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]model.Notification, 0, len(s.items))
	for _, n := range s.items {
		out = append(out, n)
	}
	return out, nil
}

func (s *memStore) Get(_ context.Context, id string) (model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.items[id]
	if !ok {
		return model.Notification{}, repository.ErrNotificationNotFound
	}
	return n, nil
}

func (s *memStore) MarkReminderSent(_ context.Context, id string, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.markErr != nil {
		return s.markErr
	}
	n, ok := s.items[id]
	if !ok {
		return repository.ErrNotificationNotFound
	}
	if n.ReminderSent {
		return repository.ErrReminderAlreadySent
	}
	n.ReminderSent = true
	n.ReminderSentAt = &sentAt
	s.items[id] = n
	s.marks[id]++
	return nil
}

func (s *memStore) get(id string) model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items[id]
}

// fakeSender records sends and fails for phones listed in fail.
type fakeSender struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]bool
	delay time.Duration
}

func newFakeSender() *fakeSender {
	return &fakeSender{calls: map[string]int{}, fail: map[string]bool{}}
}

func (f *fakeSender) Send(ctx context.Context, phone, _, _ string) error {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[phone]++
	if f.fail[phone] {
		return errors.New("provider rejected number")
	}
	return nil
}

func (f *fakeSender) count(phone string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[phone]
}

func (f *fakeSender) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

type sendFunc func(ctx context.Context, phone, text, imageURL string) error

func (f sendFunc) Send(ctx context.Context, phone, text, imageURL string) error {
	return f(ctx, phone, text, imageURL)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func notification(id string, hours float64) model.Notification {
	return model.Notification{
		ID:            id,
		CustomerName:  "Customer " + id,
		PhoneNumber:   "+9665000" + id,
		CreatedAt:     baseTime,
		ReminderHours: hours,
	}
}

func newTestService(store notificationStore, l locker, sender MessageSender, now time.Time) *Service {
	c := &clock{now: now}
	return NewService(store, l, sender, nil, nil, Options{
		Unit:        time.Hour,
		SendTimeout: time.Second,
		Workers:     4,
		Now:         c.Now,
	})
}

func TestRunDueReminders_SendsOnceAndMarks(t *testing.T) {
	store := newMemStore(notification("n1", 24))
	sender := newFakeSender()
	now := baseTime.Add(25 * time.Hour)
	svc := newTestService(store, lock.NewMemoryLocker(), sender, now)

	sent, err := svc.RunDueReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, 1, sender.count("+9665000n1"))

	n := store.get("n1")
	assert.True(t, n.ReminderSent)
	require.NotNil(t, n.ReminderSentAt)
	assert.False(t, n.ReminderSentAt.Before(now))

	sent, err = svc.RunDueReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
	assert.Equal(t, 1, sender.count("+9665000n1"))
	assert.Equal(t, 1, store.marks["n1"])
}

func TestRunDueReminders_DisabledNeverFires(t *testing.T) {
	store := newMemStore(notification("zero", 0), notification("neg", -3))
	sender := newFakeSender()
	svc := newTestService(store, lock.NewMemoryLocker(), sender, baseTime.Add(10*365*24*time.Hour))

	sent, err := svc.RunDueReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
	assert.Equal(t, 0, sender.total())
}

func TestRunDueReminders_DueBoundary(t *testing.T) {
	tests := []struct {
		name     string
		elapsed  time.Duration
		wantSent int
	}{
		{name: "one second early", elapsed: 24*time.Hour - time.Second, wantSent: 0},
		{name: "exactly due", elapsed: 24 * time.Hour, wantSent: 1},
		{name: "late", elapsed: 48 * time.Hour, wantSent: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore(notification("n1", 24))
			sender := newFakeSender()
			svc := newTestService(store, lock.NewMemoryLocker(), sender, baseTime.Add(tt.elapsed))

			sent, err := svc.RunDueReminders(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.wantSent, sent)
			assert.Equal(t, tt.wantSent, sender.total())
		})
	}
}

func TestRunDueReminders_FailureIsolation(t *testing.T) {
	store := newMemStore(notification("a", 1), notification("b", 1))
	sender := newFakeSender()
	sender.fail["+9665000a"] = true
	svc := newTestService(store, lock.NewMemoryLocker(), sender, baseTime.Add(2*time.Hour))

	sent, err := svc.RunDueReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.False(t, store.get("a").ReminderSent)
	assert.True(t, store.get("b").ReminderSent)
	assert.Equal(t, int64(1), svc.Stats().SendFailures)

	// A stays due and is retried by the next call.
	delete(sender.fail, "+9665000a")
	sent, err = svc.RunDueReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.True(t, store.get("a").ReminderSent)
	assert.Equal(t, 1, sender.count("+9665000b"))
}

func TestRunDueReminders_StoreUnavailable(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	storeMock := mocks.NewMocknotificationStore(ctrl)
	senderMock := mocks.NewMockMessageSender(ctrl)

	svc := NewService(storeMock, lock.NewMemoryLocker(), senderMock, nil, nil, Options{
		ListStrategy: retry.Strategy{Attempts: 2, Delay: time.Millisecond, Backoff: 1},
	})

	storeMock.EXPECT().ListAll(gomock.Any()).Return(nil, errors.New("disk unreadable")).Times(2)

	sent, err := svc.RunDueReminders(context.Background())
	assert.Equal(t, 0, sent)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, int64(1), svc.Stats().StoreFailures)
}

func TestRunDueReminders_LockContentionSkips(t *testing.T) {
	store := newMemStore(notification("n1", 1))
	sender := newFakeSender()
	locker := lock.NewMemoryLocker()
	svc := newTestService(store, locker, sender, baseTime.Add(2*time.Hour))

	held, err := locker.TryLock(context.Background(), "n1")
	require.NoError(t, err)

	sent, err := svc.RunDueReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
	assert.Equal(t, 0, sender.total())
	assert.Equal(t, int64(1), svc.Stats().LockContention)

	require.NoError(t, held.Unlock(context.Background()))

	sent, err = svc.RunDueReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
}

func TestRunDueReminders_StaleSnapshotRechecked(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	storeMock := mocks.NewMocknotificationStore(ctrl)
	senderMock := mocks.NewMockMessageSender(ctrl)

	stale := notification("n1", 1)
	fresh := stale
	fresh.ReminderSent = true
	sentAt := baseTime.Add(90 * time.Minute)
	fresh.ReminderSentAt = &sentAt

	svc := newTestService(storeMock, lock.NewMemoryLocker(), senderMock, baseTime.Add(2*time.Hour))

	storeMock.EXPECT().ListAll(gomock.Any()).Return([]model.Notification{stale}, nil)
	storeMock.EXPECT().Get(gomock.Any(), "n1").Return(fresh, nil)

	sent, err := svc.RunDueReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
}

func TestRunDueReminders_DisappearedNotification(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	storeMock := mocks.NewMocknotificationStore(ctrl)
	senderMock := mocks.NewMockMessageSender(ctrl)

	svc := newTestService(storeMock, lock.NewMemoryLocker(), senderMock, baseTime.Add(2*time.Hour))

	storeMock.EXPECT().ListAll(gomock.Any()).Return([]model.Notification{notification("n1", 1)}, nil)
	storeMock.EXPECT().Get(gomock.Any(), "n1").Return(model.Notification{}, repository.ErrNotificationNotFound)

	sent, err := svc.RunDueReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
	assert.Equal(t, int64(1), svc.Stats().Skipped)
}

func TestRunDueReminders_PersistFailureAfterSend(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	storeMock := mocks.NewMocknotificationStore(ctrl)
	senderMock := mocks.NewMockMessageSender(ctrl)
	eventsMock := mocks.NewMockeventPublisher(ctrl)
	alerterMock := mocks.NewMockalerter(ctrl)

	n := notification("n1", 1)
	now := baseTime.Add(2 * time.Hour)
	c := &clock{now: now}

	svc := NewService(storeMock, lock.NewMemoryLocker(), senderMock, eventsMock, alerterMock, Options{
		Now: c.Now,
	})

	storeMock.EXPECT().ListAll(gomock.Any()).Return([]model.Notification{n}, nil)
	storeMock.EXPECT().Get(gomock.Any(), "n1").Return(n, nil)
	senderMock.EXPECT().Send(gomock.Any(), n.PhoneNumber, gomock.Any(), "").Return(nil).Times(1)
	storeMock.EXPECT().MarkReminderSent(gomock.Any(), "n1", now).Return(errors.New("disk full"))
	eventsMock.EXPECT().PublishReconcile(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, ev queue.ReminderEvent) error {
			assert.Equal(t, "n1", ev.NotificationID)
			assert.Equal(t, "disk full", ev.Error)
			return nil
		},
	)
	alerterMock.EXPECT().Alert(gomock.Any(), gomock.Any()).Return(nil)

	sent, err := svc.RunDueReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
	assert.Equal(t, int64(1), svc.Stats().PersistFailures)
}

func TestRunDueReminders_MarkFindsTerminalState(t *testing.T) {
	for _, markErr := range []error{repository.ErrReminderAlreadySent, repository.ErrNotificationNotFound} {
		t.Run(markErr.Error(), func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			storeMock := mocks.NewMocknotificationStore(ctrl)
			senderMock := mocks.NewMockMessageSender(ctrl)
			eventsMock := mocks.NewMockeventPublisher(ctrl)
			alerterMock := mocks.NewMockalerter(ctrl)

			n := notification("n1", 1)
			now := baseTime.Add(2 * time.Hour)
			c := &clock{now: now}

			svc := NewService(storeMock, lock.NewMemoryLocker(), senderMock, eventsMock, alerterMock, Options{
				Now: c.Now,
			})

			storeMock.EXPECT().ListAll(gomock.Any()).Return([]model.Notification{n}, nil)
			storeMock.EXPECT().Get(gomock.Any(), "n1").Return(n, nil)
			senderMock.EXPECT().Send(gomock.Any(), n.PhoneNumber, gomock.Any(), "").Return(nil)
			storeMock.EXPECT().MarkReminderSent(gomock.Any(), "n1", now).Return(fmt.Errorf("mark: %w", markErr))
			eventsMock.EXPECT().PublishReconcile(gomock.Any(), gomock.Any()).Times(0)
			eventsMock.EXPECT().PublishSent(gomock.Any(), gomock.Any()).Times(0)
			alerterMock.EXPECT().Alert(gomock.Any(), gomock.Any()).Times(0)

			sent, err := svc.RunDueReminders(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 0, sent)

			stats := svc.Stats()
			assert.Equal(t, int64(1), stats.Skipped)
			assert.Equal(t, int64(0), stats.PersistFailures)
		})
	}
}

func TestRunDueReminders_ReconcileWaitsForSchedulerLock(t *testing.T) {
	store := newMemStore(notification("n1", 1))
	locker := lock.NewMemoryLocker()
	now := baseTime.Add(2 * time.Hour)

	// A reconcile event for n1 arrives while this pass is sending n1.
	h := reconcile.NewHandler(store, locker, nil)
	ev := queue.ReminderEvent{NotificationID: "n1", SentAt: now.Add(-time.Minute)}
	strategy := retry.Strategy{Attempts: 500, Delay: 2 * time.Millisecond, Backoff: 1}

	done := make(chan struct{})
	sender := sendFunc(func(context.Context, string, string, string) error {
		go func() {
			defer close(done)
			h.HandleEvent(context.Background(), ev, strategy)
		}()
		time.Sleep(20 * time.Millisecond)
		return nil
	})

	svc := newTestService(store, locker, sender, now)

	sent, err := svc.RunDueReminders(context.Background())
	require.NoError(t, err)
	<-done

	assert.Equal(t, 1, sent)
	assert.Equal(t, int64(0), svc.Stats().PersistFailures)
	assert.Equal(t, 1, store.marks["n1"])
	require.NotNil(t, store.get("n1").ReminderSentAt)
	assert.Equal(t, now, *store.get("n1").ReminderSentAt)
}

func TestRunDueReminders_PublishesSentEvent(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	eventsMock := mocks.NewMockeventPublisher(ctrl)
	store := newMemStore(notification("n1", 1))
	now := baseTime.Add(2 * time.Hour)
	c := &clock{now: now}

	svc := NewService(store, lock.NewMemoryLocker(), newFakeSender(), eventsMock, nil, Options{Now: c.Now})

	eventsMock.EXPECT().PublishSent(gomock.Any(), queue.ReminderEvent{
		NotificationID: "n1",
		CustomerName:   "Customer n1",
		PhoneNumber:    "+9665000n1",
		SentAt:         now,
	}).Return(errors.New("broker down"))

	sent, err := svc.RunDueReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent, "a publish failure does not undo the mark")
}

func TestRunDueReminders_SendTimeout(t *testing.T) {
	store := newMemStore(notification("n1", 1))
	sender := newFakeSender()
	sender.delay = time.Second
	c := &clock{now: baseTime.Add(2 * time.Hour)}

	svc := NewService(store, lock.NewMemoryLocker(), sender, nil, nil, Options{
		SendTimeout: 20 * time.Millisecond,
		Now:         c.Now,
	})

	start := time.Now()
	sent, err := svc.RunDueReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.False(t, store.get("n1").ReminderSent)
}

func TestRunDueReminders_ConcurrentInvokers(t *testing.T) {
	const total = 40

	ns := make([]model.Notification, 0, total)
	for i := 0; i < total; i++ {
		ns = append(ns, notification(fmt.Sprintf("%02d", i), 1))
	}
	store := newMemStore(ns...)
	sender := newFakeSender()
	sender.delay = time.Millisecond
	locker := lock.NewMemoryLocker()
	now := baseTime.Add(2 * time.Hour)

	// Two independent schedulers stand in for the bot job and a manual CLI run.
	a := newTestService(store, locker, sender, now)
	b := newTestService(store, locker, sender, now)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		count int
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(svc *Service) {
			defer wg.Done()
			sent, err := svc.RunDueReminders(context.Background())
			assert.NoError(t, err)
			mu.Lock()
			count += sent
			mu.Unlock()
		}([]*Service{a, b}[i%2])
	}
	wg.Wait()

	// Sweep anything every concurrent pass skipped due to contention.
	sent, err := a.RunDueReminders(context.Background())
	require.NoError(t, err)
	count += sent

	assert.Equal(t, total, count)
	for _, n := range ns {
		assert.Equal(t, 1, store.marks[n.ID], "marks for %s", n.ID)
		assert.Equal(t, 1, sender.count(n.PhoneNumber), "sends for %s", n.ID)
	}
}

func TestRunDueReminders_ContextCancelled(t *testing.T) {
	store := newMemStore(notification("n1", 1))
	sender := newFakeSender()
	svc := newTestService(store, lock.NewMemoryLocker(), sender, baseTime.Add(2*time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.RunDueReminders(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, sender.total())
}

func TestRender(t *testing.T) {
	tmpl, err := ParseTemplate("Hi {{.CustomerName}} ({{.Phone}}), since {{.CreatedAt.Format \"2006-01-02\"}}")
	require.NoError(t, err)

	text, err := Render(tmpl, notification("n1", 1))
	require.NoError(t, err)
	assert.Equal(t, "Hi Customer n1 (+9665000n1), since 2025-03-01", text)

	def, err := ParseTemplate("")
	require.NoError(t, err)
	text, err = Render(def, notification("n1", 1))
	require.NoError(t, err)
	assert.Contains(t, text, "Customer n1")

	_, err = ParseTemplate("{{.Broken")
	assert.Error(t, err)
}
