package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/rabbitmq"
	"github.com/wb-go/wbf/retry"
)

var (
	_ publisher = (*rabbitmq.Publisher)(nil)
	_ consumer  = (*rabbitmq.Consumer)(nil)
)

type published struct {
	body        []byte
	routingKey  string
	contentType string
}

type fakePublisher struct {
	got []published
	err error
}

func (f *fakePublisher) PublishWithRetry(body []byte, routingKey, contentType string, _ retry.Strategy, _ ...rabbitmq.PublishingOptions) error {
	f.got = append(f.got, published{body: body, routingKey: routingKey, contentType: contentType})
	return f.err
}

func TestReminderQueue_Publish(t *testing.T) {
	pub := &fakePublisher{}
	q := &ReminderQueue{publisher: pub}

	sentAt := time.Date(2025, 3, 2, 11, 0, 0, 0, time.UTC)
	ev := ReminderEvent{NotificationID: "n1", CustomerName: "Ali", PhoneNumber: "+966500000000", SentAt: sentAt}

	require.NoError(t, q.PublishSent(context.Background(), ev))

	ev.Error = "store down"
	require.NoError(t, q.PublishReconcile(context.Background(), ev))

	require.Len(t, pub.got, 2)
	assert.Equal(t, SentRoutingKey, pub.got[0].routingKey)
	assert.Equal(t, ReconcileRoutingKey, pub.got[1].routingKey)
	assert.Equal(t, "application/json", pub.got[0].contentType)

	var decoded ReminderEvent
	require.NoError(t, json.Unmarshal(pub.got[1].body, &decoded))
	assert.Equal(t, "n1", decoded.NotificationID)
	assert.Equal(t, "store down", decoded.Error)
	assert.True(t, sentAt.Equal(decoded.SentAt))
}

func TestReminderQueue_PublishError(t *testing.T) {
	q := &ReminderQueue{publisher: &fakePublisher{err: errors.New("channel closed")}}

	err := q.PublishSent(context.Background(), ReminderEvent{NotificationID: "n1"})
	assert.Error(t, err)
}

type fakeConsumer struct {
	messages [][]byte
}

func (f *fakeConsumer) ConsumeWithRetry(out chan []byte, _ retry.Strategy) error {
	for _, m := range f.messages {
		out <- m
	}
	close(out)
	return nil
}

func TestReminderQueue_ConsumeReconcile(t *testing.T) {
	body, err := json.Marshal(ReminderEvent{NotificationID: "n1", Error: "disk full"})
	require.NoError(t, err)

	q := &ReminderQueue{consumer: &fakeConsumer{messages: [][]byte{[]byte("{broken"), body}}}

	out := make(chan ReminderEvent, 2)
	require.NoError(t, q.ConsumeReconcile(out))

	select {
	case ev := <-out:
		assert.Equal(t, "n1", ev.NotificationID)
		assert.Equal(t, "disk full", ev.Error)
	case <-time.After(time.Second):
		t.Fatal("event was not delivered")
	}
}
