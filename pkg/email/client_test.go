package email

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/mail.v2"
)

type fakeDialer struct {
	sent []*mail.Message
	err  error
}

func (f *fakeDialer) DialAndSend(m ...*mail.Message) error {
	f.sent = append(f.sent, m...)
	return f.err
}

func TestClient_Alert(t *testing.T) {
	d := &fakeDialer{}
	c := newClient(d, "bot@example.com", "ops@example.com, lead@example.com ,")

	require.NoError(t, c.Alert(context.Background(), "reminder n1 not marked"))
	require.Len(t, d.sent, 1)

	m := d.sent[0]
	assert.Equal(t, []string{"bot@example.com"}, m.GetHeader("From"))
	assert.Equal(t, []string{"ops@example.com", "lead@example.com"}, m.GetHeader("To"))

	var buf bytes.Buffer
	_, err := m.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "reminder n1 not marked")
}

func TestClient_Alert_NoRecipients(t *testing.T) {
	d := &fakeDialer{}
	c := newClient(d, "bot@example.com", "")

	require.NoError(t, c.Alert(context.Background(), "ignored"))
	assert.Empty(t, d.sent)
}

func TestClient_Alert_Error(t *testing.T) {
	c := newClient(&fakeDialer{err: errors.New("connection refused")}, "bot@example.com", "ops@example.com")
	assert.Error(t, c.Alert(context.Background(), "x"))
}
