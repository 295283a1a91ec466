package producer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresBrokers(t *testing.T) {
	_, err := New(Config{Brokers: []string{" ", ""}}, nil)
	require.Error(t, err)
}

func TestToRecordCopiesHeaders(t *testing.T) {
	rec := toRecord(&Message{
		Topic:   "identity.events",
		Key:     []byte("k"),
		Value:   []byte("v"),
		Headers: map[string]string{"event_type": "identity.cleared"},
	})
	assert.Equal(t, "identity.events", rec.Topic)
	require.Len(t, rec.Headers, 1)
	assert.Equal(t, "event_type", rec.Headers[0].Key)
	assert.Equal(t, []byte("identity.cleared"), rec.Headers[0].Value)
}

func TestNoopProducer(t *testing.T) {
	p := NewNoopProducer()
	assert.NoError(t, p.Produce(context.Background(), &Message{Topic: "x"}))
	assert.NoError(t, p.Ping(context.Background()))
	assert.NoError(t, p.Close())
}
