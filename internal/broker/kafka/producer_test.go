package kafka

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	last []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.last = append([]kafka.Message{}, msgs...)
	return w.err
}

func (w *fakeWriter) Close() error { return nil }

func TestProducer_Publish(t *testing.T) {
	fw := &fakeWriter{}
	p := newProducerWithWriter(fw)

	require.NoError(t, p.Publish(context.Background(), "t", []byte("k"), []byte("v")))
	require.Len(t, fw.last, 1)
	require.Equal(t, "t", fw.last[0].Topic)
	require.Equal(t, []byte("k"), fw.last[0].Key)
	require.Equal(t, []byte("v"), fw.last[0].Value)
}

func TestProducer_PublishJSON(t *testing.T) {
	fw := &fakeWriter{}
	p := newProducerWithWriter(fw)

	payload := map[string]any{"item_id": 42, "status": "DELIVERED"}
	require.NoError(t, p.PublishJSON(context.Background(), "notification.intent", "42", payload))
	require.Len(t, fw.last, 1)
	require.Equal(t, []byte("42"), fw.last[0].Key)

	var got map[string]any
	require.NoError(t, json.Unmarshal(fw.last[0].Value, &got))
	require.Equal(t, "DELIVERED", got["status"])
}

func TestProducer_PublishJSON_MarshalError(t *testing.T) {
	fw := &fakeWriter{}
	p := newProducerWithWriter(fw)

	err := p.PublishJSON(context.Background(), "t", "k", func() {})
	require.Error(t, err)
	require.Empty(t, fw.last)
}
