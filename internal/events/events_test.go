package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisher(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w}

	ev := New(KindMirrored, "ch0/drf_properties.yaml", 42)
	require.NotEmpty(t, ev.ID)
	require.NoError(t, p.Publish(context.Background(), ev))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "ch0/drf_properties.yaml", string(w.msgs[0].Key))

	var got Event
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, ev.ID, got.ID)
	assert.Equal(t, KindMirrored, got.Kind)
	assert.Equal(t, int64(42), got.Size)

	w.err = errors.New("broker down")
	assert.ErrorIs(t, p.Publish(context.Background(), ev), w.err)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestRecorder(t *testing.T) {
	var r Recorder
	require.NoError(t, r.Publish(context.Background(), New(KindExpired, "a", 1)))
	require.NoError(t, r.Publish(context.Background(), New(KindExpired, "b", 2)))
	evs := r.Events()
	require.Len(t, evs, 2)
	assert.Equal(t, "b", evs[1].Path)
	assert.NoError(t, Nop{}.Publish(context.Background(), evs[0]))
}
