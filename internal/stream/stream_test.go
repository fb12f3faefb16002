package stream

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

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

func sampleEvent() PhaseEvent {
	return PhaseEvent{
		RunID:        "run-1",
		Phase:        PhaseUniverse,
		AsOf:         time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		SurvivorsIn:  120,
		SurvivorsOut: 97,
		Exclusions:   map[string]int{"earnings_window": 23},
		FailedOpen:   []string{"ZZZ"},
		Duration:     1500 * time.Millisecond,
	}
}

func TestKafkaSink_PublishesKeyedJSON(t *testing.T) {
	w := &fakeWriter{}
	sink := NewKafkaSinkWithWriter(w, "gammafunnel.phases")

	require.NoError(t, sink.Emit(context.Background(), sampleEvent()))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "run-1", string(w.msgs[0].Key))
	assert.Equal(t, "phase", w.msgs[0].Headers[0].Key)

	var got PhaseEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, 97, got.SurvivorsOut)
	assert.Equal(t, 23, got.Exclusions["earnings_window"])

	require.NoError(t, sink.Close())
	assert.True(t, w.closed)
}

func TestNewKafkaSink_RequiresBrokers(t *testing.T) {
	_, err := NewKafkaSink(nil, "topic")
	assert.Error(t, err)
}

func TestMulti_SwallowsSinkFailures(t *testing.T) {
	rec := &Recorder{}
	broken := NewKafkaSinkWithWriter(&fakeWriter{err: errors.New("broker down")}, "t")
	m := Multi{broken, LogSink{}, rec}

	assert.NoError(t, m.Emit(context.Background(), sampleEvent()))
	require.Len(t, rec.Events(), 1)
	assert.Equal(t, PhaseUniverse, rec.Events()[0].Phase)
	assert.NoError(t, m.Close())
}
