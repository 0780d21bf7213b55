package xkafkasink

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xlogpipe/pkg/observability/xentry"
	"github.com/omeyang/xlogpipe/pkg/observability/xlevel"
	"github.com/omeyang/xlogpipe/pkg/pipeline/xbatch"
)

type mockWriter struct {
	calls  [][]kafka.Message
	err    error
	closed bool
}

func (m *mockWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if m.err != nil {
		return m.err
	}
	m.calls = append(m.calls, msgs)
	return nil
}

func (m *mockWriter) Close() error {
	m.closed = true
	return nil
}

func TestSender_Send(t *testing.T) {
	w := &mockWriter{}
	s, err := NewSender(w, "app-logs")
	require.NoError(t, err)

	ts := time.Date(2024, 2, 2, 2, 2, 2, 0, time.UTC)
	e1 := &xentry.Entry{Timestamp: ts, Level: xlevel.Error, Category: "payment", Message: "declined"}
	e2 := &xentry.Entry{Timestamp: ts, Level: xlevel.Info, Message: "tick"}
	require.NoError(t, s.Send(context.Background(), []*xentry.Entry{e1, e2}))

	require.Len(t, w.calls, 1, "一个批次一次调用")
	msgs := w.calls[0]
	require.Len(t, msgs, 2)
	assert.Equal(t, []byte("payment"), msgs[0].Key)
	assert.Nil(t, msgs[1].Key)
	assert.Equal(t, ts, msgs[0].Time)
	assert.Equal(t, []kafka.Header{{Key: "level", Value: []byte("Error")}}, msgs[0].Headers)

	var rec xentry.Record
	require.NoError(t, json.Unmarshal(msgs[0].Value, &rec))
	assert.Equal(t, "declined", rec.Message)
	assert.Equal(t, "Error", rec.Level)
}

func TestSender_Error(t *testing.T) {
	broken := errors.New("leader not available")
	s, err := NewSender(&mockWriter{err: broken}, "t")
	require.NoError(t, err)
	assert.ErrorIs(t, s.Send(context.Background(), []*xentry.Entry{xentry.New(xlevel.Info, "", "m", nil)}), broken)

	_, err = NewSender(nil, "t")
	assert.ErrorIs(t, err, ErrNilWriter)
}

func TestSink_Batches(t *testing.T) {
	ctx := context.Background()
	w := &mockWriter{}
	sink, err := New(w, "events", xbatch.WithBatchSize(4))
	require.NoError(t, err)
	assert.Equal(t, "kafka:events", sink.Name())

	for range 10 {
		require.NoError(t, sink.Write(ctx, xentry.New(xlevel.Info, "", "m", nil)))
	}
	require.NoError(t, sink.Close(ctx))

	require.Len(t, w.calls, 3)
	assert.Len(t, w.calls[2], 2)
	assert.False(t, w.closed)
}

func TestNewWriter(t *testing.T) {
	_, err := NewWriter(WriterConfig{Topic: "t"})
	assert.ErrorIs(t, err, ErrNoBrokers)

	_, err = NewWriter(WriterConfig{Brokers: []string{"b:9092"}})
	assert.ErrorIs(t, err, ErrNoTopic)

	_, err = NewWriter(WriterConfig{Brokers: []string{"b:9092"}, Topic: "t", RequiredAcks: "most"})
	assert.Error(t, err)

	_, err = NewWriter(WriterConfig{Brokers: []string{"b:9092"}, Topic: "t", Compression: "brotli"})
	assert.Error(t, err)

	w, err := NewWriter(WriterConfig{
		Brokers:      []string{"b1:9092", "b2:9092"},
		Topic:        "logs",
		RequiredAcks: "one",
		Compression:  "zstd",
		BatchTimeout: time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, "logs", w.Topic)
	assert.Equal(t, kafka.RequireOne, w.RequiredAcks)
	assert.Equal(t, kafka.Zstd, w.Compression)
	assert.Equal(t, time.Second, w.BatchTimeout)
	require.NoError(t, w.Close())
}

func TestOpen_ClosesWriter(t *testing.T) {
	sink, err := Open(WriterConfig{Brokers: []string{"127.0.0.1:1"}, Topic: "t"})
	require.NoError(t, err)
	require.NoError(t, sink.Close(context.Background()), "空缓冲关闭不连接 broker")
}
