package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/agri-data-etl/internal/domain"
)

type fakeWriter struct {
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func testBatch() domain.MergedBatch {
	now := time.Date(2024, 4, 26, 15, 10, 0, 0, time.UTC)
	return domain.MergedBatch{
		RunID:       "run-1",
		ProcessedAt: now,
		Records: []domain.MergedRecord{
			{
				FieldID:      "f1",
				Crop:         "tea",
				Measurements: map[string]domain.Value{"Rainfall": domain.Present(500)},
				StationID:    "ws1",
				Weather:      map[string]domain.Value{"temperature": domain.Present(25)},
				Matched:      true,
				Observations: 2,
			},
			{
				FieldID:      "f7",
				Crop:         "unknown",
				Measurements: map[string]domain.Value{"Rainfall": domain.Absent()},
				Weather:      map[string]domain.Value{"temperature": domain.Absent()},
			},
		},
	}
}

func testWriter(fw *fakeWriter) *Writer {
	return &Writer{writer: fw, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestSerializeToMessage(t *testing.T) {
	batch := testBatch()

	msg, err := serializeToMessage(batch, batch.Records[0])
	require.NoError(t, err)

	assert.Equal(t, []byte("f1"), msg.Key)
	assert.Contains(t, string(msg.Value), `"station_id":"ws1"`)
	assert.Contains(t, string(msg.Value), `"temperature":25`)
	require.Len(t, msg.Headers, 3)
	assert.Equal(t, HeaderRunID, msg.Headers[0].Key)
	assert.Equal(t, []byte("run-1"), msg.Headers[0].Value)
	assert.Equal(t, HeaderMatched, msg.Headers[1].Key)
	assert.Equal(t, []byte("true"), msg.Headers[1].Value)
	assert.Equal(t, HeaderProcessedAt, msg.Headers[2].Key)
	assert.Equal(t, []byte(batch.ProcessedAt.Format(time.RFC3339)), msg.Headers[2].Value)
}

func TestSerializeToMessage_AbsentIsNull(t *testing.T) {
	batch := testBatch()

	msg, err := serializeToMessage(batch, batch.Records[1])
	require.NoError(t, err)
	assert.Contains(t, string(msg.Value), `"temperature":null`)
	assert.Contains(t, string(msg.Value), `"matched":false`)
	assert.Equal(t, []byte("false"), msg.Headers[1].Value)
}

func TestWriter_LoadBatch(t *testing.T) {
	fw := &fakeWriter{}
	w := testWriter(fw)

	require.NoError(t, w.LoadBatch(context.Background(), testBatch()))
	require.Len(t, fw.msgs, 2)
	assert.Equal(t, []byte("f7"), fw.msgs[1].Key)

	require.NoError(t, w.Close())
	assert.True(t, fw.closed)
}

func TestWriter_LoadBatch_Empty(t *testing.T) {
	fw := &fakeWriter{}
	require.NoError(t, testWriter(fw).LoadBatch(context.Background(), domain.MergedBatch{RunID: "run-2"}))
	assert.Empty(t, fw.msgs)
}

func TestWriter_LoadBatch_Error(t *testing.T) {
	fw := &fakeWriter{err: errors.New("leader not available")}

	err := testWriter(fw).LoadBatch(context.Background(), testBatch())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leader not available")
}
