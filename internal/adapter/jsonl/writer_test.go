package jsonl

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/agri-data-etl/internal/domain"
)

func testBatch() domain.MergedBatch {
	return domain.MergedBatch{
		RunID:       "run-1",
		ProcessedAt: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC),
		Records: []domain.MergedRecord{
			{
				FieldID:      "f1",
				Crop:         "tea",
				Measurements: map[string]domain.Value{"Rainfall": domain.Present(500)},
				Units:        map[string]string{"Rainfall": "mm"},
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

func TestWriter_LoadBatch(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.LoadBatch(context.Background(), testBatch()))
	require.NoError(t, w.Close())

	scanner := bufio.NewScanner(&buf)
	var got []line
	for scanner.Scan() {
		var l line
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &l))
		got = append(got, l)
	}
	require.Len(t, got, 2)

	assert.Equal(t, "run-1", got[0].RunID)
	assert.Equal(t, "f1", got[0].FieldID)
	assert.True(t, got[0].Matched)
	f, ok := got[0].Weather["temperature"].Get()
	assert.True(t, ok)
	assert.InDelta(t, 25, f, 1e-9)

	assert.True(t, got[1].Weather["temperature"].IsAbsent())
	assert.True(t, got[1].Measurements["Rainfall"].IsAbsent())
}

func TestWriter_LoadBatch_CancelledContext(t *testing.T) {
	var buf bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.Error(t, NewWriter(&buf).LoadBatch(ctx, testBatch()))
	assert.Zero(t, buf.Len())
}

func TestCreate_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "merged.jsonl")
	w, err := Create(path)
	require.NoError(t, err)

	require.NoError(t, w.LoadBatch(context.Background(), testBatch()))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, bytes.Count(data, []byte("\n")))
	assert.Contains(t, string(data), `"processed_at":"2024-03-01T08:00:00Z"`)
}
