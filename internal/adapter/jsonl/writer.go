// Package jsonl writes merged batches as JSON lines.
package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/couchcryptid/agri-data-etl/internal/domain"
)

// line is one output row: the merged record stamped with its run.
type line struct {
	RunID       string    `json:"run_id"`
	ProcessedAt time.Time `json:"processed_at"`
	domain.MergedRecord
}

// Writer appends one JSON object per merged record. It implements
// pipeline.BatchLoader and is safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	out    io.Writer
	closer io.Closer
}

// NewWriter writes to w. Close does not close w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{out: w}
}

// Create opens path for writing, truncating it, or uses stdout when path is "-".
func Create(path string) (*Writer, error) {
	if path == "-" {
		return NewWriter(os.Stdout), nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output: %w", err)
	}
	return &Writer{out: f, closer: f}, nil
}

// LoadBatch writes every record of the batch, buffered and flushed once.
func (w *Writer) LoadBatch(ctx context.Context, batch domain.MergedBatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	buf := bufio.NewWriter(w.out)
	enc := json.NewEncoder(buf)
	for _, rec := range batch.Records {
		if err := enc.Encode(line{RunID: batch.RunID, ProcessedAt: batch.ProcessedAt, MergedRecord: rec}); err != nil {
			return fmt.Errorf("encode merged record %s: %w", rec.FieldID, err)
		}
	}
	if err := buf.Flush(); err != nil {
		return fmt.Errorf("write merged records: %w", err)
	}
	return nil
}

// Close closes the underlying file when the Writer opened it.
func (w *Writer) Close() error {
	if w.closer == nil {
		return nil
	}
	return w.closer.Close()
}
