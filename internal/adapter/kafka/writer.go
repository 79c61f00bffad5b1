package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/agri-data-etl/internal/config"
	"github.com/couchcryptid/agri-data-etl/internal/domain"
)

// Header keys carried by every merged record message.
const (
	HeaderRunID       = "run_id"
	HeaderMatched     = "matched"
	HeaderProcessedAt = "processed_at"
)

// messageWriter is the subset of kafkago.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer produces merged records to a Kafka topic.
// It implements pipeline.BatchLoader.
type Writer struct {
	writer messageWriter
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// LoadBatch publishes one message per merged record in a single WriteMessages
// call. Records are keyed by field id so a field always lands on the same
// partition.
func (w *Writer) LoadBatch(ctx context.Context, batch domain.MergedBatch) error {
	if len(batch.Records) == 0 {
		w.logger.Info("empty batch, nothing to publish", "run_id", batch.RunID)
		return nil
	}
	msgs := make([]kafkago.Message, len(batch.Records))
	for i := range batch.Records {
		msg, err := serializeToMessage(batch, batch.Records[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish merged records: %w", err)
	}
	w.logger.Debug("merged records published", "run_id", batch.RunID, "count", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a MergedRecord into a Kafka message.
func serializeToMessage(batch domain.MergedBatch, rec domain.MergedRecord) (kafkago.Message, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize merged record %s: %w", rec.FieldID, err)
	}
	return kafkago.Message{
		Key:   []byte(rec.FieldID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: HeaderRunID, Value: []byte(batch.RunID)},
			{Key: HeaderMatched, Value: []byte(strconv.FormatBool(rec.Matched))},
			{Key: HeaderProcessedAt, Value: []byte(batch.ProcessedAt.Format(time.RFC3339))},
		},
	}, nil
}
