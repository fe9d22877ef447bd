package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/nwis-data-etl/internal/config"
	"github.com/couchcryptid/nwis-data-etl/internal/domain"
)

// Message header keys set on every published series event. The statistic
// header is empty for series without a statistic code.
const (
	HeaderSite      = "site"
	HeaderParameter = "parameter"
	HeaderStatistic = "statistic"
	HeaderService   = "service"
	HeaderFetchedAt = "fetched_at"
)

// messageWriter is the subset of *kafkago.Writer used by Writer.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer produces series events to a Kafka topic.
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
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// LoadBatch serializes and publishes the events in a single WriteMessages
// call. Events are keyed by site so one site's series stay on one partition.
func (w *Writer) LoadBatch(ctx context.Context, events []domain.SeriesEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(events))
	for i := range events {
		msg, err := serializeToMessage(events[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d messages: %w", len(msgs), err)
	}
	w.logger.Debug("published series events", "count", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

func serializeToMessage(event domain.SeriesEvent) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize series event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.Site),
		Value: data,
		Headers: []kafkago.Header{
			{Key: HeaderSite, Value: []byte(event.Site)},
			{Key: HeaderParameter, Value: []byte(event.Parameter)},
			{Key: HeaderStatistic, Value: []byte(event.Statistic)},
			{Key: HeaderService, Value: []byte(event.Service)},
			{Key: HeaderFetchedAt, Value: []byte(event.FetchedAt.Format(time.RFC3339))},
		},
	}, nil
}
