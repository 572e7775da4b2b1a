package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/hotspot-etl-service/internal/config"
	"github.com/couchcryptid/hotspot-etl-service/internal/domain"
)

// publishTimeout bounds a single event write so a broker outage cannot
// hold up the fetch loop.
const publishTimeout = 5 * time.Second

// Writer produces cycle events to a Kafka topic.
// It implements pipeline.EventPublisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured events topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.EventsKafkaBrokers...),
		Topic:        cfg.EventsKafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
	return &Writer{writer: w, logger: logger}
}

// Publish writes one cycle event. Events are keyed by destination so all
// events for one artifact land on the same partition, in order.
func (w *Writer) Publish(ctx context.Context, event domain.CycleEvent) error {
	msg, err := serializeToMessage(event)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return w.writer.WriteMessages(ctx, msg)
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a CycleEvent into a Kafka message.
func serializeToMessage(event domain.CycleEvent) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize cycle event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.Destination),
		Value: data,
		Time:  event.StartedAt,
		Headers: []kafkago.Header{
			{Key: "outcome", Value: []byte(event.Outcome)},
			{Key: "stage", Value: []byte(event.Stage)},
			{Key: "cycle_id", Value: []byte(event.ID)},
		},
	}, nil
}
