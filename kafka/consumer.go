package kafka

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"agro-payment-svc/database"
	"agro-payment-svc/middleware"
	"agro-payment-svc/models"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

func InitConsumer(broker string, logger *zap.Logger) (sarama.Consumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Return.Errors = true
	config.Consumer.Retry.Backoff = 1 * time.Second

	consumer, err := sarama.NewConsumer([]string{broker}, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka consumer: %w", err)
	}

	logger.Info("Kafka consumer initialized")
	return consumer, nil
}

// StartConsumer copies payment events into the payments ledger until ctx
// is cancelled. Every partition of topic is read from its oldest retained
// offset; the ledger ignores events it already holds.
func StartConsumer(ctx context.Context, consumer sarama.Consumer, db *sql.DB, topic string, logger *zap.Logger) error {
	partitions, err := consumer.Partitions(topic)
	if err != nil {
		return fmt.Errorf("failed to list partitions: %w", err)
	}
	if len(partitions) == 0 {
		return fmt.Errorf("topic %s has no partitions", topic)
	}

	partitionConsumers := make([]sarama.PartitionConsumer, 0, len(partitions))
	for _, partition := range partitions {
		pc, err := consumer.ConsumePartition(topic, partition, sarama.OffsetOldest)
		if err != nil {
			for _, opened := range partitionConsumers {
				opened.Close()
			}
			return fmt.Errorf("failed to consume partition %d: %w", partition, err)
		}
		partitionConsumers = append(partitionConsumers, pc)
	}

	logger.Info("Kafka consumer started", zap.String("topic", topic), zap.Int("partitions", len(partitions)))

	var wg sync.WaitGroup
	for i, pc := range partitionConsumers {
		wg.Add(1)
		go func(partition int32, pc sarama.PartitionConsumer) {
			defer wg.Done()
			defer pc.Close()
			consumePartition(ctx, pc, db, logger.With(zap.Int32("partition", partition)))
		}(partitions[i], pc)
	}
	wg.Wait()

	logger.Info("Kafka consumer stopped", zap.String("topic", topic))
	return nil
}

func consumePartition(ctx context.Context, pc sarama.PartitionConsumer, db *sql.DB, logger *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case message, ok := <-pc.Messages():
			if !ok {
				return
			}
			if err := handleMessage(message, db, logger); err != nil {
				logger.Error("Failed to handle message", zap.Int64("offset", message.Offset), zap.Error(err))
			}
		case err, ok := <-pc.Errors():
			if !ok {
				return
			}
			logger.Error("Kafka consumer error", zap.Error(err))
		}
	}
}

func handleMessage(message *sarama.ConsumerMessage, db *sql.DB, logger *zap.Logger) error {
	carrier := saramaHeaderCarrierConsumer(message.Headers)
	ctx := otel.GetTextMapPropagator().Extract(context.Background(), carrier)

	ctx, span := otel.Tracer("payment-service").Start(ctx, "RecordPaymentEvent")
	defer span.End()

	var event models.PaymentEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		span.RecordError(err)
		logger.Warn("Skipping malformed payment event", zap.Int64("offset", message.Offset), zap.Error(err))
		return nil
	}

	switch event.EventType {
	case models.EventPaymentVerified, models.EventPaymentCaptured, models.EventPaymentFailed:
	default:
		logger.Debug("Unknown event type", zap.String("event_type", event.EventType))
		return nil
	}
	if event.OrderID == "" {
		logger.Warn("Skipping payment event without order id", zap.String("event_type", event.EventType))
		return nil
	}

	span.SetAttributes(
		attribute.String("event.type", event.EventType),
		attribute.String("order.id", event.OrderID),
		attribute.String("payment.id", event.PaymentID),
	)

	inserted, err := database.RecordPaymentEvent(ctx, db, event)
	if err != nil {
		span.RecordError(err)
		return err
	}

	traceID := middleware.GetTraceID(ctx)
	if !inserted {
		logger.Debug("Payment event already recorded",
			zap.String("trace_id", traceID),
			zap.String("order_id", event.OrderID),
			zap.String("event_type", event.EventType),
		)
		return nil
	}

	logger.Info("Payment event recorded",
		zap.String("trace_id", traceID),
		zap.String("order_id", event.OrderID),
		zap.String("user_id", event.UserID),
		zap.String("event_type", event.EventType),
		zap.String("source", event.Source),
		zap.Int64("amount", event.Amount),
	)
	return nil
}

type saramaHeaderCarrierConsumer []*sarama.RecordHeader

func (c saramaHeaderCarrierConsumer) Get(key string) string {
	for _, h := range c {
		if string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c saramaHeaderCarrierConsumer) Set(key, value string) {}

func (c saramaHeaderCarrierConsumer) Keys() []string {
	keys := make([]string, len(c))
	for i, h := range c {
		keys[i] = string(h.Key)
	}
	return keys
}
