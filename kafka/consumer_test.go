package kafka

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"agro-payment-svc/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"go.uber.org/zap/zaptest"
)

func eventMessage(t *testing.T, event models.PaymentEvent) *sarama.ConsumerMessage {
	t.Helper()
	value, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("Failed to marshal event: %v", err)
	}
	return &sarama.ConsumerMessage{Topic: "payment_events", Value: value}
}

func TestHandleMessage_RecordsLedgerEntry(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}
	defer db.Close()

	event := sampleEvent()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payments")).
		WithArgs(event.OrderID, event.UserID, event.GatewayOrderID, event.PaymentID, event.Amount, event.Status, event.EventType, event.Source, event.OccurredAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := handleMessage(eventMessage(t, event), db, zaptest.NewLogger(t)); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestHandleMessage_SkipsUnusableEvents(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}
	defer db.Close()

	unknown := sampleEvent()
	unknown.EventType = "order_created"
	noOrder := sampleEvent()
	noOrder.OrderID = ""

	messages := []*sarama.ConsumerMessage{
		{Topic: "payment_events", Value: []byte("not json")},
		eventMessage(t, unknown),
		eventMessage(t, noOrder),
	}

	for _, msg := range messages {
		if err := handleMessage(msg, db, zaptest.NewLogger(t)); err != nil {
			t.Errorf("Expected message to be skipped, got %v", err)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Expected no database calls: %v", err)
	}
}

func TestStartConsumer_ReadsEveryPartition(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}
	defer db.Close()

	mock.MatchExpectationsInOrder(false)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payments")).
		WithArgs("order-a", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payments")).
		WithArgs("order-b", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	first := sampleEvent()
	first.OrderID = "order-a"
	second := sampleEvent()
	second.OrderID = "order-b"

	consumer := mocks.NewConsumer(t, nil)
	consumer.SetTopicMetadata(map[string][]int32{"payment_events": {0, 1}})
	consumer.ExpectConsumePartition("payment_events", 0, sarama.OffsetOldest).
		YieldMessage(eventMessage(t, first))
	consumer.ExpectConsumePartition("payment_events", 1, sarama.OffsetOldest).
		YieldMessage(eventMessage(t, second))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- StartConsumer(ctx, consumer, db, "payment_events", zaptest.NewLogger(t))
	}()

	deadline := time.Now().Add(2 * time.Second)
	for mock.ExpectationsWereMet() != nil && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected clean shutdown, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Consumer did not stop after cancel")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Expected events from both partitions to be recorded: %v", err)
	}
}

func TestStartConsumer_UnknownTopic(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}
	defer db.Close()

	consumer := mocks.NewConsumer(t, nil)
	consumer.SetTopicMetadata(map[string][]int32{"other_topic": {0}})

	if err := StartConsumer(context.Background(), consumer, db, "payment_events", zaptest.NewLogger(t)); err == nil {
		t.Error("Expected an error for a topic without partitions")
	}
}
