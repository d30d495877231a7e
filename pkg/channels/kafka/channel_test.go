package kafka_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkaTc "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/dukex/autoflow/pkg/channels/kafka"
	"github.com/dukex/autoflow/pkg/eventbus"
	"github.com/dukex/autoflow/pkg/events"
	"github.com/dukex/autoflow/pkg/models"
)

var logger = slog.New(slog.DiscardHandler)

func TestParseBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, kafka.ParseBrokers(" a:9092,, b:9092 ,"))
	assert.Empty(t, kafka.ParseBrokers(""))
}

func TestCreateChannel_RequiresBrokers(t *testing.T) {
	_, _, err := kafka.CreateChannel(watermill.NewSlogLogger(logger), nil, "autoflow")
	assert.ErrorIs(t, err, kafka.ErrNoBrokers)
}

func createTopic(t *testing.T, brokers []string) {
	t.Helper()

	admin, err := sarama.NewClusterAdmin(brokers, sarama.NewConfig())
	require.NoError(t, err)

	defer func() { _ = admin.Close() }()

	err = admin.CreateTopic(events.Topic, &sarama.TopicDetail{NumPartitions: 1, ReplicationFactor: 1}, false)
	if err != nil {
		require.ErrorIs(t, err, sarama.ErrTopicAlreadyExists)
	}
}

func TestKafkaEventBus_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping Kafka container test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := kafkaTc.Run(ctx, "confluentinc/confluent-local:7.7.0")
	require.NoError(t, err)

	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)

	createTopic(t, brokers)

	pub, sub, err := kafka.CreateChannel(watermill.NewSlogLogger(logger), brokers, "autoflow-test")
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(logger, pub, sub)
	t.Cleanup(func() { _ = bus.Close() })

	received := make(chan *events.WorkflowFired, 1)

	require.NoError(t, bus.Handle(events.WorkflowFiredEvent, func(_ context.Context, event any) error {
		received <- event.(*events.WorkflowFired)

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	require.NoError(t, bus.Publish(ctx, "3", events.WorkflowFired{
		BaseEvent:    events.NewBaseEvent(events.WorkflowFiredEvent, 3),
		EvaluationID: "eval-kafka",
		Name:         "Arrive home",
		Action:       models.NewWiFiToggleAction(true),
	}))

	select {
	case got := <-received:
		assert.Equal(t, uint64(3), got.WorkflowID)
		assert.Equal(t, "eval-kafka", got.EvaluationID)
		assert.Equal(t, models.ActionToggleWiFi, got.Action.Kind)
	case <-ctx.Done():
		t.Fatal("event not delivered")
	}
}
