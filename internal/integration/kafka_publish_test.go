//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	kafkaadapter "github.com/couchcryptid/hazard-data-ingest/internal/adapter/kafka"
	"github.com/couchcryptid/hazard-data-ingest/internal/domain"
)

const testTopic = "hazard-events-test"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka brings up a single-node Kafka broker and returns its address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()

	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0",
		tckafka.WithClusterID("hazard-ingest-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate kafka container: %v", err)
		}
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err, "resolve broker address")
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err, "dial broker")
	defer conn.Close() //nolint:errcheck

	require.NoError(t, conn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// TestPublisherRoundTrip verifies that published unified events arrive on the
// topic keyed by event ID with the attribution headers intact.
func TestPublisherRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)

	depth := 8.2
	events := []domain.Event{
		{
			ID:             "earthquake-deadbeef00112233",
			DataType:       domain.TypeEarthquake,
			Timestamp:      time.Date(2026, time.August, 15, 12, 0, 0, 0, time.UTC).UnixMilli(),
			Location:       domain.Geo{Lat: 36.1, Lon: -120.5},
			PrimaryValue:   6.2,
			SecondaryValue: &depth,
			Severity:       domain.SeverityHigh,
			Source:         "USGS Earthquake Hazards Program",
			Color:          "#d62828",
		},
		{
			ID:           "wildfire-cafebabe44556677",
			DataType:     domain.TypeWildfire,
			Timestamp:    time.Date(2026, time.August, 15, 5, 12, 0, 0, time.UTC).UnixMilli(),
			Location:     domain.Geo{Lat: 36.123, Lon: -120.456},
			PrimaryValue: 90,
			Severity:     domain.SeverityCritical,
			Source:       "NASA FIRMS",
		},
	}

	publisher := kafkaadapter.NewPublisher([]string{broker}, testTopic, discardLogger())
	t.Cleanup(func() { _ = publisher.Close() })

	require.NoError(t, publisher.Publish(ctx, events))

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	received := make(map[string]domain.Event, len(events))
	headers := make(map[string]map[string]string, len(events))
	for len(received) < len(events) {
		readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
		msg, err := consumer.ReadMessage(readCtx)
		readCancel()
		require.NoError(t, err, "read from topic")

		var event domain.Event
		require.NoError(t, json.Unmarshal(msg.Value, &event))
		received[string(msg.Key)] = event

		h := make(map[string]string, len(msg.Headers))
		for _, hdr := range msg.Headers {
			h[hdr.Key] = string(hdr.Value)
		}
		headers[string(msg.Key)] = h
	}

	quake, ok := received["earthquake-deadbeef00112233"]
	require.True(t, ok, "earthquake event missing from topic")
	assert.Equal(t, domain.TypeEarthquake, quake.DataType)
	assert.Equal(t, 6.2, quake.PrimaryValue)
	require.NotNil(t, quake.SecondaryValue)
	assert.Equal(t, depth, *quake.SecondaryValue)
	assert.Equal(t, "earthquake", headers["earthquake-deadbeef00112233"]["data_type"])
	assert.Equal(t, "USGS Earthquake Hazards Program", headers["earthquake-deadbeef00112233"]["source"])

	fire, ok := received["wildfire-cafebabe44556677"]
	require.True(t, ok, "wildfire event missing from topic")
	assert.Equal(t, domain.SeverityCritical, fire.Severity)
	assert.Equal(t, "wildfire", headers["wildfire-cafebabe44556677"]["data_type"])
	assert.Equal(t, "NASA FIRMS", headers["wildfire-cafebabe44556677"]["source"])
}

// TestPublisherEmptyBatch verifies a zero-event publish is a no-op that does
// not touch the broker.
func TestPublisherEmptyBatch(t *testing.T) {
	publisher := kafkaadapter.NewPublisher([]string{"localhost:1"}, testTopic, discardLogger())
	t.Cleanup(func() { _ = publisher.Close() })

	require.NoError(t, publisher.Publish(context.Background(), nil))
}
