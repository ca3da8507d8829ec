package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Dhoini/mailbox-registry/internal/events"
	"github.com/Dhoini/mailbox-registry/pkg/logger"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *mockWriter) Close() error {
	return m.Called().Error(0)
}

func TestPublishBuildsMessage(t *testing.T) {
	w := new(mockWriter)
	p := newProducer(w, "registry", logger.NewNop())

	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	event := events.Event{
		Type:           events.SubscriptionAttached,
		CustomerID:     "c1",
		SubscriptionID: "s1",
		OccurredAt:     at,
	}

	w.On("WriteMessages", mock.Anything, mock.MatchedBy(func(msgs []kafka.Message) bool {
		if len(msgs) != 1 {
			return false
		}
		m := msgs[0]
		var decoded events.Event
		if err := json.Unmarshal(m.Value, &decoded); err != nil {
			return false
		}
		return m.Topic == "registry" &&
			string(m.Key) == "c1" &&
			m.Time.Equal(at) &&
			decoded.Type == event.Type &&
			decoded.CustomerID == event.CustomerID &&
			decoded.SubscriptionID == event.SubscriptionID &&
			decoded.OccurredAt.Equal(at)
	})).Return(nil).Once()

	require.NoError(t, p.Publish(context.Background(), event))
	w.AssertExpectations(t)
}

func TestPublishWrapsWriteError(t *testing.T) {
	w := new(mockWriter)
	p := newProducer(w, "registry", logger.NewNop())

	w.On("WriteMessages", mock.Anything, mock.Anything).Return(errors.New("broker down")).Once()

	err := p.Publish(context.Background(), events.Event{Type: events.CustomerCreated, CustomerID: "c1"})
	assert.ErrorContains(t, err, "broker down")
}

func TestMessageDefaultsTimeAndKey(t *testing.T) {
	p := newProducer(new(mockWriter), "registry", logger.NewNop())

	m, err := p.message(events.Event{Type: events.SubscriptionsCleared, Count: 3})
	require.NoError(t, err)
	assert.Equal(t, []byte(events.SubscriptionsCleared), m.Key)
	assert.False(t, m.Time.IsZero())
	assert.Equal(t, "event-type", m.Headers[0].Key)
}

func TestNewProducerRequiresBrokers(t *testing.T) {
	_, err := NewProducer(nil, "", logger.NewNop())
	assert.Error(t, err)
}

func TestFirstBroker(t *testing.T) {
	b, err := firstBroker([]string{" localhost:9092 ", "other:9092"})
	require.NoError(t, err)
	assert.Equal(t, "localhost:9092", b)

	_, err = firstBroker([]string{""})
	assert.Error(t, err)
	_, err = firstBroker([]string{"localhost"})
	assert.Error(t, err)
	_, err = firstBroker([]string{"localhost:abc"})
	assert.Error(t, err)
}
