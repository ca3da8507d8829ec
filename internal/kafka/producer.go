package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/mailbox-registry/internal/events"
	"github.com/Dhoini/mailbox-registry/pkg/logger"
	"github.com/segmentio/kafka-go"
)

// DefaultTopic топик событий реестра
const DefaultTopic = "mailbox-registry.events"

const writeTimeout = 15 * time.Second

// messageWriter часть kafka.Writer, используемая продюсером
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer публикует доменные события в Kafka
type Producer struct {
	writer messageWriter
	topic  string
	log    *logger.Logger
}

var _ events.Publisher = (*Producer)(nil)

// NewProducer создает и настраивает продюсер Kafka.
func NewProducer(brokers []string, topic string, log *logger.Logger) (*Producer, error) {
	if len(brokers) == 0 {
		log.Errorw("Kafka brokers list is empty in config, cannot create producer")
		return nil, errors.New("kafka brokers are not configured")
	}
	if topic == "" {
		topic = DefaultTopic
	}

	// Topic задается в сообщении, а не во Writer
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}

	log.Infow("Kafka producer initialized", "brokers", brokers, "topic", topic)
	return newProducer(writer, topic, log), nil
}

func newProducer(w messageWriter, topic string, log *logger.Logger) *Producer {
	return &Producer{writer: w, topic: topic, log: log}
}

// Publish сериализует событие в JSON и отправляет в топик
func (p *Producer) Publish(ctx context.Context, event events.Event) error {
	message, err := p.message(event)
	if err != nil {
		p.log.Errorw("Failed to marshal event for Kafka", "error", err, "type", event.Type)
		return err
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if err := p.writer.WriteMessages(writeCtx, message); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			p.log.Errorw("Kafka write timeout exceeded", "error", err, "topic", p.topic, "type", event.Type)
			return fmt.Errorf("kafka: write timeout: %w", err)
		}
		p.log.Errorw("Failed to write message to Kafka", "error", err, "topic", p.topic, "type", event.Type)
		return fmt.Errorf("kafka: failed to write message: %w", err)
	}

	p.log.Debugw("Published event to Kafka", "topic", p.topic, "type", event.Type, "key", event.Key())
	return nil
}

func (p *Producer) message(event events.Event) (kafka.Message, error) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("kafka: failed to marshal message data: %w", err)
	}
	return kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.Key()),
		Value: value,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.Type)},
		},
	}, nil
}

// Close закрывает Kafka Writer. Вызывается при завершении работы.
func (p *Producer) Close() error {
	p.log.Infow("Closing Kafka producer writer...")
	if err := p.writer.Close(); err != nil {
		p.log.Errorw("Failed to close Kafka writer", "error", err)
		return fmt.Errorf("kafka: failed to close writer: %w", err)
	}
	p.log.Infow("Kafka producer writer closed successfully")
	return nil
}
