package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/Dhoini/mailbox-registry/pkg/logger"
	kafkaGo "github.com/segmentio/kafka-go"
)

// EnsureTopic проверяет наличие топика событий и создает его при необходимости.
func EnsureTopic(ctx context.Context, brokers []string, topic string, log *logger.Logger) error {
	broker, err := firstBroker(brokers)
	if err != nil {
		log.Errorw("Invalid Kafka broker address", "error", err)
		return err
	}

	connCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	conn, err := kafkaGo.DialContext(connCtx, "tcp", broker)
	if err != nil {
		log.Errorw("Failed to connect to Kafka broker for topic creation", "broker", broker, "error", err)
		return fmt.Errorf("kafka connection failed: %w", err)
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions(topic)
	if err == nil && len(partitions) > 0 {
		log.Debugw("Topic already exists", "topic", topic, "partitions", len(partitions))
		return nil
	}

	log.Infow("Topic needs to be created", "topic", topic)
	err = conn.CreateTopics(kafkaGo.TopicConfig{
		Topic:             topic,
		NumPartitions:     3,
		ReplicationFactor: 1,
	})
	if err != nil && !errors.Is(err, kafkaGo.TopicAlreadyExists) {
		log.Errorw("Failed to create topic", "error", err, "topic", topic)
		return fmt.Errorf("kafka create topic failed: %w", err)
	}

	log.Infow("Successfully created or verified topic", "topic", topic)
	return nil
}

func firstBroker(brokers []string) (string, error) {
	if len(brokers) == 0 || strings.TrimSpace(brokers[0]) == "" {
		return "", errors.New("kafka broker address is empty")
	}
	broker := strings.TrimSpace(brokers[0])
	_, portStr, err := net.SplitHostPort(broker)
	if err != nil {
		return "", fmt.Errorf("invalid broker address %s: %w", broker, err)
	}
	if _, err := strconv.Atoi(portStr); err != nil {
		return "", fmt.Errorf("invalid broker port %s: %w", broker, err)
	}
	return broker, nil
}
