package remoteforward

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
)

// KafkaProvider publishes events to a Kafka topic via sarama's synchronous
// producer, mirroring the teacher's kafka.go remote engine backend.
type KafkaProvider struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaProvider dials the given brokers and forwards to a fixed Kafka topic.
func NewKafkaProvider(brokers []string, topic string) (*KafkaProvider, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("remoteforward: dial kafka: %w", err)
	}
	return &KafkaProvider{producer: producer, topic: topic}, nil
}

func (p *KafkaProvider) Forward(ctx context.Context, topic string, properties map[string]any) error {
	payload, err := json.Marshal(map[string]any{"topic": topic, "properties": properties})
	if err != nil {
		return fmt.Errorf("remoteforward: encode kafka payload: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(topic),
		Value: sarama.ByteEncoder(payload),
	}
	_, _, err = p.producer.SendMessage(msg)
	return err
}

func (p *KafkaProvider) Close() error { return p.producer.Close() }
