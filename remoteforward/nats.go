package remoteforward

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NatsProvider publishes events to a NATS subject, a fourth provider alongside
// Redis, Kafka and Kinesis; unlike those three it has no teacher backend counterpart.
type NatsProvider struct {
	conn    *nats.Conn
	subject string
}

// NewNatsProvider dials url and forwards to a fixed subject.
func NewNatsProvider(url, subject string) (*NatsProvider, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("remoteforward: dial nats: %w", err)
	}
	return &NatsProvider{conn: conn, subject: subject}, nil
}

func (p *NatsProvider) Forward(ctx context.Context, topic string, properties map[string]any) error {
	payload, err := json.Marshal(map[string]any{"topic": topic, "properties": properties})
	if err != nil {
		return fmt.Errorf("remoteforward: encode nats payload: %w", err)
	}
	return p.conn.Publish(p.subject, payload)
}

func (p *NatsProvider) Close() error {
	p.conn.Close()
	return nil
}
