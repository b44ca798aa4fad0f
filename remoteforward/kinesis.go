package remoteforward

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
)

// KinesisProvider publishes events to an AWS Kinesis stream, matching the
// teacher's kinesis.go remote engine backend built on aws-sdk-go-v2.
type KinesisProvider struct {
	client     *kinesis.Client
	streamName string
}

// NewKinesisProvider loads the default AWS config (environment/shared config
// chain) and targets streamName.
func NewKinesisProvider(ctx context.Context, streamName string) (*KinesisProvider, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("remoteforward: load aws config: %w", err)
	}
	return &KinesisProvider{client: kinesis.NewFromConfig(cfg), streamName: streamName}, nil
}

func (p *KinesisProvider) Forward(ctx context.Context, topic string, properties map[string]any) error {
	payload, err := json.Marshal(map[string]any{"topic": topic, "properties": properties})
	if err != nil {
		return fmt.Errorf("remoteforward: encode kinesis payload: %w", err)
	}
	_, err = p.client.PutRecord(ctx, &kinesis.PutRecordInput{
		StreamName:   aws.String(p.streamName),
		Data:         payload,
		PartitionKey: aws.String(topic),
	})
	return err
}

func (p *KinesisProvider) Close() error { return nil }
