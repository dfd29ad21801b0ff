package publish

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/kinesis"
	"github.com/aws/aws-sdk-go/service/kinesis/kinesisiface"
)

// Envelope is the record format written to the feedback events stream.
type Envelope struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// FeedbackEvent describes one recorded audience reaction.
type FeedbackEvent struct {
	SlideKey    string `json:"slideKey"`
	SlideNumber int64  `json:"slideNumber"`
	SlideTitle  string `json:"slideTitle,omitempty"`
	Category    string `json:"category"`
	Identity    string `json:"identity,omitempty"`
	Timestamp   int64  `json:"timestamp"`
}

// Publisher publishes events to a Kinesis stream.
type Publisher struct {
	client     kinesisiface.KinesisAPI
	streamName string
}

// New creates a new Publisher.
func New(client kinesisiface.KinesisAPI, streamName string) *Publisher {
	return &Publisher{
		client:     client,
		streamName: streamName,
	}
}

// Build creates a new Publisher on the given session. An empty streamName
// falls back to the standard stream name for env.
func Build(sess *session.Session, env, streamName string) *Publisher {
	if streamName == "" {
		streamName = StreamName(env)
	}
	return New(kinesis.New(sess), streamName)
}

// StreamName returns the Kinesis stream name for the given environment.
func StreamName(env string) string {
	return env + "-sundae-slides-events"
}

// FeedbackTopic returns the topic feedback events for slideKey are published on.
func FeedbackTopic(slideKey string) string {
	return "feedback:" + slideKey
}

// Send publishes an event. The topic is used as the Kinesis partition key to
// preserve ordering within a topic.
func (p *Publisher) Send(ctx context.Context, topic string, payload interface{}) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshalling payload: %w", err)
	}

	data, err := json.Marshal(Envelope{
		Topic:   topic,
		Payload: payloadBytes,
	})
	if err != nil {
		return fmt.Errorf("marshalling envelope: %w", err)
	}

	_, err = p.client.PutRecordWithContext(ctx, &kinesis.PutRecordInput{
		StreamName:   aws.String(p.streamName),
		PartitionKey: aws.String(topic),
		Data:         data,
	})
	if err != nil {
		return fmt.Errorf("publishing to kinesis stream %v: %w", p.streamName, err)
	}

	return nil
}
