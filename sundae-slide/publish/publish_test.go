package publish

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/kinesis"
	"github.com/aws/aws-sdk-go/service/kinesis/kinesisiface"
	"github.com/tj/assert"
)

type fakeKinesis struct {
	kinesisiface.KinesisAPI
	inputs []*kinesis.PutRecordInput
	err    error
}

func (f *fakeKinesis) PutRecordWithContext(_ aws.Context, input *kinesis.PutRecordInput, _ ...request.Option) (*kinesis.PutRecordOutput, error) {
	f.inputs = append(f.inputs, input)
	if f.err != nil {
		return nil, f.err
	}
	return &kinesis.PutRecordOutput{}, nil
}

func TestSend(t *testing.T) {
	client := &fakeKinesis{}
	p := New(client, "dev-sundae-slides-events")

	event := FeedbackEvent{SlideKey: "my-talk", SlideNumber: 3, Category: "great", Timestamp: 42}
	err := p.Send(context.Background(), FeedbackTopic("my-talk"), event)
	assert.Nil(t, err)
	assert.Len(t, client.inputs, 1)

	input := client.inputs[0]
	assert.Equal(t, "dev-sundae-slides-events", aws.StringValue(input.StreamName))
	assert.Equal(t, "feedback:my-talk", aws.StringValue(input.PartitionKey))

	var envelope Envelope
	assert.Nil(t, json.Unmarshal(input.Data, &envelope))
	assert.Equal(t, "feedback:my-talk", envelope.Topic)

	var got FeedbackEvent
	assert.Nil(t, json.Unmarshal(envelope.Payload, &got))
	assert.Equal(t, event, got)
}

func TestSendError(t *testing.T) {
	boom := errors.New("boom")
	p := New(&fakeKinesis{err: boom}, "stream")

	err := p.Send(context.Background(), "topic", map[string]string{"a": "b"})
	assert.True(t, errors.Is(err, boom))
}

func TestStreamName(t *testing.T) {
	assert.Equal(t, "prod-sundae-slides-events", StreamName("prod"))
}
