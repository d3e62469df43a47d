package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// SQSSendAPI is the subset of the SQS client used to publish records.
type SQSSendAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// QueueNotifier publishes the record as JSON for downstream CRM workers.
type QueueNotifier struct {
	client   SQSSendAPI
	queueURL string
}

func NewQueueNotifier(client SQSSendAPI, queueURL string) *QueueNotifier {
	if client == nil {
		panic("notify: sqs client cannot be nil")
	}
	if strings.TrimSpace(queueURL) == "" {
		panic("notify: queue url cannot be empty")
	}
	return &QueueNotifier{client: client, queueURL: queueURL}
}

func (n *QueueNotifier) Notify(ctx context.Context, rec Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("notify: encode record: %w", err)
	}
	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(n.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"tier": {DataType: aws.String("String"), StringValue: aws.String(string(rec.Qualification.Tier))},
		},
	}
	if strings.HasSuffix(n.queueURL, ".fifo") {
		input.MessageGroupId = aws.String(rec.SessionID)
		input.MessageDeduplicationId = aws.String(rec.SessionID)
	}
	out, err := n.client.SendMessage(ctx, input)
	if err != nil {
		return fmt.Errorf("notify: sqs send: %w", err)
	}
	if out == nil || aws.ToString(out.MessageId) == "" {
		return errors.New("notify: sqs send returned no message id")
	}
	return nil
}
