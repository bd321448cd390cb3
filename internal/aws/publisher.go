package aws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/imrishuroy/go-storefront-orderflow/internal/apperrors"
)

// Publisher wraps an SQS client and a queue URL.
type Publisher struct {
	SQS      SQSAPI
	QueueURL string
}

// NewPublisher returns a Publisher bound to a queue URL.
func NewPublisher(sqsClient SQSAPI, queueURL string) *Publisher {
	return &Publisher{
		SQS:      sqsClient,
		QueueURL: queueURL,
	}
}

// PublishJSON marshals payload as the message body. attributes are sent as
// String message attributes so consumers can route without decoding the body.
// Empty attribute values are dropped. Send failures are Upstream errors.
func (p *Publisher) PublishJSON(ctx context.Context, payload any, attributes map[string]string) error {
	const op = "aws.PublishJSON"
	body, err := json.Marshal(payload)
	if err != nil {
		return apperrors.Validation(op, fmt.Errorf("marshal message: %w", err))
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    &p.QueueURL,
		MessageBody: awsString(string(body)),
	}
	if len(attributes) > 0 {
		msgAttrs := make(map[string]sqstypes.MessageAttributeValue, len(attributes))
		for k, v := range attributes {
			if v == "" {
				continue
			}
			msgAttrs[k] = sqstypes.MessageAttributeValue{
				DataType:    awsString("String"),
				StringValue: awsString(v),
			}
		}
		input.MessageAttributes = msgAttrs
	}

	if _, err := p.SQS.SendMessage(ctx, input); err != nil {
		return apperrors.Upstream(op, fmt.Errorf("send message: %w", err))
	}
	return nil
}

func awsString(s string) *string { return &s }
