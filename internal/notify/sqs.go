package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"climatewatch/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// MessageKind tags the payload of an Envelope.
type MessageKind string

const (
	KindAlerts MessageKind = "alerts"
	KindReport MessageKind = "report"
)

// Envelope is the JSON body sent to the report queue.
type Envelope struct {
	MessageID string        `json:"message_id"`
	Kind      MessageKind   `json:"kind"`
	TickID    string        `json:"tick_id,omitempty"`
	SentAt    time.Time     `json:"sent_at"`
	Alerts    []types.Alert `json:"alerts,omitempty"`
	Report    *types.Report `json:"report,omitempty"`
}

// SQSPublisher hands alerts and reports to a downstream consumer queue.
type SQSPublisher struct {
	client   SQSSender
	queueURL string
	clock    types.Clock
	logger   *slog.Logger
}

var _ Publisher = (*SQSPublisher)(nil)

// NewSQSPublisher creates a publisher targeting queueURL.
func NewSQSPublisher(client SQSSender, queueURL string, clock types.Clock, logger *slog.Logger) *SQSPublisher {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SQSPublisher{client: client, queueURL: queueURL, clock: clock, logger: logger}
}

// NotifyAlerts implements Publisher.
func (p *SQSPublisher) NotifyAlerts(ctx context.Context, alerts []types.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	return p.send(ctx, Envelope{Kind: KindAlerts, Alerts: alerts})
}

// PublishReport implements Publisher.
func (p *SQSPublisher) PublishReport(ctx context.Context, r types.Report) error {
	return p.send(ctx, Envelope{Kind: KindReport, Report: &r})
}

func (p *SQSPublisher) send(ctx context.Context, env Envelope) error {
	env.MessageID = uuid.NewString()
	env.TickID = types.GetTickID(ctx)
	env.SentAt = p.clock.Now().UTC()

	body, err := json.Marshal(env)
	if err != nil {
		return types.NewAppError(types.ErrCodeNotifyFailed, "failed to marshal envelope", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"kind": {DataType: aws.String("String"), StringValue: aws.String(string(env.Kind))},
		},
	}
	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return types.NewAppError(types.ErrCodeNotifyFailed,
			fmt.Sprintf("failed to send %s message to %s", env.Kind, p.queueURL), err)
	}

	p.logger.InfoContext(ctx, "message published",
		"message_id", env.MessageID,
		"kind", string(env.Kind),
		"tick_id", env.TickID,
	)
	return nil
}
