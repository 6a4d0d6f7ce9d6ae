package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"
	"github.com/openfroyo/watchdog/pkg/config"
	"github.com/openfroyo/watchdog/pkg/telemetry"
	"github.com/openfroyo/watchdog/pkg/watchdog"
	"github.com/rs/zerolog"
)

// sendTimeout bounds a single SendMessage call.
const sendTimeout = 5 * time.Second

// SQSClient defines the SQS operations needed by the SQS notifier.
type SQSClient interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// NewSQSClient loads the default AWS configuration (environment, shared
// files, instance role) and creates an SQS client.
func NewSQSClient(ctx context.Context, cfg config.SQSNotifierConfig) (*sqs.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

// Message is the JSON body sent for each outcome.
type Message struct {
	ID        string    `json:"id"`
	Watchdog  string    `json:"watchdog"`
	Outcome   string    `json:"outcome"`
	Cause     string    `json:"cause,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SQSListener publishes outcomes to an SQS queue.
type SQSListener struct {
	name     string
	client   SQSClient
	queueURL string
	groupID  string
	skipOK   bool
	logger   zerolog.Logger
	now      func() time.Time
}

// NewSQSListener creates an SQS notifier. Setting MessageGroupID targets a
// FIFO queue; each message then carries a unique deduplication ID.
func NewSQSListener(name string, client SQSClient, cfg config.SQSNotifierConfig, logger zerolog.Logger) *SQSListener {
	return &SQSListener{
		name:     name,
		client:   client,
		queueURL: cfg.QueueURL,
		groupID:  cfg.MessageGroupID,
		skipOK:   cfg.SkipOK,
		logger:   logger.With().Str("component", "sqs-notifier").Str("notifier", name).Logger(),
		now:      time.Now,
	}
}

// OnOK implements watchdog.Listener.
func (l *SQSListener) OnOK(ctx context.Context, subject any) error {
	if l.skipOK {
		return nil
	}
	return l.send(ctx, subject, watchdog.OutcomeOK, nil)
}

// OnFailed implements watchdog.Listener.
func (l *SQSListener) OnFailed(ctx context.Context, subject any, cause error) error {
	return l.send(ctx, subject, watchdog.OutcomeFailed, cause)
}

// OnImpossible implements watchdog.Listener.
func (l *SQSListener) OnImpossible(ctx context.Context, subject any, cause error) error {
	return l.send(ctx, subject, watchdog.OutcomeImpossible, cause)
}

func (l *SQSListener) send(ctx context.Context, subject any, kind watchdog.OutcomeKind, cause error) error {
	msg := Message{
		ID:        uuid.NewString(),
		Watchdog:  subjectName(subject),
		Outcome:   string(kind),
		Timestamp: l.now().UTC(),
	}
	if cause != nil {
		msg.Cause = cause.Error()
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(l.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"outcome": {
				DataType:    aws.String("String"),
				StringValue: aws.String(msg.Outcome),
			},
			"watchdog": {
				DataType:    aws.String("String"),
				StringValue: aws.String(msg.Watchdog),
			},
		},
	}
	if l.groupID != "" {
		input.MessageGroupId = aws.String(l.groupID)
		input.MessageDeduplicationId = aws.String(msg.ID)
	}

	return telemetry.RecordNotification(ctx, l.name, msg.Outcome, func(ctx context.Context) error {
		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		defer cancel()

		out, err := l.client.SendMessage(sendCtx, input)
		if err != nil {
			return fmt.Errorf("failed to send %s notification: %w", msg.Outcome, err)
		}

		var messageID string
		if out != nil {
			messageID = aws.ToString(out.MessageId)
		}
		l.logger.Debug().
			Str("watchdog", msg.Watchdog).
			Str("outcome", msg.Outcome).
			Str("message_id", messageID).
			Msg("Notification sent")
		return nil
	})
}
