package snsinfra

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/go-auth-nosql/internal/config"
	"github.com/go-auth-nosql/internal/domain"
	awsinfra "github.com/go-auth-nosql/internal/infrastructure/aws"
)

// Publisher emits auth lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, ev domain.AuthEvent) error
}

// API is the part of the SNS client the publisher uses.
type API interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type topicPublisher struct {
	client   API
	topicARN string
}

func NewTopicPublisher(client API, topicARN string) Publisher {
	return &topicPublisher{client: client, topicARN: topicARN}
}

// New returns a topic publisher when EVENTS_TOPIC_ARN is set, otherwise a
// publisher that drops events.
func New(ctx context.Context, cfg *config.Config) (Publisher, error) {
	if cfg.EventsTopicARN == "" {
		return Discard{}, nil
	}
	awsCfg, err := awsinfra.LoadConfig(ctx, cfg, cfg.SNSRegion)
	if err != nil {
		return nil, err
	}
	client := sns.NewFromConfig(awsCfg, func(o *sns.Options) { o.BaseEndpoint = awsinfra.Endpoint(cfg) })
	return NewTopicPublisher(client, cfg.EventsTopicARN), nil
}

func (p *topicPublisher) Publish(ctx context.Context, ev domain.AuthEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": {DataType: aws.String("String"), StringValue: aws.String(ev.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("sns publish %s: %w", ev.Type, err)
	}
	return nil
}

type Discard struct{}

func (Discard) Publish(context.Context, domain.AuthEvent) error { return nil }

// Emit publishes ev and logs instead of failing; events never break the request.
func Emit(ctx context.Context, p Publisher, ev domain.AuthEvent) {
	if err := p.Publish(ctx, ev); err != nil {
		slog.Warn("auth event not published", "type", ev.Type, "err", err)
	}
}
