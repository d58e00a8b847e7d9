// Package events announces video lifecycle changes to downstream consumers
// such as the processing pipeline.
package events

import (
	"alcyxob/video-uploads/internal/domain"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsCfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	pkgerrors "github.com/pkg/errors"
)

// EventVideoReady is sent once, when an upload is first confirmed.
const EventVideoReady = "video.ready"

// Publisher sends lifecycle events.
type Publisher interface {
	PublishVideoReady(ctx context.Context, video *domain.Video) error
}

// VideoReadyEvent is the message body of EventVideoReady.
type VideoReadyEvent struct {
	Type        string    `json:"type"`
	VideoID     string    `json:"videoId"`
	OwnerID     string    `json:"ownerId"`
	StorageKey  string    `json:"storageKey"`
	ContentType string    `json:"contentType"`
	SizeBytes   int64     `json:"sizeBytes"`
	ConfirmedAt time.Time `json:"confirmedAt"`
}

// NewVideoReadyEvent builds the event for a confirmed video.
func NewVideoReadyEvent(video *domain.Video) VideoReadyEvent {
	ev := VideoReadyEvent{
		Type:        EventVideoReady,
		VideoID:     video.ID,
		OwnerID:     video.OwnerID,
		StorageKey:  video.StorageKey,
		ContentType: video.ContentType,
		SizeBytes:   video.ActualSizeBytes,
	}
	if video.ConfirmedAt != nil {
		ev.ConfirmedAt = *video.ConfirmedAt
	}
	return ev
}

// NoOpPublisher drops every event.
type NoOpPublisher struct{}

func (NoOpPublisher) PublishVideoReady(context.Context, *domain.Video) error { return nil }

// SQSAPI is the subset of the SQS client the publisher uses.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSPublisher enqueues events on an SQS queue.
type SQSPublisher struct {
	client   SQSAPI
	queueURL string
}

// NewSQSClient loads the default AWS configuration for region.
func NewSQSClient(ctx context.Context, region string) (*sqs.Client, error) {
	cfg, err := awsCfg.LoadDefaultConfig(ctx, awsCfg.WithRegion(region))
	if err != nil {
		return nil, pkgerrors.Wrap(err, "load AWS config for SQS")
	}
	return sqs.NewFromConfig(cfg), nil
}

// NewSQSPublisher creates a publisher for queueURL.
func NewSQSPublisher(client SQSAPI, queueURL string) (*SQSPublisher, error) {
	if client == nil {
		return nil, errors.New("sqs client is required")
	}
	if queueURL == "" {
		return nil, errors.New("sqs queue url is required")
	}
	return &SQSPublisher{client: client, queueURL: queueURL}, nil
}

func (p *SQSPublisher) PublishVideoReady(ctx context.Context, video *domain.Video) error {
	body, err := json.Marshal(NewVideoReadyEvent(video))
	if err != nil {
		return err
	}
	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"eventType": {DataType: aws.String("String"), StringValue: aws.String(EventVideoReady)},
		},
	})
	if err != nil {
		return pkgerrors.Wrapf(err, "send %s for video %s", EventVideoReady, video.ID)
	}
	return nil
}
