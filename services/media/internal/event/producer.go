package event

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/utafrali/CommerceCheckout/pkg/kafka"
	"github.com/utafrali/CommerceCheckout/pkg/logger"
	"github.com/utafrali/CommerceCheckout/services/media/internal/domain"
)

// TopicMediaStored is published once per newly stored object.
var TopicMediaStored = pkgkafka.Topic("media", "stored")

// Aggregate type constant.
const AggregateTypeMedia = "media"

// Source identifier for events originating from the media service.
const SourceMediaService = "media-service"

// MediaStoredData is the payload for a media.stored event.
type MediaStoredData struct {
	ID          string `json:"id"`
	Namespace   string `json:"namespace"`
	Owner       string `json:"owner"`
	Key         string `json:"key"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	Checksum    string `json:"checksum"`
}

// Producer publishes media domain events to Kafka. A nil Publisher
// disables publishing.
type Producer struct {
	kafka  pkgkafka.Publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer for the media service.
func NewProducer(kafka pkgkafka.Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishMediaStored publishes a media.stored event.
func (p *Producer) PublishMediaStored(ctx context.Context, media *domain.Media) error {
	if p == nil || p.kafka == nil {
		return nil
	}

	evt, err := pkgkafka.NewEvent(TopicMediaStored, media.ID, AggregateTypeMedia, SourceMediaService, MediaStoredData{
		ID:          media.ID,
		Namespace:   media.Namespace,
		Owner:       media.Owner,
		Key:         media.Key,
		ContentType: media.ContentType,
		Size:        media.Size,
		Checksum:    media.Checksum,
	})
	if err != nil {
		return fmt.Errorf("create media.stored event: %w", err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		evt.WithCorrelationID(id)
	}

	if err := p.kafka.Publish(ctx, TopicMediaStored, evt); err != nil {
		return fmt.Errorf("publish media.stored event: %w", err)
	}

	p.logger.DebugContext(ctx, "published media.stored event",
		slog.String("media_id", media.ID),
		slog.String("key", media.Key),
	)
	return nil
}
