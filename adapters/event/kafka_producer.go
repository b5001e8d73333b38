package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/khoahotran/prospect-sync/internal/config"
	"github.com/khoahotran/prospect-sync/internal/domain/prospect"
	"github.com/khoahotran/prospect-sync/pkg/logger"
)

const (
	TopicWebhookEvents  = "prospect.webhook"
	TopicProspectEvents = "prospect.events"
)

// WebhookEventPayload is the inbound push body, relayed verbatim in kafka mode.
type WebhookEventPayload struct {
	Type  string              `json:"type"`
	Event string              `json:"event"`
	Data  prospect.FlatRecord `json:"data"`
}

// ProspectEventPayload announces a successful ingestion.
type ProspectEventPayload struct {
	Kind      prospect.Kind `json:"kind"`
	ID        string        `json:"id"`
	Created   bool          `json:"created"`
	Thumbnail string        `json:"thumbnail,omitempty"`
}

type KafkaProducerClient struct {
	WebhookEventsWriter  *kafka.Writer
	ProspectEventsWriter *kafka.Writer
	logger               logger.Logger
}

func NewKafkaProducerClient(cfg config.Config, log logger.Logger) (*KafkaProducerClient, error) {
	brokers := cfg.Kafka.Brokers
	if len(brokers) == 0 {
		return nil, fmt.Errorf("config Kafka brokers not found")
	}

	// writer 'prospect.webhook'
	webhookWriter := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    TopicWebhookEvents,
		Balancer: &kafka.Hash{},
	}

	// writer 'prospect.events'
	prospectWriter := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    TopicProspectEvents,
		Balancer: &kafka.Hash{},
	}

	log.Info("Initialize Kafka Producers successfully.")

	return &KafkaProducerClient{
		WebhookEventsWriter:  webhookWriter,
		ProspectEventsWriter: prospectWriter,
		logger:               log,
	}, nil
}

// PublishWebhookEvent keys by profile id so redeliveries of one profile stay ordered.
func (c *KafkaProducerClient) PublishWebhookEvent(ctx context.Context, payload WebhookEventPayload) error {
	var key string
	if id, ok := payload.Data["id"]; ok && id != nil {
		key = fmt.Sprint(id)
	}
	return c.publish(ctx, c.WebhookEventsWriter, key, payload)
}

func (c *KafkaProducerClient) PublishProspectEvent(ctx context.Context, payload ProspectEventPayload) error {
	return c.publish(ctx, c.ProspectEventsWriter, payload.ID, payload)
}

func (c *KafkaProducerClient) publish(ctx context.Context, w *kafka.Writer, key string, payload any) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", w.Topic, err)
	}
	if err := w.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: value}); err != nil {
		return fmt.Errorf("write to %s: %w", w.Topic, err)
	}
	return nil
}

func (c *KafkaProducerClient) Close() {
	if c.WebhookEventsWriter != nil {
		c.WebhookEventsWriter.Close()
	}
	if c.ProspectEventsWriter != nil {
		c.ProspectEventsWriter.Close()
	}
	c.logger.Info("Closed Kafka Producers")
}
