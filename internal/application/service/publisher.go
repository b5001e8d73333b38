package service

import (
	"context"

	"github.com/khoahotran/prospect-sync/adapters/event"
)

// EventPublisher emits ingestion and webhook events to the broker.
type EventPublisher interface {
	PublishProspectEvent(ctx context.Context, payload event.ProspectEventPayload) error
	PublishWebhookEvent(ctx context.Context, payload event.WebhookEventPayload) error
}
