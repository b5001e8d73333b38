// Package webhook routes push-delivered profile events into the ingest path.
package webhook

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/khoahotran/prospect-sync/adapters/event"
	"github.com/khoahotran/prospect-sync/internal/application/service"
	"github.com/khoahotran/prospect-sync/internal/application/usecase/ingest"
	"github.com/khoahotran/prospect-sync/internal/domain/prospect"
	"github.com/khoahotran/prospect-sync/pkg/apperror"
	"github.com/khoahotran/prospect-sync/pkg/logger"
	"github.com/khoahotran/prospect-sync/pkg/metrics"
)

const (
	ActionCreate = "create"
	ActionUpdate = "update"
)

// Dispatch outcomes, also used as metric labels.
const (
	OutcomeCreated = "created"
	OutcomeUpdated = "updated"
	OutcomeIgnored = "ignored"
	OutcomeQueued  = "queued"
	OutcomeFailed  = "failed"
)

var tracer = otel.Tracer("webhook_usecase")

type Output struct {
	Outcome string
	Reason  string
}

// Receiver accepts one webhook event. Both the direct dispatcher and the
// broker relay satisfy it.
type Receiver interface {
	Execute(ctx context.Context, payload event.WebhookEventPayload) (*Output, error)
}

type DispatchUseCase struct {
	ingest  *ingest.IngestUseCase
	metrics *metrics.Recorder
	logger  logger.Logger
}

func NewDispatchUseCase(ingestUC *ingest.IngestUseCase, rec *metrics.Recorder, log logger.Logger) *DispatchUseCase {
	return &DispatchUseCase{
		ingest:  ingestUC,
		metrics: rec,
		logger:  log,
	}
}

// Execute ingests a create or update event. Unknown kinds or actions and
// records without an id are logged and ignored. Only storage failures are
// returned as errors; no quota applies here.
func (uc *DispatchUseCase) Execute(ctx context.Context, payload event.WebhookEventPayload) (*Output, error) {
	ctx, span := tracer.Start(ctx, "DispatchUseCase.Execute")
	defer span.End()
	span.SetAttributes(attribute.String("type", payload.Type), attribute.String("event", payload.Event))

	log := uc.logger.With(zap.String("type", payload.Type), zap.String("event", payload.Event))

	kind, ok := prospect.ParseKind(payload.Type)
	if !ok {
		return uc.ignore(log, "", "unrecognized type"), nil
	}
	if payload.Event != ActionCreate && payload.Event != ActionUpdate {
		return uc.ignore(log, string(kind), "unrecognized event"), nil
	}

	out, err := uc.ingest.Execute(ctx, ingest.IngestInput{Kind: kind, Flat: payload.Data})
	if err != nil {
		if errors.Is(err, apperror.ErrInvalidInput) {
			log.Warn("Ignoring malformed webhook payload", zap.Error(err))
			return uc.ignore(log, string(kind), err.Error()), nil
		}
		span.RecordError(err)
		log.Error("Failed to store webhook payload", err)
		uc.metrics.WebhookEvent(string(kind), OutcomeFailed)
		return nil, err
	}

	outcome := OutcomeUpdated
	if out.Created {
		outcome = OutcomeCreated
	}
	uc.metrics.WebhookEvent(string(kind), outcome)
	log.Info("Webhook payload ingested", zap.String("id", out.Record.ID), zap.String("outcome", outcome))
	return &Output{Outcome: outcome}, nil
}

func (uc *DispatchUseCase) ignore(log logger.Logger, kind, reason string) *Output {
	log.Info("Webhook event ignored", zap.String("reason", reason))
	uc.metrics.WebhookEvent(kind, OutcomeIgnored)
	return &Output{Outcome: OutcomeIgnored, Reason: reason}
}

// RelayUseCase hands events to the broker; the worker dispatches them later.
type RelayUseCase struct {
	publisher service.EventPublisher
	metrics   *metrics.Recorder
	logger    logger.Logger
}

func NewRelayUseCase(publisher service.EventPublisher, rec *metrics.Recorder, log logger.Logger) *RelayUseCase {
	return &RelayUseCase{
		publisher: publisher,
		metrics:   rec,
		logger:    log,
	}
}

func (uc *RelayUseCase) Execute(ctx context.Context, payload event.WebhookEventPayload) (*Output, error) {
	if err := uc.publisher.PublishWebhookEvent(ctx, payload); err != nil {
		uc.logger.Error("Failed to relay webhook event", err, zap.String("type", payload.Type))
		uc.metrics.WebhookEvent(kindLabel(payload.Type), OutcomeFailed)
		return nil, apperror.NewInternal("failed to enqueue webhook event", err)
	}
	uc.metrics.WebhookEvent(kindLabel(payload.Type), OutcomeQueued)
	return &Output{Outcome: OutcomeQueued}, nil
}

// kindLabel keeps metric labels bounded to known kinds.
func kindLabel(t string) string {
	if k, ok := prospect.ParseKind(t); ok {
		return string(k)
	}
	return ""
}
