// Package ingest is the shared normalize-and-upsert path used by both the
// poll-driven sync and webhook delivery.
package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/khoahotran/prospect-sync/adapters/event"
	"github.com/khoahotran/prospect-sync/internal/application/service"
	"github.com/khoahotran/prospect-sync/internal/domain/prospect"
	"github.com/khoahotran/prospect-sync/pkg/apperror"
	"github.com/khoahotran/prospect-sync/pkg/logger"
)

const publishTimeout = 10 * time.Second

type IngestUseCase struct {
	repo      prospect.Repository
	publisher service.EventPublisher
	logger    logger.Logger

	pending sync.WaitGroup
}

// NewIngestUseCase builds the use case. publisher may be nil, in which case
// no ingestion events are emitted.
func NewIngestUseCase(repo prospect.Repository, publisher service.EventPublisher, log logger.Logger) *IngestUseCase {
	return &IngestUseCase{
		repo:      repo,
		publisher: publisher,
		logger:    log,
	}
}

type IngestInput struct {
	Kind prospect.Kind
	Flat prospect.FlatRecord
}

type IngestOutput struct {
	Record  *prospect.Record
	Created bool
}

// Execute normalizes the flat record and upserts it by id. A record that
// cannot be mapped (no id, undecodable collections) yields an invalid-input
// error; storage failures are returned as they come from the repository.
func (uc *IngestUseCase) Execute(ctx context.Context, input IngestInput) (*IngestOutput, error) {
	rec, err := prospect.FromFlat(input.Kind, input.Flat)
	if err != nil {
		if errors.Is(err, prospect.ErrMissingID) {
			return nil, apperror.NewInvalidInput("profile record has no id", err)
		}
		return nil, apperror.NewInvalidInput("profile record is malformed", err)
	}

	res, err := uc.repo.Upsert(ctx, input.Kind, rec)
	if err != nil {
		return nil, err
	}

	if uc.publisher != nil {
		payload := event.ProspectEventPayload{
			Kind:      input.Kind,
			ID:        res.Record.ID,
			Created:   res.Created,
			Thumbnail: res.Record.Thumbnail,
		}
		uc.pending.Add(1)
		go func() {
			defer uc.pending.Done()
			pubCtx, cancel := context.WithTimeout(context.Background(), publishTimeout)
			defer cancel()
			if err := uc.publisher.PublishProspectEvent(pubCtx, payload); err != nil {
				uc.logger.Error("Failed to publish prospect event", err,
					zap.String("kind", string(payload.Kind)),
					zap.String("id", payload.ID),
				)
			}
		}()
	}

	return &IngestOutput{Record: res.Record, Created: res.Created}, nil
}

// Wait blocks until every in-flight event publish has finished. Call it
// before closing the publisher.
func (uc *IngestUseCase) Wait() {
	uc.pending.Wait()
}
