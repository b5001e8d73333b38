// Package sync runs the quota-bounded polling cycle for one collection kind.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/khoahotran/prospect-sync/internal/application/service"
	"github.com/khoahotran/prospect-sync/internal/application/usecase/ingest"
	"github.com/khoahotran/prospect-sync/internal/domain/prospect"
	"github.com/khoahotran/prospect-sync/pkg/apperror"
	"github.com/khoahotran/prospect-sync/pkg/logger"
	"github.com/khoahotran/prospect-sync/pkg/metrics"
)

// Run statuses.
const (
	StatusCompleted    = "completed"
	StatusLimitReached = "limit_reached"
	StatusNoCandidates = "no_candidates"
	StatusCancelled    = "cancelled"
	StatusError        = "error"
)

var errEmptyDetail = errors.New("remote returned an empty profile")

var tracer = otel.Tracer("sync_usecase")

type Settings struct {
	DailyLimit   int
	ItemDelay    time.Duration
	MaxAttempts  int
	QueryTimeout time.Duration
}

type SleepFunc func(ctx context.Context, d time.Duration) error

type SyncUseCase struct {
	kind     prospect.Kind
	repo     prospect.Repository
	source   service.ProspectSource
	ingest   *ingest.IngestUseCase
	settings Settings
	metrics  *metrics.Recorder
	logger   logger.Logger
	sleep    SleepFunc
	now      func() time.Time
}

type Option func(*SyncUseCase)

func WithSleep(fn SleepFunc) Option {
	return func(uc *SyncUseCase) { uc.sleep = fn }
}

func WithClock(now func() time.Time) Option {
	return func(uc *SyncUseCase) { uc.now = now }
}

func NewSyncUseCase(
	kind prospect.Kind,
	repo prospect.Repository,
	source service.ProspectSource,
	ingestUC *ingest.IngestUseCase,
	settings Settings,
	rec *metrics.Recorder,
	log logger.Logger,
	opts ...Option,
) *SyncUseCase {
	if settings.MaxAttempts <= 0 {
		settings.MaxAttempts = 3
	}
	if settings.QueryTimeout <= 0 {
		settings.QueryTimeout = 10 * time.Second
	}
	uc := &SyncUseCase{
		kind:     kind,
		repo:     repo,
		source:   source,
		ingest:   ingestUC,
		settings: settings,
		metrics:  rec,
		logger:   log.With(zap.String("kind", string(kind))),
		sleep:    sleepContext,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

func (uc *SyncUseCase) Kind() prospect.Kind {
	return uc.kind
}

type SyncOutput struct {
	RunID      uuid.UUID     `json:"run_id"`
	Kind       prospect.Kind `json:"kind"`
	Status     string        `json:"status"`
	Remaining  int           `json:"remaining"`
	Candidates int           `json:"candidates"`
	prospect.Tally
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Execute performs one sync run. Item failures are tallied; only a failure to
// establish today's quota or to list candidates aborts the run with an error.
func (uc *SyncUseCase) Execute(ctx context.Context) (*SyncOutput, error) {
	ctx, span := tracer.Start(ctx, "SyncUseCase.Execute", trace.WithAttributes(attribute.String("kind", string(uc.kind))))
	defer span.End()

	out := &SyncOutput{
		RunID:     uuid.New(),
		Kind:      uc.kind,
		StartedAt: uc.now().UTC(),
	}
	log := uc.logger.With(zap.String("run_id", out.RunID.String()))

	remaining, err := uc.remainingQuota(ctx, out.StartedAt)
	if err != nil {
		span.RecordError(err)
		log.Error("Cannot establish daily quota, aborting run", err)
		uc.metrics.SyncRun(string(uc.kind), StatusError, 0, 0, 0)
		return nil, err
	}
	if remaining <= 0 {
		log.Info("Daily limit reached, skipping run", zap.Int("daily_limit", uc.settings.DailyLimit))
		return uc.finish(span, out, StatusLimitReached, 0), nil
	}

	candidates, err := uc.source.FetchCandidates(ctx, service.CandidateFilter{Kind: uc.kind})
	if err != nil {
		span.RecordError(err)
		log.Error("Failed to fetch candidate list", err)
		uc.metrics.SyncRun(string(uc.kind), StatusError, 0, 0, 0)
		return nil, fmt.Errorf("fetch %s candidates: %w", uc.kind, err)
	}
	out.Candidates = len(candidates)
	if len(candidates) == 0 {
		log.Info("No candidates returned")
		return uc.finish(span, out, StatusNoCandidates, remaining), nil
	}

	log.Info("Sync run started", zap.Int("candidates", len(candidates)), zap.Int("remaining_quota", remaining))

	status := StatusCompleted
	for i, cand := range candidates {
		if remaining <= 0 {
			log.Info("Daily limit reached mid-run", zap.Int("unprocessed", len(candidates)-i))
			break
		}
		if i > 0 {
			if err := uc.sleep(ctx, uc.settings.ItemDelay); err != nil {
				status = StatusCancelled
				break
			}
		}

		res, err := uc.processItem(ctx, cand)
		if err != nil {
			if ctx.Err() != nil {
				status = StatusCancelled
				break
			}
			out.Failed++
			log.Warn("Failed to sync profile", zap.String("id", cand.ID), zap.Error(err))
			continue
		}
		out.Tally.Record(prospect.UpsertResult{Created: res.Created})
		remaining--
	}

	if status == StatusCancelled {
		log.Warn("Sync run cancelled", zap.Error(ctx.Err()))
	}
	log.Info("Sync run finished",
		zap.String("status", status),
		zap.Int("added", out.Added),
		zap.Int("updated", out.Updated),
		zap.Int("failed", out.Failed),
	)
	return uc.finish(span, out, status, remaining), nil
}

func (uc *SyncUseCase) finish(span trace.Span, out *SyncOutput, status string, remaining int) *SyncOutput {
	out.Status = status
	out.Remaining = remaining
	out.FinishedAt = uc.now().UTC()
	span.SetAttributes(
		attribute.String("status", status),
		attribute.Int("added", out.Added),
		attribute.Int("updated", out.Updated),
		attribute.Int("failed", out.Failed),
	)
	uc.metrics.SyncRun(string(uc.kind), status, out.Added, out.Updated, out.Failed)
	return out
}

// remainingQuota counts records captured since the start of the current UTC
// day. The count is bounded by the query timeout.
func (uc *SyncUseCase) remainingQuota(ctx context.Context, now time.Time) (int, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	countCtx, cancel := context.WithTimeout(ctx, uc.settings.QueryTimeout)
	defer cancel()
	count, err := uc.repo.CountSince(countCtx, uc.kind, dayStart)
	if err != nil {
		return 0, apperror.NewUnavailable(fmt.Sprintf("count %s records since %s", uc.kind, dayStart.Format(time.RFC3339)), err)
	}
	return uc.settings.DailyLimit - count, nil
}

func (uc *SyncUseCase) processItem(ctx context.Context, cand service.Candidate) (*ingest.IngestOutput, error) {
	flat, err := uc.fetchDetail(ctx, cand.ID)
	if err != nil {
		return nil, err
	}
	if len(flat) == 0 {
		return nil, errEmptyDetail
	}
	return uc.ingest.Execute(ctx, ingest.IngestInput{Kind: uc.kind, Flat: flat})
}

// fetchDetail makes up to MaxAttempts back-to-back attempts.
func (uc *SyncUseCase) fetchDetail(ctx context.Context, id string) (prospect.FlatRecord, error) {
	var lastErr error
	for attempt := 1; attempt <= uc.settings.MaxAttempts; attempt++ {
		flat, err := uc.source.FetchDetail(ctx, uc.kind, id)
		if err == nil {
			return flat, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		uc.logger.Debug("Detail fetch attempt failed", zap.String("id", id), zap.Int("attempt", attempt), zap.Error(err))
	}
	return nil, fmt.Errorf("fetch detail %s: %w", id, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
