// Package queue drives the remote robot queue: inspection, single commands,
// batched visits and re-visits of stale stored profiles.
package queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/khoahotran/prospect-sync/internal/application/service"
	"github.com/khoahotran/prospect-sync/internal/domain/prospect"
	"github.com/khoahotran/prospect-sync/pkg/apperror"
	"github.com/khoahotran/prospect-sync/pkg/logger"
)

const (
	DefaultBatchSize  = 50
	DefaultStaleLimit = 1000
	StaleAfter        = 14 * 24 * time.Hour
	batchPause        = 2 * time.Second
)

type QueueUseCase struct {
	remote service.RemoteQueue
	repo   prospect.Repository
	logger logger.Logger
	pause  time.Duration
	now    func() time.Time
}

type Option func(*QueueUseCase)

// WithBatchPause overrides the delay between batches.
func WithBatchPause(d time.Duration) Option {
	return func(uc *QueueUseCase) { uc.pause = d }
}

func WithClock(now func() time.Time) Option {
	return func(uc *QueueUseCase) { uc.now = now }
}

func NewQueueUseCase(remote service.RemoteQueue, repo prospect.Repository, log logger.Logger, opts ...Option) *QueueUseCase {
	uc := &QueueUseCase{
		remote: remote,
		repo:   repo,
		logger: log.With(zap.String("component", "queue")),
		pause:  batchPause,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

func (uc *QueueUseCase) Status(ctx context.Context, filter service.QueueFilter) (map[string]any, error) {
	return uc.remote.QueueSize(ctx, filter)
}

func (uc *QueueUseCase) Items(ctx context.Context, filter service.QueueFilter) (any, error) {
	return uc.remote.QueuedItems(ctx, filter)
}

func (uc *QueueUseCase) Clear(ctx context.Context) (map[string]any, error) {
	out, err := uc.remote.ClearQueue(ctx)
	if err != nil {
		return nil, err
	}
	uc.logger.Info("Remote queue cleared")
	return out, nil
}

type EnqueueInput struct {
	Command    service.QueueCommand
	ProfileURL string
	Message    string
	Options    service.QueueOptions
}

func (uc *QueueUseCase) Enqueue(ctx context.Context, input EnqueueInput) (*service.QueueReceipt, error) {
	if strings.TrimSpace(input.ProfileURL) == "" {
		return nil, apperror.NewInvalidInput("profile URL is required", nil)
	}
	switch input.Command {
	case service.CommandVisit:
	case service.CommandConnect, service.CommandMessage:
		if strings.TrimSpace(input.Message) == "" {
			return nil, apperror.NewInvalidInput(fmt.Sprintf("message text is required for %s", input.Command), nil)
		}
	default:
		return nil, apperror.NewInvalidInput(fmt.Sprintf("unsupported command %q", input.Command), nil)
	}
	return uc.remote.Enqueue(ctx, input.Command, input.ProfileURL, input.Message, input.Options)
}

type BatchInput struct {
	ProfileURLs []string
	Options     service.QueueOptions
	BatchSize   int
}

type BatchItem struct {
	ProfileURL string `json:"profileUrl"`
	Success    bool   `json:"success"`
	MessageID  string `json:"messageId,omitempty"`
	Error      string `json:"error,omitempty"`
}

type BatchOutput struct {
	Total   int         `json:"total"`
	Queued  int         `json:"queued"`
	Failed  int         `json:"failed"`
	Details []BatchItem `json:"details"`
}

// BatchVisits queues a visit per URL. Items within a batch are sent
// concurrently; batches are separated by a fixed pause. A failed item never
// fails the batch.
func (uc *QueueUseCase) BatchVisits(ctx context.Context, input BatchInput) (*BatchOutput, error) {
	if len(input.ProfileURLs) == 0 {
		return nil, apperror.NewInvalidInput("profile URLs array is required", nil)
	}
	size := input.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}

	total := len(input.ProfileURLs)
	batches := (total + size - 1) / size
	out := &BatchOutput{Total: total, Details: make([]BatchItem, total)}
	uc.logger.Info("Starting batch visit queueing", zap.Int("total", total), zap.Int("batches", batches))

	for start := 0; start < total; start += size {
		end := min(start+size, total)
		uc.logger.Info("Processing batch",
			zap.Int("batch", start/size+1),
			zap.Int("of", batches),
			zap.Int("profiles", end-start),
		)

		// A plain Group does not cancel siblings; Wait reports the first failure.
		var g errgroup.Group
		g.SetLimit(size)
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				url := input.ProfileURLs[i]
				item := BatchItem{ProfileURL: url}
				receipt, err := uc.remote.Enqueue(ctx, service.CommandVisit, url, "", input.Options)
				if err != nil {
					item.Error = err.Error()
					out.Details[i] = item
					return fmt.Errorf("queue visit %s: %w", url, err)
				}
				item.Success = true
				item.MessageID = receipt.MessageID
				out.Details[i] = item
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			uc.logger.Warn("Batch finished with failures", zap.Int("batch", start/size+1), zap.Error(err))
		}

		if end < total {
			if err := sleepContext(ctx, uc.pause); err != nil {
				return nil, err
			}
		}
	}

	for _, d := range out.Details {
		if d.Success {
			out.Queued++
		} else {
			out.Failed++
		}
	}
	uc.logger.Info("Batch queueing completed", zap.Int("queued", out.Queued), zap.Int("failed", out.Failed))
	return out, nil
}

type StaleInput struct {
	Kind      prospect.Kind
	Limit     int
	Options   service.QueueOptions
	BatchSize int
}

// QueueStale queues visits for stored profiles captured more than
// StaleAfter ago.
func (uc *QueueUseCase) QueueStale(ctx context.Context, input StaleInput) (*BatchOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = DefaultStaleLimit
	}
	cutoff := uc.now().UTC().Add(-StaleAfter)

	records, err := uc.repo.List(ctx, input.Kind, prospect.ListFilter{Before: cutoff, Limit: limit})
	if err != nil {
		return nil, err
	}

	urls := make([]string, 0, len(records))
	for _, r := range records {
		u := r.ProfileURL
		if u == "" {
			u = r.PublicProfileURL
		}
		if u != "" {
			urls = append(urls, u)
		}
	}
	uc.logger.Info("Found stale profiles to queue", zap.String("kind", string(input.Kind)), zap.Int("profiles", len(urls)))
	if len(urls) == 0 {
		return &BatchOutput{Details: []BatchItem{}}, nil
	}
	return uc.BatchVisits(ctx, BatchInput{ProfileURLs: urls, Options: input.Options, BatchSize: input.BatchSize})
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
