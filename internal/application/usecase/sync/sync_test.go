package sync

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khoahotran/prospect-sync/internal/application/service"
	"github.com/khoahotran/prospect-sync/internal/application/usecase/ingest"
	"github.com/khoahotran/prospect-sync/internal/domain/prospect"
	"github.com/khoahotran/prospect-sync/internal/domain/prospect/prospecttest"
	"github.com/khoahotran/prospect-sync/pkg/apperror"
	"github.com/khoahotran/prospect-sync/pkg/logger"
	"github.com/khoahotran/prospect-sync/pkg/metrics"
)

type fakeSource struct {
	mu          stdsync.Mutex
	candidates  []service.Candidate
	listErr     error
	failing     map[string]int // id -> number of leading attempts that fail
	details     map[string]prospect.FlatRecord
	calls       map[string]int
	detailOrder []string
}

func newFakeSource(ids ...string) *fakeSource {
	s := &fakeSource{
		failing: map[string]int{},
		details: map[string]prospect.FlatRecord{},
		calls:   map[string]int{},
	}
	for _, id := range ids {
		s.candidates = append(s.candidates, service.Candidate{ID: id})
		s.details[id] = prospect.FlatRecord{"id": id, "First Name": "Name " + id}
	}
	return s
}

func (s *fakeSource) FetchCandidates(context.Context, service.CandidateFilter) ([]service.Candidate, error) {
	return s.candidates, s.listErr
}

func (s *fakeSource) FetchDetail(_ context.Context, _ prospect.Kind, id string) (prospect.FlatRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[id]++
	s.detailOrder = append(s.detailOrder, id)
	if s.calls[id] <= s.failing[id] {
		return nil, fmt.Errorf("transient failure for %s", id)
	}
	return s.details[id], nil
}

func (s *fakeSource) totalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.detailOrder)
}

type recordingSleep struct {
	delays []time.Duration
}

func (r *recordingSleep) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

var today = time.Date(2024, 7, 10, 15, 30, 0, 0, time.UTC)

func newUseCase(repo *prospecttest.MemoryRepository, src service.ProspectSource, limit int, delay time.Duration, opts ...Option) *SyncUseCase {
	log := logger.NewNop()
	ingestUC := ingest.NewIngestUseCase(repo, nil, log)
	opts = append([]Option{WithClock(func() time.Time { return today })}, opts...)
	return NewSyncUseCase(prospect.KindVisit, repo, src, ingestUC, Settings{
		DailyLimit:   limit,
		ItemDelay:    delay,
		MaxAttempts:  3,
		QueryTimeout: time.Second,
	}, metrics.NewRecorder(), log, opts...)
}

func seedToday(repo *prospecttest.MemoryRepository, n int) {
	for i := 0; i < n; i++ {
		repo.Seed(prospect.KindVisit, &prospect.Record{ID: fmt.Sprintf("seed-%d", i), CapturedAt: today.Add(-time.Hour)})
	}
}

func TestSync_QuotaReachedMakesNoFetches(t *testing.T) {
	repo := prospecttest.NewMemoryRepository()
	seedToday(repo, 100)
	src := newFakeSource("a", "b")
	sleeper := &recordingSleep{}

	out, err := newUseCase(repo, src, 100, 5*time.Second, WithSleep(sleeper.sleep)).Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusLimitReached, out.Status)
	assert.Equal(t, prospect.Tally{}, out.Tally)
	assert.Zero(t, src.totalCalls())
	assert.Empty(t, sleeper.delays)
}

func TestSync_YesterdaysRecordsDoNotCount(t *testing.T) {
	repo := prospecttest.NewMemoryRepository()
	repo.Seed(prospect.KindVisit, &prospect.Record{ID: "old", CapturedAt: today.Add(-24 * time.Hour)})
	src := newFakeSource("a")
	sleeper := &recordingSleep{}

	out, err := newUseCase(repo, src, 1, time.Second, WithSleep(sleeper.sleep)).Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, out.Status)
	assert.Equal(t, 1, out.Added)
}

func TestSync_PartialFailureDoesNotAbort(t *testing.T) {
	repo := prospecttest.NewMemoryRepository()
	repo.Seed(prospect.KindVisit, &prospect.Record{ID: "c2", FirstName: "Existing", CapturedAt: today.Add(-48 * time.Hour)})
	src := newFakeSource("c1", "c2", "c3", "c4", "c5")
	src.failing["c3"] = 1000
	sleeper := &recordingSleep{}

	out, err := newUseCase(repo, src, 100, 5*time.Second, WithSleep(sleeper.sleep)).Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, out.Status)
	assert.Equal(t, 1, out.Failed)
	assert.Equal(t, 4, out.Added+out.Updated)
	assert.Equal(t, 1, out.Updated)
	assert.Equal(t, 3, src.calls["c3"])
	for _, id := range []string{"c1", "c2", "c4", "c5"} {
		assert.Equal(t, 1, src.calls[id], id)
	}
	assert.Equal(t, []string{"c1", "c2", "c3", "c3", "c3", "c4", "c5"}, src.detailOrder)
	assert.Len(t, sleeper.delays, 4)
}

func TestSync_RetryRecoversTransientFailure(t *testing.T) {
	repo := prospecttest.NewMemoryRepository()
	src := newFakeSource("a")
	src.failing["a"] = 2

	out, err := newUseCase(repo, src, 10, 0).Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, out.Added)
	assert.Equal(t, 3, src.calls["a"])
}

func TestSync_MissingIDAndEmptyDetailAreItemFailures(t *testing.T) {
	repo := prospecttest.NewMemoryRepository()
	src := newFakeSource("a", "b", "c")
	src.details["a"] = prospect.FlatRecord{"First Name": "No id"}
	src.details["b"] = nil

	out, err := newUseCase(repo, src, 10, 0).Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, prospect.Tally{Added: 1, Failed: 2}, out.Tally)
	assert.Equal(t, 1, src.calls["a"])
}

func TestSync_StopsWhenQuotaConsumed(t *testing.T) {
	repo := prospecttest.NewMemoryRepository()
	seedToday(repo, 8)
	src := newFakeSource("a", "b", "c", "d")
	src.failing["a"] = 1000

	out, err := newUseCase(repo, src, 10, 0).Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, prospect.Tally{Added: 2, Failed: 1}, out.Tally)
	assert.Zero(t, out.Remaining)
	assert.Zero(t, src.calls["d"])
}

func TestSync_EmptyCandidateList(t *testing.T) {
	repo := prospecttest.NewMemoryRepository()
	out, err := newUseCase(repo, newFakeSource(), 10, 0).Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusNoCandidates, out.Status)
	assert.Equal(t, prospect.Tally{}, out.Tally)
}

func TestSync_CountFailureIsFatal(t *testing.T) {
	repo := prospecttest.NewMemoryRepository()
	repo.CountErr = context.DeadlineExceeded
	src := newFakeSource("a")

	out, err := newUseCase(repo, src, 10, 0).Execute(context.Background())
	assert.Nil(t, out)
	assert.ErrorIs(t, err, apperror.ErrUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, src.totalCalls())
}

func TestSync_CandidateListFailureIsFatal(t *testing.T) {
	repo := prospecttest.NewMemoryRepository()
	src := newFakeSource()
	src.listErr = errors.New("remote down")

	out, err := newUseCase(repo, src, 10, 0).Execute(context.Background())
	assert.Nil(t, out)
	assert.ErrorContains(t, err, "remote down")
}

func TestSync_PacingWallClock(t *testing.T) {
	repo := prospecttest.NewMemoryRepository()
	src := newFakeSource("a", "b", "c", "d")
	delay := 20 * time.Millisecond

	start := time.Now()
	out, err := newUseCase(repo, src, 10, delay).Execute(context.Background())
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, 4, out.Added)
	assert.GreaterOrEqual(t, elapsed, 3*delay)
}

func TestSync_CancelledDuringPacing(t *testing.T) {
	repo := prospecttest.NewMemoryRepository()
	src := newFakeSource("a", "b", "c")
	ctx, cancel := context.WithCancel(context.Background())

	cancelling := func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	out, err := newUseCase(repo, src, 10, time.Hour, WithSleep(cancelling)).Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, out.Status)
	assert.Equal(t, 1, out.Added)
	assert.Equal(t, 1, src.totalCalls())
}
