package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/khoahotran/prospect-sync/internal/application/service"
	"github.com/khoahotran/prospect-sync/internal/application/usecase/ingest"
	queueUC "github.com/khoahotran/prospect-sync/internal/application/usecase/queue"
	recordsUC "github.com/khoahotran/prospect-sync/internal/application/usecase/records"
	syncUC "github.com/khoahotran/prospect-sync/internal/application/usecase/sync"
	webhookUC "github.com/khoahotran/prospect-sync/internal/application/usecase/webhook"
	"github.com/khoahotran/prospect-sync/internal/domain/prospect"
	"github.com/khoahotran/prospect-sync/internal/domain/prospect/prospecttest"
	"github.com/khoahotran/prospect-sync/pkg/apperror"
	"github.com/khoahotran/prospect-sync/pkg/auth"
	"github.com/khoahotran/prospect-sync/pkg/logger"
	"github.com/khoahotran/prospect-sync/pkg/metrics"
)

type stubTrigger struct {
	out *syncUC.SyncOutput
	err error
}

func (s *stubTrigger) Trigger(_ context.Context, kind prospect.Kind) (*syncUC.SyncOutput, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := *s.out
	out.Kind = kind
	return &out, nil
}

type stubRemote struct {
	mu       sync.Mutex
	enqueued []string
}

func (r *stubRemote) QueueSize(context.Context, service.QueueFilter) (map[string]any, error) {
	return map[string]any{"size": 3}, nil
}

func (r *stubRemote) QueuedItems(context.Context, service.QueueFilter) (any, error) {
	return []any{}, nil
}

func (r *stubRemote) ClearQueue(context.Context) (map[string]any, error) {
	return map[string]any{"cleared": true}, nil
}

func (r *stubRemote) Enqueue(_ context.Context, command service.QueueCommand, profileURL, _ string, _ service.QueueOptions) (*service.QueueReceipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enqueued = append(r.enqueued, string(command)+":"+profileURL)
	return &service.QueueReceipt{MessageID: "m-1"}, nil
}

type RouterTestSuite struct {
	suite.Suite
	repo    *prospecttest.MemoryRepository
	remote  *stubRemote
	trigger *stubTrigger
	router  *gin.Engine
	token   string
}

func (s *RouterTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	log := logger.NewNop()

	s.repo = prospecttest.NewMemoryRepository()
	s.remote = &stubRemote{}
	s.trigger = &stubTrigger{out: &syncUC.SyncOutput{Status: syncUC.StatusCompleted, Tally: prospect.Tally{Added: 2}}}

	ingestUC := ingest.NewIngestUseCase(s.repo, nil, log)
	jwtSvc := auth.NewJWTService("test-secret", time.Hour)
	token, err := jwtSvc.GenerateToken(uuid.New(), "ops")
	s.Require().NoError(err)
	s.token = token

	s.router = NewRouter(Handlers{
		Webhook:  NewWebhookHandler(webhookUC.NewDispatchUseCase(ingestUC, nil, log), log),
		Sync:     NewSyncHandler(s.trigger),
		Prospect: NewProspectHandler(recordsUC.NewListRecordsUseCase(s.repo, log), recordsUC.NewGetRecordUseCase(s.repo)),
		Queue:    NewQueueHandler(queueUC.NewQueueUseCase(s.remote, s.repo, log, queueUC.WithBatchPause(0))),
	}, jwtSvc, metrics.NewRecorder(), log)
}

func TestRouter(t *testing.T) {
	suite.Run(t, new(RouterTestSuite))
}

func (s *RouterTestSuite) do(method, path, body string, authed bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func (s *RouterTestSuite) TestHealth() {
	w := s.do(http.MethodGet, "/api/health", "", false)
	s.Equal(http.StatusOK, w.Code)
	s.Equal("UP", decode[map[string]any](s.T(), w)["status"])
}

func (s *RouterTestSuite) TestMetricsExposed() {
	w := s.do(http.MethodGet, "/metrics", "", false)
	s.Equal(http.StatusOK, w.Code)
}

func (s *RouterTestSuite) TestWebhook_CreateIsNormalizedAndStored() {
	body := `{"type":"visit","event":"create","data":{"id":"p1","First Name":"Ada","VisitTime":1704164645000,
		"Position-0-Company":"Acme","Position-0-Title":"Eng","Position-2-Company":"Globex"}}`

	w := s.do(http.MethodPost, "/api/webhook/duxsoup", body, false)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal("success", decode[map[string]any](s.T(), w)["status"])

	rec, err := s.repo.FindByID(context.Background(), prospect.KindVisit, "p1")
	s.Require().NoError(err)
	s.Equal("Ada", rec.FirstName)
	s.Len(rec.Positions, 2)
	s.True(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC).Equal(rec.CapturedAt))

	// redelivery leaves one record
	w = s.do(http.MethodPost, "/api/webhook/duxsoup", body, false)
	s.Equal(http.StatusOK, w.Code)
	s.Equal(1, s.repo.Len(prospect.KindVisit))
}

func (s *RouterTestSuite) TestWebhook_IgnoredPayloadsStillAcknowledged() {
	for _, body := range []string{
		`{"type":"visit","event":"create","data":{"First Name":"NoID"}}`,
		`{"type":"visit","event":"create"}`,
		`{"type":"scan","event":"create","data":{}}`,
		`{"type":"message","event":"create","data":{"id":"x"}}`,
		`{"type":"scan","event":"delete","data":{"id":"x"}}`,
	} {
		w := s.do(http.MethodPost, "/api/webhook/duxsoup", body, false)
		s.Equal(http.StatusOK, w.Code, body)
	}
	s.Zero(s.repo.Len(prospect.KindVisit))
	s.Zero(s.repo.Len(prospect.KindScan))
}

func (s *RouterTestSuite) TestWebhook_MalformedEnvelopeFieldsAreIgnored() {
	for _, body := range []string{
		`{"type":"visit","event":"create","data":"x"}`,
		`{"type":"visit","event":"create","data":[]}`,
		`{"type":"visit","data":"oops"}`,
		`{"type":1,"event":"create","data":{"id":"v1"}}`,
		`{"type":"scan","event":true,"data":{"id":"s1"}}`,
	} {
		w := s.do(http.MethodPost, "/api/webhook/duxsoup", body, false)
		s.Require().Equal(http.StatusOK, w.Code, body)
		resp := decode[map[string]any](s.T(), w)
		s.Equal("success", resp["status"], body)
		s.Equal("ignored", resp["outcome"], body)
	}
	s.Zero(s.repo.Len(prospect.KindVisit))
	s.Zero(s.repo.Len(prospect.KindScan))
}

func (s *RouterTestSuite) TestWebhook_UnrecognizableBody() {
	for _, body := range []string{"", "not json", `["a"]`, `"str"`, `{"type":`} {
		w := s.do(http.MethodPost, "/api/webhook/duxsoup", body, false)
		s.Equal(http.StatusBadRequest, w.Code, body)
	}
}

func (s *RouterTestSuite) TestWebhook_StoreFailureIs500() {
	s.repo.UpsertErr = apperror.NewInternal("db down", errors.New("boom"))
	w := s.do(http.MethodPost, "/api/webhook/duxsoup", `{"type":"scan","event":"update","data":{"id":"s1"}}`, false)
	s.Equal(http.StatusInternalServerError, w.Code)
}

func (s *RouterTestSuite) TestAdminRequiresToken() {
	s.Equal(http.StatusUnauthorized, s.do(http.MethodGet, "/api/admin/visits", "", false).Code)
	s.Equal(http.StatusUnauthorized, s.do(http.MethodPost, "/api/admin/sync/visits", "", false).Code)
}

func (s *RouterTestSuite) TestListAndGetRecords() {
	now := time.Now().UTC()
	s.repo.Seed(prospect.KindScan, &prospect.Record{ID: "s1", Company: "Acme", CapturedAt: now})
	s.repo.Seed(prospect.KindScan, &prospect.Record{ID: "s2", Company: "Globex", CapturedAt: now.Add(-time.Hour)})

	w := s.do(http.MethodGet, "/api/admin/scans?company=Acme", "", true)
	s.Require().Equal(http.StatusOK, w.Code)
	list := decode[[]RecordDTO](s.T(), w)
	s.Require().Len(list, 1)
	s.Equal("s1", list[0].ID)
	s.NotNil(list[0].Positions)

	s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/api/admin/scans?since=yesterday", "", true).Code)
	s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/api/admin/scans?limit=abc", "", true).Code)

	w = s.do(http.MethodGet, "/api/admin/scans/s2", "", true)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal("Globex", decode[RecordDTO](s.T(), w).Company)

	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/api/admin/visits/missing", "", true).Code)
}

func (s *RouterTestSuite) TestManualSync() {
	w := s.do(http.MethodPost, "/api/admin/sync/scans", "", true)
	s.Require().Equal(http.StatusOK, w.Code)
	body := decode[map[string]any](s.T(), w)
	s.Equal("scan", body["kind"])
	s.Equal(float64(2), body["added"])

	s.trigger.err = apperror.NewConflict("sync", "a visit sync is already running")
	s.Equal(http.StatusConflict, s.do(http.MethodPost, "/api/admin/sync/visits", "", true).Code)
}

func (s *RouterTestSuite) TestQueueEndpoints() {
	w := s.do(http.MethodPost, "/api/admin/queue/visit", `{"profileUrl":"https://li/in/a"}`, true)
	s.Require().Equal(http.StatusOK, w.Code)
	env := decode[map[string]any](s.T(), w)
	s.Equal("success", env["status"])
	s.Equal("m-1", env["data"].(map[string]any)["messageid"])

	s.Equal(http.StatusBadRequest, s.do(http.MethodPost, "/api/admin/queue/visit", `{}`, true).Code)
	s.Equal(http.StatusBadRequest, s.do(http.MethodPost, "/api/admin/queue/connect", `{"profileUrl":"https://li/in/a"}`, true).Code)
	s.Equal(http.StatusBadRequest, s.do(http.MethodPost, "/api/admin/queue/batch", `{"profileUrls":[]}`, true).Code)
	s.Equal(http.StatusBadRequest, s.do(http.MethodPost, "/api/admin/queue/all", `{"collectionType":"messages"}`, true).Code)

	w = s.do(http.MethodPost, "/api/admin/queue/batch", `{"profileUrls":["u1","u2","u3"],"batchSize":2}`, true)
	s.Require().Equal(http.StatusOK, w.Code)
	data := decode[map[string]any](s.T(), w)["data"].(map[string]any)
	s.Equal(float64(3), data["total"])
	s.Equal(float64(3), data["queued"])

	s.Equal(http.StatusOK, s.do(http.MethodGet, "/api/admin/queue/status", "", true).Code)
	s.Equal(http.StatusOK, s.do(http.MethodPost, "/api/admin/queue/clear", "", true).Code)
	s.Len(s.remote.enqueued, 4)
}

func (s *RouterTestSuite) TestQueueAll_DefaultsToScans() {
	old := time.Now().UTC().Add(-30 * 24 * time.Hour)
	s.repo.Seed(prospect.KindScan, &prospect.Record{ID: "s1", ProfileURL: "https://li/in/scan", CapturedAt: old})
	s.repo.Seed(prospect.KindVisit, &prospect.Record{ID: "v1", ProfileURL: "https://li/in/visit", CapturedAt: old})

	w := s.do(http.MethodPost, "/api/admin/queue/all", `{}`, true)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal([]string{"visit:https://li/in/scan"}, s.remote.enqueued)

	w = s.do(http.MethodPost, "/api/admin/queue/all", `{"collectionType":"visits"}`, true)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal([]string{"visit:https://li/in/scan", "visit:https://li/in/visit"}, s.remote.enqueued)
}

func TestRecoveryMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RecoveryMiddleware(logger.NewNop()))
	r.GET("/boom", func(*gin.Context) { panic("kaboom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
