package persistence

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/suite"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/khoahotran/prospect-sync/internal/domain/prospect"
	"github.com/khoahotran/prospect-sync/pkg/logger"
)

type ProspectRepoIntegrationTestSuite struct {
	suite.Suite
	dbPool      *pgxpool.Pool
	pgContainer *postgres.PostgresContainer
	repo        prospect.Repository
}

func (s *ProspectRepoIntegrationTestSuite) SetupSuite() {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(1*time.Minute),
		),
	)
	if err != nil {
		s.T().Fatalf("Failed to start postgres container: %s", err)
	}
	s.pgContainer = pgContainer

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		s.T().Fatalf("Failed to get connection string: %s", err)
	}

	m, err := migrate.New("file://../../migrations", dsn)
	if err != nil {
		s.T().Fatalf("Failed to create migrate instance: %s", err)
	}
	if err := m.Up(); err != nil {
		s.T().Fatalf("Failed to run migrations: %s", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		s.T().Fatalf("Failed to create pgxpool: %s", err)
	}
	s.dbPool = pool
	s.repo = NewPostgresProspectRepo(s.dbPool, logger.NewNop())
}

func (s *ProspectRepoIntegrationTestSuite) SetupTest() {
	_, err := s.dbPool.Exec(context.Background(), "TRUNCATE visits, scans")
	s.Require().NoError(err)
}

func (s *ProspectRepoIntegrationTestSuite) TearDownSuite() {
	if s.dbPool != nil {
		s.dbPool.Close()
	}
	if s.pgContainer != nil {
		if err := s.pgContainer.Terminate(context.Background()); err != nil {
			s.T().Fatalf("Failed to terminate postgres container: %s", err)
		}
	}
}

func TestProspectRepoIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode.")
	}
	suite.Run(t, new(ProspectRepoIntegrationTestSuite))
}

func (s *ProspectRepoIntegrationTestSuite) Test_Upsert_CreateThenMerge() {
	ctx := context.Background()
	captured := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	res, err := s.repo.Upsert(ctx, prospect.KindVisit, &prospect.Record{
		ID:         "v1",
		CapturedAt: captured,
		FirstName:  "Ada",
		Company:    "Acme",
		Positions:  []prospect.Position{{Company: "Acme"}, {Company: "Globex"}},
		Extra:      map[string]any{"Degree": "1st"},
	})
	s.Require().NoError(err)
	s.True(res.Created)

	res, err = s.repo.Upsert(ctx, prospect.KindVisit, &prospect.Record{
		ID:        "v1",
		LastName:  "Lovelace",
		Positions: []prospect.Position{{Company: "Initech"}},
	})
	s.Require().NoError(err)
	s.False(res.Created)

	got, err := s.repo.FindByID(ctx, prospect.KindVisit, "v1")
	s.Require().NoError(err)
	s.Equal("Ada", got.FirstName)
	s.Equal("Lovelace", got.LastName)
	s.Equal("Acme", got.Company)
	s.True(captured.Equal(got.CapturedAt))
	s.Equal([]prospect.Position{{Company: "Initech"}}, got.Positions)
	s.Equal("1st", got.Extra["Degree"])
	s.False(got.UpdatedAt.Before(got.CreatedAt))

	_, err = s.repo.FindByID(ctx, prospect.KindScan, "v1")
	s.ErrorIs(err, prospect.ErrRecordNotFound)
}

func (s *ProspectRepoIntegrationTestSuite) Test_Upsert_ConcurrentSameID() {
	ctx := context.Background()
	const writers = 8

	errs := make(chan error, writers)
	created := make(chan bool, writers)
	for i := 0; i < writers; i++ {
		i := i
		go func() {
			res, err := s.repo.Upsert(ctx, prospect.KindScan, &prospect.Record{
				ID:         "s1",
				CapturedAt: time.Now().UTC(),
				Title:      fmt.Sprintf("title-%d", i),
			})
			errs <- err
			created <- err == nil && res.Created
		}()
	}

	creates := 0
	for j := 0; j < writers; j++ {
		s.NoError(<-errs)
		if <-created {
			creates++
		}
	}
	s.Equal(1, creates)

	n, err := s.repo.CountSince(ctx, prospect.KindScan, time.Time{})
	s.Require().NoError(err)
	s.Equal(1, n)
}

func (s *ProspectRepoIntegrationTestSuite) Test_CountSince_And_List() {
	ctx := context.Background()
	day := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)

	for i, c := range []string{"Acme", "Globex", "Acme"} {
		_, err := s.repo.Upsert(ctx, prospect.KindVisit, &prospect.Record{
			ID:         fmt.Sprintf("v%d", i),
			CapturedAt: day.Add(time.Duration(i-1) * time.Hour),
			Company:    c,
		})
		s.Require().NoError(err)
	}

	n, err := s.repo.CountSince(ctx, prospect.KindVisit, day)
	s.Require().NoError(err)
	s.Equal(2, n)

	all, err := s.repo.List(ctx, prospect.KindVisit, prospect.ListFilter{})
	s.Require().NoError(err)
	s.Require().Len(all, 3)
	s.Equal("v2", all[0].ID)
	s.Equal("v0", all[2].ID)

	acme, err := s.repo.List(ctx, prospect.KindVisit, prospect.ListFilter{Company: "Acme", Limit: 1, Offset: 1})
	s.Require().NoError(err)
	s.Require().Len(acme, 1)
	s.Equal("v0", acme[0].ID)

	older, err := s.repo.List(ctx, prospect.KindVisit, prospect.ListFilter{Before: day})
	s.Require().NoError(err)
	s.Require().Len(older, 1)
	s.Equal("v0", older[0].ID)
}

func (s *ProspectRepoIntegrationTestSuite) Test_SetExtra() {
	ctx := context.Background()
	_, err := s.repo.Upsert(ctx, prospect.KindScan, &prospect.Record{ID: "s9", CapturedAt: time.Now().UTC(), Extra: map[string]any{"Keep": "me"}})
	s.Require().NoError(err)

	s.Require().NoError(s.repo.SetExtra(ctx, prospect.KindScan, "s9", "ThumbnailMirror", "https://cdn/x.jpg"))

	got, err := s.repo.FindByID(ctx, prospect.KindScan, "s9")
	s.Require().NoError(err)
	s.Equal("https://cdn/x.jpg", got.Extra["ThumbnailMirror"])
	s.Equal("me", got.Extra["Keep"])

	err = s.repo.SetExtra(ctx, prospect.KindScan, "missing", "k", "v")
	s.ErrorIs(err, prospect.ErrRecordNotFound)
}
