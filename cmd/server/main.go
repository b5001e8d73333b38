package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/khoahotran/prospect-sync/adapters/duxsoup"
	"github.com/khoahotran/prospect-sync/adapters/event"
	httpAdapter "github.com/khoahotran/prospect-sync/adapters/http"
	"github.com/khoahotran/prospect-sync/adapters/persistence"
	"github.com/khoahotran/prospect-sync/internal/application/scheduler"
	"github.com/khoahotran/prospect-sync/internal/application/service"
	"github.com/khoahotran/prospect-sync/internal/application/usecase/ingest"
	queueUC "github.com/khoahotran/prospect-sync/internal/application/usecase/queue"
	recordsUC "github.com/khoahotran/prospect-sync/internal/application/usecase/records"
	syncUC "github.com/khoahotran/prospect-sync/internal/application/usecase/sync"
	webhookUC "github.com/khoahotran/prospect-sync/internal/application/usecase/webhook"
	"github.com/khoahotran/prospect-sync/internal/config"
	"github.com/khoahotran/prospect-sync/internal/domain/prospect"
	"github.com/khoahotran/prospect-sync/pkg/auth"
	"github.com/khoahotran/prospect-sync/pkg/logger"
	"github.com/khoahotran/prospect-sync/pkg/metrics"
	"github.com/khoahotran/prospect-sync/pkg/tracing"
)

const serviceName = "prospect-sync-api"

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: cannot load config: %v", err)
	}

	appLogger := logger.NewZapLogger(cfg.App.Env, serviceName)
	defer appLogger.Sync()

	if err := cfg.Validate(); err != nil {
		appLogger.Fatal("Invalid configuration", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(cfg, appLogger, serviceName)
	if err != nil {
		appLogger.Fatal("Cannot init tracing", err)
	}

	// Infrastructure
	dbPool, err := persistence.NewPostgresPool(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Cannot connect Postgres", err)
	}
	defer dbPool.Close()

	redisClient, err := persistence.NewRedisClient(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Cannot connect Redis", err)
	}
	defer redisClient.Close()

	var (
		kafkaClient *event.KafkaProducerClient
		publisher   service.EventPublisher
	)
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaClient, err = event.NewKafkaProducerClient(cfg, appLogger)
		if err != nil {
			appLogger.Fatal("Cannot init Kafka", err)
		}
		defer kafkaClient.Close()
		publisher = kafkaClient
	} else {
		appLogger.Warn("Kafka brokers not configured, ingestion events are not published")
	}

	duxClient, err := duxsoup.NewClient(cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Cannot init Dux-Soup client", err)
	}

	recorder := metrics.NewRecorder()
	jwtSvc := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.TokenLifespan)

	// Repositories
	prospectRepo := persistence.NewPostgresProspectRepo(dbPool, appLogger)

	// Use Cases
	ingestUseCase := ingest.NewIngestUseCase(prospectRepo, publisher, appLogger)
	defer ingestUseCase.Wait()
	visitSync := syncUC.NewSyncUseCase(prospect.KindVisit, prospectRepo, duxClient, ingestUseCase, syncUC.Settings{
		DailyLimit:   cfg.Sync.Visit.DailyLimit,
		ItemDelay:    cfg.Sync.Visit.ItemDelay,
		MaxAttempts:  cfg.Sync.MaxAttempts,
		QueryTimeout: cfg.DB.QueryTimeout,
	}, recorder, appLogger)
	scanSync := syncUC.NewSyncUseCase(prospect.KindScan, prospectRepo, duxClient, ingestUseCase, syncUC.Settings{
		DailyLimit:   cfg.Sync.Scan.DailyLimit,
		ItemDelay:    cfg.Sync.Scan.ItemDelay,
		MaxAttempts:  cfg.Sync.MaxAttempts,
		QueryTimeout: cfg.DB.QueryTimeout,
	}, recorder, appLogger)

	sched := scheduler.NewScheduler(cfg.Sync.Interval, persistence.NewRedisRunLock(redisClient, cfg.Sync.LockTTL), appLogger)
	sched.Register(visitSync, cfg.Sync.Visit.Enabled)
	sched.Register(scanSync, cfg.Sync.Scan.Enabled)

	var receiver webhookUC.Receiver = webhookUC.NewDispatchUseCase(ingestUseCase, recorder, appLogger)
	if cfg.Webhook.Mode == config.WebhookModeKafka {
		receiver = webhookUC.NewRelayUseCase(kafkaClient, recorder, appLogger)
	}
	appLogger.Info("Webhook delivery mode", zap.String("mode", cfg.Webhook.Mode))

	queueUseCase := queueUC.NewQueueUseCase(duxClient, prospectRepo, appLogger)
	listRecordsUseCase := recordsUC.NewListRecordsUseCase(prospectRepo, appLogger)
	getRecordUseCase := recordsUC.NewGetRecordUseCase(prospectRepo)

	// HTTP
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := httpAdapter.NewRouter(httpAdapter.Handlers{
		Webhook:  httpAdapter.NewWebhookHandler(receiver, appLogger),
		Sync:     httpAdapter.NewSyncHandler(sched),
		Prospect: httpAdapter.NewProspectHandler(listRecordsUseCase, getRecordUseCase),
		Queue:    httpAdapter.NewQueueHandler(queueUseCase),
	}, jwtSvc, recorder, appLogger)

	srv := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sched.Start(gctx)
	})
	g.Go(func() error {
		appLogger.Info("Server running", zap.String("port", cfg.App.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("Server shutdown failed", err)
		}
		return shutdownTracing(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		appLogger.Error("Server exited with error", err)
	}
}
