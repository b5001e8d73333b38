package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/khoahotran/prospect-sync/adapters/event"
	"github.com/khoahotran/prospect-sync/adapters/media_storage"
	"github.com/khoahotran/prospect-sync/adapters/persistence"
	"github.com/khoahotran/prospect-sync/internal/application/usecase/ingest"
	mediaUC "github.com/khoahotran/prospect-sync/internal/application/usecase/media"
	webhookUC "github.com/khoahotran/prospect-sync/internal/application/usecase/webhook"
	"github.com/khoahotran/prospect-sync/internal/config"
	"github.com/khoahotran/prospect-sync/pkg/logger"
	"github.com/khoahotran/prospect-sync/pkg/metrics"
	"github.com/khoahotran/prospect-sync/pkg/tracing"
)

const (
	serviceName     = "prospect-sync-worker"
	maxHandleTries  = 3
	handleRetryBase = time.Second
)

// errSkip marks a message that can never be processed.
var errSkip = errors.New("skip message")

func main() {
	// Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: cannot load config: %v", err)
	}

	appLogger := logger.NewZapLogger(cfg.App.Env, serviceName)
	defer appLogger.Sync()

	if len(cfg.Kafka.Brokers) == 0 {
		appLogger.Fatal("Worker requires kafka.brokers", errors.New("no brokers configured"))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(cfg, appLogger, serviceName)
	if err != nil {
		appLogger.Fatal("Cannot init tracing", err)
	}
	defer shutdownTracing(context.Background())

	// Database
	dbPool, err := persistence.NewPostgresPool(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Cannot connect Postgres", err)
	}
	defer dbPool.Close()

	kafkaClient, err := event.NewKafkaProducerClient(cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Cannot init Kafka", err)
	}
	defer kafkaClient.Close()

	// Repositories and use cases
	prospectRepo := persistence.NewPostgresProspectRepo(dbPool, appLogger)
	ingestUseCase := ingest.NewIngestUseCase(prospectRepo, kafkaClient, appLogger)
	defer ingestUseCase.Wait()
	dispatchUseCase := webhookUC.NewDispatchUseCase(ingestUseCase, metrics.NewRecorder(), appLogger)

	g, gctx := errgroup.WithContext(ctx)

	webhookReader := newReader(cfg, event.TopicWebhookEvents, "prospect-webhook-dispatcher")
	defer webhookReader.Close()
	g.Go(func() error {
		return consume(gctx, webhookReader, appLogger, func(ctx context.Context, msg kafka.Message) error {
			var payload event.WebhookEventPayload
			dec := json.NewDecoder(bytes.NewReader(msg.Value))
			dec.UseNumber()
			if err := dec.Decode(&payload); err != nil {
				return errors.Join(errSkip, err)
			}
			_, err := dispatchUseCase.Execute(ctx, payload)
			return err
		})
	})

	// Thumbnail mirroring is optional.
	uploader, err := media_storage.NewCloudinaryAdapter(cfg, appLogger)
	if err != nil {
		appLogger.Warn("Cloudinary not configured, thumbnail mirroring disabled", zap.Error(err))
	} else {
		mirrorUseCase := mediaUC.NewMirrorThumbnailUseCase(prospectRepo, uploader, appLogger)
		eventsReader := newReader(cfg, event.TopicProspectEvents, "prospect-thumbnail-mirror")
		defer eventsReader.Close()
		g.Go(func() error {
			return consume(gctx, eventsReader, appLogger, func(ctx context.Context, msg kafka.Message) error {
				var payload event.ProspectEventPayload
				if err := json.Unmarshal(msg.Value, &payload); err != nil {
					return errors.Join(errSkip, err)
				}
				return mirrorUseCase.Execute(ctx, payload)
			})
		})
	}

	if err := g.Wait(); err != nil {
		appLogger.Error("Worker exited with error", err)
	}
	appLogger.Info("Worker stopped")
}

func newReader(cfg config.Config, topic, group string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Kafka.Brokers,
		Topic:    topic,
		GroupID:  group,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
}

// consume processes messages one at a time until ctx is cancelled. A message
// is committed once handled, once known to be unprocessable, or after
// maxHandleTries failures.
func consume(ctx context.Context, reader *kafka.Reader, log logger.Logger, handle func(context.Context, kafka.Message) error) error {
	topic := reader.Config().Topic
	log.Info("Worker listening", zap.String("topic", topic))

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error("Failed to fetch message from Kafka", err, zap.String("topic", topic))
			time.Sleep(handleRetryBase)
			continue
		}

		l := log.With(zap.String("topic", msg.Topic), zap.String("key", string(msg.Key)), zap.Int64("offset", msg.Offset))

		for attempt := 1; ; attempt++ {
			err = handle(ctx, msg)
			if err == nil || errors.Is(err, errSkip) || attempt >= maxHandleTries || ctx.Err() != nil {
				break
			}
			l.Warn("Handler failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(time.Duration(attempt) * handleRetryBase):
			}
		}

		switch {
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, errSkip):
			l.Warn("Skipping malformed message", zap.Error(err))
		case err != nil:
			l.Error("Giving up on message", err)
		}
		commitMessage(ctx, reader, msg, l)
	}
}

func commitMessage(ctx context.Context, reader *kafka.Reader, msg kafka.Message, log logger.Logger) {
	if err := reader.CommitMessages(ctx, msg); err != nil {
		log.Error("Failed to commit message", err)
	}
}
