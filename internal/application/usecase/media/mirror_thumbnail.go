package media

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/khoahotran/prospect-sync/adapters/event"
	"github.com/khoahotran/prospect-sync/internal/application/service"
	"github.com/khoahotran/prospect-sync/internal/domain/prospect"
	"github.com/khoahotran/prospect-sync/pkg/apperror"
	"github.com/khoahotran/prospect-sync/pkg/logger"
)

// Extra keys written by the mirror.
const (
	ExtraThumbnailMirror = "ThumbnailMirror"
	ExtraThumbnailSource = "ThumbnailSource"
)

// MirrorThumbnailUseCase copies a profile thumbnail into the media store so
// it outlives the upstream CDN link.
type MirrorThumbnailUseCase struct {
	repo     prospect.Repository
	uploader service.Uploader
	logger   logger.Logger
}

func NewMirrorThumbnailUseCase(r prospect.Repository, u service.Uploader, log logger.Logger) *MirrorThumbnailUseCase {
	return &MirrorThumbnailUseCase{repo: r, uploader: u, logger: log}
}

func (uc *MirrorThumbnailUseCase) Execute(ctx context.Context, payload event.ProspectEventPayload) error {
	l := uc.logger.With(zap.String("kind", string(payload.Kind)), zap.String("id", payload.ID))

	if payload.Thumbnail == "" {
		return nil
	}

	rec, err := uc.repo.FindByID(ctx, payload.Kind, payload.ID)
	if err != nil {
		if errors.Is(err, prospect.ErrRecordNotFound) {
			l.Warn("Record not found, skipping thumbnail mirror")
			return nil
		}
		return apperror.NewInternal("failed to load record", err)
	}

	if rec.Thumbnail == "" {
		return nil
	}
	if src, _ := rec.Extra[ExtraThumbnailSource].(string); src == rec.Thumbnail {
		if _, done := rec.Extra[ExtraThumbnailMirror]; done {
			l.Debug("Thumbnail already mirrored, skipping")
			return nil
		}
	}

	folder := fmt.Sprintf("prospects/%s", payload.Kind)
	mirrored, err := uc.uploader.UploadRemote(ctx, rec.Thumbnail, folder, rec.ID)
	if err != nil {
		return apperror.NewInternal("failed to mirror thumbnail", err)
	}

	if err := uc.repo.SetExtra(ctx, payload.Kind, rec.ID, ExtraThumbnailMirror, mirrored); err != nil {
		return err
	}
	if err := uc.repo.SetExtra(ctx, payload.Kind, rec.ID, ExtraThumbnailSource, rec.Thumbnail); err != nil {
		return err
	}

	l.Info("Thumbnail mirrored", zap.String("url", mirrored))
	return nil
}
