package service

import (
	"context"
)

type Uploader interface {
	// UploadRemote copies the asset at sourceURL into the media store and
	// returns its public URL.
	UploadRemote(ctx context.Context, sourceURL string, folder string, publicID string) (string, error)
}
