// Package records serves read-only views over stored profiles.
package records

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/khoahotran/prospect-sync/internal/domain/prospect"
	"github.com/khoahotran/prospect-sync/pkg/apperror"
	"github.com/khoahotran/prospect-sync/pkg/logger"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

type ListRecordsUseCase struct {
	repo   prospect.Repository
	logger logger.Logger
}

func NewListRecordsUseCase(repo prospect.Repository, log logger.Logger) *ListRecordsUseCase {
	return &ListRecordsUseCase{repo: repo, logger: log}
}

type ListInput struct {
	Kind   prospect.Kind
	Filter prospect.ListFilter
}

type ListOutput struct {
	Records []*prospect.Record
}

func (uc *ListRecordsUseCase) Execute(ctx context.Context, input ListInput) (*ListOutput, error) {
	f := input.Filter
	if f.Limit < 0 || f.Offset < 0 {
		return nil, apperror.NewInvalidInput("limit and offset must not be negative", nil)
	}
	if f.Limit == 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}

	recs, err := uc.repo.List(ctx, input.Kind, f)
	if err != nil {
		uc.logger.Error("Failed to list records", err, zap.String("kind", string(input.Kind)))
		return nil, err
	}
	return &ListOutput{Records: recs}, nil
}

type GetRecordUseCase struct {
	repo prospect.Repository
}

func NewGetRecordUseCase(repo prospect.Repository) *GetRecordUseCase {
	return &GetRecordUseCase{repo: repo}
}

func (uc *GetRecordUseCase) Execute(ctx context.Context, kind prospect.Kind, id string) (*prospect.Record, error) {
	rec, err := uc.repo.FindByID(ctx, kind, id)
	if err != nil {
		if errors.Is(err, prospect.ErrRecordNotFound) {
			return nil, apperror.NewNotFound(string(kind), id)
		}
		return nil, err
	}
	return rec, nil
}
