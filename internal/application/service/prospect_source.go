package service

import (
	"context"

	"github.com/khoahotran/prospect-sync/internal/domain/prospect"
)

// Candidate is one entry of the remote candidate list. Only ID is required.
type Candidate struct {
	ID         string `json:"id"`
	ProfileURL string `json:"profile,omitempty"`
}

type CandidateFilter struct {
	Kind  prospect.Kind
	Limit int
}

// ProspectSource is the read side of the remote automation API.
type ProspectSource interface {
	FetchCandidates(ctx context.Context, filter CandidateFilter) ([]Candidate, error)
	// FetchDetail returns the flat record for id. A nil record with a nil
	// error means the remote answered with an empty body.
	FetchDetail(ctx context.Context, kind prospect.Kind, id string) (prospect.FlatRecord, error)
}
