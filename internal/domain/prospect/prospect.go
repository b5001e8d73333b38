package prospect

import (
	"context"
	"errors"
	"time"
)

// Kind selects one of the two profile collections.
type Kind string

const (
	KindVisit Kind = "visit"
	KindScan  Kind = "scan"
)

var ErrRecordNotFound = errors.New("prospect record not found")

func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindVisit:
		return KindVisit, true
	case KindScan:
		return KindScan, true
	}
	return "", false
}

// CaptureField is the flat key carrying the capture time for this kind.
func (k Kind) CaptureField() string {
	if k == KindScan {
		return "ScanTime"
	}
	return "VisitTime"
}

type Position struct {
	Company     string `json:"company"`
	Location    string `json:"location,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	From        string `json:"from,omitempty"`
	To          string `json:"to,omitempty"`
}

type School struct {
	Name   string `json:"name"`
	Degree string `json:"degree,omitempty"`
	Field  string `json:"field,omitempty"`
	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`
}

// Record is a structured profile. Positions, Schools and Skills are nil when
// the ingestion that produced the record did not carry them.
type Record struct {
	ID               string         `json:"id"`
	Kind             Kind           `json:"kind"`
	CapturedAt       time.Time      `json:"captured_at"`
	FirstName        string         `json:"first_name,omitempty"`
	LastName         string         `json:"last_name,omitempty"`
	ProfileURL       string         `json:"profile_url,omitempty"`
	PublicProfileURL string         `json:"public_profile_url,omitempty"`
	Title            string         `json:"title,omitempty"`
	Company          string         `json:"company,omitempty"`
	Industry         string         `json:"industry,omitempty"`
	Location         string         `json:"location,omitempty"`
	Thumbnail        string         `json:"thumbnail,omitempty"`
	Positions        []Position     `json:"positions"`
	Schools          []School       `json:"schools"`
	Skills           []string       `json:"skills"`
	Extra            map[string]any `json:"extra"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// Merge overwrites r with every field supplied by in. Empty strings and a zero
// capture time count as not supplied. Sub-entity collections are replaced
// wholesale, extra attributes key by key.
func (r *Record) Merge(in *Record) {
	setString(&r.FirstName, in.FirstName)
	setString(&r.LastName, in.LastName)
	setString(&r.ProfileURL, in.ProfileURL)
	setString(&r.PublicProfileURL, in.PublicProfileURL)
	setString(&r.Title, in.Title)
	setString(&r.Company, in.Company)
	setString(&r.Industry, in.Industry)
	setString(&r.Location, in.Location)
	setString(&r.Thumbnail, in.Thumbnail)

	if !in.CapturedAt.IsZero() {
		r.CapturedAt = in.CapturedAt
	}
	if in.Positions != nil {
		r.Positions = in.Positions
	}
	if in.Schools != nil {
		r.Schools = in.Schools
	}
	if in.Skills != nil {
		r.Skills = in.Skills
	}
	if len(in.Extra) > 0 {
		if r.Extra == nil {
			r.Extra = make(map[string]any, len(in.Extra))
		}
		for k, v := range in.Extra {
			r.Extra[k] = v
		}
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// PrepareForCreate fills the defaults a brand-new record needs.
func (r *Record) PrepareForCreate(now time.Time) {
	if r.CapturedAt.IsZero() {
		r.CapturedAt = now
	}
	if r.Positions == nil {
		r.Positions = []Position{}
	}
	if r.Schools == nil {
		r.Schools = []School{}
	}
	if r.Skills == nil {
		r.Skills = []string{}
	}
	if r.Extra == nil {
		r.Extra = map[string]any{}
	}
	r.CreatedAt = now
	r.UpdatedAt = now
}

// UpsertResult reports whether an upsert created the record.
type UpsertResult struct {
	Record  *Record
	Created bool
}

// ListFilter narrows read queries. Zero values mean "no constraint".
type ListFilter struct {
	Company string
	Since   time.Time
	Before  time.Time
	Limit   int
	Offset  int
}

// Tally accumulates the outcome of a sync run or batch operation.
type Tally struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
}

func (t *Tally) Record(res UpsertResult) {
	if res.Created {
		t.Added++
		return
	}
	t.Updated++
}

func (t Tally) Processed() int {
	return t.Added + t.Updated + t.Failed
}

type Repository interface {
	FindByID(ctx context.Context, kind Kind, id string) (*Record, error)
	// Upsert atomically creates the record or merges it into the stored one.
	Upsert(ctx context.Context, kind Kind, rec *Record) (UpsertResult, error)
	CountSince(ctx context.Context, kind Kind, since time.Time) (int, error)
	List(ctx context.Context, kind Kind, filter ListFilter) ([]*Record, error)
	SetExtra(ctx context.Context, kind Kind, id, key string, value any) error
}
