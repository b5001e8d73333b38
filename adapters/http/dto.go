package http

import (
	"time"

	"github.com/khoahotran/prospect-sync/internal/application/service"
	"github.com/khoahotran/prospect-sync/internal/domain/prospect"
)

type RecordDTO struct {
	ID               string              `json:"id"`
	Kind             prospect.Kind       `json:"kind"`
	CapturedAt       time.Time           `json:"captured_at"`
	FirstName        string              `json:"first_name"`
	LastName         string              `json:"last_name"`
	ProfileURL       string              `json:"profile_url"`
	PublicProfileURL string              `json:"public_profile_url"`
	Title            string              `json:"title"`
	Company          string              `json:"company"`
	Industry         string              `json:"industry"`
	Location         string              `json:"location"`
	Thumbnail        string              `json:"thumbnail"`
	Positions        []prospect.Position `json:"positions"`
	Schools          []prospect.School   `json:"schools"`
	Skills           []string            `json:"skills"`
	Extra            map[string]any      `json:"extra"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

func ToRecordDTO(r *prospect.Record) RecordDTO {
	dto := RecordDTO{
		ID:               r.ID,
		Kind:             r.Kind,
		CapturedAt:       r.CapturedAt,
		FirstName:        r.FirstName,
		LastName:         r.LastName,
		ProfileURL:       r.ProfileURL,
		PublicProfileURL: r.PublicProfileURL,
		Title:            r.Title,
		Company:          r.Company,
		Industry:         r.Industry,
		Location:         r.Location,
		Thumbnail:        r.Thumbnail,
		Positions:        r.Positions,
		Schools:          r.Schools,
		Skills:           r.Skills,
		Extra:            r.Extra,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	if dto.Positions == nil {
		dto.Positions = []prospect.Position{}
	}
	if dto.Schools == nil {
		dto.Schools = []prospect.School{}
	}
	if dto.Skills == nil {
		dto.Skills = []string{}
	}
	if dto.Extra == nil {
		dto.Extra = map[string]any{}
	}
	return dto
}

func ToRecordDTOs(records []*prospect.Record) []RecordDTO {
	out := make([]RecordDTO, len(records))
	for i, r := range records {
		out[i] = ToRecordDTO(r)
	}
	return out
}

// Queue requests mirror the camelCase body the operator console sends.
type QueueOptionsRequest struct {
	CampaignID string     `json:"campaignId"`
	Force      bool       `json:"force"`
	RunAfter   *time.Time `json:"runAfter"`
}

func (r QueueOptionsRequest) ToOptions() service.QueueOptions {
	return service.QueueOptions{CampaignID: r.CampaignID, Force: r.Force, RunAfter: r.RunAfter}
}

type QueueProfileRequest struct {
	QueueOptionsRequest
	ProfileURL  string `json:"profileUrl"`
	MessageText string `json:"messageText"`
}

type QueueBatchRequest struct {
	QueueOptionsRequest
	ProfileURLs []string `json:"profileUrls"`
	BatchSize   int      `json:"batchSize"`
}

type QueueAllRequest struct {
	QueueOptionsRequest
	CollectionType string `json:"collectionType"`
	Limit          int    `json:"limit"`
	BatchSize      int    `json:"batchSize"`
}

type envelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func success(message string, data any) envelope {
	return envelope{Status: "success", Message: message, Data: data}
}
