package service

import (
	"context"
	"time"
)

type QueueCommand string

const (
	CommandVisit   QueueCommand = "visit"
	CommandConnect QueueCommand = "connect"
	CommandMessage QueueCommand = "message"
)

// QueueFilter narrows queue inspection. Empty fields are not sent.
type QueueFilter struct {
	CampaignID string
	ProfileID  string
	Command    string
}

type QueueOptions struct {
	CampaignID string
	Force      bool
	RunAfter   *time.Time
}

// QueueReceipt is the remote acknowledgement of a queued action.
type QueueReceipt struct {
	MessageID string         `json:"messageid"`
	Raw       map[string]any `json:"-"`
}

// RemoteQueue drives the automation robot's action queue.
type RemoteQueue interface {
	QueueSize(ctx context.Context, filter QueueFilter) (map[string]any, error)
	QueuedItems(ctx context.Context, filter QueueFilter) (any, error)
	ClearQueue(ctx context.Context) (map[string]any, error)
	Enqueue(ctx context.Context, command QueueCommand, profileURL, message string, opts QueueOptions) (*QueueReceipt, error)
}
