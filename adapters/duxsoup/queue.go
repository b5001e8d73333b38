package duxsoup

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/khoahotran/prospect-sync/internal/application/service"
)

const (
	EndpointQueueSize  = "queue/size"
	EndpointQueueItems = "queue/items"
	EndpointQueue      = "queue"
	EndpointReset      = "reset"
)

var _ service.RemoteQueue = (*Client)(nil)

func queueParams(f service.QueueFilter) map[string]string {
	return map[string]string{
		"campaignid": f.CampaignID,
		"profileid":  f.ProfileID,
		"command":    f.Command,
	}
}

func (c *Client) QueueSize(ctx context.Context, filter service.QueueFilter) (map[string]any, error) {
	body, err := c.Get(ctx, EndpointQueueSize, queueParams(filter))
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := unmarshalNumbers(body, &out); err != nil {
		return nil, fmt.Errorf("queue size payload parse: %w", err)
	}
	return out, nil
}

// QueuedItems returns the remote payload as-is; the remote caps it at 100 items.
func (c *Client) QueuedItems(ctx context.Context, filter service.QueueFilter) (any, error) {
	body, err := c.Get(ctx, EndpointQueueItems, queueParams(filter))
	if err != nil {
		return nil, err
	}
	var out any
	if err := unmarshalNumbers(body, &out); err != nil {
		return nil, fmt.Errorf("queue items payload parse: %w", err)
	}
	return out, nil
}

func (c *Client) ClearQueue(ctx context.Context) (map[string]any, error) {
	body, err := c.Post(ctx, EndpointReset, nil)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if len(body) > 0 {
		if err := unmarshalNumbers(body, &out); err != nil {
			return nil, fmt.Errorf("reset payload parse: %w", err)
		}
	}
	return out, nil
}

// Enqueue posts one robot command. message is only sent for connect and
// message commands.
func (c *Client) Enqueue(ctx context.Context, command service.QueueCommand, profileURL, message string, opts service.QueueOptions) (*service.QueueReceipt, error) {
	params := map[string]any{
		"profile": profileURL,
		"force":   opts.Force,
	}
	if command != service.CommandVisit {
		params["messagetext"] = message
	}
	if opts.CampaignID != "" {
		params["campaignid"] = opts.CampaignID
	}
	data := map[string]any{
		"command": string(command),
		"params":  params,
	}
	if opts.RunAfter != nil {
		data["runafter"] = opts.RunAfter.UTC().Format(time.RFC3339)
	}

	body, err := c.Post(ctx, EndpointQueue, data)
	if err != nil {
		return nil, err
	}
	receipt := &service.QueueReceipt{Raw: map[string]any{}}
	if len(body) > 0 {
		if err := unmarshalNumbers(body, &receipt.Raw); err != nil {
			return nil, fmt.Errorf("queue payload parse: %w", err)
		}
	}
	switch id := receipt.Raw["messageid"].(type) {
	case string:
		receipt.MessageID = id
	case json.Number:
		receipt.MessageID = id.String()
	}
	return receipt, nil
}
