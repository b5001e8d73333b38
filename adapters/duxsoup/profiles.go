package duxsoup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/khoahotran/prospect-sync/internal/application/service"
	"github.com/khoahotran/prospect-sync/internal/domain/prospect"
)

// Remote listing endpoints, relative to the account root.
const (
	EndpointVisitCandidates = "profiles/connections"
	EndpointScanCandidates  = "profiles/scans"
	EndpointProfileDetail   = "profiles/"
)

var _ service.ProspectSource = (*Client)(nil)

func (c *Client) FetchCandidates(ctx context.Context, filter service.CandidateFilter) ([]service.Candidate, error) {
	endpoint := EndpointVisitCandidates
	if filter.Kind == prospect.KindScan {
		endpoint = EndpointScanCandidates
	}
	params := map[string]string{}
	if filter.Limit > 0 {
		params["limit"] = strconv.Itoa(filter.Limit)
	}

	body, err := c.Get(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}
	items, err := decodeList(body)
	if err != nil {
		return nil, fmt.Errorf("candidate payload parse: %w", err)
	}

	out := make([]service.Candidate, 0, len(items))
	for _, item := range items {
		id := stringField(item, "id")
		if id == "" {
			continue
		}
		out = append(out, service.Candidate{ID: id, ProfileURL: stringField(item, "Profile", "profile")})
	}
	return out, nil
}

func (c *Client) FetchDetail(ctx context.Context, kind prospect.Kind, id string) (prospect.FlatRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("profile id is required")
	}
	body, err := c.Get(ctx, EndpointProfileDetail+url.PathEscape(id), map[string]string{"type": string(kind)})
	if err != nil {
		return nil, err
	}
	rec, err := decodeObject(body)
	if err != nil {
		return nil, fmt.Errorf("detail payload parse: %w", err)
	}
	return rec, nil
}

// decodeList accepts both object-wrapped and bare-array payloads.
func decodeList(body []byte) ([]prospect.FlatRecord, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var arr []prospect.FlatRecord
		if err := unmarshalNumbers(trimmed, &arr); err != nil {
			return nil, err
		}
		return arr, nil
	}
	var wrapped struct {
		Data     []prospect.FlatRecord `json:"data"`
		Profiles []prospect.FlatRecord `json:"profiles"`
		Items    []prospect.FlatRecord `json:"items"`
	}
	if err := unmarshalNumbers(trimmed, &wrapped); err != nil {
		return nil, err
	}
	switch {
	case len(wrapped.Data) > 0:
		return wrapped.Data, nil
	case len(wrapped.Profiles) > 0:
		return wrapped.Profiles, nil
	}
	return wrapped.Items, nil
}

// decodeObject accepts a bare record or one wrapped in "data" or "profile".
// An empty body decodes to nil.
func decodeObject(body []byte) (prospect.FlatRecord, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var rec prospect.FlatRecord
	if err := unmarshalNumbers(trimmed, &rec); err != nil {
		return nil, err
	}
	for _, key := range []string{"data", "profile"} {
		if inner, ok := rec[key].(map[string]any); ok && len(rec) == 1 {
			return prospect.FlatRecord(inner), nil
		}
	}
	return rec, nil
}

func unmarshalNumbers(b []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	return dec.Decode(out)
}

func stringField(rec prospect.FlatRecord, keys ...string) string {
	for _, k := range keys {
		switch v := rec[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case json.Number:
			return v.String()
		}
	}
	return ""
}
