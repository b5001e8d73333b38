// Package duxsoup is the signed HTTP client for the Dux-Soup remote control API.
package duxsoup

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/khoahotran/prospect-sync/internal/config"
	"github.com/khoahotran/prospect-sync/pkg/apperror"
	"github.com/khoahotran/prospect-sync/pkg/logger"
)

// SignatureHeader carries the base64 HMAC-SHA1 of the request.
const SignatureHeader = "X-Dux-Signature"

// StatusError is a non-2xx answer from the remote API.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("duxsoup %s: http status %d", e.Endpoint, e.StatusCode)
}

func (e *StatusError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusNotFound:
		return apperror.ErrNotFound
	case e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500:
		return apperror.ErrUnavailable
	}
	return apperror.ErrInternal
}

type Client struct {
	baseURL    string
	userID     string
	apiKey     []byte
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     logger.Logger
	now        func() time.Time
}

type Option func(*Client)

// WithHTTPClient replaces the default client, mostly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func NewClient(cfg config.Config, log logger.Logger, opts ...Option) (*Client, error) {
	if cfg.DuxSoup.UserID == "" || cfg.DuxSoup.APIKey == "" {
		return nil, errors.New("duxsoup user id and api key are required")
	}
	base := cfg.DuxSoup.BaseURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}

	limit := rate.Inf
	if cfg.DuxSoup.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.DuxSoup.RequestsPerSecond)
	}

	c := &Client{
		baseURL:    base,
		userID:     cfg.DuxSoup.UserID,
		apiKey:     []byte(cfg.DuxSoup.APIKey),
		httpClient: &http.Client{Timeout: cfg.DuxSoup.Timeout},
		limiter:    rate.NewLimiter(limit, 1),
		logger:     log.With(zap.String("component", "duxsoup")),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Sign returns the base64 HMAC-SHA1 of message under key.
func Sign(key, message []byte) string {
	mac := hmac.New(sha1.New, key)
	mac.Write(message)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (c *Client) endpointURL(endpoint string) string {
	return c.baseURL + url.PathEscape(c.userID) + "/" + strings.TrimLeft(endpoint, "/")
}

// Get signs the full request URL, query string included. Empty params are
// dropped.
func (c *Client) Get(ctx context.Context, endpoint string, params map[string]string) ([]byte, error) {
	u, err := url.Parse(c.endpointURL(endpoint))
	if err != nil {
		return nil, fmt.Errorf("build url for %s: %w", endpoint, err)
	}
	q := u.Query()
	for k, v := range params {
		if v != "" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	full := u.String()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(SignatureHeader, Sign(c.apiKey, []byte(full)))
	return c.do(req, endpoint)
}

// Post adds targeturl, timestamp and userid to data and signs the exact
// serialized body.
func (c *Client) Post(ctx context.Context, endpoint string, data map[string]any) ([]byte, error) {
	target := c.endpointURL(endpoint)
	body := make(map[string]any, len(data)+3)
	for k, v := range data {
		body[k] = v
	}
	body["targeturl"] = target
	body["timestamp"] = c.now().UnixMilli()
	body["userid"] = c.userID

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal %s body: %w", endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, Sign(c.apiKey, raw))
	return c.do(req, endpoint)
}

func (c *Client) do(req *http.Request, endpoint string) ([]byte, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Dux-Soup request failed", err, zap.String("endpoint", endpoint), zap.String("method", req.Method))
		return nil, apperror.NewUnavailable("duxsoup "+endpoint, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperror.NewUnavailable("read duxsoup "+endpoint, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("Dux-Soup returned an error status",
			zap.String("endpoint", endpoint),
			zap.String("method", req.Method),
			zap.Int("status", resp.StatusCode),
		)
		return nil, &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: string(b)}
	}
	return b, nil
}
