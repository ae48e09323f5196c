// Package network talks to the variations backend over HTTP/JSON.
package network

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ILLUVRSE/placements/placement-engine/internal/models"
	"github.com/ILLUVRSE/placements/placement-engine/internal/resolver"
)

const segmentMismatchCode = "segment_hash_mismatch"

type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	Retries    int
	HTTPClient *http.Client
}

type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	timeout time.Duration
	retries int
}

// TransportError is any failure to get a usable answer from the backend that
// is not one of the resolver's sentinel conditions.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: backend returned %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("variations api base url required")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	retries := cfg.Retries
	if retries < 0 {
		retries = 0
	}
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  client,
		timeout: timeout,
		retries: retries,
	}, nil
}

// Candidates fetches every variation eligible for the placement.
func (c *Client) Candidates(ctx context.Context, q models.Query) (models.Candidates, error) {
	var out models.Candidates
	p := variationsPath("placements", q)
	if q.Untargeted {
		p += "/untargeted"
	}
	err := c.get(ctx, "fetch candidates", p, query(q), &out)
	return out, err
}

func (c *Client) VariationByID(ctx context.Context, q models.Query, variationID string) (models.Variation, error) {
	var out models.Variation
	p := variationsPath("placements", q) + "/" + url.PathEscape(variationID)
	err := c.get(ctx, "fetch variation", p, query(q), &out)
	return out, err
}

// FallbackCandidates reads the backend's fallback endpoint, which serves a
// periodically exported snapshot instead of live targeting.
func (c *Client) FallbackCandidates(ctx context.Context, q models.Query) (models.Candidates, error) {
	var out models.Candidates
	err := c.get(ctx, "fetch fallback candidates", variationsPath("fallback", q), localeOnly(q), &out)
	return out, err
}

func (c *Client) FallbackByID(ctx context.Context, q models.Query, variationID string) (models.Variation, error) {
	var out models.Variation
	p := variationsPath("fallback", q) + "/" + url.PathEscape(variationID)
	err := c.get(ctx, "fetch fallback variation", p, localeOnly(q), &out)
	return out, err
}

// Profile fetches the server view of a profile, including its segment hash
// and the server-issued cross placement map.
func (c *Client) Profile(ctx context.Context, profileID string) (models.Profile, error) {
	var out models.Profile
	err := c.get(ctx, "fetch profile", "/v1/profiles/"+url.PathEscape(profileID), nil, &out)
	return out, err
}

func variationsPath(root string, q models.Query) string {
	return fmt.Sprintf("/v1/%s/%ss/%s/variations", root, q.Kind, url.PathEscape(q.PlacementID))
}

func query(q models.Query) url.Values {
	v := localeOnly(q)
	if !q.Untargeted && q.SegmentID != "" {
		v.Set("segment_hash", q.SegmentID)
	}
	return v
}

func localeOnly(q models.Query) url.Values {
	v := url.Values{}
	if q.Locale != "" {
		v.Set("locale", q.Locale)
	}
	return v
}

func (c *Client) get(ctx context.Context, op, path string, params url.Values, out interface{}) error {
	target := c.baseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	attempts := c.retries + 1
	var lastErr error
	for i := 0; i < attempts; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := c.do(ctx, op, target, out)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		lastErr = err
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(i+1) * 100 * time.Millisecond):
			}
		}
	}
	return lastErr
}

func (c *Client) do(ctx context.Context, op, target string, out interface{}) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Api-Key "+c.apiKey)
	}
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	return decodeResponse(op, resp, out)
}

type errorBody struct {
	Error string `json:"error"`
}

func decodeResponse(op string, resp *http.Response, out interface{}) error {
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, resolver.ErrNotFound)
	case resp.StatusCode == http.StatusConflict:
		var body errorBody
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body)
		if body.Error == segmentMismatchCode {
			return fmt.Errorf("%s: %w", op, resolver.ErrSegmentMismatch)
		}
		return &TransportError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(body.Error)}
	case resp.StatusCode != http.StatusOK:
		return &TransportError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(resp.Status)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: %w: %v", op, resolver.ErrDecodingFailed, err)
	}
	return nil
}

func retryable(err error) bool {
	var te *TransportError
	if !errors.As(err, &te) {
		return false
	}
	return te.StatusCode == 0 || te.StatusCode >= 500 || te.StatusCode == http.StatusTooManyRequests
}
