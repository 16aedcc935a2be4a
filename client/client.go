// Package client is a typed client for the status API served by
// internal/server. It covers every REST route plus the websocket watch
// streams, and translates API errors back into the engine's sentinel
// errors so callers can use errors.Is on either side of the wire.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tarneaux/swec"
)

const apiPrefix = "/api/v1"

// connection pooling limits; a checker talks to one host forever, so
// the per-host numbers are what matter
const (
	defaultMaxIdleConns    = 10
	defaultIdleConnTimeout = 60 * time.Second
)

// Client talks to one status API endpoint. Use a client pointed at the
// private address for writes; the public address only serves reads.
//
// All methods take a context for cancellation and deadlines; the
// client sets no global timeout of its own.
type Client struct {
	base       *url.URL
	httpClient *http.Client
}

// New creates a [Client] for the API at baseURL, e.g.
// "http://127.0.0.1:8081". The URL must be absolute, without the
// /api/v1 prefix.
func New(baseURL string) (*Client, error) {
	base, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base URL scheme must be http or https, got %q", base.Scheme)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("base URL must be absolute")
	}
	return &Client{
		base: base,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:    defaultMaxIdleConns,
				IdleConnTimeout: defaultIdleConnTimeout,
			},
		},
	}, nil
}

// endpoint builds an API URL from path segments (escaped) and an
// optional query.
func (c *Client) endpoint(query url.Values, parts ...string) string {
	u := *c.base
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + apiPrefix + "/" + strings.Join(escaped, "/")
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// do performs one request. body (if non-nil) is sent as JSON; out (if
// non-nil) receives the decoded response. Error responses are mapped
// back to the engine's sentinel errors via their code field.
func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// decodeError turns an error response into a wrapped sentinel error.
func decodeError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err := json.Unmarshal(data, &payload); err != nil || payload.Error == "" {
		return fmt.Errorf("server returned %s", resp.Status)
	}

	var sentinel error
	switch payload.Code {
	case "validation":
		sentinel = swec.ErrValidation
	case "not_found":
		sentinel = swec.ErrNotFound
	case "conflict":
		sentinel = swec.ErrConflict
	case "out_of_order":
		sentinel = swec.ErrOutOfOrder
	case "gone":
		sentinel = swec.ErrGone
	case "persistence":
		sentinel = swec.ErrPersistence
	default:
		return fmt.Errorf("server returned %s: %s", resp.Status, payload.Error)
	}
	return fmt.Errorf("%w: %s", sentinel, payload.Error)
}

// Info returns the endpoint's capabilities and version.
func (c *Client) Info(ctx context.Context) (swec.Info, error) {
	var info swec.Info
	err := c.do(ctx, http.MethodGet, c.endpoint(nil, "info"), nil, &info)
	return info, err
}

// ListCheckers lists all checkers, optionally restricted to one group.
func (c *Client) ListCheckers(ctx context.Context, group string) ([]swec.ListedChecker, error) {
	query := url.Values{}
	if group != "" {
		query.Set("group", group)
	}
	var out []swec.ListedChecker
	err := c.do(ctx, http.MethodGet, c.endpoint(query, "checkers"), nil, &out)
	return out, err
}

// GetChecker fetches one checker with its full history.
func (c *Client) GetChecker(ctx context.Context, name string) (swec.Checker, error) {
	var out swec.Checker
	err := c.do(ctx, http.MethodGet, c.endpoint(nil, "checkers", name), nil, &out)
	return out, err
}

// GetSpec fetches one checker's spec.
func (c *Client) GetSpec(ctx context.Context, name string) (swec.Spec, error) {
	var out swec.Spec
	err := c.do(ctx, http.MethodGet, c.endpoint(nil, "checkers", name, "spec"), nil, &out)
	return out, err
}

// CreateSpec registers a new checker. Requires a writable endpoint.
func (c *Client) CreateSpec(ctx context.Context, name string, spec swec.Spec) error {
	return c.do(ctx, http.MethodPost, c.endpoint(nil, "checkers", name, "spec"), spec, nil)
}

// UpdateSpec replaces an existing checker's spec.
func (c *Client) UpdateSpec(ctx context.Context, name string, spec swec.Spec) error {
	return c.do(ctx, http.MethodPut, c.endpoint(nil, "checkers", name, "spec"), spec, nil)
}

// DeleteChecker removes a checker and its history.
func (c *Client) DeleteChecker(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, c.endpoint(nil, "checkers", name), nil, nil)
}

// AppendStatus reports one observation for a checker.
func (c *Client) AppendStatus(ctx context.Context, name string, st swec.Status) error {
	return c.do(ctx, http.MethodPost, c.endpoint(nil, "checkers", name, "statuses"), st, nil)
}

// GetLatest fetches a checker's newest status.
func (c *Client) GetLatest(ctx context.Context, name string) (swec.Status, error) {
	var out swec.Status
	err := c.do(ctx, http.MethodGet, c.endpoint(nil, "checkers", name, "statuses", "latest"), nil, &out)
	return out, err
}

// HistoryPage is one page of a checker's history.
type HistoryPage struct {
	Total    int           `json:"total"`
	Offset   int           `json:"offset"`
	Statuses []swec.Status `json:"statuses"`
}

// GetHistory fetches one page of a checker's history, oldest first.
// A limit of 0 means "to the end".
func (c *Client) GetHistory(ctx context.Context, name string, offset, limit int) (HistoryPage, error) {
	query := url.Values{}
	if offset > 0 {
		query.Set("offset", strconv.Itoa(offset))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var out HistoryPage
	err := c.do(ctx, http.MethodGet, c.endpoint(query, "checkers", name, "statuses"), nil, &out)
	return out, err
}
