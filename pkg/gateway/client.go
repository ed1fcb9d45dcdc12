// Package gateway wraps the network boundary to the remote record store: a
// stateless request/response surface plus a persistent live-update channel.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/offlinekit/recsync/pkg/logger"
	"github.com/offlinekit/recsync/pkg/models"
)

const (
	itemPath      = "/api/item"
	conflictsPath = "/api/item/conflicts"

	defaultReconnectInterval = 5 * time.Second
)

// Client talks JSON over HTTP to the record service, presenting the bearer
// token on every call. It keeps no state between calls.
type Client struct {
	baseURL           string
	httpClient        *http.Client
	log               logger.Logger
	reconnectInterval time.Duration
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

func WithLogger(l logger.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithReconnectInterval sets how often a broken live subscription retries
// the dial.
func WithReconnectInterval(d time.Duration) Option {
	return func(c *Client) { c.reconnectInterval = d }
}

// NewClient builds a gateway client for the record service at baseURL, e.g.
// "http://localhost:3000".
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:           baseURL,
		httpClient:        &http.Client{},
		log:               logger.Nop{},
		reconnectInterval: defaultReconnectInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// List fetches one page of records matching f.
func (c *Client) List(ctx context.Context, token string, f models.Filter) ([]models.Record, error) {
	query := url.Values{}
	query.Set("offset", strconv.Itoa(f.Offset))
	query.Set("size", strconv.Itoa(f.Limit))
	if f.Good != nil {
		query.Set("isGood", strconv.FormatBool(*f.Good))
	}
	if f.NamePrefix != "" {
		query.Set("nameFilter", f.NamePrefix)
	}

	var records []models.Record
	err := c.do(ctx, token, http.MethodGet, itemPath+"?"+query.Encode(), nil, &records)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Create asks the server to create record and returns it with its assigned
// ID and initial version.
func (c *Client) Create(ctx context.Context, token string, record models.Record) (models.Record, error) {
	var created models.Record
	record.Pending = false
	if err := c.do(ctx, token, http.MethodPost, itemPath, record, &created); err != nil {
		return models.Record{}, err
	}
	return created, nil
}

// Update submits a versioned update. The returned bool reports whether the
// server applied it: true means the version matched and the echoed record
// carries the new version; false means the version was stale and the echoed
// record is the current authoritative state, left untouched on the server.
// Staleness is a result code, not an error.
func (c *Client) Update(ctx context.Context, token string, record models.Record) (models.Record, bool, error) {
	record.Pending = false
	body, err := json.Marshal(record)
	if err != nil {
		return models.Record{}, false, fmt.Errorf("gateway: encoding record: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		c.baseURL+itemPath+"/"+url.PathEscape(record.ID), bytes.NewReader(body))
	if err != nil {
		return models.Record{}, false, err
	}
	c.setHeaders(req, token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.Record{}, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusConflict:
	default:
		return models.Record{}, false, statusError(resp)
	}

	var echoed models.Record
	if err := json.NewDecoder(resp.Body).Decode(&echoed); err != nil {
		return models.Record{}, false, fmt.Errorf("gateway: decoding response: %w", err)
	}
	return echoed, resp.StatusCode == http.StatusOK, nil
}

// Delete removes the record with the given ID from the remote store.
func (c *Client) Delete(ctx context.Context, token, id string) error {
	return c.do(ctx, token, http.MethodDelete, itemPath+"/"+url.PathEscape(id), nil, nil)
}

// CheckConflicts submits the full set of locally-resident records for the
// current user. The server compares each by ID and version and returns a
// pair for every record that is stale or whose create never reached it.
func (c *Client) CheckConflicts(ctx context.Context, token string, records []models.Record) ([]models.Conflict, error) {
	if records == nil {
		records = []models.Record{}
	}
	var conflicts []models.Conflict
	if err := c.do(ctx, token, http.MethodPost, conflictsPath, records, &conflicts); err != nil {
		return nil, err
	}
	return conflicts, nil
}

func (c *Client) do(ctx context.Context, token, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("gateway: encoding request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	c.setHeaders(req, token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Debug("gateway call failed", "method", method, "path", path, "error", err)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("gateway: decoding response: %w", err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request, token string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
}

func statusError(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return ErrValidation
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	default:
		return fmt.Errorf("gateway: unexpected status %d", resp.StatusCode)
	}
}
