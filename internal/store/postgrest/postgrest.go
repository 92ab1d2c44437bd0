// Package postgrest stores budget rows in a hosted PostgREST endpoint
// (the REST layer of a managed Postgres).
package postgrest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"budgetcards/internal/core"
	"budgetcards/internal/store"
)

const DefaultTable = "budgets"

type Client struct {
	baseURL string
	apiKey  string
	table   string
	http    *http.Client
}

var _ store.Store = (*Client)(nil)

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the pooled default client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New returns a client for baseURL (e.g. https://xyz.example.co). The key is
// sent both as apikey and as bearer token.
func New(baseURL, apiKey, table string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("missing POSTGREST_URL")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid POSTGREST_URL: %w", err)
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("missing POSTGREST_KEY")
	}
	if table == "" {
		table = DefaultTable
	}
	c := &Client{baseURL: baseURL, apiKey: apiKey, table: table, http: newHTTPClientWithPooling()}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: 30 * time.Second}
}

// APIError is a non-2xx answer from the endpoint.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("postgrest: status %d: %s", e.Status, e.Body)
}

func (c *Client) endpoint(query url.Values) string {
	u := c.baseURL + "/rest/v1/" + c.table
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (c *Client) do(ctx context.Context, method, target, prefer string, body any, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, c.table, err)
	}
	defer resp.Body.Close()
	slog.DebugContext(ctx, "PostgREST request",
		"method", method,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", c.table, err)
	}
	return nil
}

func (c *Client) ListRows(ctx context.Context) ([]core.Row, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("order", "created_at.asc")
	var rows []core.Row
	if err := c.do(ctx, http.MethodGet, c.endpoint(q), "", nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) GetRow(ctx context.Context, id string) (core.Row, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("id", "eq."+id)
	var rows []core.Row
	if err := c.do(ctx, http.MethodGet, c.endpoint(q), "", nil, &rows); err != nil {
		return core.Row{}, err
	}
	if len(rows) == 0 {
		return core.Row{}, store.ErrNotFound
	}
	return rows[0], nil
}

func (c *Client) DeleteRow(ctx context.Context, id string) error {
	q := url.Values{}
	q.Set("id", "eq."+id)
	return c.do(ctx, http.MethodDelete, c.endpoint(q), "", nil, nil)
}

func (c *Client) DeleteMonth(ctx context.Context, year, month int) error {
	q := url.Values{}
	q.Set("year", fmt.Sprintf("eq.%d", year))
	q.Set("month", fmt.Sprintf("eq.%d", month))
	return c.do(ctx, http.MethodDelete, c.endpoint(q), "", nil, nil)
}

func (c *Client) InsertRows(ctx context.Context, rows []core.Row) ([]core.Row, error) {
	return c.write(ctx, rows, "return=representation")
}

// UpsertRows merges on the primary key. Rows without an id are sent
// without one so the database default generates it.
func (c *Client) UpsertRows(ctx context.Context, rows []core.Row) ([]core.Row, error) {
	return c.write(ctx, rows, "resolution=merge-duplicates,return=representation")
}

func (c *Client) write(ctx context.Context, rows []core.Row, prefer string) ([]core.Row, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	payload := make([]wireRow, 0, len(rows))
	for _, r := range rows {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		payload = append(payload, toWire(r))
	}
	var out []core.Row
	if err := c.do(ctx, http.MethodPost, c.endpoint(nil), prefer, payload, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// wireRow leaves created_at to the database.
type wireRow struct {
	ID           core.RowID  `json:"id,omitempty"`
	Year         int         `json:"year"`
	Month        int         `json:"month"`
	Title        string      `json:"title"`
	Text         string      `json:"text"`
	Amount       json.Number `json:"amount"`
	Status       string      `json:"status"`
	Position     int         `json:"position"`
	IconCategory *string     `json:"iconCategory"`
}

func toWire(r core.Row) wireRow {
	return wireRow{
		ID:           core.RowID(r.ID),
		Year:         r.Year,
		Month:        r.Month,
		Title:        r.Title,
		Text:         r.Text,
		Amount:       json.Number(r.Amount.String()),
		Status:       string(r.Status),
		Position:     r.Position,
		IconCategory: r.IconCategory,
	}
}
