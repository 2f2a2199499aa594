// Package record implements the record store port against an
// Airtable-style REST API: list one pending row, patch fields back.
package record

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/reelforge/reelforge/internal/core"
	"github.com/reelforge/reelforge/internal/logging"
)

// Store talks to the HTTP record API.
type Store struct {
	baseURL string
	apiKey  string
	table   string
	client  *http.Client
	log     *logging.Logger
}

// New creates a store for one table.
func New(baseURL, apiKey, table string, timeout time.Duration, log *logging.Logger) *Store {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Store{
		baseURL: baseURL,
		apiKey:  apiKey,
		table:   table,
		client:  &http.Client{Timeout: timeout},
		log:     log.With("component", "record_store"),
	}
}

type apiRecord struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

type listResponse struct {
	Records []apiRecord `json:"records"`
}

// GetPendingRecord fetches the oldest row whose status field is
// "pending". Returns nil and no error when the queue is empty.
func (s *Store) GetPendingRecord(ctx context.Context) (*core.Record, error) {
	endpoint := fmt.Sprintf("%s/%s?%s", s.baseURL, url.PathEscape(s.table),
		url.Values{
			"filterByFormula": {`{status}="pending"`},
			"maxRecords":      {"1"},
		}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	s.authorize(req)

	var list listResponse
	if err := s.do(req, &list); err != nil {
		return nil, err
	}
	if len(list.Records) == 0 {
		return nil, nil
	}

	rec := list.Records[0]
	title, _ := rec.Fields["title"].(string)
	return &core.Record{
		ID:     rec.ID,
		Title:  title,
		Fields: rec.Fields,
	}, nil
}

// UpdateRecord patches fields on an existing row.
func (s *Store) UpdateRecord(ctx context.Context, id string, fields map[string]any) error {
	endpoint := fmt.Sprintf("%s/%s/%s", s.baseURL, url.PathEscape(s.table), url.PathEscape(id))
	body, err := json.Marshal(map[string]any{"fields": fields})
	if err != nil {
		return fmt.Errorf("marshaling fields: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	s.authorize(req)

	return s.do(req, nil)
}

func (s *Store) authorize(req *http.Request) {
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
}

func (s *Store) do(req *http.Request, out any) error {
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling record API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		s.log.Warn("record API error",
			"status", resp.StatusCode, "body", s.log.Sanitize(string(snippet)))
		return fmt.Errorf("record API returned status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding record API response: %w", err)
	}
	return nil
}

var _ core.RecordStore = (*Store)(nil)
