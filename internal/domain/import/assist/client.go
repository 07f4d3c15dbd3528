// Package assist calls the external AI transformation service that proposes
// a column-role assignment (and optionally pre-transformed data) for a raw
// CSV sample. The engine treats the response purely as an alternative seed
// for the classifier: every validation and normalization rule applies to
// AI-sourced assignments exactly as to manual ones.
package assist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const requestTimeout = 45 * time.Second

// ErrDisabled is returned when no assist endpoint is configured; callers fall
// back to the manual path.
var ErrDisabled = errors.New("assist service not configured")

// Suggestion is the candidate produced by the assist service. ColumnRoles
// maps header names to role wire names; unknown names become aggregatable
// dimensions when applied.
type Suggestion struct {
	ColumnRoles     map[string]string `json:"columnRoles"`
	TransformedData [][]string        `json:"transformedData,omitempty"`
	DateFormat      string            `json:"dateFormat,omitempty"`
	NumberFormat    string            `json:"numberFormat,omitempty"`
}

// Client is an HTTP client for the assist service.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates an assist client. An empty baseURL produces a disabled
// client whose calls return ErrDisabled.
func NewClient(baseURL, apiKey string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: requestTimeout},
		logger:  logger,
	}
}

// Enabled reports whether the client has an endpoint configured.
func (c *Client) Enabled() bool {
	return c.baseURL != ""
}

type suggestRequest struct {
	CSV        string   `json:"csv"`
	Headers    []string `json:"headers"`
	KnownRoles []string `json:"knownRoles"`
}

// SuggestRoles sends a CSV sample and returns the service's candidate role
// assignment. The caller is responsible for discarding the response if the
// session has moved on to another file.
func (c *Client) SuggestRoles(ctx context.Context, csvSample string, headers []string, knownRoles []string) (*Suggestion, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}

	body, err := json.Marshal(suggestRequest{CSV: csvSample, Headers: headers, KnownRoles: knownRoles})
	if err != nil {
		return nil, fmt.Errorf("failed to encode assist request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/suggest-roles", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build assist request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("assist request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		c.logger.Warn("assist service returned error",
			"status", resp.StatusCode,
			"body", string(payload),
		)
		return nil, fmt.Errorf("assist service returned status %d", resp.StatusCode)
	}

	var suggestion Suggestion
	if err := json.NewDecoder(resp.Body).Decode(&suggestion); err != nil {
		return nil, fmt.Errorf("failed to decode assist response: %w", err)
	}
	return &suggestion, nil
}
