// Package backend queries tenant-specific AI backends over HTTP.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/relayworks/threadrelay/internal/model"
	"github.com/relayworks/threadrelay/pkg/metrics"
)

// Querier is the interface the relay consumer depends on.
type Querier interface {
	// Query sends prompt to the project's backend and returns the raw
	// response text (the body the policy engine will interpret).
	Query(ctx context.Context, project model.Project, prompt string) (string, error)
}

// Error is a backend failure: timeout, non-2xx, or transport error.
// The relay treats it as transient and leaves the envelope for
// redelivery.
type Error struct {
	ProjectID  string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("backend query for project %s failed: status %d", e.ProjectID, e.StatusCode)
	}
	return fmt.Sprintf("backend query for project %s failed: %v", e.ProjectID, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// DecodeError means the backend returned 2xx but the body was not the
// expected JSON shape. Unlike Error, retrying cannot change it; the
// relay consumes the envelope instead of requeueing.
type DecodeError struct {
	ProjectID string
	Err       error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("backend response for project %s is not decodable: %v", e.ProjectID, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

type queryRequest struct {
	Action      string      `json:"action"`
	Query       string      `json:"query"`
	SessionID   string      `json:"session_id"`
	ProjectID   string      `json:"project_id"`
	ModelParams modelParams `json:"model_params"`
}

type modelParams struct {
	EnableSearch bool         `json:"enable_search"`
	SearchParams searchParams `json:"search_params"`
}

type searchParams struct {
	Collection string `json:"collection"`
}

type queryResponse struct {
	Response string `json:"response"`
}

// Client is the HTTP Querier. One shared http.Client per process; the
// per-call hard timeout is the request deadline.
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
}

// NewClient creates a backend client with the given hard timeout.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{},
		timeout:    timeout,
	}
}

// Query posts the structured query to the project's endpoint with
// bearer-token auth and extracts the response text.
func (c *Client) Query(ctx context.Context, project model.Project, prompt string) (string, error) {
	start := time.Now()

	payload := queryRequest{
		Action:    "query",
		Query:     prompt,
		SessionID: fmt.Sprintf("slack-%d", time.Now().UnixMilli()),
		ProjectID: project.ProjectID,
		ModelParams: modelParams{
			EnableSearch: true,
			SearchParams: searchParams{Collection: project.ProjectID},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", &Error{ProjectID: project.ProjectID, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, project.APIURL, bytes.NewReader(body))
	if err != nil {
		return "", &Error{ProjectID: project.ProjectID, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+project.APIToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordBackendQuery(project.ProjectID, "error", time.Since(start).Seconds())
		return "", &Error{ProjectID: project.ProjectID, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		metrics.RecordBackendQuery(project.ProjectID, "error", time.Since(start).Seconds())
		return "", &Error{ProjectID: project.ProjectID, StatusCode: resp.StatusCode}
	}

	var qr queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		metrics.RecordBackendQuery(project.ProjectID, "error", time.Since(start).Seconds())
		return "", &DecodeError{ProjectID: project.ProjectID, Err: err}
	}

	metrics.RecordBackendQuery(project.ProjectID, "success", time.Since(start).Seconds())
	return qr.Response, nil
}
