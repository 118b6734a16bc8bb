// Package client implements the HTTP boundary to the coach backend: the
// streaming turn-submit call, the plain JSON chat and retrieve calls, and
// the multipart file-ingest call.
//
// The package owns transport concerns only. Frame decoding and event
// interpretation live in the sse package; the session package wires the two.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/pithecene-io/sluice/iox"
	"github.com/pithecene-io/sluice/types"
)

// DefaultTimeout is the default timeout for non-streaming calls.
// Streaming calls carry no client timeout; the caller's context governs.
const DefaultTimeout = 30 * time.Second

// Config configures the backend client.
type Config struct {
	// BaseURL is the backend base URL (required), e.g. http://127.0.0.1:8000.
	BaseURL string
	// Timeout is the per-request timeout for non-streaming calls.
	Timeout time.Duration
	// Headers are custom HTTP headers added to every request.
	Headers map[string]string
}

// Client calls the coach backend.
type Client struct {
	config Config
	// plain has a request timeout; stream must not, a turn can stay open
	// for as long as generation takes.
	plain  *http.Client
	stream *http.Client
}

// New creates a backend client from the given config.
// Returns an error if the base URL is empty.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("client requires a base URL")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Client{
		config: cfg,
		plain:  &http.Client{Timeout: cfg.Timeout},
		stream: &http.Client{},
	}, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.plain.CloseIdleConnections()
	c.stream.CloseIdleConnections()
	return nil
}

// StatusError is returned for non-2xx HTTP responses.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// IsStatus returns true if err carries a non-2xx HTTP status.
func IsStatus(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr)
}

// TurnRequest is the body of the turn-submit call. History carries
// `{role, content}` pairs only; citations and evidence are never resent.
type TurnRequest struct {
	Message          string               `json:"message"`
	History          []types.HistoryEntry `json:"history"`
	Mode             types.Mode           `json:"mode"`
	ActiveSourceID   string               `json:"active_source_id,omitempty"`
	ActiveSourceType types.SourceType     `json:"active_source_type,omitempty"`
	ConversationID   string               `json:"conversation_id,omitempty"`
	RequestID        string               `json:"request_id,omitempty"`
}

// StreamTurn opens the streaming turn-submit call and returns the raw
// event-stream body. The caller owns the returned reader and must close
// it; cancelling ctx tears the stream down.
//
// A non-2xx status returns a *StatusError so callers can fail over to the
// plain Chat call.
func (c *Client) StreamTurn(ctx context.Context, turnReq *TurnRequest) (io.ReadCloser, error) {
	body, err := json.Marshal(turnReq)
	if err != nil {
		return nil, fmt.Errorf("stream turn: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/chat/stream", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("stream turn: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	c.applyHeaders(req)

	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stream turn: request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		iox.DiscardClose(resp.Body)
		return nil, &StatusError{Code: resp.StatusCode}
	}

	return resp.Body, nil
}

// ChatResponse is the plain request/response chat answer used by the
// non-streaming fallback path.
type ChatResponse struct {
	Answer      string
	Citations   []types.Citation
	UsedContext []types.UsedContext
}

// Chat performs the plain JSON chat call. Used when the streaming call
// returns a non-OK status or no body.
func (c *Client) Chat(ctx context.Context, turnReq *TurnRequest) (*ChatResponse, error) {
	var raw struct {
		Answer      string `json:"answer"`
		Citations   any    `json:"citations"`
		UsedContext any    `json:"used_context"`
	}
	if err := c.postJSON(ctx, "/chat", turnReq, &raw); err != nil {
		return nil, fmt.Errorf("chat: %w", err)
	}

	return &ChatResponse{
		Answer:      raw.Answer,
		Citations:   types.NormalizeCitations(raw.Citations),
		UsedContext: types.NormalizeUsedContext(raw.UsedContext),
	}, nil
}

// RetrieveRequest is the body of the retrieval debug call.
type RetrieveRequest struct {
	Query  string            `json:"query"`
	TopK   int               `json:"top_k,omitempty"`
	Filter map[string]string `json:"filter,omitempty"`
}

// RetrieveResult is one retrieval match.
type RetrieveResult struct {
	Score    *float64       `json:"score,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Text     string         `json:"text,omitempty"`
	Document string         `json:"document,omitempty"`
}

// RetrieveResponse is the retrieval debug response. Older backends report
// under `matches`, newer under `results`; Items returns whichever is set.
type RetrieveResponse struct {
	OK      *bool            `json:"ok,omitempty"`
	Results []RetrieveResult `json:"results,omitempty"`
	Matches []RetrieveResult `json:"matches,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// Items returns the match list regardless of which field carried it.
func (r *RetrieveResponse) Items() []RetrieveResult {
	if len(r.Results) > 0 {
		return r.Results
	}
	return r.Matches
}

// Retrieve performs the retrieval debug call and returns the decoded
// response along with the raw body text for the debug screen.
func (c *Client) Retrieve(ctx context.Context, retReq *RetrieveRequest) (*RetrieveResponse, string, error) {
	body, err := json.Marshal(retReq)
	if err != nil {
		return nil, "", fmt.Errorf("retrieve: marshal request: %w", err)
	}

	raw, err := c.postRaw(ctx, "/retrieve", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, "", fmt.Errorf("retrieve: %w", err)
	}

	var resp RetrieveResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, string(raw), fmt.Errorf("retrieve: decode response: %w", err)
	}
	return &resp, string(raw), nil
}

// IngestFileResponse is the result of a multipart file upload.
type IngestFileResponse struct {
	SourceID string `json:"source_id"`
	Chunks   int    `json:"chunks"`
}

// IngestFile uploads a document for ingestion and returns the bound
// source id. The backend reports structured errors as `{detail}`.
func (c *Client) IngestFile(ctx context.Context, filename string, content io.Reader, sourceType types.SourceType) (*IngestFileResponse, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)

	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("ingest file: build form: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("ingest file: read content: %w", err)
	}
	if err := form.WriteField("source_type", string(sourceType)); err != nil {
		return nil, fmt.Errorf("ingest file: build form: %w", err)
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("ingest file: build form: %w", err)
	}

	raw, err := c.postRaw(ctx, "/ingest/file", form.FormDataContentType(), &buf)
	if err != nil {
		// Non-2xx bodies may carry a structured detail message.
		var statusErr *statusBodyError
		if errors.As(err, &statusErr) {
			var detail struct {
				Detail string `json:"detail"`
			}
			if jsonErr := json.Unmarshal(statusErr.Body, &detail); jsonErr == nil && detail.Detail != "" {
				return nil, fmt.Errorf("ingest file: %s", detail.Detail)
			}
		}
		return nil, fmt.Errorf("ingest file: %w", err)
	}

	var resp IngestFileResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("ingest file: decode response: %w", err)
	}
	if resp.SourceID == "" {
		return nil, errors.New("ingest file: upload succeeded but source_id is missing")
	}
	return &resp, nil
}

// IngestTextRequest is the body of the raw-text ingest debug call.
type IngestTextRequest struct {
	SourceID   string           `json:"source_id"`
	SourceType types.SourceType `json:"source_type"`
	Text       string           `json:"text"`
}

// IngestTextResponse is the result of a raw-text ingest.
type IngestTextResponse struct {
	OK         bool   `json:"ok"`
	Collection string `json:"collection,omitempty"`
	Added      int    `json:"added"`
}

// IngestText ingests raw text through the debug endpoint.
func (c *Client) IngestText(ctx context.Context, ingReq *IngestTextRequest) (*IngestTextResponse, error) {
	var resp IngestTextResponse
	if err := c.postJSON(ctx, "/ingest", ingReq, &resp); err != nil {
		return nil, fmt.Errorf("ingest text: %w", err)
	}
	return &resp, nil
}

// statusBodyError wraps a non-2xx status together with the response body,
// which some endpoints use for structured error details.
type statusBodyError struct {
	StatusError
	Body []byte
}

func (e *statusBodyError) Unwrap() error { return &e.StatusError }

// postJSON posts a JSON body and decodes a JSON response.
func (c *Client) postJSON(ctx context.Context, path string, reqBody, respBody any) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	raw, err := c.postRaw(ctx, path, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, respBody); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// postRaw posts to path and returns the response body bytes.
// Non-2xx responses return a *statusBodyError carrying the body.
func (c *Client) postRaw(ctx context.Context, path, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	c.applyHeaders(req)

	resp, err := c.plain.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer iox.DiscardClose(resp.Body)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &statusBodyError{StatusError: StatusError{Code: resp.StatusCode}, Body: raw}
	}
	return raw, nil
}

func (c *Client) applyHeaders(req *http.Request) {
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}
}
