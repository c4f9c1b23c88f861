// Package deckbuilder is the HTTP/JSON client for the external deck-renderer
// service: it turns a strawman into a preview link during GENERATE_STRAWMAN
// and REFINE_STRAWMAN, and assembles the final presentation artifact once
// Stage-6 content generation completes.
package deckbuilder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/deckforge/orchestrator/internal/retry"
	"github.com/deckforge/orchestrator/internal/session"
)

// Builder is the interface the dialog state machine depends on, never the
// concrete HTTP client.
type Builder interface {
	// Preview renders a low-fidelity preview of strawman and returns its URL
	// and render ID. Implementations may return ("", "", nil) when preview
	// rendering is disabled or unavailable; this is not an error.
	Preview(ctx context.Context, sessionID string, strawman session.Strawman) (previewURL, previewID string, err error)
	// Finalize assembles the completed slides into the final artifact and
	// returns its URL.
	Finalize(ctx context.Context, sessionID string, slides []session.Slide) (url string, err error)
}

// HTTPBuilder implements Builder over a JSON/HTTP API, grounded on the same
// functional-options client shape used for the Text/Illustrator/Analytics
// generator clients.
type HTTPBuilder struct {
	baseURL string
	http    *http.Client
	headers http.Header
	id      uint64
}

// Option configures an HTTPBuilder.
type Option func(*HTTPBuilder)

// WithHTTPClient overrides the underlying *http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(b *HTTPBuilder) { b.http = c }
}

// WithBearerToken configures the client to send an Authorization header.
func WithBearerToken(token string) Option {
	return func(b *HTTPBuilder) { b.headers.Set("Authorization", "Bearer "+token) }
}

// New constructs an HTTPBuilder against baseURL with the given per-request
// timeout.
func New(baseURL string, timeout time.Duration, opts ...Option) *HTTPBuilder {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	b := &HTTPBuilder{baseURL: baseURL, http: &http.Client{Timeout: timeout}, headers: make(http.Header)}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Preview implements Builder.
func (b *HTTPBuilder) Preview(ctx context.Context, sessionID string, strawman session.Strawman) (string, string, error) {
	var out struct {
		PreviewURL            string `json:"preview_url"`
		PreviewPresentationID string `json:"preview_presentation_id"`
	}
	body := map[string]any{"session_id": sessionID, "strawman": strawman}
	if err := b.post(ctx, "/v1/preview", body, &out); err != nil {
		return "", "", err
	}
	return out.PreviewURL, out.PreviewPresentationID, nil
}

// Finalize implements Builder.
func (b *HTTPBuilder) Finalize(ctx context.Context, sessionID string, slides []session.Slide) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	body := map[string]any{"session_id": sessionID, "slides": slides}
	if err := b.post(ctx, "/v1/presentations", body, &out); err != nil {
		return "", err
	}
	return out.URL, nil
}

func (b *HTTPBuilder) post(ctx context.Context, path string, body any, out any) error {
	reqID := atomic.AddUint64(&b.id, 1)

	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("deckbuilder: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("deckbuilder: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", fmt.Sprintf("deckbuilder-%d", reqID))
	for k, vals := range b.headers {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}

	resp, err := b.http.Do(req)
	if err != nil {
		return fmt.Errorf("deckbuilder: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("deckbuilder: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return &retry.HTTPStatusError{StatusCode: resp.StatusCode, Body: truncate(string(respBody), 512)}
	}
	if len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("deckbuilder: decode response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Noop is a Builder that never renders previews and finalizes to an empty
// URL; used when the preview-builder feature flag is disabled.
type Noop struct{}

// Preview implements Builder by doing nothing.
func (Noop) Preview(context.Context, string, session.Strawman) (string, string, error) { return "", "", nil }

// Finalize implements Builder by returning an empty URL.
func (Noop) Finalize(context.Context, string, []session.Slide) (string, error) { return "", nil }

var (
	_ Builder = (*HTTPBuilder)(nil)
	_ Builder = Noop{}
)
