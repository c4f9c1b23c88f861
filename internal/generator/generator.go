// Package generator implements the HTTP/JSON clients for the three
// downstream content-generation services (Text, Illustrator, Analytics),
// each consumed behind the single Client interface the Stage-6 scheduler
// dispatches through.
package generator

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
)

// Request carries everything a generator service needs to produce content
// for one slide, plus the session-tracking fields services echo back.
type Request struct {
	PresentationID string
	SlideID        string
	SlideNumber    int
	VariantID      string
	SlideType      string
	Title          string
	Narrative      string
	KeyPoints      []string
	Brief          map[string]any
	// Extra carries service-specific parameters (element count, tone,
	// audience, analytics type, etc.) merged into the request body.
	Extra map[string]any
}

// Result is the generic shape every service response is parsed into; the
// caller inspects Fields for the layout-specific keys (slide_title,
// element_1..3, rich_content, and so on).
type Result struct {
	Fields map[string]any
}

// Client is the interface the Stage-6 scheduler dispatches each slide
// through, regardless of the underlying endpoint pattern.
type Client interface {
	// Generate invokes the service for one slide at the given endpoint path
	// (resolved by the scheduler from the taxonomy registry) and returns its
	// parsed result.
	Generate(ctx context.Context, endpointPath string, req Request) (Result, error)
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// HTTPClient is a JSON-over-HTTP Client implementation shared by the
// Text/Illustrator/Analytics adapters; only the base URL and endpoint
// pattern differ between services.
type HTTPClient struct {
	serviceName string
	baseURL     string
	http        *http.Client
	headers     http.Header
	id          uint64
}

// WithHTTPClient overrides the underlying *http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *HTTPClient) { cl.http = c }
}

// WithHeader adds a static header to every outgoing request.
func WithHeader(name, value string) Option {
	return func(cl *HTTPClient) {
		if cl.headers == nil {
			cl.headers = make(http.Header)
		}
		cl.headers.Add(name, value)
	}
}

// WithBearerToken configures the client to send an Authorization header.
func WithBearerToken(token string) Option {
	return WithHeader("Authorization", "Bearer "+token)
}

// New constructs an HTTPClient for serviceName against baseURL with the
// given per-service timeout.
func New(serviceName, baseURL string, timeout time.Duration, opts ...Option) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cl := &HTTPClient{
		serviceName: serviceName,
		baseURL:     baseURL,
		http:        &http.Client{Timeout: timeout},
		headers:     make(http.Header),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cl)
		}
	}
	return cl
}

// Generate implements Client by POSTing the encoded Request to baseURL+path
// and decoding the JSON response body into a Result.
func (c *HTTPClient) Generate(ctx context.Context, endpointPath string, req Request) (Result, error) {
	reqID := atomic.AddUint64(&c.id, 1)

	body, err := json.Marshal(encodeBody(req))
	if err != nil {
		return Result{}, fmt.Errorf("generator %s: encode request: %w", c.serviceName, err)
	}

	url := c.baseURL + endpointPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("generator %s: build request: %w", c.serviceName, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-Id", fmt.Sprintf("%s-%d", c.serviceName, reqID))
	for k, vals := range c.headers {
		for _, v := range vals {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("generator %s: %w", c.serviceName, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("generator %s: read response: %w", c.serviceName, err)
	}

	if resp.StatusCode >= 300 {
		return Result{}, &retry.HTTPStatusError{StatusCode: resp.StatusCode, Body: truncate(string(respBody), 512)}
	}

	var fields map[string]any
	if err := json.Unmarshal(respBody, &fields); err != nil {
		return Result{}, fmt.Errorf("generator %s: decode response: %w", c.serviceName, err)
	}
	return Result{Fields: fields}, nil
}

func encodeBody(req Request) map[string]any {
	body := map[string]any{
		"presentation_id": req.PresentationID,
		"slide_id":        req.SlideID,
		"slide_number":    req.SlideNumber,
		"variant_id":      req.VariantID,
		"slide_type":      req.SlideType,
		"title":           req.Title,
		"narrative":       req.Narrative,
		"key_points":      req.KeyPoints,
	}
	if req.Brief != nil {
		body["brief"] = req.Brief
	}
	for k, v := range req.Extra {
		body[k] = v
	}
	return body
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

var _ Client = (*HTTPClient)(nil)
