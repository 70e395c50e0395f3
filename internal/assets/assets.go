// Package assets talks to the visual-asset collaborator that renders charts
// and slide images for an exported revision.
package assets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/persona-transformer/internal/types"
)

// DefaultTimeout bounds one asset request
const DefaultTimeout = 15 * time.Second

// Request describes what to render
type Request struct {
	JobID      uuid.UUID          `json:"job_id"`
	RevisionID uuid.UUID          `json:"revision_id"`
	Format     types.OutputFormat `json:"format"`
	Text       string             `json:"text"`
	TemplateID string             `json:"template_id,omitempty"`
	Style      map[string]string  `json:"style,omitempty"`
}

// Generator produces visual assets for a revision
type Generator interface {
	Generate(ctx context.Context, req Request) ([]types.Asset, error)
}

// None is the Generator used when no asset service is configured
type None struct{}

// Generate returns no assets
func (None) Generate(context.Context, Request) ([]types.Asset, error) {
	return nil, nil
}

// Error is returned when the asset service call fails
type Error struct {
	Endpoint   string
	StatusCode int
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("asset service %s: %s", e.Endpoint, e.Message)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPGenerator posts the request as JSON and expects {"assets": [...]}
type HTTPGenerator struct {
	endpoint string
	client   *http.Client
}

// NewHTTPGenerator validates the endpoint and creates a generator
func NewHTTPGenerator(endpoint string, timeout time.Duration) (*HTTPGenerator, error) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, &Error{Endpoint: endpoint, Message: "invalid URL", Cause: err}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPGenerator{endpoint: endpoint, client: &http.Client{Timeout: timeout}}, nil
}

type response struct {
	Assets []types.Asset `json:"assets"`
}

// Generate calls the asset service
func (g *HTTPGenerator) Generate(ctx context.Context, req Request) ([]types.Asset, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &Error{Endpoint: g.endpoint, Message: "encoding request", Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Endpoint: g.endpoint, Message: "creating request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, &Error{Endpoint: g.endpoint, Message: "request failed", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		return nil, &Error{Endpoint: g.endpoint, StatusCode: resp.StatusCode, Message: "unexpected status"}
	}

	var out response
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return nil, &Error{Endpoint: g.endpoint, Message: "decoding response", Cause: err}
	}
	for i, a := range out.Assets {
		if a.ID == "" || a.URL == "" {
			return nil, &Error{Endpoint: g.endpoint, Message: fmt.Sprintf("asset %d is missing id or url", i)}
		}
	}
	return out.Assets, nil
}
