package assets

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/persona-transformer/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNone(t *testing.T) {
	got, err := None{}.Generate(context.Background(), Request{})
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestNewHTTPGenerator_InvalidURL(t *testing.T) {
	_, err := NewHTTPGenerator("not a url", 0)
	var assetErr *Error
	assert.True(t, errors.As(err, &assetErr))
}

func TestHTTPGenerator_Generate(t *testing.T) {
	jobID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, jobID, req.JobID)
		assert.Equal(t, types.FormatSlides, req.Format)
		assert.Equal(t, "light", req.Style["theme"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"assets": []map[string]string{{"id": "chart-1", "url": "https://cdn.example.com/chart-1.png"}},
		})
	}))
	defer srv.Close()

	g, err := NewHTTPGenerator(srv.URL, time.Second)
	require.NoError(t, err)

	got, err := g.Generate(context.Background(), Request{JobID: jobID, Format: types.FormatSlides, Text: "# A", Style: map[string]string{"theme": "light"}})
	require.NoError(t, err)
	assert.Equal(t, []types.Asset{{ID: "chart-1", URL: "https://cdn.example.com/chart-1.png"}}, got)
}

func TestHTTPGenerator_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		status  int
	}{
		{
			name:    "server error",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) },
			status:  http.StatusBadGateway,
		},
		{
			name:    "bad body",
			handler: func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("not json")) },
		},
		{
			name:    "asset without url",
			handler: func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`{"assets":[{"id":"a"}]}`)) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			g, err := NewHTTPGenerator(srv.URL, time.Second)
			require.NoError(t, err)
			_, err = g.Generate(context.Background(), Request{})
			var assetErr *Error
			require.True(t, errors.As(err, &assetErr), "got %v", err)
			assert.Equal(t, tt.status, assetErr.StatusCode)
		})
	}
}

func TestHTTPGenerator_RespectsDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	g, err := NewHTTPGenerator(srv.URL, 5*time.Second)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = g.Generate(ctx, Request{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
