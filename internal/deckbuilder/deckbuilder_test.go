package deckbuilder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deckforge/orchestrator/internal/retry"
	"github.com/deckforge/orchestrator/internal/session"
)

func TestPreviewReturnsURLAndPresentationID(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/preview", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"preview_url":"http://deck.local/p1","preview_presentation_id":"pres-1"}`))
	}))
	defer srv.Close()

	builder := New(srv.URL, 0)
	url, id, err := builder.Preview(context.Background(), "sess-1", session.Strawman{MainTitle: "Deck"})
	require.NoError(t, err)
	require.Equal(t, "http://deck.local/p1", url)
	require.Equal(t, "pres-1", id)
	require.Equal(t, "sess-1", gotBody["session_id"])
}

func TestFinalizeReturnsURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/presentations", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"url":"http://deck.local/final"}`))
	}))
	defer srv.Close()

	builder := New(srv.URL, 0)
	url, err := builder.Finalize(context.Background(), "sess-1", []session.Slide{{SlideID: "slide_001"}})
	require.NoError(t, err)
	require.Equal(t, "http://deck.local/final", url)
}

func TestPreviewReturnsHTTPStatusErrorOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("down"))
	}))
	defer srv.Close()

	builder := New(srv.URL, 0)
	_, _, err := builder.Preview(context.Background(), "sess-1", session.Strawman{})

	var httpErr *retry.HTTPStatusError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, http.StatusServiceUnavailable, httpErr.StatusCode)
}

func TestPostTreatsEmptyResponseBodyAsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	builder := New(srv.URL, 0)
	url, err := builder.Finalize(context.Background(), "sess-1", nil)
	require.NoError(t, err)
	require.Empty(t, url)
}

func TestNoopNeverErrorsAndReturnsEmptyResults(t *testing.T) {
	var builder Builder = Noop{}

	url, id, err := builder.Preview(context.Background(), "sess-1", session.Strawman{})
	require.NoError(t, err)
	require.Empty(t, url)
	require.Empty(t, id)

	finalURL, err := builder.Finalize(context.Background(), "sess-1", nil)
	require.NoError(t, err)
	require.Empty(t, finalURL)
}
