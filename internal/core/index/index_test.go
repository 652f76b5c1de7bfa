package index

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledClient(t *testing.T) {
	c := New(Config{})

	require.False(t, c.Enabled())

	assert.ErrorIs(t, c.Index(context.Background(), Document{ID: "1"}), ErrClientDisabled)
	assert.ErrorIs(t, c.Ping(context.Background()), ErrClientDisabled)

	_, err := c.Search(context.Background(), "query", 0, 10)
	assert.ErrorIs(t, err, ErrClientDisabled)
}

func TestIndexSendsDocuments(t *testing.T) {
	var received []Document

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/update", r.URL.Path)
		require.Equal(t, "true", r.URL.Query().Get("commit"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &received))

		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Timeout: time.Second})

	err := c.Index(context.Background(), Document{ID: "42", Title: "A headline", SourceBias: "center"})
	require.NoError(t, err)

	require.Len(t, received, 1)
	assert.Equal(t, "42", received[0].ID)
	assert.Equal(t, "center", received[0].SourceBias)
}

func TestIndexTreatsConflictAsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})

	assert.NoError(t, c.Index(context.Background(), Document{ID: "1"}))
}

func TestIndexSurfacesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})

	assert.ErrorIs(t, c.Index(context.Background(), Document{ID: "1"}), ErrServerError)
}

func TestSearchParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/select", r.URL.Path)
		assert.Equal(t, "climate", r.URL.Query().Get("q"))
		assert.Equal(t, "edismax", r.URL.Query().Get("defType"))
		assert.Equal(t, "5", r.URL.Query().Get("rows"))
		assert.Equal(t, "10", r.URL.Query().Get("start"))

		_, _ = w.Write([]byte(`{"response": {"numFound": 2, "docs": [{"id": "7", "title": "Climate summit"}, {"id": "9"}]}}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})

	result, err := c.Search(context.Background(), "climate", 10, 5)
	require.NoError(t, err)

	assert.Equal(t, 2, result.NumFound)
	require.Len(t, result.Docs, 2)
	assert.Equal(t, "Climate summit", result.Docs[0].Title)
}
