package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduforge/gamehost/internal/infrastructure/config"
	"github.com/eduforge/gamehost/internal/infrastructure/logging"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.CatalogConfig{BaseURL: srv.URL, Timeout: 2 * time.Second}, logging.NewNop())
}

func TestListGames(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/games", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":"g1","title":"Fractions Race","subject":"math","estimatedMinutes":10}]`))
	}))

	games, err := c.List(context.Background())
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, "g1", games[0].ID)
	assert.Equal(t, "Fractions Race", games[0].Title)
	assert.Equal(t, 10, games[0].EstimatedMinutes)
}

func TestGameNotFound(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := c.Game(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = c.Content(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestContentReturnsHTML(t *testing.T) {
	const page = `<!DOCTYPE html><html><body><h1>quiz</h1></body></html>`
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/games/g1/content", r.URL.Path)
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(page))
	}))

	got, err := c.Content(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, page, got)
}

func TestContentRejectsNonHTML(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// A zip archive masquerading as game content.
		w.Write([]byte("PK\x03\x04zipzipzip"))
	}))

	_, err := c.Content(context.Background(), "g1")
	assert.ErrorIs(t, err, ErrNotHTML)
}
