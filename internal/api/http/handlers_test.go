package http

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduforge/gamehost/internal/domain/catalog"
	"github.com/eduforge/gamehost/internal/domain/content"
	"github.com/eduforge/gamehost/internal/domain/fullscreen"
	"github.com/eduforge/gamehost/internal/domain/player"
	"github.com/eduforge/gamehost/internal/domain/protocol"
	"github.com/eduforge/gamehost/internal/domain/sandbox"
	"github.com/eduforge/gamehost/internal/infrastructure/config"
	"github.com/eduforge/gamehost/internal/infrastructure/logging"
	"github.com/eduforge/gamehost/internal/shared/clock"
	"github.com/eduforge/gamehost/internal/shared/id"
)

const gamePage = `<html><head><title>fr</title></head><body><div id="game"></div></body></html>`

func catalogBackend() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/games", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":"g1","title":"Fractions Race","subject":"math"}]`))
	})
	mux.HandleFunc("/games/g1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"g1","title":"Fractions Race","subject":"math"}`))
	})
	mux.HandleFunc("/games/g1/content", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<!DOCTYPE html>` + gamePage))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	return mux
}

type stubSurface struct {
	surfaceID id.SurfaceID
	binding   *sandbox.Binding
}

func (s *stubSurface) ID() id.SurfaceID { return s.surfaceID }

func (s *stubSurface) Load(string) error {
	if s.binding != nil && s.binding.OnLoad != nil {
		s.binding.OnLoad()
	}
	return nil
}

func (s *stubSurface) Post(*protocol.Message) error { return nil }

func (s *stubSurface) Bind(b sandbox.Binding) error {
	s.binding = &b
	return nil
}

func (s *stubSurface) Unbind()      { s.binding = nil }
func (s *stubSurface) Close() error { return nil }

type stubDisplay struct{}

func (stubDisplay) RequestFullscreen(fullscreen.Target) {}
func (stubDisplay) ExitFullscreen()                     {}
func (stubDisplay) Maximize()                           {}
func (stubDisplay) ShowNotice(string)                   {}
func (stubDisplay) SetKeyIntercept(bool)                {}

type fixture struct {
	router  *gin.Engine
	players *player.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	backend := httptest.NewServer(catalogBackend())
	t.Cleanup(backend.Close)

	log := logging.NewNop()
	cat := catalog.NewClient(config.CatalogConfig{BaseURL: backend.URL, Timeout: 2 * time.Second}, log)
	transformer := content.New(content.Options{}, log)
	validator := sandbox.NewValidator(1, sandbox.HeadlessConfig{}, clock.System(), log)
	t.Cleanup(validator.Close)
	players := player.NewManager(cat, transformer, nil, config.FullscreenConfig{}, clock.System(), log)

	h := NewHandlers(cat, players, validator, transformer, log)
	router := gin.New()
	router.GET("/health", h.Health)
	router.GET("/games", h.ListGames)
	router.GET("/games/:id", h.GetGame)
	router.POST("/games/validate", h.ValidateGame)
	router.POST("/games/preview", h.PreviewGame)
	router.GET("/players", h.ListPlayers)
	router.GET("/players/:id", h.GetPlayer)
	router.POST("/players/:id/actions", h.PlayerAction)
	router.GET("/players/:id/document", h.GetDocument)

	return &fixture{router: router, players: players}
}

func (f *fixture) openView(t *testing.T) player.View {
	t.Helper()
	view, err := f.players.Open(context.Background(), player.OpenRequest{GameID: "g1"},
		&stubSurface{surfaceID: id.NewSurfaceID()}, stubDisplay{})
	require.NoError(t, err)
	return view
}

func (f *fixture) do(t *testing.T, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, "GET", "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestListGames(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, "GET", "/games", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Fractions Race")
}

func TestGetGameNotFound(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, "GET", "/games/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetPlayerLifecycle(t *testing.T) {
	f := newFixture(t)
	view := f.openView(t)

	w := f.do(t, "GET", "/players/"+view.ID.String(), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), view.ID.String())

	w = f.do(t, "GET", "/players", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "g1")

	w = f.do(t, "POST", "/players/"+view.ID.String()+"/actions", `{"action":"close"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, "GET", "/players/"+view.ID.String(), "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPlayerActionValidation(t *testing.T) {
	f := newFixture(t)
	view := f.openView(t)

	w := f.do(t, "POST", "/players/"+view.ID.String()+"/actions", `{"action":"explode"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, "POST", "/players/"+view.ID.String()+"/actions", `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, "POST", "/players/play_missing/actions", `{"action":"pause"}`, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetDocumentPlainAndGzip(t *testing.T) {
	f := newFixture(t)
	view := f.openView(t)
	path := "/players/" + view.ID.String() + "/document"

	w := f.do(t, "GET", path, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "gh-bridge")
	assert.Empty(t, w.Header().Get("Content-Encoding"))

	hdr := http.Header{}
	hdr.Set("Accept-Encoding", "gzip, deflate")
	w = f.do(t, "GET", path, "", hdr)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "gzip", w.Header().Get("Content-Encoding"))

	zr, err := gzip.NewReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	plain, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Contains(t, string(plain), "gh-bridge")
}

func TestValidateEndpoint(t *testing.T) {
	f := newFixture(t)

	body, err := json.Marshal(map[string]string{"html": gamePage})
	require.NoError(t, err)

	w := f.do(t, "POST", "/games/validate", string(body), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var report sandbox.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.True(t, report.Ready, "transformed game did not announce readiness")
}

func TestPreviewEndpoint(t *testing.T) {
	f := newFixture(t)

	body := `{"html":"<div><script>evil()</script><button>play</button>fine</div>"}`
	w := f.do(t, "POST", "/games/preview", body, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "script")
	assert.Contains(t, w.Body.String(), "fine")
}

func TestValidateRequiresHTML(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, "POST", "/games/validate", `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
