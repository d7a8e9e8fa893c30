// Package http implements the REST control plane: catalog browsing,
// player view inspection and actions, document serving, and publish-time
// validation.
package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/eduforge/gamehost/internal/domain/catalog"
	"github.com/eduforge/gamehost/internal/domain/content"
	"github.com/eduforge/gamehost/internal/domain/player"
	"github.com/eduforge/gamehost/internal/domain/sandbox"
	"github.com/eduforge/gamehost/internal/infrastructure/logging"
	"github.com/eduforge/gamehost/internal/shared/id"
)

// Handlers bundles the REST endpoints and their dependencies.
type Handlers struct {
	catalog     *catalog.Client
	players     *player.Manager
	validator   *sandbox.Validator
	transformer *content.Transformer
	sanitizer   *content.Sanitizer
	log         *logging.Logger
}

// NewHandlers creates the REST handler set.
func NewHandlers(cat *catalog.Client, players *player.Manager, validator *sandbox.Validator,
	transformer *content.Transformer, log *logging.Logger) *Handlers {
	return &Handlers{
		catalog:     cat,
		players:     players,
		validator:   validator,
		transformer: transformer,
		sanitizer:   content.NewSanitizer(),
		log:         log.Named("http"),
	}
}

// Health reports service liveness.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ListGames proxies the catalog's playable games.
func (h *Handlers) ListGames(c *gin.Context) {
	games, err := h.catalog.List(c.Request.Context())
	if err != nil {
		h.log.Warn("catalog list failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "catalog unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"games": games})
}

// GetGame returns one catalog entry.
func (h *Handlers) GetGame(c *gin.Context) {
	game, err := h.catalog.Game(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "game not found"})
	case err != nil:
		h.log.Warn("catalog get failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "catalog unavailable"})
	default:
		c.JSON(http.StatusOK, game)
	}
}

// ListPlayers returns all open player views.
func (h *Handlers) ListPlayers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"players": h.players.List()})
}

// GetPlayer returns one view snapshot.
func (h *Handlers) GetPlayer(c *gin.Context) {
	view, err := h.players.Get(id.PlayerID(c.Param("id")))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "player view not found"})
		return
	}
	c.JSON(http.StatusOK, view)
}

// actionRequest is the body of POST /players/:id/actions.
type actionRequest struct {
	Action string `json:"action" binding:"required"`
}

// PlayerAction applies pause, resume, restart, or close to a view.
func (h *Handlers) PlayerAction(c *gin.Context) {
	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "action is required"})
		return
	}

	err := h.players.Action(id.PlayerID(c.Param("id")), req.Action)
	switch {
	case errors.Is(err, player.ErrNoPlayer):
		c.JSON(http.StatusNotFound, gin.H{"error": "player view not found"})
	case errors.Is(err, player.ErrUnknownAction):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"status": "applied", "action": req.Action})
	}
}

// GetDocument serves the transformed document of a view, gzipped when the
// client accepts it. Game documents routinely run hundreds of kilobytes.
func (h *Handlers) GetDocument(c *gin.Context) {
	doc, err := h.players.Document(id.PlayerID(c.Param("id")))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "player view not found"})
		return
	}

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Header("Cache-Control", "no-store")

	if strings.Contains(c.GetHeader("Accept-Encoding"), "gzip") {
		c.Header("Content-Encoding", "gzip")
		c.Status(http.StatusOK)
		zw := gzip.NewWriter(c.Writer)
		defer zw.Close()
		zw.Write([]byte(doc))
		return
	}
	c.String(http.StatusOK, doc)
}

// validateRequest is the body of POST /games/validate and /games/preview.
type validateRequest struct {
	HTML string `json:"html" binding:"required"`
}

// ValidateGame runs raw game HTML through the transform pipeline and a
// headless surface, reporting whether it would come up in a player view.
func (h *Handlers) ValidateGame(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "html is required"})
		return
	}

	report, err := h.validator.Validate(c.Request.Context(), h.transformer.Transform(req.HTML))
	if err != nil {
		h.log.Warn("validation run failed", zap.Error(err))
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "document failed to execute", "report": report})
		return
	}
	c.JSON(http.StatusOK, report)
}

// PreviewGame returns a script-free preview of raw game HTML.
func (h *Handlers) PreviewGame(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "html is required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"preview": h.sanitizer.Preview(req.HTML)})
}
