package server

import (
	"context"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apihttp "github.com/eduforge/gamehost/internal/api/http"
	"github.com/eduforge/gamehost/internal/api/middleware"
	"github.com/eduforge/gamehost/internal/api/ws"
	"github.com/eduforge/gamehost/internal/domain/catalog"
	"github.com/eduforge/gamehost/internal/domain/content"
	"github.com/eduforge/gamehost/internal/domain/player"
	"github.com/eduforge/gamehost/internal/domain/results"
	"github.com/eduforge/gamehost/internal/domain/sandbox"
	"github.com/eduforge/gamehost/internal/infrastructure/config"
	"github.com/eduforge/gamehost/internal/infrastructure/logging"
	"github.com/eduforge/gamehost/internal/infrastructure/monitoring"
	"github.com/eduforge/gamehost/internal/shared/clock"
)

// Server wires the game host together and runs its HTTP surface.
type Server struct {
	cfg       *config.Config
	log       *logging.Logger
	router    *gin.Engine
	httpSrv   *http.Server
	players   *player.Manager
	validator *sandbox.Validator
}

// New builds a fully wired server from configuration.
func New(cfg *config.Config, log *logging.Logger) *Server {
	metrics := monitoring.NewMetrics()
	clk := clock.System()

	transformer := content.New(content.Options{
		CompactUI:    cfg.Transform.CompactUI,
		MinifyOverKB: cfg.Transform.MinifyOverKB,
	}, log).WithMetrics(metrics)

	cat := catalog.NewClient(cfg.Catalog, log)
	reporter := results.NewHTTPReporter(cfg.Results, log).WithMetrics(metrics)
	validator := sandbox.NewValidator(cfg.Sandbox.PoolSize, sandbox.HeadlessConfig{
		Timeout: cfg.Sandbox.Timeout,
	}, clk, log)
	players := player.NewManager(cat, transformer, reporter, cfg.Fullscreen, clk, log).WithMetrics(metrics)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		router.Use(middleware.RateLimit(cfg.RateLimit))
	}
	router.Use(monitoring.Middleware(metrics))

	handlers := apihttp.NewHandlers(cat, players, validator, transformer, log)
	wsHandler := ws.NewHandler(players, log)

	router.GET("/health", handlers.Health)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Catalog browsing and publish-time checks.
	router.GET("/games", handlers.ListGames)
	router.GET("/games/:id", handlers.GetGame)
	router.POST("/games/validate", handlers.ValidateGame)
	router.POST("/games/preview", handlers.PreviewGame)

	// Open player views.
	router.GET("/players", handlers.ListPlayers)
	router.GET("/players/:id", handlers.GetPlayer)
	router.POST("/players/:id/actions", handlers.PlayerAction)
	router.GET("/players/:id/document", handlers.GetDocument)

	// The play connection itself.
	router.GET("/ws/play", wsHandler.HandleConnection)

	return &Server{
		cfg:       cfg,
		log:       log.Named("server"),
		router:    router,
		players:   players,
		validator: validator,
	}
}

// Router exposes the gin engine, for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	addr := net.JoinHostPort(s.cfg.Server.Host, s.cfg.Server.Port)
	s.httpSrv = &http.Server{Addr: addr, Handler: s.router}

	s.log.Info("game host listening", zap.String("addr", addr))
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains HTTP, then tears down every open player view so their
// partial saves go out.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpSrv != nil {
		err = s.httpSrv.Shutdown(ctx)
	}
	s.players.CloseAll()
	s.validator.Close()
	return err
}
