package server

import (
	"context"
	"net/http"
	"time"

	"github.com/Tyrowin/chatroom/internal/config"
	"github.com/Tyrowin/chatroom/internal/logging"
	"github.com/Tyrowin/chatroom/internal/metrics"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

// Server is the HTTP front of the chat service.
type Server struct {
	cfg         *config.Config
	coordinator *Coordinator
	credentials Credentials
	tokens      TokenService
	metrics     *metrics.Metrics
	origins     *originPolicy
	upgrader    websocket.Upgrader
	router      *httprouter.Router
	logger      logging.Logger
	httpServer  *http.Server
}

func New(cfg *config.Config, deps Deps) *Server {
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	logger := deps.Logger.With("component", "http")

	s := &Server{
		cfg:         cfg,
		coordinator: NewCoordinator(cfg, deps),
		credentials: deps.Credentials,
		tokens:      deps.Tokens,
		metrics:     deps.Metrics,
		origins:     newOriginPolicy(cfg.AllowedOrigins, logger),
		router:      httprouter.New(),
		logger:      logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.check,
	}

	s.setupRoutes()
	s.httpServer = CreateServer(cfg.Port, s.router)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Coordinator() *Coordinator {
	return s.coordinator
}

// StartHub runs the hub loop in the background. It must be called before
// the first websocket is accepted.
func (s *Server) StartHub() {
	go s.coordinator.hub.Run()
}

// ListenAndServe starts the hub and serves HTTP until Shutdown.
func (s *Server) ListenAndServe() error {
	s.StartHub()
	s.logger.Info(context.Background(), "server listening", "addr", s.cfg.Port)
	return StartServer(s.httpServer)
}

// Shutdown stops accepting requests, then closes every websocket.
func (s *Server) Shutdown(timeout time.Duration) error {
	err := ShutdownServer(s.httpServer, timeout, s.logger)
	if hubErr := s.coordinator.hub.Shutdown(timeout); hubErr != nil && err == nil {
		err = hubErr
	}
	return err
}
