package server

import "net/http"

func (s *Server) setupRoutes() {
	s.router.GET("/", s.handleHealth)
	s.router.GET("/ws", s.handleWebSocket)
	s.router.POST("/login", s.handleLogin)
	s.router.POST("/logout", s.handleLogout)
	s.router.Handler(http.MethodGet, "/metrics", s.metrics.Handler())
}
