package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Tyrowin/chatroom/internal/logging"
)

// CreateServer returns an http.Server with production timeouts.
func CreateServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// StartServer blocks serving HTTP. A clean shutdown returns nil.
func StartServer(server *http.Server) error {
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ShutdownServer gracefully stops server, waiting at most timeout for
// in-flight requests.
func ShutdownServer(server *http.Server, timeout time.Duration, logger logging.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error(ctx, "http server shutdown error", "error", err)
		return err
	}
	logger.Info(ctx, "http server shutdown completed")
	return nil
}
