package server

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// NewServer creates and configures an http.Server for the directory API.
// Write timeout is generous because the roster stream endpoint holds its
// response open.
func NewServer(port string, handler http.Handler, logger *zap.Logger) *http.Server {
	srv := &http.Server{
		Addr:         port,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}
	logger.Info("HTTP server configured", zap.String("address", port))
	return srv
}
