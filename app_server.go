package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AppServer represents the job dispatch server
type AppServer struct {
	jobs       *JobService
	token      string
	router     *gin.Engine
	httpServer *http.Server
}

// NewAppServer creates a new application server instance
func NewAppServer(jobs *JobService, token string) *AppServer {
	return &AppServer{jobs: jobs, token: token}
}

// Start starts the HTTP server and blocks until SIGINT or SIGTERM.
func (s *AppServer) Start(addr string) error {
	s.router = setupRoutes(s)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.Infof("Starting HTTP server on %s", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		logrus.Errorf("Server startup failed: %v", err)
		return err
	case <-quit:
	}

	logrus.Info("Shutting down server...")

	// a running job gets a grace period to finish its upload
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		logrus.Errorf("Server shutdown failed: %v", err)
		return err
	}

	logrus.Info("Server stopped")
	return nil
}
