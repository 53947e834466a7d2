package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/reelpost/reelpost/relay"
	"github.com/sirupsen/logrus"
)

// healthHandler handles health check requests
func (s *AppServer) healthHandler(c *gin.Context) {
	respondSuccess(c, HealthResponse{
		Status:  "healthy",
		Service: "reelpost",
		Version: version,
		Busy:    s.jobs.Busy(),
	}, "Service is healthy")
}

// createJobHandler runs one upload job synchronously
func (s *AppServer) createJobHandler(c *gin.Context) {
	var req JobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST",
			"Invalid request parameters", err.Error())
		return
	}

	logrus.Infof("Received job request: url=%s, fetch_mode=%s, compress=%v", req.URL, req.FetchMode, req.Compress)

	result, err := s.jobs.RunJob(c.Request.Context(), &req)
	var invalid *validationError
	switch {
	case err == nil:
		respondSuccess(c, result, "Job completed successfully")
	case errors.As(err, &invalid):
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST",
			"Invalid job", err.Error())
	case errors.Is(err, relay.ErrBusy):
		respondError(c, http.StatusConflict, "BUSY",
			"Another job is running", nil)
	default:
		respondError(c, http.StatusInternalServerError, "JOB_FAILED",
			"Failed to run job", err.Error())
	}
}
