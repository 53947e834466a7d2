package main

import (
	"github.com/reelpost/reelpost/configs"
)

// HTTP API Response Types

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

// SuccessResponse represents a success response
type SuccessResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data"`
	Message string `json:"message,omitempty"`
}

// JobRequest is the body of POST /api/v1/jobs; it has the same shape as a job file.
type JobRequest = configs.Job

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
	Busy    bool   `json:"busy"`
}
