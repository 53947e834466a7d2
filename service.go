package main

import (
	"context"

	"github.com/reelpost/reelpost/relay"
)

// JobService runs dispatched jobs through the single-job runner.
type JobService struct {
	runner *relay.Runner
}

// NewJobService creates a new JobService instance
func NewJobService(runner *relay.Runner) *JobService {
	return &JobService{runner: runner}
}

// RunJob validates req and runs it to completion. The job is detached from
// ctx cancellation so a client hanging up does not abort an upload halfway.
func (s *JobService) RunJob(ctx context.Context, req *JobRequest) (*relay.Result, error) {
	job := *req
	job.ApplyDefaults()
	if err := job.Validate(); err != nil {
		return nil, &validationError{err}
	}
	return s.runner.Run(context.WithoutCancel(ctx), &job)
}

// Busy reports whether a job is running.
func (s *JobService) Busy() bool {
	return s.runner.Busy()
}

type validationError struct{ error }

func (e *validationError) Unwrap() error { return e.error }
