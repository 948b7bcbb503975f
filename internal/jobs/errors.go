package jobs

import "errors"

// Enqueue rejections.
var (
	ErrJobNotFound  = errors.New("jobs: job not found")
	ErrQueueFull    = errors.New("jobs: queue is full")
	ErrShuttingDown = errors.New("jobs: shutting down")
)
