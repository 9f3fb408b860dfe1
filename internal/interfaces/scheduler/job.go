package scheduler

import "context"

// Job is a unit of work run by the worker pool.
type Job interface {
	// Execute runs the job. It must respect ctx cancellation.
	Execute(ctx context.Context) error

	// Owner names whose data the job touches, for logs and spans.
	Owner() string

	// Description returns a human-readable description of the job.
	Description() string
}
