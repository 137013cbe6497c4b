package workflows

import "errors"

var (
	// ErrWorkflowNotFound is returned when no Workflow is registered
	// for the requested job type.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrInvalidRequest is returned when a job fails boundary
	// validation before a Workflow runs.
	ErrInvalidRequest = errors.New("invalid workflow request")
)
