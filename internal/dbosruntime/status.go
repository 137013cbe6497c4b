package dbosruntime

import (
	"context"
	"fmt"
	"time"
)

// WorkflowStatusInfo is what the DBOS status table knows about one
// workflow run.
type WorkflowStatusInfo struct {
	WorkflowUUID string
	Status       string
	Name         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// GetWorkflowStatus queries DBOS's own dbos.workflow_status table for the
// current state of a workflow run, bypassing the Go SDK's typed handle
// API so callers that only have a workflow id string (e.g. an HTTP status
// endpoint that outlives the process that enqueued the run) can still
// look it up. Grounded on the teacher's internal/dbosruntime/workflow_invoke.go,
// whose GetWorkflowStatus ran the same query; StartWorkflowByName, the
// other half of that file, stays dropped since nothing here triggers
// workflows implemented in another language.
func (r *Runtime) GetWorkflowStatus(ctx context.Context, workflowUUID string) (*WorkflowStatusInfo, error) {
	const query = `
		SELECT workflow_uuid, status, name, created_at, updated_at
		FROM dbos.workflow_status
		WHERE workflow_uuid = $1
	`

	var info WorkflowStatusInfo
	var createdAtMS, updatedAtMS int64
	err := r.db.QueryRowContext(ctx, query, workflowUUID).Scan(
		&info.WorkflowUUID,
		&info.Status,
		&info.Name,
		&createdAtMS,
		&updatedAtMS,
	)
	if err != nil {
		return nil, fmt.Errorf("query workflow status: %w", err)
	}

	info.CreatedAt = time.UnixMilli(createdAtMS)
	info.UpdatedAt = time.UnixMilli(updatedAtMS)
	return &info, nil
}
