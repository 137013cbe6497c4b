// Package workflows wraps the ingest pipeline in the DBOS durable
// workflow harness the teacher already wires through internal/dbosruntime.
// Adapted from the teacher's internal/workflows/types.go: same
// Workflow/WorkflowRunner shape, carrying an ImageJob instead of a
// ProcessRequest and a single registered job type instead of several.
package workflows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dbos-inc/dbos-transact-golang/dbos"

	"github.com/bourdainai/bourdain-image-worker/internal/dbosruntime"
	"github.com/bourdainai/bourdain-image-worker/pkg/pipeline"
)

// WorkflowContext carries one job's execution context.
type WorkflowContext struct {
	Ctx   context.Context
	Job   pipeline.ImageJob
	RunID string
}

// WorkflowResult is the outcome of one workflow execution.
type WorkflowResult struct {
	Success bool
	Error   error
	Result  pipeline.ProcessResult
}

// Workflow is implemented by each registerable job type.
type Workflow interface {
	Execute(wctx *WorkflowContext) (*WorkflowResult, error)
	Name() string
}

// WorkflowRunner dispatches jobs to a registered Workflow, either
// synchronously or via DBOS's durable queue.
type WorkflowRunner struct {
	workflows   map[string]Workflow
	dbosRuntime *dbosruntime.Runtime
}

// NewWorkflowRunner creates a runner backed by dbosRuntime and registers
// the DBOS workflow function it will dispatch through.
func NewWorkflowRunner(dbosRuntime *dbosruntime.Runtime) *WorkflowRunner {
	runner := &WorkflowRunner{
		workflows:   make(map[string]Workflow),
		dbosRuntime: dbosRuntime,
	}
	if dbosRuntime != nil {
		dbos.RegisterWorkflow(dbosRuntime.Context(), runner.executeWorkflowDBOS)
	}
	return runner
}

// Register associates a job type with its Workflow implementation.
func (r *WorkflowRunner) Register(job string, workflow Workflow) {
	r.workflows[job] = workflow
}

// Run executes a job's workflow synchronously, bypassing DBOS. Used by
// cmd/standalone.
func (r *WorkflowRunner) Run(wctx *WorkflowContext) (*WorkflowResult, error) {
	workflow, ok := r.workflows[pipeline.JobIngest]
	if !ok {
		return &WorkflowResult{Success: false, Error: ErrWorkflowNotFound}, ErrWorkflowNotFound
	}
	return workflow.Execute(wctx)
}

// RunAsync enqueues a job for durable, asynchronous execution via DBOS
// and returns its workflow id.
func (r *WorkflowRunner) RunAsync(ctx context.Context, job pipeline.ImageJob) (string, error) {
	if r.dbosRuntime == nil {
		return "", errors.New("DBOS runtime not initialized")
	}

	workflowID := fmt.Sprintf("%s-%s-%d", pipeline.JobIngest, job.CardID, time.Now().UnixNano())

	handle, err := dbos.RunWorkflow[pipeline.ImageJob, *WorkflowResult](
		r.dbosRuntime.Context(),
		r.executeWorkflowDBOS,
		job,
		dbos.WithWorkflowID(workflowID),
		dbos.WithQueue(r.dbosRuntime.QueueName()),
	)
	if err != nil {
		return "", err
	}
	return handle.GetWorkflowID(), nil
}

func (r *WorkflowRunner) executeWorkflowDBOS(dbosCtx dbos.DBOSContext, job pipeline.ImageJob) (*WorkflowResult, error) {
	workflow, ok := r.workflows[pipeline.JobIngest]
	if !ok {
		return &WorkflowResult{Success: false, Error: ErrWorkflowNotFound}, ErrWorkflowNotFound
	}

	workflowID, err := dbosCtx.GetWorkflowID()
	if err != nil {
		return &WorkflowResult{Success: false, Error: err}, err
	}

	wctx := &WorkflowContext{Ctx: dbosCtx, Job: job, RunID: workflowID}
	return workflow.Execute(wctx)
}

// WorkflowStatus reports what's known about a submitted run.
type WorkflowStatus struct {
	RunID      string
	State      string
	StartedAt  time.Time
	FinishedAt *time.Time
	Result     *WorkflowResult
	Error      error
}

// GetStatus retrieves the DBOS-tracked status of a run by querying
// dbos.workflow_status directly through dbosRuntime.GetWorkflowStatus,
// rather than reporting a fixed "running" for every run id regardless of
// whether it exists, finished, or failed.
func (r *WorkflowRunner) GetStatus(ctx context.Context, runID string) (*WorkflowStatus, error) {
	if r.dbosRuntime == nil {
		return nil, errors.New("status tracking requires DBOS runtime")
	}

	info, err := r.dbosRuntime.GetWorkflowStatus(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("lookup workflow status: %w", err)
	}

	status := &WorkflowStatus{RunID: info.WorkflowUUID, State: info.Status, StartedAt: info.CreatedAt}
	if isTerminalState(info.Status) {
		finishedAt := info.UpdatedAt
		status.FinishedAt = &finishedAt
	}
	return status, nil
}

func isTerminalState(state string) bool {
	switch state {
	case "SUCCESS", "ERROR", "CANCELLED":
		return true
	default:
		return false
	}
}
