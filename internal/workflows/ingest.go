package workflows

import (
	"errors"
	"fmt"

	pipeline "github.com/bourdainai/bourdain-image-worker/internal/pipeline"
	pipelinetypes "github.com/bourdainai/bourdain-image-worker/pkg/pipeline"
)

// IngestWorkflow is the sole registered Workflow: it runs one ImageJob
// through the ingest orchestrator. Adapted from the teacher's
// ThumbnailWorkflow, which wrapped a single derived-content operation the
// same way.
type IngestWorkflow struct {
	orch *pipeline.Orchestrator
}

// NewIngestWorkflow wraps orch as a Workflow.
func NewIngestWorkflow(orch *pipeline.Orchestrator) *IngestWorkflow {
	return &IngestWorkflow{orch: orch}
}

// Name implements Workflow.
func (w *IngestWorkflow) Name() string { return "IngestWorkflow" }

// Execute implements Workflow. The orchestrator is one synchronous call
// with no separately checkpointed DBOS steps, so when DBOS recovers a run
// interrupted by a crash, the whole pipeline runs again from the start.
func (w *IngestWorkflow) Execute(wctx *WorkflowContext) (*WorkflowResult, error) {
	if err := wctx.Job.Validate(); err != nil {
		err = fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		return &WorkflowResult{Success: false, Error: err}, err
	}

	result := w.orch.Process(wctx.Ctx, wctx.Job)

	if result.Status == pipelinetypes.StatusFailed {
		return &WorkflowResult{Success: false, Error: errors.New(result.Error), Result: result}, nil
	}
	return &WorkflowResult{Success: true, Result: result}, nil
}
