// Package handlers implements the inbound HTTP surface for submitting
// ingest jobs, adapted from the teacher's internal/handlers/async.go.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/bourdainai/bourdain-image-worker/internal/logging"
	"github.com/bourdainai/bourdain-image-worker/internal/workflows"
	"github.com/bourdainai/bourdain-image-worker/pkg/pipeline"
)

// SubmissionLedger counts repeated (cardId, sourceUrl) submissions.
// Both submission.Ledger (Postgres-backed) and submission.MemoryLedger
// (cmd/standalone) satisfy this.
type SubmissionLedger interface {
	Record(ctx context.Context, cardID, sourceURL string) (int, error)
}

// IngestHandler serves the async ingest submission and status endpoints.
type IngestHandler struct {
	runner *workflows.WorkflowRunner
	ledger SubmissionLedger
	log    *logging.Logger
}

// NewIngestHandler builds an IngestHandler.
func NewIngestHandler(runner *workflows.WorkflowRunner, ledger SubmissionLedger, log *logging.Logger) *IngestHandler {
	return &IngestHandler{runner: runner, ledger: ledger, log: log}
}

// HandleProcessAsync serves POST /v1/process: validates the job,
// records its submission, enqueues it via DBOS, and returns 202
// immediately with the run id and the job's resubmission count.
func (h *IngestHandler) HandleProcessAsync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var job pipeline.ImageJob
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return
	}
	if err := job.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	seenCount, err := h.ledger.Record(r.Context(), job.CardID, job.SourceURL)
	if err != nil {
		h.log.Warn(r.Context(), "submission ledger record failed: "+err.Error())
	}

	runID, err := h.runner.RunAsync(r.Context(), job)
	if err != nil {
		h.log.Error(r.Context(), "failed to enqueue ingest workflow", err)
		http.Error(w, fmt.Sprintf("Failed to enqueue workflow: %v", err), http.StatusInternalServerError)
		return
	}

	resp := pipeline.ProcessResponse{RunID: runID, DedupeSeenCount: seenCount}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(resp)
}

// HandleStatus serves GET /v1/runs/{runID}: reports what's known about a
// previously-enqueued run.
func (h *IngestHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	runID := strings.TrimPrefix(r.URL.Path, "/v1/runs/")
	if runID == "" {
		http.Error(w, "run_id is required", http.StatusBadRequest)
		return
	}

	status, err := h.runner.GetStatus(r.Context(), runID)
	if err != nil {
		http.Error(w, "Workflow not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(status)
}
