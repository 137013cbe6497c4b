// Package runner provides a high-level, in-process API for enqueueing
// ingest jobs via DBOS without standing up the HTTP entrypoint, adapted
// from the teacher's pkg/runner/runner.go. Where the teacher exposed one
// RunX method per job type (RunThumbnail, RunObjectDetection, RunOCR),
// this exposes the single RunIngest this worker registers.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/bourdainai/bourdain-image-worker/internal/blobstore"
	"github.com/bourdainai/bourdain-image-worker/internal/catalog"
	"github.com/bourdainai/bourdain-image-worker/internal/dbosruntime"
	"github.com/bourdainai/bourdain-image-worker/internal/derivative"
	"github.com/bourdainai/bourdain-image-worker/internal/fetch"
	"github.com/bourdainai/bourdain-image-worker/internal/logging"
	"github.com/bourdainai/bourdain-image-worker/internal/metrics"
	orchestrator "github.com/bourdainai/bourdain-image-worker/internal/pipeline"
	"github.com/bourdainai/bourdain-image-worker/internal/ratelimit"
	"github.com/bourdainai/bourdain-image-worker/internal/vision"
	"github.com/bourdainai/bourdain-image-worker/internal/workflows"
	"github.com/bourdainai/bourdain-image-worker/pkg/pipeline"
)

// Config holds everything needed to build a Runner.
type Config struct {
	DBOSDatabaseURL    string
	CatalogDatabaseURL string
	AppName            string
	QueueName          string
	Concurrency        int
	ApplicationVersion string

	StorageBaseURL string
	StorageBucket  string
	StorageAPIKey  string

	VisionURL    string
	VisionAPIKey string
	VisionModel  string

	DerivativeSettings map[string]derivative.Setting
	KnownErrorPayloads fetch.KnownErrorPayloads

	OrchestratorSettings orchestrator.Settings
}

// Runner provides a high-level API for enqueueing ingest workflows via
// DBOS.
type Runner struct {
	runtime *dbosruntime.Runtime
	runner  *workflows.WorkflowRunner
}

// New builds a Runner, wiring a full orchestrator and registering it
// with DBOS, then launching the runtime.
func New(ctx context.Context, cfg Config) (*Runner, error) {
	log := logging.New(logging.Options{ServiceName: cfg.AppName})

	dbosRuntime, err := dbosruntime.NewRuntime(ctx, dbosruntime.Config{
		DatabaseURL:        cfg.DBOSDatabaseURL,
		AppName:            cfg.AppName,
		QueueName:          cfg.QueueName,
		Concurrency:        cfg.Concurrency,
		ApplicationVersion: cfg.ApplicationVersion,
		Log:                log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize DBOS: %w", err)
	}

	db, err := catalog.OpenPostgres(cfg.CatalogDatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}
	cat := catalog.NewPostgres(db)

	limiter := ratelimit.New(60 * time.Second)
	fetcher := fetch.New(30*time.Second, cfg.KnownErrorPayloads)
	visionChecker := vision.New(cfg.VisionURL, cfg.VisionAPIKey, cfg.VisionModel)
	derivGen := derivative.New(cfg.DerivativeSettings)
	uploader := blobstore.NewHTTPUploader(cfg.StorageBaseURL, cfg.StorageBucket, cfg.StorageAPIKey)
	m := metrics.New(cfg.AppName)

	orch := orchestrator.New(limiter, fetcher, visionChecker, derivGen, uploader, cat, log, m, cfg.OrchestratorSettings)

	workflowRunner := workflows.NewWorkflowRunner(dbosRuntime)
	workflowRunner.Register(pipeline.JobIngest, workflows.NewIngestWorkflow(orch))

	if err := dbosRuntime.Launch(); err != nil {
		return nil, fmt.Errorf("failed to launch DBOS: %w", err)
	}

	return &Runner{runtime: dbosRuntime, runner: workflowRunner}, nil
}

// RunIngest enqueues an ImageJob for durable, asynchronous ingest.
func (r *Runner) RunIngest(ctx context.Context, job pipeline.ImageJob) (string, error) {
	return r.runner.RunAsync(ctx, job)
}

// Shutdown gracefully shuts down the underlying DBOS runtime.
func (r *Runner) Shutdown(timeoutSeconds int) {
	if r.runtime != nil {
		r.runtime.Shutdown(time.Duration(timeoutSeconds) * time.Second)
	}
}
