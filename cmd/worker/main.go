// Command worker is the HTTP entrypoint that receives ImageJob submissions
// and runs them through the ingest pipeline via DBOS's durable queue.
// Adapted from the teacher's cmd/pipeline-worker/main.go, swapping in
// pkg/pipeline's ImageJob surface and this domain's collaborators in
// place of the teacher's simple-content reader/writer pair.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/bourdainai/bourdain-image-worker/internal/blobstore"
	"github.com/bourdainai/bourdain-image-worker/internal/catalog"
	"github.com/bourdainai/bourdain-image-worker/internal/config"
	"github.com/bourdainai/bourdain-image-worker/internal/dbosruntime"
	"github.com/bourdainai/bourdain-image-worker/internal/derivative"
	"github.com/bourdainai/bourdain-image-worker/internal/fetch"
	"github.com/bourdainai/bourdain-image-worker/internal/handlers"
	"github.com/bourdainai/bourdain-image-worker/internal/logging"
	"github.com/bourdainai/bourdain-image-worker/internal/metrics"
	orchestrator "github.com/bourdainai/bourdain-image-worker/internal/pipeline"
	"github.com/bourdainai/bourdain-image-worker/internal/ratelimit"
	"github.com/bourdainai/bourdain-image-worker/internal/submission"
	"github.com/bourdainai/bourdain-image-worker/internal/vision"
	"github.com/bourdainai/bourdain-image-worker/internal/workflows"
	"github.com/bourdainai/bourdain-image-worker/pkg/pipeline"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logging.New(logging.Options{ServiceName: "bourdain-image-worker", Level: zerolog.InfoLevel})
	ctx := context.Background()

	if cfg.DBOSDatabaseURL == "" {
		log.Error(ctx, "DBOS_SYSTEM_DATABASE_URL is required", nil)
		os.Exit(1)
	}
	if cfg.DatabaseURL == "" {
		log.Error(ctx, "DATABASE_URL is required", nil)
		os.Exit(1)
	}

	db, err := catalog.OpenPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Error(ctx, "failed to open catalog database", err)
		os.Exit(1)
	}
	defer db.Close()
	cat := catalog.NewPostgres(db)

	ledger, err := submission.NewLedger(ctx, db)
	if err != nil {
		log.Error(ctx, "failed to initialize submission ledger", err)
		os.Exit(1)
	}

	limiter := ratelimit.New(cfg.RateLimiterGCInterval)
	defer limiter.Close()

	fetcher := fetch.New(cfg.FetchTimeout, cfg.KnownErrorPayloads)
	visionChecker := vision.New(cfg.VisionURL, cfg.VisionAPIKey, cfg.VisionModel)

	derivSettings := make(map[string]derivative.Setting, len(cfg.DerivativeSettings))
	for variant, s := range cfg.DerivativeSettings {
		derivSettings[variant] = derivative.Setting{Width: s.Width, Quality: s.Quality}
	}
	derivGen := derivative.New(derivSettings)

	uploader := blobstore.NewHTTPUploader(cfg.StorageBaseURL, cfg.StorageBucket, os.Getenv("STORAGE_API_KEY"))

	m := metrics.New("bourdain-image-worker")

	settings := orchestrator.Settings{
		MaxImagePixels:              cfg.MaxImagePixels,
		MinConfidenceForAssignment:  cfg.MinConfidenceForAssignment,
		VisionCheckLowerBound:       cfg.VisionCheckLowerBound,
		VisionCheckUpperBound:       cfg.VisionCheckUpperBound,
		VisionSampleRate:            cfg.VisionSampleRate,
		AssignOnDedupWithoutRecheck: cfg.AssignOnDedupWithoutRecheck,
		StorageBucket:               cfg.StorageBucket,
	}
	orch := orchestrator.New(limiter, fetcher, visionChecker, derivGen, uploader, cat, log, m, settings)

	dbosRuntime, err := dbosruntime.NewRuntime(ctx, dbosruntime.Config{
		DatabaseURL: cfg.DBOSDatabaseURL,
		AppName:     "bourdain-image-worker",
		QueueName:   cfg.DBOSQueueName,
		Concurrency: cfg.DBOSConcurrency,
		Log:         log,
	})
	if err != nil {
		log.Error(ctx, "failed to initialize DBOS", err)
		os.Exit(1)
	}

	workflowRunner := workflows.NewWorkflowRunner(dbosRuntime)
	workflowRunner.Register(pipeline.JobIngest, workflows.NewIngestWorkflow(orch))

	if err := dbosRuntime.Launch(); err != nil {
		log.Error(ctx, "failed to launch DBOS", err)
		os.Exit(1)
	}
	defer dbosRuntime.Shutdown(10 * time.Second)

	log.Info(ctx, "DBOS runtime launched, queue="+dbosRuntime.QueueName())

	ingestHandler := handlers.NewIngestHandler(workflowRunner, ledger, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", handleHealth)
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/v1/process", ingestHandler.HandleProcessAsync)
	mux.HandleFunc("/v1/runs/", ingestHandler.HandleStatus)

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}

	go func() {
		log.Info(ctx, "worker listening on "+cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(ctx, "server failed", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info(ctx, "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server forced to shutdown", err)
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}
