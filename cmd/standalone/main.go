// Command standalone is a no-DBOS harness for local testing: in-memory
// catalog, in-memory submission ledger, and a blob backend selected by
// STORAGE_BACKEND — "filesystem" (default) or "simplecontent", an
// embedded github.com/tendant/simple-content service built the same
// way the teacher's cmd/pipeline-standalone/main.go built one for its
// own embedded-vs-HTTP storage switch.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-content/pkg/simplecontent/presets"

	"github.com/bourdainai/bourdain-image-worker/internal/blobstore"
	"github.com/bourdainai/bourdain-image-worker/internal/catalog"
	"github.com/bourdainai/bourdain-image-worker/internal/config"
	"github.com/bourdainai/bourdain-image-worker/internal/derivative"
	"github.com/bourdainai/bourdain-image-worker/internal/fetch"
	"github.com/bourdainai/bourdain-image-worker/internal/logging"
	"github.com/bourdainai/bourdain-image-worker/internal/metrics"
	orchestrator "github.com/bourdainai/bourdain-image-worker/internal/pipeline"
	"github.com/bourdainai/bourdain-image-worker/internal/ratelimit"
	"github.com/bourdainai/bourdain-image-worker/internal/submission"
	"github.com/bourdainai/bourdain-image-worker/internal/vision"
	"github.com/bourdainai/bourdain-image-worker/internal/workflows"
	"github.com/bourdainai/bourdain-image-worker/pkg/pipeline"
)

var (
	standaloneOwnerID  = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	standaloneTenantID = uuid.MustParse("00000000-0000-0000-0000-000000000002")
)

func main() {
	httpAddr := os.Getenv("PIPELINE_HTTP_ADDR")
	if httpAddr == "" {
		httpAddr = ":8080"
	}

	storageDir := os.Getenv("STORAGE_DIR")
	if storageDir == "" {
		storageDir = "./dev-data"
	}

	log.Printf("Ingest Standalone Worker")
	log.Printf("  Mode: Embedded (in-memory catalog + filesystem storage)")
	log.Printf("  Storage directory: %s", storageDir)
	log.Printf("  HTTP address: %s", httpAddr)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog := logging.New(logging.Options{ServiceName: "bourdain-image-worker-standalone"})
	ctx := context.Background()

	cat := catalog.NewMemory(pipeline.ImageSource{
		ID: "pokemontcg_api", Name: "pokemontcg_api",
		TrustTier: pipeline.TrustTierVerified, MaxRPS: 5,
	})

	var uploader blobstore.Uploader
	switch backend := os.Getenv("STORAGE_BACKEND"); backend {
	case "simplecontent":
		svc, cleanup, err := presets.NewDevelopment(presets.WithDevStorage(storageDir))
		if err != nil {
			log.Fatalf("Failed to initialize simple-content service: %v", err)
		}
		defer cleanup()
		log.Printf("  Storage backend: simple-content (embedded)")
		uploader = blobstore.NewSimpleContentUploader(svc, standaloneOwnerID, standaloneTenantID)
	case "", "filesystem":
		fsUploader, err := blobstore.NewFilesystemUploader(storageDir)
		if err != nil {
			log.Fatalf("Failed to initialize filesystem uploader: %v", err)
		}
		log.Printf("  Storage backend: filesystem")
		uploader = fsUploader
	default:
		log.Fatalf("Unknown STORAGE_BACKEND %q (want \"filesystem\" or \"simplecontent\")", backend)
	}

	ledger := submission.NewMemoryLedger()
	limiter := ratelimit.New(cfg.RateLimiterGCInterval)
	defer limiter.Close()

	fetcher := fetch.New(cfg.FetchTimeout, cfg.KnownErrorPayloads)
	visionChecker := vision.New(cfg.VisionURL, cfg.VisionAPIKey, cfg.VisionModel)

	derivSettings := make(map[string]derivative.Setting, len(cfg.DerivativeSettings))
	for variant, s := range cfg.DerivativeSettings {
		derivSettings[variant] = derivative.Setting{Width: s.Width, Quality: s.Quality}
	}
	derivGen := derivative.New(derivSettings)

	m := metrics.New("bourdain-image-worker-standalone")

	settings := orchestrator.Settings{
		MaxImagePixels:              cfg.MaxImagePixels,
		MinConfidenceForAssignment:  cfg.MinConfidenceForAssignment,
		VisionCheckLowerBound:       cfg.VisionCheckLowerBound,
		VisionCheckUpperBound:       cfg.VisionCheckUpperBound,
		VisionSampleRate:            cfg.VisionSampleRate,
		AssignOnDedupWithoutRecheck: cfg.AssignOnDedupWithoutRecheck,
		StorageBucket:               cfg.StorageBucket,
	}
	orch := orchestrator.New(limiter, fetcher, visionChecker, derivGen, uploader, cat, zlog, m, settings)

	workflowRunner := workflows.NewWorkflowRunner(nil)
	workflowRunner.Register(pipeline.JobIngest, workflows.NewIngestWorkflow(orch))
	log.Printf("✓ Registered workflow for job: %s", pipeline.JobIngest)

	mux := http.NewServeMux()
	handler := &standaloneHandler{workflowRunner: workflowRunner, ledger: ledger, cat: cat}

	mux.HandleFunc("/health", handleHealth)
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/v1/process", handler.handleProcess)
	mux.HandleFunc("/v1/test", handler.handleTest)

	server := &http.Server{Addr: httpAddr, Handler: mux}

	go func() {
		log.Printf("✓ Ingest worker ready on %s", httpAddr)
		log.Printf("Quick test: curl http://localhost%s/v1/test", httpAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Println("Server stopped")
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy", "mode": "standalone"})
}

type standaloneHandler struct {
	workflowRunner *workflows.WorkflowRunner
	ledger         *submission.MemoryLedger
	cat            *catalog.Memory
}

func (h *standaloneHandler) handleProcess(w http.ResponseWriter, r *http.Request) {
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

	seenCount, _ := h.ledger.Record(r.Context(), job.CardID, job.SourceURL)

	runID := uuid.New().String()
	wctx := &workflows.WorkflowContext{Ctx: r.Context(), Job: job, RunID: runID}

	result, err := h.workflowRunner.Run(wctx)
	if err != nil {
		log.Printf("[%s] Workflow execution failed: %v", runID, err)
		http.Error(w, fmt.Sprintf("Workflow execution failed: %v", err), http.StatusInternalServerError)
		return
	}

	log.Printf("[%s] Workflow finished: success=%t status=%s", runID, result.Success, result.Result.Status)

	resp := pipeline.ProcessResponse{RunID: runID, DedupeSeenCount: seenCount}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// handleTest runs a small end-to-end smoke test: a fabricated front-card
// image fetched from an embedded test server, processed synchronously.
func (h *standaloneHandler) handleTest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		http.Error(w, "Method not allowed (use GET or POST)", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	log.Println("=== Running End-to-End Test ===")

	testServer := httptestImageServer()
	defer testServer.Close()

	runID := uuid.New().String()
	job := pipeline.ImageJob{
		CardID:     "test-card-1",
		SourceURL:  testServer.URL + "/card.jpg",
		SourceName: "test_source",
	}

	wctx := &workflows.WorkflowContext{Ctx: ctx, Job: job, RunID: runID}
	result, err := h.workflowRunner.Run(wctx)
	if err != nil {
		log.Printf("Workflow execution failed: %v", err)
		http.Error(w, fmt.Sprintf("Workflow failed: %v", err), http.StatusInternalServerError)
		return
	}

	log.Printf("=== Test Complete: status=%s ===", result.Result.Status)

	response := map[string]interface{}{
		"test_status": "success",
		"run_id":      runID,
		"result":      result.Result,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}
