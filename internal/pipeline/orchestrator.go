// Package orchestrator implements spec.md §4.10: the canonical 17-step
// sequence that turns an ImageJob into a catalog image, its derivatives,
// and a card assignment. It is the composition root for every other
// internal/* component — no new third-party dependency is introduced
// here, only the teacher's wiring idiom (construct once, pass down,
// return a structured result rather than throwing) applied to this
// domain's stage order.
package orchestrator

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/bourdainai/bourdain-image-worker/internal/blobstore"
	"github.com/bourdainai/bourdain-image-worker/internal/catalog"
	"github.com/bourdainai/bourdain-image-worker/internal/collage"
	"github.com/bourdainai/bourdain-image-worker/internal/derivative"
	"github.com/bourdainai/bourdain-image-worker/internal/fetch"
	"github.com/bourdainai/bourdain-image-worker/internal/hashutil"
	"github.com/bourdainai/bourdain-image-worker/internal/imagemeta"
	"github.com/bourdainai/bourdain-image-worker/internal/logging"
	"github.com/bourdainai/bourdain-image-worker/internal/metrics"
	"github.com/bourdainai/bourdain-image-worker/internal/ratelimit"
	"github.com/bourdainai/bourdain-image-worker/internal/sidedetect"
	"github.com/bourdainai/bourdain-image-worker/internal/vision"
	"github.com/bourdainai/bourdain-image-worker/pkg/pipeline"
)

// Settings carries the tunable thresholds from internal/config that the
// orchestrator itself consults (as opposed to ones consumed entirely
// inside a collaborator, like derivative widths).
type Settings struct {
	MaxImagePixels              int
	MinConfidenceForAssignment  float64
	VisionCheckLowerBound       float64
	VisionCheckUpperBound       float64
	VisionSampleRate            float64
	AssignOnDedupWithoutRecheck bool
	StorageBucket               string
}

// Orchestrator wires every pipeline stage together and implements
// spec.md §4.10's canonical order.
type Orchestrator struct {
	limiter  *ratelimit.Limiter
	fetcher  *fetch.Fetcher
	vision   *vision.Checker
	derivGen *derivative.Generator
	uploader blobstore.Uploader
	cat      catalog.Catalog
	log      *logging.Logger
	metrics  *metrics.Metrics
	settings Settings
}

// New builds an Orchestrator from its fully-constructed collaborators.
// metricsCollector may be nil, in which case instrumentation is skipped;
// production entrypoints always supply one, tests generally don't.
func New(limiter *ratelimit.Limiter, fetcher *fetch.Fetcher, visionChecker *vision.Checker, derivGen *derivative.Generator, uploader blobstore.Uploader, cat catalog.Catalog, log *logging.Logger, metricsCollector *metrics.Metrics, settings Settings) *Orchestrator {
	return &Orchestrator{
		limiter:  limiter,
		fetcher:  fetcher,
		vision:   visionChecker,
		derivGen: derivGen,
		uploader: uploader,
		cat:      cat,
		log:      log,
		metrics:  metricsCollector,
		settings: settings,
	}
}

// Process runs one ImageJob through the full pipeline and returns a
// terminal ProcessResult. It never panics outward: step 17 of spec.md
// §4.10 ("any uncaught exception") is implemented as a deferred recover
// that converts a panic in any collaborator into a {failed, error}
// result plus a fetch_failed event, same as an ordinary returned error.
func (o *Orchestrator) Process(ctx context.Context, job pipeline.ImageJob) pipeline.ProcessResult {
	start := time.Now()
	if o.metrics != nil {
		o.metrics.StartJob()
	}

	result, err := o.run(ctx, job)
	if err != nil {
		o.log.Error(ctx, "pipeline run failed for card "+job.CardID, err)
		o.emit(ctx, pipeline.IngestEvent{
			CardID:    strPtr(job.CardID),
			EventType: pipeline.EventFetchFailed,
			Message:   strPtr(err.Error()),
		})
		result = pipeline.ProcessResult{Status: pipeline.StatusFailed, Error: err.Error()}
	}

	if o.metrics != nil {
		o.metrics.FinishJob(string(result.Status), time.Since(start))
		if result.Status == pipeline.StatusDeduplicated {
			o.metrics.RecordDedupe()
		}
		if result.Status == pipeline.StatusRateLimited {
			o.metrics.RecordRateLimitRejection()
		}
	}
	return result
}

func (o *Orchestrator) run(ctx context.Context, job pipeline.ImageJob) (result pipeline.ProcessResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline panic: %v", r)
		}
	}()

	start := time.Now()
	ctx = o.log.WithFields(ctx, map[string]interface{}{"card_id": job.CardID, "source_url": job.SourceURL})

	// Step 1: fetch_started.
	o.log.Info(ctx, "fetch started")
	o.emit(ctx, pipeline.IngestEvent{CardID: strPtr(job.CardID), EventType: pipeline.EventFetchStarted, Message: strPtr(job.SourceURL)})

	// Step 2: resolve source, establish trust tier.
	source, err := o.resolveSource(ctx, job)
	if err != nil {
		o.log.Error(ctx, "resolve source failed", err)
		return pipeline.ProcessResult{}, err
	}
	trustTier := resolveTrustTier(source, job)
	sourceName := job.SourceName
	if source != nil {
		sourceName = source.Name
	}

	// Step 3: rate limit, only when the source is known.
	if source != nil {
		o.limiter.InitBucket(source.ID, source.MaxRPS)
		if !o.limiter.TryAcquire(source.ID) {
			waitMS := o.limiter.GetWaitTime(source.ID)
			o.log.Warn(ctx, fmt.Sprintf("rate limited: source=%s retry_after_ms=%d", source.ID, waitMS))
			return pipeline.ProcessResult{
				Status: pipeline.StatusRateLimited,
				Error:  fmt.Sprintf("Rate limited, retry after %dms", waitMS),
			}, nil
		}
	}

	// Step 4: fetch.
	fetched := o.fetcher.Fetch(ctx, job.SourceURL, sourceName)
	if !fetched.OK {
		o.log.Warn(ctx, "fetch failed: "+fetched.Error)
		o.emit(ctx, pipeline.IngestEvent{
			CardID:     strPtr(job.CardID),
			EventType:  pipeline.EventFetchFailed,
			Message:    strPtr(fetched.Error),
			HTTPStatus: intPtrOrNil(fetched.HTTPStatus),
		})
		return pipeline.ProcessResult{Status: pipeline.StatusFailed, Error: fetched.Error}, nil
	}
	o.log.Info(ctx, fmt.Sprintf("fetch completed: bytes=%d content_type=%s", len(fetched.Bytes), fetched.ContentType))
	o.emit(ctx, pipeline.IngestEvent{
		CardID:    strPtr(job.CardID),
		EventType: pipeline.EventFetchCompleted,
		Metadata:  map[string]interface{}{"bytes": len(fetched.Bytes), "contentType": fetched.ContentType},
	})

	// Step 5: dedup probe.
	sha256hex := hashutil.SHA256Hex(fetched.Bytes)
	existing, err := o.cat.FindImageBySHA256(ctx, sha256hex)
	if err != nil {
		o.log.Error(ctx, "dedup lookup failed", err)
		return pipeline.ProcessResult{}, fmt.Errorf("dedup lookup: %w", err)
	}
	if existing != nil {
		o.log.Info(ctx, "dedup hit: image_id="+existing.ID)
		return o.handleDeduplicated(ctx, job, source, existing, sha256hex), nil
	}

	// Step 6: decode.
	metadata, err := imagemeta.Decode(fetched.Bytes, o.settings.MaxImagePixels)
	if err != nil {
		o.log.Warn(ctx, "decode/validation failed: "+err.Error())
		o.emit(ctx, pipeline.IngestEvent{CardID: strPtr(job.CardID), EventType: pipeline.EventValidationFailed, Message: strPtr(err.Error())})
		return pipeline.ProcessResult{Status: pipeline.StatusFailed, Error: err.Error()}, nil
	}

	// Step 7/8: side + collage detection.
	sideResult := sidedetect.Detect(fetched.Bytes, metadata.Width, metadata.Height)
	isCollage := collage.Detect(fetched.Bytes, metadata.Width, metadata.Height)

	// Step 9: optional vision check.
	sample := rand.Float64()
	if vision.ShouldRunVisionCheck(trustTier, sideResult.Confidence, o.settings.VisionCheckLowerBound, o.settings.VisionCheckUpperBound, o.settings.VisionSampleRate, sample) {
		o.log.Info(ctx, "vision check escalated")
		visionResult := o.vision.CheckWithVision(ctx, fetched.Bytes, fetched.ContentType, job, trustTier)
		if o.metrics != nil {
			o.metrics.RecordVisionCheck(string(visionResult.Side))
		}
		if visionResult.Confidence > sideResult.Confidence {
			sideResult = visionResult
		}
	}

	// Step 10: validation_passed.
	o.log.Info(ctx, fmt.Sprintf("validation passed: side=%s confidence=%.2f collage=%t", sideResult.Side, sideResult.Confidence, isCollage))
	o.emit(ctx, pipeline.IngestEvent{
		CardID:    strPtr(job.CardID),
		EventType: pipeline.EventValidationPassed,
		Metadata: map[string]interface{}{
			"width": metadata.Width, "height": metadata.Height,
			"side": string(sideResult.Side), "confidence": sideResult.Confidence,
			"isCollage": isCollage, "method": string(sideResult.Method),
		},
	})

	// Step 11: processing_started, insert image row.
	o.emit(ctx, pipeline.IngestEvent{CardID: strPtr(job.CardID), EventType: pipeline.EventProcessingStarted})
	imageID, err := o.cat.CreateImageRecord(ctx, pipeline.Image{
		SHA256:         sha256hex,
		OriginalMIME:   fetched.ContentType,
		OriginalWidth:  metadata.Width,
		OriginalHeight: metadata.Height,
		OriginalBytes:  metadata.SizeBytes,
		Status:         pipeline.ImageStatusProcessing,
		DetectedSide:   sideResult.Side,
		SideConfidence: sideResult.Confidence,
		IsCollage:      isCollage,
		DetectedMethod: sideResult.Method,
	})
	if err != nil {
		o.log.Error(ctx, "create image record failed", err)
		return pipeline.ProcessResult{}, fmt.Errorf("create image record: %w", err)
	}
	ctx = o.log.WithField(ctx, "image_id", imageID)

	// Steps 12-14: derivatives, generated, uploaded, recorded. Any
	// failure here leaves the image row in `processing` (spec.md §9's
	// third open question); the caller is expected to run a janitor
	// sweep over stuck rows, which is out of scope for a single job.
	derivatives, err := o.derivGen.Generate(fetched.Bytes, sha256hex)
	if err != nil {
		o.log.Error(ctx, "generate derivatives failed", err)
		return pipeline.ProcessResult{ImageID: imageID, SHA256: sha256hex}, fmt.Errorf("generate derivatives: %w", err)
	}
	o.log.Info(ctx, fmt.Sprintf("derivatives generated: count=%d", len(derivatives)))
	o.emit(ctx, pipeline.IngestEvent{CardID: strPtr(job.CardID), ImageID: strPtr(imageID), EventType: pipeline.EventDerivativesGenerated, Metadata: map[string]interface{}{"count": len(derivatives)}})

	for _, d := range derivatives {
		uploadStart := time.Now()
		if err := o.uploader.Upload(ctx, d.StoragePath, d.Buffer, "image/webp"); err != nil {
			o.log.Error(ctx, "upload derivative "+string(d.Variant)+" failed", err)
			return pipeline.ProcessResult{ImageID: imageID, SHA256: sha256hex}, fmt.Errorf("upload derivative %s: %w", d.Variant, err)
		}
		if o.metrics != nil {
			o.metrics.ObserveUpload(string(d.Variant), time.Since(uploadStart))
			o.metrics.RecordDerivative(string(d.Variant))
		}
	}
	o.log.Info(ctx, "upload completed")
	o.emit(ctx, pipeline.IngestEvent{CardID: strPtr(job.CardID), ImageID: strPtr(imageID), EventType: pipeline.EventUploadCompleted})

	for _, d := range derivatives {
		if err := o.cat.CreateDerivativeRecord(ctx, pipeline.Derivative{
			ImageID: imageID, Variant: d.Variant, Format: "webp",
			Width: d.Width, Height: d.Height, Bytes: d.Bytes, StoragePath: d.StoragePath,
		}); err != nil {
			o.log.Error(ctx, "record derivative "+string(d.Variant)+" failed", err)
			return pipeline.ProcessResult{ImageID: imageID, SHA256: sha256hex}, fmt.Errorf("record derivative %s: %w", d.Variant, err)
		}
	}

	// Step 15: mark completed.
	if err := o.cat.UpdateImageStatus(ctx, imageID, pipeline.ImageStatusCompleted, nil); err != nil {
		o.log.Error(ctx, "update image status failed", err)
		return pipeline.ProcessResult{ImageID: imageID, SHA256: sha256hex}, fmt.Errorf("update image status: %w", err)
	}
	elapsedMS := time.Since(start).Milliseconds()
	o.log.Info(ctx, fmt.Sprintf("processing completed: elapsed_ms=%d", elapsedMS))
	o.emit(ctx, pipeline.IngestEvent{CardID: strPtr(job.CardID), ImageID: strPtr(imageID), EventType: pipeline.EventProcessingCompleted, Metadata: map[string]interface{}{"elapsed_ms": elapsedMS}})

	// Step 16: assignment gate.
	return o.assignmentGate(ctx, job, source, imageID, sha256hex, sideResult, isCollage), nil
}

func (o *Orchestrator) handleDeduplicated(ctx context.Context, job pipeline.ImageJob, source *pipeline.ImageSource, existing *pipeline.Image, sha256hex string) pipeline.ProcessResult {
	o.emit(ctx, pipeline.IngestEvent{CardID: strPtr(job.CardID), ImageID: strPtr(existing.ID), EventType: pipeline.EventDeduplicated})

	shouldAssign := o.settings.AssignOnDedupWithoutRecheck ||
		(existing.DetectedSide == pipeline.SideFront && existing.SideConfidence >= o.settings.MinConfidenceForAssignment && !existing.IsCollage)

	if shouldAssign {
		if err := o.cat.AssignImageToCard(ctx, pipeline.CardImageAssignment{
			CardID:    job.CardID,
			ImageID:   existing.ID,
			Role:      pipeline.RolePrimaryFront,
			SourceID:  strPtrOrNil(job.SourceID),
			SourceURL: strPtrOrNil(job.SourceURL),
		}); err != nil {
			o.log.Warn(ctx, "assign on dedup failed: "+err.Error())
		}
	}

	return pipeline.ProcessResult{Status: pipeline.StatusDeduplicated, ImageID: existing.ID, SHA256: sha256hex}
}

func (o *Orchestrator) assignmentGate(ctx context.Context, job pipeline.ImageJob, source *pipeline.ImageSource, imageID, sha256hex string, sideResult pipeline.SideDetectionResult, isCollage bool) pipeline.ProcessResult {
	passes := sideResult.Side == pipeline.SideFront && sideResult.Confidence >= o.settings.MinConfidenceForAssignment && !isCollage

	if passes {
		if err := o.cat.AssignImageToCard(ctx, pipeline.CardImageAssignment{
			CardID:    job.CardID,
			ImageID:   imageID,
			Role:      pipeline.RolePrimaryFront,
			SourceID:  strPtrOrNil(job.SourceID),
			SourceURL: strPtrOrNil(job.SourceURL),
		}); err != nil {
			o.log.Warn(ctx, "assignment failed: "+err.Error())
		}
		o.log.Info(ctx, "assigned primary_front")
		o.emit(ctx, pipeline.IngestEvent{CardID: strPtr(job.CardID), ImageID: strPtr(imageID), EventType: pipeline.EventAssigned, Message: strPtr(string(pipeline.RolePrimaryFront))})
		return pipeline.ProcessResult{Status: pipeline.StatusCompleted, ImageID: imageID, SHA256: sha256hex, DetectedSide: sideResult.Side, Confidence: sideResult.Confidence}
	}

	message := fmt.Sprintf("Not assigned: side=%s, confidence=%.2f, isCollage=%t", sideResult.Side, sideResult.Confidence, isCollage)
	o.log.Info(ctx, message)
	o.emit(ctx, pipeline.IngestEvent{CardID: strPtr(job.CardID), ImageID: strPtr(imageID), EventType: pipeline.EventRejected, Message: strPtr(message)})
	return pipeline.ProcessResult{Status: pipeline.StatusRejected, ImageID: imageID, SHA256: sha256hex, DetectedSide: sideResult.Side, Confidence: sideResult.Confidence, Error: message}
}

func (o *Orchestrator) resolveSource(ctx context.Context, job pipeline.ImageJob) (*pipeline.ImageSource, error) {
	if job.SourceID != "" {
		src, err := o.cat.GetImageSource(ctx, job.SourceID)
		if err != nil {
			return nil, fmt.Errorf("resolve source by id: %w", err)
		}
		if src != nil {
			return src, nil
		}
	}
	if job.SourceName != "" {
		src, err := o.cat.GetImageSourceByName(ctx, job.SourceName)
		if err != nil {
			return nil, fmt.Errorf("resolve source by name: %w", err)
		}
		if src != nil {
			return src, nil
		}
	}
	return nil, nil
}

func resolveTrustTier(source *pipeline.ImageSource, job pipeline.ImageJob) pipeline.TrustTier {
	if source != nil {
		return source.TrustTier
	}
	if job.TrustTier != 0 {
		return job.TrustTier
	}
	return pipeline.DefaultTrustTier
}

// emit wraps every catalog event write so a logging fault can never
// shadow the job's real result, per spec.md §9's "fire-and-forget" note.
func (o *Orchestrator) emit(ctx context.Context, e pipeline.IngestEvent) {
	if err := o.cat.LogIngestEvent(ctx, e); err != nil {
		o.log.Warn(ctx, "ingest event log failed: "+err.Error())
	}
}

func strPtr(s string) *string { return &s }

func strPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func intPtrOrNil(n int) *int {
	if n == 0 {
		return nil
	}
	return &n
}
