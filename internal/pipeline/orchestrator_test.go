package orchestrator

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bourdainai/bourdain-image-worker/internal/blobstore"
	"github.com/bourdainai/bourdain-image-worker/internal/catalog"
	"github.com/bourdainai/bourdain-image-worker/internal/derivative"
	"github.com/bourdainai/bourdain-image-worker/internal/fetch"
	"github.com/bourdainai/bourdain-image-worker/internal/logging"
	"github.com/bourdainai/bourdain-image-worker/internal/ratelimit"
	"github.com/bourdainai/bourdain-image-worker/internal/vision"
	"github.com/bourdainai/bourdain-image-worker/pkg/pipeline"
)

func cardJPEG(t *testing.T, w, h int, border color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	borderPx := int(float64(w) * 0.12)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x < borderPx || x >= w-borderPx || y < borderPx || y >= h-borderPx {
				img.Set(x, y, border)
			} else {
				img.Set(x, y, color.RGBA{R: uint8((x * 37) % 255), G: uint8((y * 53) % 255), B: uint8((x + y) % 255), A: 255})
			}
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))
	return buf.Bytes()
}

func testSettings() Settings {
	return Settings{
		MaxImagePixels:              20_000_000,
		MinConfidenceForAssignment:  0.85,
		VisionCheckLowerBound:       0.6,
		VisionCheckUpperBound:       0.9,
		VisionSampleRate:            0,
		AssignOnDedupWithoutRecheck: true,
		StorageBucket:               "card-images",
	}
}

func derivativeSettings() map[string]derivative.Setting {
	return map[string]derivative.Setting{
		"thumb":  {Width: 160, Quality: 75},
		"grid":   {Width: 360, Quality: 80},
		"detail": {Width: 960, Quality: 80},
	}
}

func newTestOrchestrator(t *testing.T, cat catalog.Catalog, settings Settings) *Orchestrator {
	t.Helper()
	limiter := ratelimit.New(60 * time.Second)
	t.Cleanup(limiter.Close)

	fetcher := fetch.New(5*time.Second, fetch.KnownErrorPayloads{
		"pokemontcg_api": {186316: struct{}{}},
	})
	visionChecker := vision.New("http://unused", "", "unused-model")
	derivGen := derivative.New(derivativeSettings())
	uploader, err := blobstore.NewFilesystemUploader(t.TempDir())
	require.NoError(t, err)
	log := logging.New(logging.Options{ServiceName: "test"})

	return New(limiter, fetcher, visionChecker, derivGen, uploader, cat, log, nil, settings)
}

func imageServerServing(body []byte) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(body)
	}))
}

func TestProcessHappyPathAssignsFront(t *testing.T) {
	body := cardJPEG(t, 734, 1024, color.RGBA{R: 230, G: 200, B: 40, A: 255})
	srv := imageServerServing(body)
	defer srv.Close()

	cat := catalog.NewMemory(pipeline.ImageSource{ID: "s1", Name: "test_source", TrustTier: pipeline.TrustTierVerified, MaxRPS: 100})
	orch := newTestOrchestrator(t, cat, testSettings())

	result := orch.Process(context.Background(), pipeline.ImageJob{CardID: "c1", SourceURL: srv.URL, SourceID: "s1"})

	require.Equal(t, pipeline.StatusCompleted, result.Status)
	assert.Equal(t, pipeline.SideFront, result.DetectedSide)
	assert.NotEmpty(t, result.ImageID)
	assert.NotEmpty(t, result.SHA256)

	assignment := cat.Assignment("c1", pipeline.RolePrimaryFront)
	require.NotNil(t, assignment)
	assert.Equal(t, result.ImageID, assignment.ImageID)
}

func TestProcessDeduplicatesSecondRun(t *testing.T) {
	body := cardJPEG(t, 734, 1024, color.RGBA{R: 230, G: 200, B: 40, A: 255})
	srv := imageServerServing(body)
	defer srv.Close()

	cat := catalog.NewMemory(pipeline.ImageSource{ID: "s1", Name: "test_source", TrustTier: pipeline.TrustTierVerified, MaxRPS: 100})
	orch := newTestOrchestrator(t, cat, testSettings())

	first := orch.Process(context.Background(), pipeline.ImageJob{CardID: "c1", SourceURL: srv.URL, SourceID: "s1"})
	require.Equal(t, pipeline.StatusCompleted, first.Status)

	second := orch.Process(context.Background(), pipeline.ImageJob{CardID: "c2", SourceURL: srv.URL, SourceID: "s1"})
	require.Equal(t, pipeline.StatusDeduplicated, second.Status)
	assert.Equal(t, first.ImageID, second.ImageID)
}

func TestProcessRateLimitedOnSecondCall(t *testing.T) {
	body := cardJPEG(t, 734, 1024, color.RGBA{R: 230, G: 200, B: 40, A: 255})
	srv := imageServerServing(body)
	defer srv.Close()

	cat := catalog.NewMemory(pipeline.ImageSource{ID: "slow", Name: "slow_source", TrustTier: pipeline.TrustTierVerified, MaxRPS: 1})
	orch := newTestOrchestrator(t, cat, testSettings())

	first := orch.Process(context.Background(), pipeline.ImageJob{CardID: "c1", SourceURL: srv.URL, SourceID: "slow"})
	require.NotEqual(t, pipeline.StatusRateLimited, first.Status)

	second := orch.Process(context.Background(), pipeline.ImageJob{CardID: "c2", SourceURL: srv.URL, SourceID: "slow"})
	assert.Equal(t, pipeline.StatusRateLimited, second.Status)
	assert.Contains(t, second.Error, "Rate limited")
}

func TestProcessKnownErrorPayloadFails(t *testing.T) {
	placeholder := make([]byte, 186316)
	srv := imageServerServing(placeholder)
	defer srv.Close()

	cat := catalog.NewMemory()
	orch := newTestOrchestrator(t, cat, testSettings())

	result := orch.Process(context.Background(), pipeline.ImageJob{CardID: "c1", SourceURL: srv.URL, SourceName: "pokemontcg_api"})
	assert.Equal(t, pipeline.StatusFailed, result.Status)
	assert.Equal(t, "known_error_payload", result.Error)

	found, err := cat.FindImageBySHA256(context.Background(), "anything")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestProcessCollageIsRejectedNotAssigned(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1600, 600))
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))
	srv := imageServerServing(buf.Bytes())
	defer srv.Close()

	cat := catalog.NewMemory()
	orch := newTestOrchestrator(t, cat, testSettings())

	result := orch.Process(context.Background(), pipeline.ImageJob{CardID: "c1", SourceURL: srv.URL})
	assert.Equal(t, pipeline.StatusRejected, result.Status)
	assert.Contains(t, result.Error, "isCollage=true")
	assert.Nil(t, cat.Assignment("c1", pipeline.RolePrimaryFront))
}

func TestProcessUnknownSourceIsNotRateLimited(t *testing.T) {
	body := cardJPEG(t, 734, 1024, color.RGBA{R: 230, G: 200, B: 40, A: 255})
	srv := imageServerServing(body)
	defer srv.Close()

	cat := catalog.NewMemory()
	orch := newTestOrchestrator(t, cat, testSettings())

	result := orch.Process(context.Background(), pipeline.ImageJob{CardID: "c1", SourceURL: srv.URL})
	assert.NotEqual(t, pipeline.StatusRateLimited, result.Status)
}

func TestProcessFetchFailureReturnsFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	cat := catalog.NewMemory()
	orch := newTestOrchestrator(t, cat, testSettings())

	result := orch.Process(context.Background(), pipeline.ImageJob{CardID: "c1", SourceURL: srv.URL})
	assert.Equal(t, pipeline.StatusFailed, result.Status)
	assert.Contains(t, result.Error, "HTTP 404")
}
