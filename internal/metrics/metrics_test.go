package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)
	return w.Body.String()
}

func TestFinishJobExportsCounterAndHistogram(t *testing.T) {
	m := New("test")
	m.StartJob()
	m.FinishJob("completed", 120*time.Millisecond)

	body := scrape(t, m)
	if !strings.Contains(body, `cardimg_worker_jobs_total{status="completed"} 1`) {
		t.Fatalf("expected jobs_total counter in output, got:\n%s", body)
	}
	if !strings.Contains(body, "cardimg_worker_job_duration_seconds") {
		t.Fatalf("expected job duration histogram in output, got:\n%s", body)
	}
	if !strings.Contains(body, `cardimg_worker_jobs_in_flight{service="test"} 0`) {
		t.Fatalf("expected in-flight gauge back to 0, got:\n%s", body)
	}
}

func TestRecordDedupeAndVisionCheck(t *testing.T) {
	m := New("test")
	m.RecordDedupe()
	m.RecordVisionCheck("front")
	m.RecordRateLimitRejection()
	m.RecordDerivative("thumb")
	m.ObserveUpload("thumb", 50*time.Millisecond)

	body := scrape(t, m)
	if !strings.Contains(body, "cardimg_worker_dedupe_total 1") {
		t.Fatalf("expected dedupe_total=1, got:\n%s", body)
	}
	if !strings.Contains(body, `cardimg_worker_vision_checks_total{verdict="front"} 1`) {
		t.Fatalf("expected vision_checks_total labeled front, got:\n%s", body)
	}
	if !strings.Contains(body, "cardimg_worker_rate_limit_rejections_total 1") {
		t.Fatalf("expected rate_limit_rejections_total=1, got:\n%s", body)
	}
	if !strings.Contains(body, `cardimg_worker_derivatives_generated_total{variant="thumb"} 1`) {
		t.Fatalf("expected derivatives_generated_total labeled thumb, got:\n%s", body)
	}
	if !strings.Contains(body, "cardimg_worker_upload_duration_seconds") {
		t.Fatalf("expected upload_duration_seconds histogram, got:\n%s", body)
	}
}
