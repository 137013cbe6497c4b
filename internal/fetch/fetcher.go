// Package fetch retrieves source images over HTTP with the bounded
// timeout and error-payload filtering from spec.md §4.2, grounded on the
// request-construction style of the Graph API fetcher in the BCEM
// ingestion pack (context-scoped GET, explicit header set, status-code
// branching) and the timeout-bearing client in the teacher's pkg/client.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const userAgent = "Bourdain-Image-Worker/1.0"

// KnownErrorPayloads maps a source name to the set of exact byte lengths
// that indicate the upstream returned a structurally-200 "not found"
// placeholder rather than a real image.
type KnownErrorPayloads map[string]map[int]struct{}

// Result mirrors pipeline.FetchedBytes; kept as a separate type so this
// package has no import-time dependency on pkg/pipeline's wire model.
type Result struct {
	OK          bool
	Bytes       []byte
	ContentType string
	HTTPStatus  int
	Error       string
}

// Fetcher performs one bounded-timeout GET per call.
type Fetcher struct {
	httpClient *http.Client
	timeout    time.Duration
	known      KnownErrorPayloads
}

// New creates a Fetcher with the given absolute per-request timeout and
// known-error-payload table.
func New(timeout time.Duration, known KnownErrorPayloads) *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{Timeout: timeout},
		timeout:    timeout,
		known:      known,
	}
}

// Fetch performs a single GET against url, attributing the response to
// sourceName for known-error-payload filtering. The timeout aborts any
// in-flight request once exceeded.
func (f *Fetcher) Fetch(ctx context.Context, url string, sourceName string) Result {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{OK: false, Error: err.Error()}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "image/*")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return Result{OK: false, Error: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{
			OK:         false,
			Error:      fmt.Sprintf("HTTP %d", resp.StatusCode),
			HTTPStatus: resp.StatusCode,
		}
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return Result{
			OK:         false,
			Error:      fmt.Sprintf("Invalid content type: %s", contentType),
			HTTPStatus: resp.StatusCode,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{OK: false, Error: err.Error(), HTTPStatus: resp.StatusCode}
	}

	if f.isKnownErrorPayload(sourceName, len(body)) {
		return Result{
			OK:         false,
			Error:      "known_error_payload",
			HTTPStatus: resp.StatusCode,
		}
	}

	return Result{
		OK:          true,
		Bytes:       body,
		ContentType: contentType,
		HTTPStatus:  resp.StatusCode,
	}
}

func (f *Fetcher) isKnownErrorPayload(sourceName string, length int) bool {
	lengths, ok := f.known[sourceName]
	if !ok {
		return false
	}
	_, hit := lengths[length]
	return hit
}
