package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	cacheControl   = "public, max-age=31536000, immutable"
	defaultTimeout = 30 * time.Second
)

// HTTPUploader PUTs derivative bytes to a Supabase-storage-shaped object
// API: PUT {baseURL}/storage/v1/object/{bucket}/{key}, upsert via the
// x-upsert header, Bearer auth with a service-role key.
type HTTPUploader struct {
	httpClient *http.Client
	baseURL    string
	bucket     string
	apiKey     string
}

// NewHTTPUploader builds an HTTPUploader targeting
// baseURL/storage/v1/object/bucket.
func NewHTTPUploader(baseURL, bucket, apiKey string) *HTTPUploader {
	return &HTTPUploader{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    baseURL,
		bucket:     bucket,
		apiKey:     apiKey,
	}
}

// Upload implements Uploader. It performs exactly one PUT attempt; any
// non-2xx response or transport error is returned as-is and treated as
// fatal by the orchestrator.
func (u *HTTPUploader) Upload(ctx context.Context, key string, body []byte, contentType string) error {
	target := fmt.Sprintf("%s/storage/v1/object/%s/%s", u.baseURL, u.bucket, escapeKeyPath(key))

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Cache-Control", cacheControl)
	req.Header.Set("x-upsert", "true")
	if u.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+u.apiKey)
	}

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("upload %s: storage returned HTTP %d: %s", key, resp.StatusCode, string(respBody))
	}
	return nil
}

// escapeKeyPath percent-encodes each path segment of key without
// escaping the '/' separators themselves.
func escapeKeyPath(key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
