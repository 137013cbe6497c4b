package blobstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FilesystemUploader implements Uploader against a local directory, for
// cmd/standalone and local development without a real object store.
// Adapted from the teacher's internal/storage/filesystem.go, which read
// existing content service blobs; this variant writes derivative bytes
// instead.
type FilesystemUploader struct {
	baseDir string
}

// NewFilesystemUploader creates a FilesystemUploader rooted at baseDir,
// creating it if necessary.
func NewFilesystemUploader(baseDir string) (*FilesystemUploader, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}
	return &FilesystemUploader{baseDir: baseDir}, nil
}

// Upload implements Uploader by writing body to baseDir/key, creating
// any intermediate directories. contentType is ignored; the filesystem
// has no content-type metadata slot.
func (f *FilesystemUploader) Upload(ctx context.Context, key string, body []byte, contentType string) error {
	path := filepath.Join(f.baseDir, key)

	if !filepath.HasPrefix(filepath.Clean(path), filepath.Clean(f.baseDir)) {
		return fmt.Errorf("invalid key: path traversal detected")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", key, err)
	}

	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}
