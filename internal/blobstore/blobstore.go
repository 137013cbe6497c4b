// Package blobstore implements spec.md §4.8: uploading a derivative's
// bytes to durable storage under a content-addressed key. Uploader has
// three implementations: HTTPUploader, which PUTs to a Supabase-storage-shaped
// HTTP API (the shape the teacher's sibling content service exposes),
// FilesystemUploader, a local-dev stand-in adapted from the teacher's
// internal/storage/filesystem.go for cmd/standalone, and
// SimpleContentUploader, which stores through an embedded simple-content
// service.
package blobstore

import "context"

// Uploader stores derivative bytes under a storage key. Uploading the
// same key twice succeeds: HTTPUploader and FilesystemUploader overwrite,
// SimpleContentUploader keeps the first upload. Neither the uploader nor
// the orchestrator retries; a single failed attempt is fatal for the job.
type Uploader interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) error
}
