package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/tendant/simple-content/pkg/simplecontent"
)

// SimpleContentUploader backs Uploader with an embedded simple-content
// service instead of a raw filesystem or HTTP endpoint, mirroring the
// teacher's own embedded-vs-HTTP storage switch. Grounded on the
// teacher's internal/storage/derived_writer.go, which drives the same
// simplecontent.Service for its derived-asset writes; this variant
// stores each derivative as a top-level content item addressed by its
// storage key rather than a parent/derived pair, since the key already
// encodes the sha256 and variant.
type SimpleContentUploader struct {
	service  simplecontent.Service
	ownerID  uuid.UUID
	tenantID uuid.UUID

	mu    sync.Mutex
	byKey map[string]uuid.UUID
}

// NewSimpleContentUploader wraps an already-constructed simplecontent.Service.
// Callers typically build service with presets.NewDevelopment for local
// testing or a configured client for a real simple-content deployment.
func NewSimpleContentUploader(service simplecontent.Service, ownerID, tenantID uuid.UUID) *SimpleContentUploader {
	return &SimpleContentUploader{service: service, ownerID: ownerID, tenantID: tenantID, byKey: make(map[string]uuid.UUID)}
}

// Upload implements Uploader. Keys are content-addressed (sha256 plus
// variant), so a repeat upload of the same key is a no-op rather than a
// real overwrite — simple-content has no update-in-place primitive for
// content bytes.
func (s *SimpleContentUploader) Upload(ctx context.Context, key string, body []byte, contentType string) error {
	s.mu.Lock()
	_, already := s.byKey[key]
	s.mu.Unlock()
	if already {
		return nil
	}

	content, err := s.service.UploadContent(ctx, simplecontent.UploadContentRequest{
		OwnerID:      s.ownerID,
		TenantID:     s.tenantID,
		Name:         key,
		DocumentType: contentType,
		Reader:       bytes.NewReader(body),
		FileName:     key,
		Tags:         []string{"derivative"},
	})
	if err != nil {
		return fmt.Errorf("upload %s via simple-content: %w", key, err)
	}

	s.mu.Lock()
	s.byKey[key] = content.ID
	s.mu.Unlock()
	return nil
}
