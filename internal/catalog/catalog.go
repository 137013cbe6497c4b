// Package catalog implements spec.md §4.9: the narrow gateway to the
// external relational store. Catalog is intentionally small — the
// orchestrator is the only caller, and every method maps to exactly one
// statement against the schema in spec.md §6.
package catalog

import (
	"context"
	"errors"

	"github.com/bourdainai/bourdain-image-worker/pkg/pipeline"
)

// ErrDuplicateImage is returned by CreateImageRecord when a concurrent
// job already inserted a row with the same sha256. Per spec.md §5, the
// source behavior treats this as a terminal failure for the losing job.
var ErrDuplicateImage = errors.New("catalog: image with this sha256 already exists")

// Catalog is the gateway to the images/derivatives/card_images/
// image_sources/image_ingest_events tables described in spec.md §6.
type Catalog interface {
	// FindImageBySHA256 returns the matching Image, or nil if none
	// exists. A miss is not an error.
	FindImageBySHA256(ctx context.Context, sha256 string) (*pipeline.Image, error)

	// GetImageSource looks up a source by id. Returns nil if not found.
	GetImageSource(ctx context.Context, id string) (*pipeline.ImageSource, error)

	// GetImageSourceByName looks up a source by name. Returns nil if not
	// found.
	GetImageSourceByName(ctx context.Context, name string) (*pipeline.ImageSource, error)

	// CreateImageRecord inserts a new image row and returns its id.
	// Returns ErrDuplicateImage if sha256 already exists.
	CreateImageRecord(ctx context.Context, img pipeline.Image) (string, error)

	// UpdateImageStatus updates an image's status and optional error
	// message.
	UpdateImageStatus(ctx context.Context, imageID string, status pipeline.ImageStatus, errMsg *string) error

	// CreateDerivativeRecord inserts one derivative row. Unique per
	// (imageId, variant).
	CreateDerivativeRecord(ctx context.Context, d pipeline.Derivative) error

	// AssignImageToCard upserts on (cardId, role), overwriting any prior
	// assignment for that role.
	AssignImageToCard(ctx context.Context, a pipeline.CardImageAssignment) error

	// LogIngestEvent appends one event row. Callers must treat failures
	// here as non-fatal per spec.md §4.9 and §9.
	LogIngestEvent(ctx context.Context, e pipeline.IngestEvent) error
}
