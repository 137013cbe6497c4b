// Package pipeline defines the wire and catalog shapes shared across the
// ingest worker: the job submitted by callers, the intermediate results
// each pipeline stage produces, and the rows persisted to the catalog.
package pipeline

import "time"

// TrustTier is the numeric reputation of an image source; 1 is most
// trusted, 3 is least trusted. It drives vision-check policy.
type TrustTier int

const (
	TrustTierVerified  TrustTier = 1
	TrustTierStandard  TrustTier = 2
	TrustTierUntrusted TrustTier = 3

	// DefaultTrustTier is used when neither sourceId nor sourceName
	// resolves to a known ImageSource.
	DefaultTrustTier = TrustTierUntrusted
)

// Side is the detected face of a card image.
type Side string

const (
	SideFront   Side = "front"
	SideBack    Side = "back"
	SideUnknown Side = "unknown"
)

// DetectionMethod records which component produced a SideDetectionResult.
type DetectionMethod string

const (
	MethodHeuristic DetectionMethod = "heuristic"
	MethodVision    DetectionMethod = "vision"
	MethodManual    DetectionMethod = "manual"
)

// Variant is one of the three fixed-order derivative sizes.
type Variant string

const (
	VariantThumb  Variant = "thumb"
	VariantGrid   Variant = "grid"
	VariantDetail Variant = "detail"
)

// Variants lists the derivative variants in the fixed generation order.
var Variants = []Variant{VariantThumb, VariantGrid, VariantDetail}

// AssignmentRole identifies the purpose of a card-image assignment.
type AssignmentRole string

const (
	RolePrimaryFront AssignmentRole = "primary_front"
)

// Status is the terminal outcome of a single processImage call.
type Status string

const (
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusDeduplicated Status = "deduplicated"
	StatusRejected     Status = "rejected"
	StatusRateLimited  Status = "rate_limited"
)

// ImageStatus is the lifecycle state of a persisted catalog Image row.
type ImageStatus string

const (
	ImageStatusProcessing ImageStatus = "processing"
	ImageStatusCompleted  ImageStatus = "completed"
	ImageStatusFailed     ImageStatus = "failed"
)

// EventType enumerates the IngestEvent taxonomy emitted at stage boundaries.
type EventType string

const (
	EventFetchStarted         EventType = "fetch_started"
	EventFetchCompleted       EventType = "fetch_completed"
	EventFetchFailed          EventType = "fetch_failed"
	EventDeduplicated         EventType = "deduplicated"
	EventValidationFailed     EventType = "validation_failed"
	EventValidationPassed     EventType = "validation_passed"
	EventProcessingStarted    EventType = "processing_started"
	EventDerivativesGenerated EventType = "derivatives_generated"
	EventUploadCompleted      EventType = "upload_completed"
	EventProcessingCompleted  EventType = "processing_completed"
	EventRejected             EventType = "rejected"
	EventAssigned             EventType = "assigned"
)

// JobIngest identifies the workflow job type accepted by the async
// runner; it is the only job type the worker registers. The constant
// block leaves room for further job types.
const (
	JobIngest = "ingest_image"
)

// ImageJob is the input to the ingest pipeline: a target card and a
// candidate source URL for its image.
type ImageJob struct {
	CardID     string `json:"card_id"`
	SourceURL  string `json:"source_url"`
	SourceID   string `json:"source_id,omitempty"`
	SourceName string `json:"source_name,omitempty"`
	// TrustTier is a fallback used only when SourceID/SourceName do not
	// resolve to a known ImageSource.
	TrustTier  TrustTier `json:"trust_tier,omitempty"`
	CardNumber string    `json:"card_number,omitempty"`
	SetCode    string    `json:"set_code,omitempty"`
	Priority   int       `json:"priority,omitempty"`
}

// Validate checks the boundary invariants from spec.md §7 ("Input
// invalid"). Callers at the HTTP edge are expected to call this before
// handing a job to the pipeline; the orchestrator itself does not
// re-validate.
func (j ImageJob) Validate() error {
	if j.CardID == "" {
		return errRequiredField("card_id")
	}
	if j.SourceURL == "" {
		return errRequiredField("source_url")
	}
	return nil
}

// ImageSource is a looked-up catalog record describing a trusted or
// untrusted upstream image provider.
type ImageSource struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	BaseURL        string    `json:"base_url"`
	TrustTier      TrustTier `json:"trust_tier"`
	MaxRPS         float64   `json:"max_rps"`
	MaxConcurrency int       `json:"max_concurrency"`
	IsAllowed      bool      `json:"is_allowed"`
}

// FetchedBytes is the outcome of one HTTP Fetcher attempt.
type FetchedBytes struct {
	OK          bool
	Bytes       []byte
	ContentType string
	HTTPStatus  int
	Error       string
}

// ImageMetadata is dimension/format information read without a full pixel
// decode.
type ImageMetadata struct {
	Width     int
	Height    int
	Format    string
	SizeBytes int
}

// SideDetectionResult is the front/back/unknown verdict produced by either
// the heuristic detector or the vision checker.
type SideDetectionResult struct {
	Side       Side
	Confidence float64
	Method     DetectionMethod
}

// DerivativeResult is one generated and encoded size variant, ready for
// upload.
type DerivativeResult struct {
	Variant     Variant
	Buffer      []byte
	Width       int
	Height      int
	Bytes       int
	StoragePath string
}

// ProcessResult is the output of one processImage call.
type ProcessResult struct {
	Status       Status  `json:"status"`
	ImageID      string  `json:"image_id,omitempty"`
	SHA256       string  `json:"sha256,omitempty"`
	DetectedSide Side    `json:"detected_side,omitempty"`
	Confidence   float64 `json:"confidence,omitempty"`
	Error        string  `json:"error,omitempty"`
}

// ProcessResponse is what the HTTP entrypoint returns when a job is
// enqueued asynchronously (see internal/handlers).
type ProcessResponse struct {
	RunID           string `json:"run_id"`
	DedupeSeenCount int    `json:"dedupe_seen_count"`
}

// Image is the persisted catalog row for a distinct (by sha256) image.
type Image struct {
	ID                 string
	SHA256             string
	PHash              *string
	OriginalMIME       string
	OriginalWidth      int
	OriginalHeight     int
	OriginalBytes      int
	OriginalStoragePath *string
	Status             ImageStatus
	DetectedSide       Side
	SideConfidence     float64
	IsCollage          bool
	DetectedMethod     DetectionMethod
	UpdatedAt          time.Time
	Error              *string
}

// Derivative is the persisted catalog row for one size variant of an
// Image.
type Derivative struct {
	ImageID     string
	Variant     Variant
	Format      string
	Width       int
	Height      int
	Bytes       int
	StoragePath string
}

// CardImageAssignment is the persisted mapping of a card to its image for
// a given role.
type CardImageAssignment struct {
	CardID     string
	ImageID    string
	Role       AssignmentRole
	SourceID   *string
	SourceURL  *string
	AssignedAt time.Time
}

// IngestEvent is one append-only entry in the ingest event log.
type IngestEvent struct {
	CardID      *string
	CandidateID *string
	ImageID     *string
	EventType   EventType
	Message     *string
	HTTPStatus  *int
	Metadata    map[string]interface{}
}

type fieldError string

func errRequiredField(field string) error {
	return fieldError(field + " is required")
}

func (e fieldError) Error() string { return string(e) }
