package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bourdainai/bourdain-image-worker/pkg/pipeline"
)

// Memory is an in-process Catalog for cmd/standalone and tests. It
// has no external dependency, mirroring the teacher's in-memory
// repository pattern used for local development without Postgres.
type Memory struct {
	mu           sync.Mutex
	imagesBySHA  map[string]*pipeline.Image
	imagesByID   map[string]*pipeline.Image
	sourcesByID  map[string]*pipeline.ImageSource
	sourcesByName map[string]*pipeline.ImageSource
	derivatives  []pipeline.Derivative
	assignments  map[string]*pipeline.CardImageAssignment // key: cardId|role
	events       []pipeline.IngestEvent
}

// NewMemory builds an empty Memory catalog, optionally seeded with
// sources.
func NewMemory(sources ...pipeline.ImageSource) *Memory {
	m := &Memory{
		imagesBySHA:   make(map[string]*pipeline.Image),
		imagesByID:    make(map[string]*pipeline.Image),
		sourcesByID:   make(map[string]*pipeline.ImageSource),
		sourcesByName: make(map[string]*pipeline.ImageSource),
		assignments:   make(map[string]*pipeline.CardImageAssignment),
	}
	for i := range sources {
		src := sources[i]
		m.sourcesByID[src.ID] = &src
		m.sourcesByName[src.Name] = &src
	}
	return m
}

func (m *Memory) FindImageBySHA256(ctx context.Context, sha256 string) (*pipeline.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	img, ok := m.imagesBySHA[sha256]
	if !ok {
		return nil, nil
	}
	copied := *img
	return &copied, nil
}

func (m *Memory) GetImageSource(ctx context.Context, id string) (*pipeline.ImageSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, ok := m.sourcesByID[id]
	if !ok {
		return nil, nil
	}
	copied := *src
	return &copied, nil
}

func (m *Memory) GetImageSourceByName(ctx context.Context, name string) (*pipeline.ImageSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, ok := m.sourcesByName[name]
	if !ok {
		return nil, nil
	}
	copied := *src
	return &copied, nil
}

func (m *Memory) CreateImageRecord(ctx context.Context, img pipeline.Image) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.imagesBySHA[img.SHA256]; exists {
		return "", ErrDuplicateImage
	}

	img.ID = uuid.NewString()
	img.UpdatedAt = time.Now().UTC()
	copied := img
	m.imagesBySHA[img.SHA256] = &copied
	m.imagesByID[img.ID] = &copied
	return img.ID, nil
}

func (m *Memory) UpdateImageStatus(ctx context.Context, imageID string, status pipeline.ImageStatus, errMsg *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	img, ok := m.imagesByID[imageID]
	if !ok {
		return fmt.Errorf("update image status: no image with id %s", imageID)
	}
	img.Status = status
	img.Error = errMsg
	img.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) CreateDerivativeRecord(ctx context.Context, d pipeline.Derivative) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, existing := range m.derivatives {
		if existing.ImageID == d.ImageID && existing.Variant == d.Variant {
			m.derivatives[i] = d
			return nil
		}
	}
	m.derivatives = append(m.derivatives, d)
	return nil
}

func (m *Memory) AssignImageToCard(ctx context.Context, a pipeline.CardImageAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a.AssignedAt = time.Now().UTC()
	m.assignments[assignmentKey(a.CardID, a.Role)] = &a
	return nil
}

func (m *Memory) LogIngestEvent(ctx context.Context, e pipeline.IngestEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

// Assignment returns the current assignment for (cardID, role), for use
// in tests and cmd/standalone introspection.
func (m *Memory) Assignment(cardID string, role pipeline.AssignmentRole) *pipeline.CardImageAssignment {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assignments[assignmentKey(cardID, role)]
	if !ok {
		return nil
	}
	copied := *a
	return &copied
}

// Events returns a snapshot of all logged events, for use in tests.
func (m *Memory) Events() []pipeline.IngestEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]pipeline.IngestEvent, len(m.events))
	copy(out, m.events)
	return out
}

func assignmentKey(cardID string, role pipeline.AssignmentRole) string {
	return cardID + "|" + string(role)
}
