package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bourdainai/bourdain-image-worker/pkg/pipeline"
)

func TestMemoryFindImageBySHA256Miss(t *testing.T) {
	m := NewMemory()
	img, err := m.FindImageBySHA256(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.Nil(t, img)
}

func TestMemoryCreateAndFindImageRecord(t *testing.T) {
	m := NewMemory()
	id, err := m.CreateImageRecord(context.Background(), pipeline.Image{
		SHA256:        "abc123",
		OriginalMIME:  "image/jpeg",
		OriginalWidth: 630,
		Status:        pipeline.ImageStatusProcessing,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	found, err := m.FindImageBySHA256(context.Background(), "abc123")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, id, found.ID)
}

func TestMemoryCreateImageRecordDuplicateSHA256(t *testing.T) {
	m := NewMemory()
	_, err := m.CreateImageRecord(context.Background(), pipeline.Image{SHA256: "dupe"})
	require.NoError(t, err)

	_, err = m.CreateImageRecord(context.Background(), pipeline.Image{SHA256: "dupe"})
	assert.ErrorIs(t, err, ErrDuplicateImage)
}

func TestMemoryUpdateImageStatus(t *testing.T) {
	m := NewMemory()
	id, err := m.CreateImageRecord(context.Background(), pipeline.Image{SHA256: "x"})
	require.NoError(t, err)

	errMsg := "boom"
	require.NoError(t, m.UpdateImageStatus(context.Background(), id, pipeline.ImageStatusFailed, &errMsg))

	found, err := m.FindImageBySHA256(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, pipeline.ImageStatusFailed, found.Status)
	require.NotNil(t, found.Error)
	assert.Equal(t, "boom", *found.Error)
}

func TestMemoryAssignImageToCardUpsertsOnRole(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.AssignImageToCard(ctx, pipeline.CardImageAssignment{CardID: "c1", ImageID: "img1", Role: pipeline.RolePrimaryFront}))
	assert.Equal(t, "img1", m.Assignment("c1", pipeline.RolePrimaryFront).ImageID)

	require.NoError(t, m.AssignImageToCard(ctx, pipeline.CardImageAssignment{CardID: "c1", ImageID: "img2", Role: pipeline.RolePrimaryFront}))
	assert.Equal(t, "img2", m.Assignment("c1", pipeline.RolePrimaryFront).ImageID)
}

func TestMemoryLogIngestEventAccumulates(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.LogIngestEvent(ctx, pipeline.IngestEvent{EventType: pipeline.EventFetchStarted}))
	require.NoError(t, m.LogIngestEvent(ctx, pipeline.IngestEvent{EventType: pipeline.EventFetchCompleted}))

	events := m.Events()
	require.Len(t, events, 2)
	assert.Equal(t, pipeline.EventFetchStarted, events[0].EventType)
}

func TestMemoryGetImageSourceLookups(t *testing.T) {
	m := NewMemory(pipeline.ImageSource{ID: "s1", Name: "pokemontcg_api", TrustTier: pipeline.TrustTierVerified})

	byID, err := m.GetImageSource(context.Background(), "s1")
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, "pokemontcg_api", byID.Name)

	byName, err := m.GetImageSourceByName(context.Background(), "pokemontcg_api")
	require.NoError(t, err)
	require.NotNil(t, byName)
	assert.Equal(t, "s1", byName.ID)

	missing, err := m.GetImageSourceByName(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
