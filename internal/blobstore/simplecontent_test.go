package blobstore

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-content/pkg/simplecontent/presets"
)

func TestSimpleContentUploaderStoresAndDedupes(t *testing.T) {
	svc, cleanup, err := presets.NewDevelopment()
	require.NoError(t, err)
	defer cleanup()

	u := NewSimpleContentUploader(svc, uuid.New(), uuid.New())

	err = u.Upload(context.Background(), "derivatives/ab/abcd1234/thumb.webp", []byte("webpbytes"), "image/webp")
	require.NoError(t, err)

	// Re-uploading the same key is a no-op upsert, not a second write.
	err = u.Upload(context.Background(), "derivatives/ab/abcd1234/thumb.webp", []byte("webpbytes"), "image/webp")
	require.NoError(t, err)

	require.Len(t, u.byKey, 1)
}
