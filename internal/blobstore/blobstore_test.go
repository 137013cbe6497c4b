package blobstore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPUploaderSuccess(t *testing.T) {
	var gotPath, gotContentType, gotCacheControl, gotUpsert, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		gotCacheControl = r.Header.Get("Cache-Control")
		gotUpsert = r.Header.Get("x-upsert")
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	u := NewHTTPUploader(srv.URL, "card-images", "svc-key")
	err := u.Upload(context.Background(), "derivatives/ab/abcd1234/thumb.webp", []byte("webpbytes"), "image/webp")
	require.NoError(t, err)

	assert.Equal(t, "/storage/v1/object/card-images/derivatives/ab/abcd1234/thumb.webp", gotPath)
	assert.Equal(t, "image/webp", gotContentType)
	assert.Equal(t, "public, max-age=31536000, immutable", gotCacheControl)
	assert.Equal(t, "true", gotUpsert)
	assert.Equal(t, "Bearer svc-key", gotAuth)
}

func TestHTTPUploaderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("disk full"))
	}))
	defer srv.Close()

	u := NewHTTPUploader(srv.URL, "card-images", "svc-key")
	err := u.Upload(context.Background(), "derivatives/ab/abcd1234/thumb.webp", []byte("bytes"), "image/webp")
	assert.Error(t, err)
}

func TestFilesystemUploaderWritesFileAtKey(t *testing.T) {
	dir := t.TempDir()
	u, err := NewFilesystemUploader(dir)
	require.NoError(t, err)

	err = u.Upload(context.Background(), "derivatives/ab/abcd1234/thumb.webp", []byte("webpbytes"), "image/webp")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "derivatives", "ab", "abcd1234", "thumb.webp"))
	require.NoError(t, err)
	assert.Equal(t, "webpbytes", string(data))
}

func TestFilesystemUploaderRejectsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	u, err := NewFilesystemUploader(dir)
	require.NoError(t, err)

	err = u.Upload(context.Background(), "../../etc/passwd", []byte("x"), "image/webp")
	assert.Error(t, err)
}

func TestFilesystemUploaderUpsertOverwrites(t *testing.T) {
	dir := t.TempDir()
	u, err := NewFilesystemUploader(dir)
	require.NoError(t, err)

	require.NoError(t, u.Upload(context.Background(), "derivatives/ab/cd/thumb.webp", []byte("first"), "image/webp"))
	require.NoError(t, u.Upload(context.Background(), "derivatives/ab/cd/thumb.webp", []byte("second"), "image/webp"))

	data, err := os.ReadFile(filepath.Join(dir, "derivatives", "ab", "cd", "thumb.webp"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}
