package vision

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bourdainai/bourdain-image-worker/pkg/pipeline"
)

func TestShouldRunVisionCheckTier1Never(t *testing.T) {
	assert.False(t, ShouldRunVisionCheck(pipeline.TrustTierVerified, 0.1, 0.6, 0.9, 0.1, 0.0))
	assert.False(t, ShouldRunVisionCheck(pipeline.TrustTierVerified, 0.99, 0.6, 0.9, 0.1, 0.0))
}

func TestShouldRunVisionCheckTier3Always(t *testing.T) {
	assert.True(t, ShouldRunVisionCheck(pipeline.TrustTierUntrusted, 0.99, 0.6, 0.9, 0.1, 0.99))
}

func TestShouldRunVisionCheckTier2ConfidenceBand(t *testing.T) {
	assert.True(t, ShouldRunVisionCheck(pipeline.TrustTierStandard, 0.6, 0.6, 0.9, 0.1, 0.99))
	assert.True(t, ShouldRunVisionCheck(pipeline.TrustTierStandard, 0.89, 0.6, 0.9, 0.1, 0.99))
	assert.False(t, ShouldRunVisionCheck(pipeline.TrustTierStandard, 0.9, 0.6, 0.9, 0.1, 0.99))
}

func TestShouldRunVisionCheckTier2SampledOutsideBand(t *testing.T) {
	assert.True(t, ShouldRunVisionCheck(pipeline.TrustTierStandard, 0.2, 0.6, 0.9, 0.1, 0.05))
	assert.False(t, ShouldRunVisionCheck(pipeline.TrustTierStandard, 0.2, 0.6, 0.9, 0.1, 0.5))
}

func TestCheckWithVisionNoAPIKey(t *testing.T) {
	c := New("http://unused", "", "some-model")
	result := c.CheckWithVision(context.Background(), []byte("bytes"), "image/jpeg", pipeline.ImageJob{}, pipeline.TrustTierUntrusted)
	assert.Equal(t, pipeline.SideUnknown, result.Side)
	assert.Equal(t, 0.5, result.Confidence)
	assert.Equal(t, pipeline.MethodVision, result.Method)
}

func writeChoice(t *testing.T, w http.ResponseWriter, content string) {
	t.Helper()
	resp := chatResponse{}
	resp.Choices = append(resp.Choices, struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}{})
	resp.Choices[0].Message.Content = content
	require.NoError(t, json.NewEncoder(w).Encode(resp))
}

func TestCheckWithVisionFront(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		writeChoice(t, w, "FRONT")
	}))
	defer srv.Close()

	c := New(srv.URL, "test-key", "some-model")
	result := c.CheckWithVision(context.Background(), []byte("bytes"), "image/png", pipeline.ImageJob{}, pipeline.TrustTierUntrusted)
	assert.Equal(t, pipeline.SideFront, result.Side)
	assert.Equal(t, 0.95, result.Confidence)
}

func TestCheckWithVisionWrongCard(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeChoice(t, w, "wrong_card, this is a different card")
	}))
	defer srv.Close()

	c := New(srv.URL, "test-key", "some-model")
	result := c.CheckWithVision(context.Background(), []byte("bytes"), "image/png", pipeline.ImageJob{CardNumber: "1", SetCode: "base"}, pipeline.TrustTierStandard)
	assert.Equal(t, pipeline.SideUnknown, result.Side)
	assert.Equal(t, 0.3, result.Confidence)
}

func TestCheckWithVisionErrorDegradesToUnknown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, "test-key", "some-model")
	result := c.CheckWithVision(context.Background(), []byte("bytes"), "image/png", pipeline.ImageJob{}, pipeline.TrustTierUntrusted)
	assert.Equal(t, pipeline.SideUnknown, result.Side)
	assert.Equal(t, 0.5, result.Confidence)
}
