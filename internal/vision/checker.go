// Package vision implements the optional VLM side-check from spec.md
// §4.6: a single best-effort chat-completions call against OpenRouter.
// The client shape (context-scoped POST, Bearer auth, JSON body) mirrors
// the outbound HTTP adapters in kk7453603-AIAssistent's
// internal/adapters/http package, generalized from a server-side
// OpenAI-compatible responder to an outbound multimodal caller.
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bourdainai/bourdain-image-worker/pkg/pipeline"
)

const defaultTimeout = 20 * time.Second

// Checker calls out to a multimodal model to disambiguate a card image's
// side when the heuristic detector is uncertain or the source is
// untrusted.
type Checker struct {
	httpClient *http.Client
	url        string
	apiKey     string
	model      string
}

// New creates a Checker. If apiKey is empty, CheckWithVision always
// returns an unknown verdict without making a network call, per
// spec.md §4.6.
func New(url, apiKey, model string) *Checker {
	return &Checker{
		httpClient: &http.Client{Timeout: defaultTimeout},
		url:        url,
		apiKey:     apiKey,
		model:      model,
	}
}

// ShouldRunVisionCheck implements the tier-driven sampling policy from
// spec.md §4.6. lowerBound/upperBound are the configurable confidence
// band (default 0.6/0.9) in which tier-2 sources always get a vision
// check; sample is the pseudo-random draw the caller supplies for
// tier-2's out-of-band sampling, which keeps this function pure and
// testable.
func ShouldRunVisionCheck(tier pipeline.TrustTier, currentConfidence, lowerBound, upperBound, sampleRate, sample float64) bool {
	switch tier {
	case pipeline.TrustTierVerified:
		return false
	case pipeline.TrustTierUntrusted:
		return true
	case pipeline.TrustTierStandard:
		if currentConfidence >= lowerBound && currentConfidence < upperBound {
			return true
		}
		return sample < sampleRate
	default:
		return false
	}
}

// CheckWithVision sends bytes to the configured multimodal model and
// parses its verdict. Any error degrades to an unknown result rather than
// propagating, matching spec.md §4.6's "any error" clause.
func (c *Checker) CheckWithVision(ctx context.Context, raw []byte, contentType string, job pipeline.ImageJob, tier pipeline.TrustTier) pipeline.SideDetectionResult {
	if c.apiKey == "" {
		return pipeline.SideDetectionResult{Side: pipeline.SideUnknown, Confidence: 0.5, Method: pipeline.MethodVision}
	}

	verdict, err := c.call(ctx, raw, contentType, job, tier)
	if err != nil {
		return pipeline.SideDetectionResult{Side: pipeline.SideUnknown, Confidence: 0.5, Method: pipeline.MethodVision}
	}
	return verdict
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []chatContent `json:"content"`
}

type chatContent struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *Checker) call(ctx context.Context, raw []byte, contentType string, job pipeline.ImageJob, tier pipeline.TrustTier) (pipeline.SideDetectionResult, error) {
	prompt := buildPrompt(job, tier)

	if contentType == "" {
		contentType = "image/jpeg"
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(raw))

	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{
				Role: "user",
				Content: []chatContent{
					{Type: "text", Text: prompt},
					{Type: "image_url", ImageURL: &chatImageURL{URL: dataURL}},
				},
			},
		},
		MaxTokens:   50,
		Temperature: 0,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return pipeline.SideDetectionResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return pipeline.SideDetectionResult{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pipeline.SideDetectionResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return pipeline.SideDetectionResult{}, fmt.Errorf("vision provider returned HTTP %d", resp.StatusCode)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return pipeline.SideDetectionResult{}, err
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return pipeline.SideDetectionResult{}, err
	}
	if len(parsed.Choices) == 0 {
		return pipeline.SideDetectionResult{}, fmt.Errorf("vision provider returned no choices")
	}

	return parseVerdict(parsed.Choices[0].Message.Content), nil
}

func buildPrompt(job pipeline.ImageJob, tier pipeline.TrustTier) string {
	prompt := "Look at this trading card image and reply with exactly one word: FRONT if this is the front of the card, BACK if this is the back of the card, or UNKNOWN if you cannot tell."
	if tier >= pipeline.TrustTierStandard && job.CardNumber != "" && job.SetCode != "" {
		prompt += fmt.Sprintf(" If the image does not show card number %s from set %s, reply WRONG_CARD instead.", job.CardNumber, job.SetCode)
	}
	return prompt
}

func parseVerdict(content string) pipeline.SideDetectionResult {
	upper := strings.ToUpper(content)
	switch {
	case strings.Contains(upper, "FRONT"):
		return pipeline.SideDetectionResult{Side: pipeline.SideFront, Confidence: 0.95, Method: pipeline.MethodVision}
	case strings.Contains(upper, "BACK"):
		return pipeline.SideDetectionResult{Side: pipeline.SideBack, Confidence: 0.95, Method: pipeline.MethodVision}
	case strings.Contains(upper, "WRONG_CARD"):
		return pipeline.SideDetectionResult{Side: pipeline.SideUnknown, Confidence: 0.3, Method: pipeline.MethodVision}
	default:
		return pipeline.SideDetectionResult{Side: pipeline.SideUnknown, Confidence: 0.5, Method: pipeline.MethodVision}
	}
}
