/**
 * Recognized-text probe.
 *
 * Best-effort sanity check on the enhanced page image: runs local Tesseract
 * against it and scores the recognized text, so the review dashboard can flag
 * uploads whose artifacts are unlikely to extract well. Entirely optional:
 * probe failures never affect the asset's outcome.
 */

package processor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/otiai10/gosseract/v2"
)

// ProbeResult carries the probe's estimate for one page image.
type ProbeResult struct {
	Text       string
	Confidence float64
	Duration   time.Duration
}

// TextProbe wraps a local Tesseract instance.
type TextProbe struct {
	language string
}

// NewTextProbe creates a probe for the given language model.
func NewTextProbe(language string) *TextProbe {
	if language == "" {
		language = "eng"
	}
	return &TextProbe{language: language}
}

// Probe recognizes the page image and estimates extraction confidence.
func (t *TextProbe) Probe(ctx context.Context, pageImage []byte) (*ProbeResult, error) {
	if len(pageImage) == 0 {
		return nil, fmt.Errorf("page image is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.language); err != nil {
		return nil, fmt.Errorf("failed to set language: %w", err)
	}
	if err := client.SetImageFromBytes(pageImage); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return nil, fmt.Errorf("tesseract recognition failed: %w", err)
	}

	return &ProbeResult{
		Text:       text,
		Confidence: scoreRecognizedText(text),
		Duration:   time.Since(start),
	}, nil
}

// scoreRecognizedText estimates extraction confidence from text quality
// indicators: amount of text, word count, and character distribution.
func scoreRecognizedText(text string) float64 {
	confidence := 0.5

	if len(text) > 1000 {
		confidence += 0.1
	}
	if len(text) > 5000 {
		confidence += 0.1
	}

	words := strings.Fields(text)
	if len(words) > 100 {
		confidence += 0.1
	}

	alphaCount := 0
	for _, r := range text {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			alphaCount++
		}
	}
	if len(text) > 0 {
		alphaRatio := float64(alphaCount) / float64(len(text))
		if alphaRatio > 0.5 && alphaRatio < 0.9 {
			confidence += 0.1
		}
	}

	// Local Tesseract on a phone capture rarely deserves more than this.
	if confidence > 0.85 {
		confidence = 0.85
	}

	return confidence
}
