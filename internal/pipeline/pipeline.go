/**
 * Pipeline Orchestrator.
 *
 * Sequences decode -> enhance -> re-encode -> PDF synthesis -> OCR injection
 * per uploaded asset. One asset's failure never aborts the batch: domain
 * errors become data on that asset's Outcome and processing continues.
 * Non-image assets bypass the image stages and pass through unchanged.
 */

package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/freightflow/docintake-worker/internal/logging"
)

// imageExts is the extension set routed into the image pipeline.
var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".tiff": true,
	".tif":  true,
	".webp": true,
	".gif":  true,
}

// Pipeline runs the fixed single-page cleanup-and-OCR sequence for a batch of
// uploaded assets. It holds no state beyond its configuration; each asset is
// processed synchronously and in input order.
type Pipeline struct {
	preset Preset
	ocr    *OCRInjector
	loc    *time.Location
	log    *logging.Logger

	now func() time.Time // stubbed in tests
}

// New creates a pipeline with the given profile. loc is the timezone used for
// artifact-name timestamps; nil falls back to UTC.
func New(preset Preset, ocr *OCRInjector, loc *time.Location, log *logging.Logger) *Pipeline {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = logging.NewLogger("pipeline")
	}
	return &Pipeline{
		preset: preset,
		ocr:    ocr,
		loc:    loc,
		log:    log,
		now:    time.Now,
	}
}

// Preset returns the profile this pipeline was built with.
func (p *Pipeline) Preset() Preset {
	return p.preset
}

// Process runs every asset through the pipeline and returns one Outcome per
// asset, in input order.
func (p *Pipeline) Process(ctx context.Context, bc BatchContext, assets []RawAsset) []Outcome {
	outcomes := make([]Outcome, 0, len(assets))
	for i := range assets {
		outcomes = append(outcomes, p.processAsset(ctx, bc, &assets[i]))
	}
	return outcomes
}

// processAsset handles a single upload. Domain failures are recorded on the
// outcome; only the surrounding infrastructure (context cancellation aside)
// can abort it.
func (p *Pipeline) processAsset(ctx context.Context, bc BatchContext, asset *RawAsset) (out Outcome) {
	out = Outcome{Source: asset.Name}

	// A panic inside any stage, say a decoder choking on a pathological
	// raster, is that asset's failure, never the worker's.
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("asset processing panicked", "source", asset.Name, "panic", r)
			out = Outcome{Source: asset.Name, Err: fmt.Sprintf("internal error: %v", r)}
		}
	}()

	if len(asset.Data) == 0 {
		out.Err = "empty file uploaded"
		return out
	}

	ext := strings.ToLower(filepath.Ext(asset.Name))
	sniffed := sniffContentType(asset.Data)
	declared := asset.MimeType

	if ext == "" {
		ext = extensionFor(declared, sniffed)
	}

	isImage := imageExts[ext] ||
		strings.HasPrefix(declared, "image/") ||
		strings.HasPrefix(sniffed, "image/")

	stamp := p.now().In(p.loc)

	if !isImage {
		// Passthrough asset: already a PDF or an unrecognized non-image
		// type; handed to the downstream collaborator unchanged.
		out.Passthrough = true
		out.ArtifactName = p.artifactName(bc, stamp, orDefault(ext, ".bin"))
		out.ContentType = firstNonEmpty(sniffed, declared, "application/octet-stream")
		out.Data = asset.Data
		out.SizeBytes = len(asset.Data)
		p.log.Info("passthrough asset", "source", asset.Name, "content_type", out.ContentType)
		return out
	}

	img, err := Decode(asset.Name, asset.Data)
	if err != nil {
		p.log.Warn("decode failed", "source", asset.Name, "error", err)
		out.Err = err.Error()
		return out
	}

	img = BoundDimensions(img, p.preset.MaxDimension)
	enhanced := Enhance(img, p.preset)

	page, err := EncodePage(asset.Name, enhanced, p.preset)
	if err != nil {
		p.log.Warn("re-encode failed", "source", asset.Name, "error", err)
		out.Err = err.Error()
		return out
	}

	pdfBytes, err := SynthesizePDF(asset.Name, page)
	if err != nil {
		p.log.Warn("pdf synthesis failed", "source", asset.Name, "error", err)
		out.Err = err.Error()
		return out
	}

	if p.ocr != nil {
		pdfBytes, out.OCRApplied = p.ocr.Apply(ctx, asset.Name, pdfBytes)
	}

	out.ArtifactName = p.artifactName(bc, stamp, ".pdf")
	out.ContentType = "application/pdf"
	out.Data = pdfBytes
	out.Quality = page.Quality
	out.SizeBytes = len(pdfBytes)
	out.PageImage = page.Data

	p.log.Info("asset processed",
		"source", asset.Name, "artifact", out.ArtifactName,
		"quality", page.Quality, "size", out.SizeBytes, "ocr", out.OCRApplied)
	return out
}

// artifactName builds a collision-resistant name: microsecond timestamp plus
// a random suffix, so files processed within the same second never overwrite
// one another downstream.
func (p *Pipeline) artifactName(bc BatchContext, stamp time.Time, ext string) string {
	suffix := strings.Split(uuid.NewString(), "-")[0]
	return fmt.Sprintf("%s_%s_%s_%s_%06d_%s%s",
		bc.ClientName, bc.DocType,
		stamp.Format("20060102"), stamp.Format("150405"),
		stamp.Nanosecond()/1000, suffix, ext)
}

// sniffContentType detects the actual content type from magic bytes.
// Essential for uploads that arrive as application/octet-stream.
func sniffContentType(data []byte) string {
	if len(data) < 4 {
		return ""
	}

	switch {
	case bytes.HasPrefix(data, []byte("%PDF")):
		return "application/pdf"
	case len(data) >= 8 && bytes.HasPrefix(data, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}):
		return "image/png"
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return "image/jpeg"
	case bytes.HasPrefix(data, []byte("GIF87a")) || bytes.HasPrefix(data, []byte("GIF89a")):
		return "image/gif"
	case len(data) > 12 && bytes.HasPrefix(data, []byte("RIFF")) && string(data[8:12]) == "WEBP":
		return "image/webp"
	case bytes.HasPrefix(data, []byte{0x49, 0x49, 0x2A, 0x00}) || bytes.HasPrefix(data, []byte{0x4D, 0x4D, 0x00, 0x2A}):
		return "image/tiff"
	case bytes.HasPrefix(data, []byte("BM")):
		return "image/bmp"
	}

	return ""
}

// extensionFor derives a filename extension from the declared or sniffed
// content type when the upload itself has none.
func extensionFor(declared, sniffed string) string {
	ct := firstNonEmpty(sniffed, declared)
	switch {
	case ct == "application/pdf":
		return ".pdf"
	case strings.HasPrefix(ct, "image/"):
		sub := strings.TrimPrefix(ct, "image/")
		if sub == "jpeg" {
			return ".jpg"
		}
		return "." + strings.SplitN(sub, "+", 2)[0]
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
