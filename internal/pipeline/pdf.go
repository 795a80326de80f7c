/**
 * Single-Page PDF Synthesizer.
 *
 * Wraps the re-encoded page image as the sole content of a one-page PDF whose
 * page size in points equals the image's pixel dimensions (one point per
 * pixel). No physical-unit mapping, no scaling math: the PDF page has exactly
 * the image's aspect ratio and resolution.
 */

package pipeline

import (
	"bytes"

	"codeberg.org/go-pdf/fpdf"

	werrors "github.com/freightflow/docintake-worker/internal/errors"
)

// SynthesizePDF builds the single-page document around the encoded JPEG.
// The image is drawn at the origin and fills the page edge to edge.
func SynthesizePDF(source string, page *EncodedPage) ([]byte, error) {
	doc := fpdf.New("P", "pt", "A4", "")
	doc.SetCompression(false)

	w := float64(page.Width)
	h := float64(page.Height)
	doc.AddPageFormat("P", fpdf.SizeType{Wd: w, Ht: h})

	opts := fpdf.ImageOptions{ImageType: "JPEG", ReadDpi: false}
	doc.RegisterImageOptionsReader("page", opts, bytes.NewReader(page.Data))
	doc.ImageOptions("page", 0, 0, w, h, false, opts, 0, "")

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, werrors.NewConversionError(source, "synthesize", err)
	}

	return buf.Bytes(), nil
}
