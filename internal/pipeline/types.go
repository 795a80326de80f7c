/**
 * Shared data structures for the single-page normalization pipeline.
 *
 * All of these are transient and single-use per upload; nothing here is cached
 * or shared between pipeline invocations.
 */

package pipeline

// RawAsset is one uploaded file as it arrived: opaque bytes plus the declared
// MIME type and original filename. It is consumed once and never mutated.
type RawAsset struct {
	Name     string
	MimeType string
	Data     []byte
}

// EncodedPage is the enhanced page image after size-constrained JPEG
// re-encoding, annotated with the achieved quality level.
//
// Invariant: len(Data) <= the target byte ceiling, or Quality equals the
// configured floor (the ladder terminated there and the oversize buffer is
// accepted).
type EncodedPage struct {
	Data    []byte
	Quality int
	Width   int
	Height  int
}

// Outcome is the per-asset processing record returned to the caller.
// A non-empty Err means the asset failed and carries no artifact.
type Outcome struct {
	Source       string
	ArtifactName string
	ContentType  string
	Data         []byte
	Passthrough  bool   // non-image asset handed through unchanged
	OCRApplied   bool   // true when the OCR engine rewrote the document
	Quality      int    // achieved JPEG quality (0 for passthrough)
	SizeBytes    int    // final artifact size
	PageImage    []byte // re-encoded page JPEG, kept for downstream text probing
	Err          string
}

// Succeeded reports whether the asset produced an artifact.
func (o *Outcome) Succeeded() bool {
	return o.Err == ""
}

// BatchContext identifies the client and document-format the assets belong
// to. The normalized names feed artifact naming.
type BatchContext struct {
	ClientName string
	DocType    string
}
