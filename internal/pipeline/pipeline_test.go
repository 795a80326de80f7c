package pipeline

import (
	"bytes"
	"context"
	"regexp"
	"strings"
	"testing"
	"time"
)

var testBatch = BatchContext{ClientName: "Acme_Freight", DocType: "invoice"}

func testPipeline(t *testing.T) *Pipeline {
	t.Helper()
	return New(CapturePreset(), nil, time.UTC, nil)
}

func TestProcessImageAsset(t *testing.T) {
	p := testPipeline(t)

	raw := encodePNG(t, gradientImage(t, 320, 240))
	outcomes := p.Process(context.Background(), testBatch, []RawAsset{
		{Name: "photo.png", MimeType: "image/png", Data: raw},
	})

	if len(outcomes) != 1 {
		t.Fatalf("got %d outcomes, want 1", len(outcomes))
	}
	out := outcomes[0]
	if !out.Succeeded() {
		t.Fatalf("image asset failed: %s", out.Err)
	}
	if out.ContentType != "application/pdf" {
		t.Errorf("content type = %q, want application/pdf", out.ContentType)
	}
	if !bytes.HasPrefix(out.Data, []byte("%PDF")) {
		t.Error("artifact is not a PDF")
	}
	if !strings.HasSuffix(out.ArtifactName, ".pdf") {
		t.Errorf("artifact name %q does not end in .pdf", out.ArtifactName)
	}
	if out.Passthrough {
		t.Error("image asset marked as passthrough")
	}
	if len(out.PageImage) == 0 {
		t.Error("page image not retained for downstream probing")
	}
	if out.SizeBytes != len(out.Data) {
		t.Errorf("SizeBytes = %d, want %d", out.SizeBytes, len(out.Data))
	}
}

func TestProcessFailureIsolation(t *testing.T) {
	// A corrupt asset in the middle must not abort the batch; the other
	// assets still produce artifacts and order is preserved.
	p := testPipeline(t)

	raw := encodePNG(t, gradientImage(t, 100, 80))
	outcomes := p.Process(context.Background(), testBatch, []RawAsset{
		{Name: "first.png", Data: raw},
		{Name: "broken.jpg", Data: []byte("not an image at all")},
		{Name: "third.png", Data: raw},
	})

	if len(outcomes) != 3 {
		t.Fatalf("got %d outcomes, want 3", len(outcomes))
	}
	if outcomes[0].Source != "first.png" || outcomes[1].Source != "broken.jpg" || outcomes[2].Source != "third.png" {
		t.Error("outcomes not in input order")
	}
	if !outcomes[0].Succeeded() {
		t.Errorf("first asset failed: %s", outcomes[0].Err)
	}
	if outcomes[1].Succeeded() {
		t.Error("corrupt asset reported success")
	}
	if len(outcomes[1].Data) != 0 {
		t.Error("failed asset carries artifact bytes")
	}
	if !outcomes[2].Succeeded() {
		t.Errorf("third asset failed: %s", outcomes[2].Err)
	}
}

func TestProcessPanicContainment(t *testing.T) {
	// A panic inside one asset's stages becomes that asset's outcome; the
	// rest of the batch still processes.
	p := testPipeline(t)
	calls := 0
	p.now = func() time.Time {
		calls++
		if calls == 1 {
			panic("clock exploded")
		}
		return time.Now()
	}

	raw := encodePNG(t, gradientImage(t, 64, 48))
	outcomes := p.Process(context.Background(), testBatch, []RawAsset{
		{Name: "first.png", Data: raw},
		{Name: "second.png", Data: raw},
	})

	if len(outcomes) != 2 {
		t.Fatalf("got %d outcomes, want 2", len(outcomes))
	}
	if outcomes[0].Succeeded() {
		t.Fatal("panicking asset reported success")
	}
	if !strings.Contains(outcomes[0].Err, "clock exploded") {
		t.Errorf("error %q does not carry the panic value", outcomes[0].Err)
	}
	if len(outcomes[0].Data) != 0 {
		t.Error("panicking asset carries artifact bytes")
	}
	if !outcomes[1].Succeeded() {
		t.Errorf("second asset failed after contained panic: %s", outcomes[1].Err)
	}
}

func TestProcessPassthroughPDF(t *testing.T) {
	p := testPipeline(t)

	pdfBytes := []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\n%%EOF")
	outcomes := p.Process(context.Background(), testBatch, []RawAsset{
		{Name: "scan.pdf", MimeType: "application/pdf", Data: pdfBytes},
	})

	out := outcomes[0]
	if !out.Passthrough {
		t.Fatal("PDF asset not marked as passthrough")
	}
	if !bytes.Equal(out.Data, pdfBytes) {
		t.Error("passthrough bytes were modified")
	}
	if out.ContentType != "application/pdf" {
		t.Errorf("content type = %q, want application/pdf", out.ContentType)
	}
	if out.OCRApplied {
		t.Error("passthrough asset reports OCR")
	}
	if out.Quality != 0 {
		t.Errorf("passthrough quality = %d, want 0", out.Quality)
	}
}

func TestProcessPassthroughSniffsOctetStream(t *testing.T) {
	// Gateways that lose the content type send application/octet-stream;
	// the magic bytes decide the routing.
	p := testPipeline(t)

	pdfBytes := []byte("%PDF-1.4\nfake\n%%EOF")
	outcomes := p.Process(context.Background(), testBatch, []RawAsset{
		{Name: "upload", MimeType: "application/octet-stream", Data: pdfBytes},
	})

	out := outcomes[0]
	if !out.Passthrough {
		t.Fatal("sniffed PDF not routed to passthrough")
	}
	if out.ContentType != "application/pdf" {
		t.Errorf("content type = %q, want sniffed application/pdf", out.ContentType)
	}
	if !strings.HasSuffix(out.ArtifactName, ".pdf") {
		t.Errorf("artifact name %q missing sniffed extension", out.ArtifactName)
	}
}

func TestProcessEmptyAsset(t *testing.T) {
	p := testPipeline(t)

	outcomes := p.Process(context.Background(), testBatch, []RawAsset{
		{Name: "empty.jpg", Data: nil},
	})

	out := outcomes[0]
	if out.Succeeded() {
		t.Fatal("empty asset reported success")
	}
	if out.Err != "empty file uploaded" {
		t.Errorf("error = %q, want \"empty file uploaded\"", out.Err)
	}
}

func TestArtifactNameFormat(t *testing.T) {
	p := testPipeline(t)
	p.now = func() time.Time {
		return time.Date(2026, 8, 24, 14, 30, 45, 123456000, time.UTC)
	}

	name := p.artifactName(testBatch, p.now(), ".pdf")

	pattern := regexp.MustCompile(`^Acme_Freight_invoice_20260824_143045_123456_[0-9a-f]{8}\.pdf$`)
	if !pattern.MatchString(name) {
		t.Errorf("artifact name %q does not match expected shape", name)
	}
}

func TestArtifactNamesCollisionResistant(t *testing.T) {
	// Same batch, same instant: names must still differ.
	p := testPipeline(t)
	stamp := time.Date(2026, 8, 24, 14, 30, 45, 0, time.UTC)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		name := p.artifactName(testBatch, stamp, ".pdf")
		if seen[name] {
			t.Fatalf("duplicate artifact name: %s", name)
		}
		seen[name] = true
	}
}

func TestSniffContentType(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"pdf", []byte("%PDF-1.7 rest"), "application/pdf"},
		{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00}, "image/png"},
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00}, "image/jpeg"},
		{"gif", []byte("GIF89a...."), "image/gif"},
		{"tiff le", []byte{0x49, 0x49, 0x2A, 0x00, 0x00}, "image/tiff"},
		{"bmp", []byte("BM1234"), "image/bmp"},
		{"unknown", []byte("plain text here"), ""},
		{"too short", []byte{0x01}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sniffContentType(tt.data); got != tt.want {
				t.Errorf("sniffContentType = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtensionFor(t *testing.T) {
	tests := []struct {
		declared string
		sniffed  string
		want     string
	}{
		{"application/pdf", "", ".pdf"},
		{"", "image/jpeg", ".jpg"},
		{"image/png", "", ".png"},
		{"text/plain", "", ""},
		{"", "", ""},
	}

	for _, tt := range tests {
		if got := extensionFor(tt.declared, tt.sniffed); got != tt.want {
			t.Errorf("extensionFor(%q, %q) = %q, want %q", tt.declared, tt.sniffed, got, tt.want)
		}
	}
}

func TestPresetByName(t *testing.T) {
	if got := PresetByName("scanner"); got.Name != "scanner" || got.MaxDimension != 1600 {
		t.Errorf("scanner preset = %+v", got)
	}
	if got := PresetByName(""); got.Name != "capture" || got.MaxDimension != 1400 {
		t.Errorf("default preset = %+v", got)
	}
	if got := PresetByName("bogus"); got.Name != "capture" {
		t.Errorf("unknown preset fell back to %q, want capture", got.Name)
	}
}
