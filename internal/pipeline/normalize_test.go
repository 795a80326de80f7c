package pipeline

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/disintegration/imaging"
)

// gradientImage builds a deterministic test raster with enough tonal range
// that every enhancement stage has something to work on.
func gradientImage(t *testing.T, width, height int) *image.NRGBA {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := uint8((x*7 + y*13) % 256)
			img.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test PNG: %v", err)
	}
	return buf.Bytes()
}

func TestDecodeValidImage(t *testing.T) {
	raw := encodePNG(t, gradientImage(t, 64, 48))

	img, err := Decode("test.png", raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() != 64 || bounds.Dy() != 48 {
		t.Errorf("decoded dimensions = %dx%d, want 64x48", bounds.Dx(), bounds.Dy())
	}
}

func TestDecodeGarbage(t *testing.T) {
	_, err := Decode("junk.jpg", []byte("definitely not an image"))
	if err == nil {
		t.Fatal("Decode accepted garbage bytes")
	}
}

func TestDecodeEmpty(t *testing.T) {
	_, err := Decode("empty.jpg", nil)
	if err == nil {
		t.Fatal("Decode accepted empty input")
	}
}

func TestBoundDimensionsDownscalesLongEdge(t *testing.T) {
	tests := []struct {
		name           string
		width, height  int
		maxDim         int
		wantW, wantH   int
	}{
		{"landscape over cap", 2800, 2100, 1400, 1400, 1050},
		{"portrait over cap", 1050, 2800, 1400, 525, 1400},
		{"square over cap", 2000, 2000, 1400, 1400, 1400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := gradientImage(t, tt.width, tt.height)
			out := BoundDimensions(img, tt.maxDim)
			b := out.Bounds()
			if b.Dx() != tt.wantW || b.Dy() != tt.wantH {
				t.Errorf("bounded to %dx%d, want %dx%d", b.Dx(), b.Dy(), tt.wantW, tt.wantH)
			}
		})
	}
}

func TestBoundDimensionsNeverUpscales(t *testing.T) {
	img := gradientImage(t, 640, 480)
	out := BoundDimensions(img, 1400)

	b := out.Bounds()
	if b.Dx() != 640 || b.Dy() != 480 {
		t.Errorf("within-cap image resized to %dx%d, want untouched 640x480", b.Dx(), b.Dy())
	}
}

func TestBoundDimensionsExactCapUntouched(t *testing.T) {
	img := gradientImage(t, 1400, 900)
	out := BoundDimensions(img, 1400)

	b := out.Bounds()
	if b.Dx() != 1400 || b.Dy() != 900 {
		t.Errorf("at-cap image resized to %dx%d, want untouched 1400x900", b.Dx(), b.Dy())
	}
}

// jpegWithOrientation6 splices an APP1 EXIF segment carrying orientation
// tag 6 (rotate 90 CW) into a baseline JPEG, right after the SOI marker.
func jpegWithOrientation6(t *testing.T, jpg []byte) []byte {
	t.Helper()
	payload := []byte{
		'E', 'x', 'i', 'f', 0x00, 0x00,
		0x49, 0x49, 0x2A, 0x00, 0x08, 0x00, 0x00, 0x00, // TIFF header, little endian, IFD0 at 8
		0x01, 0x00, // one IFD entry
		0x12, 0x01, 0x03, 0x00, 0x01, 0x00, 0x00, 0x00, 0x06, 0x00, 0x00, 0x00, // orientation = 6
		0x00, 0x00, 0x00, 0x00, // no next IFD
	}
	seg := append([]byte{0xFF, 0xE1, 0x00, byte(len(payload) + 2)}, payload...)

	out := append([]byte{}, jpg[:2]...)
	out = append(out, seg...)
	return append(out, jpg[2:]...)
}

func TestDecodeAppliesOrientation(t *testing.T) {
	// A sideways capture tagged orientation 6 must come out upright, so an
	// 80x60 raster decodes with its dimensions transposed.
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, gradientImage(t, 80, 60), imaging.JPEG); err != nil {
		t.Fatalf("failed to encode test JPEG: %v", err)
	}

	img, err := Decode("rotated.jpg", jpegWithOrientation6(t, buf.Bytes()))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if img.Bounds().Dx() != 60 || img.Bounds().Dy() != 80 {
		t.Errorf("decoded dimensions = %dx%d, want transposed 60x80",
			img.Bounds().Dx(), img.Bounds().Dy())
	}
}

func TestDecodeUntaggedJPEGKeepsDimensions(t *testing.T) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, gradientImage(t, 80, 60), imaging.JPEG); err != nil {
		t.Fatalf("failed to encode test JPEG: %v", err)
	}

	img, err := Decode("plain.jpg", buf.Bytes())
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if img.Bounds().Dx() != 80 || img.Bounds().Dy() != 60 {
		t.Errorf("decoded dimensions = %dx%d, want 80x60", img.Bounds().Dx(), img.Bounds().Dy())
	}
}
