package pipeline

import (
	"image"
	"image/color"
	"testing"
)

func TestEnhanceChannelsReplicated(t *testing.T) {
	// Start from a colored raster; the output must be single-channel data
	// replicated across R, G and B.
	img := image.NewNRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 8), G: uint8(y * 8), B: 200, A: 255})
		}
	}

	out := Enhance(img, CapturePreset())

	for y := 0; y < 32; y++ {
		row := out.Pix[y*out.Stride:]
		for x := 0; x < 32; x++ {
			r, g, b := row[x*4], row[x*4+1], row[x*4+2]
			if r != g || g != b {
				t.Fatalf("pixel (%d,%d) channels differ: %d %d %d", x, y, r, g, b)
			}
		}
	}
}

func TestEnhanceStretchesTonalRange(t *testing.T) {
	// A washed-out raster confined to [100, 160] should span a wider range
	// after auto-contrast and the global contrast multiplier.
	img := image.NewNRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			v := uint8(100 + (x+y)%60)
			img.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}

	out := Enhance(img, CapturePreset())

	lo, hi := uint8(255), uint8(0)
	for y := 0; y < 64; y++ {
		row := out.Pix[y*out.Stride:]
		for x := 0; x < 64; x++ {
			v := row[x*4]
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
	}

	if hi-lo < 200 {
		t.Errorf("tonal range after enhancement = [%d, %d], want near-full spread", lo, hi)
	}
}

func TestEnhancePreservesDimensions(t *testing.T) {
	img := gradientImage(t, 120, 90)
	out := Enhance(img, ScannerPreset())

	if out.Bounds().Dx() != 120 || out.Bounds().Dy() != 90 {
		t.Errorf("enhanced dimensions = %dx%d, want 120x90",
			out.Bounds().Dx(), out.Bounds().Dy())
	}
}

func TestAutoContrastUniformImageUntouched(t *testing.T) {
	// A flat raster has no usable histogram tails; the stage must hand it
	// back rather than divide by a zero range.
	img := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 128, G: 128, B: 128, A: 255})
		}
	}

	out := autoContrast(img, 2)
	if out.Pix[0] != 128 {
		t.Errorf("uniform pixel rewritten to %d, want 128", out.Pix[0])
	}
}

func TestAdjustContrastIdentityFactor(t *testing.T) {
	img := gradientImage(t, 8, 8)
	out := adjustContrastAboutMidpoint(img, 1.0)
	if out != img {
		t.Error("factor 1.0 should return the input unchanged")
	}
}
