/**
 * Orientation & Geometry Normalizer.
 *
 * Decodes raw upload bytes, applies the EXIF orientation tag so the raster is
 * upright, and downscales to the preset's long-edge cap with Lanczos
 * resampling. Never upscales.
 */

package pipeline

import (
	"bytes"
	"errors"
	"image"

	"github.com/disintegration/imaging"

	werrors "github.com/freightflow/docintake-worker/internal/errors"
)

var errEmptyInput = errors.New("empty image bytes")

// Decode interprets raw bytes as an image and returns the upright raster.
//
// A malformed or absent orientation tag is not an error; the image is used as
// decoded. There is deliberately no decoded-pixel-count ceiling: very large
// camera captures must decode, and callers that need a bound enforce it on
// the raw upload size before invoking the pipeline.
func Decode(source string, raw []byte) (image.Image, error) {
	if len(raw) == 0 {
		return nil, werrors.NewDecodeError(source, errEmptyInput)
	}

	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, werrors.NewDecodeError(source, err)
	}

	return img, nil
}

// BoundDimensions downscales img so its longer edge does not exceed maxDim,
// preserving aspect ratio. Images already within the cap pass through
// untouched.
func BoundDimensions(img image.Image, maxDim int) image.Image {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	if width <= maxDim && height <= maxDim {
		return img
	}

	if width >= height {
		return imaging.Resize(img, maxDim, 0, imaging.Lanczos)
	}
	return imaging.Resize(img, 0, maxDim, imaging.Lanczos)
}
