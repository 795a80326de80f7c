/**
 * Size-Constrained Re-encoder.
 *
 * Walks a descending JPEG quality ladder until the encoded page fits the byte
 * ceiling or the quality floor is reached. Each step re-encodes the original
 * enhanced raster, never the previous lossy output, so artifacts do not
 * compound.
 */

package pipeline

import (
	"bytes"
	"image"

	"github.com/disintegration/imaging"

	werrors "github.com/freightflow/docintake-worker/internal/errors"
)

// EncodePage compresses the enhanced raster into the preset's byte envelope.
//
// The floor is a soft constraint: when even the floor quality overshoots the
// ceiling, the oversize buffer is returned as is. Given identical input and
// preset, the output is byte-identical across calls.
func EncodePage(source string, img image.Image, preset Preset) (*EncodedPage, error) {
	bounds := img.Bounds()

	quality := preset.StartQuality
	data, err := encodeJPEG(img, quality)
	if err != nil {
		return nil, werrors.NewConversionError(source, "encode", err)
	}

	for len(data) > preset.TargetBytes && quality > preset.MinQuality {
		quality -= preset.QualityStep
		if quality < preset.MinQuality {
			quality = preset.MinQuality
		}
		data, err = encodeJPEG(img, quality)
		if err != nil {
			return nil, werrors.NewConversionError(source, "encode", err)
		}
	}

	return &EncodedPage{
		Data:    data,
		Quality: quality,
		Width:   bounds.Dx(),
		Height:  bounds.Dy(),
	}, nil
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
