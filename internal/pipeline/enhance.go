/**
 * Photometric Enhancer.
 *
 * Fixed stage order, each stage assuming the previous one's output:
 * luminance -> histogram auto-contrast -> unsharp mask -> global contrast ->
 * 3-channel replicate. Enhanced grayscale was chosen over hard binarization:
 * it keeps recoverable detail for the OCR engine while still producing sharp
 * edges.
 */

package pipeline

import (
	"image"

	"github.com/disintegration/imaging"
)

// Enhance runs the full photometric chain for the given preset and returns a
// 3-channel raster ready for JPEG encoding. It cannot fail: any color mode is
// coerced to luminance by the first stage.
func Enhance(img image.Image, preset Preset) *image.NRGBA {
	gray := imaging.Grayscale(img)
	gray = autoContrast(gray, preset.ContrastCutoff)
	gray = unsharpMask(gray, preset.UnsharpSigma, preset.UnsharpPercent, preset.UnsharpThreshold)
	gray = adjustContrastAboutMidpoint(gray, preset.ContrastFactor)
	// Grayscale() already stores the single channel replicated across R, G
	// and B, which is exactly the 3-channel form the JPEG encoder needs.
	return gray
}

// autoContrast clips the given percentage of the luminance histogram at each
// tail and rescales the remainder to the full 0-255 range.
func autoContrast(img *image.NRGBA, cutoffPercent float64) *image.NRGBA {
	bounds := img.Bounds()
	total := bounds.Dx() * bounds.Dy()
	if total == 0 {
		return img
	}

	var hist [256]int
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		row := img.Pix[(y-bounds.Min.Y)*img.Stride:]
		for x := 0; x < bounds.Dx(); x++ {
			// Channels are equal after grayscale conversion, R suffices.
			hist[row[x*4]]++
		}
	}

	cut := int(float64(total) * cutoffPercent / 100.0)

	lo := 0
	for acc := 0; lo < 255; lo++ {
		acc += hist[lo]
		if acc > cut {
			break
		}
	}

	hi := 255
	for acc := 0; hi > 0; hi-- {
		acc += hist[hi]
		if acc > cut {
			break
		}
	}

	if hi <= lo {
		return img
	}

	var lut [256]uint8
	scale := 255.0 / float64(hi-lo)
	for i := range lut {
		switch {
		case i <= lo:
			lut[i] = 0
		case i >= hi:
			lut[i] = 255
		default:
			lut[i] = uint8(float64(i-lo)*scale + 0.5)
		}
	}

	return applyGrayLUT(img, &lut)
}

// unsharpMask amplifies local contrast at edges: the blurred raster is
// subtracted from the original and the difference, where it exceeds the
// threshold, is added back scaled by percent.
func unsharpMask(img *image.NRGBA, sigma float64, percent, threshold int) *image.NRGBA {
	if sigma <= 0 || percent <= 0 {
		return img
	}

	blurred := imaging.Blur(img, sigma)
	amount := float64(percent) / 100.0

	out := imaging.Clone(img)
	bounds := out.Bounds()
	for y := 0; y < bounds.Dy(); y++ {
		origRow := img.Pix[y*img.Stride:]
		blurRow := blurred.Pix[y*blurred.Stride:]
		outRow := out.Pix[y*out.Stride:]
		for x := 0; x < bounds.Dx(); x++ {
			o := int(origRow[x*4])
			b := int(blurRow[x*4])
			diff := o - b
			if diff < threshold && -diff < threshold {
				continue
			}
			v := clampByte(float64(o) + amount*float64(diff))
			outRow[x*4] = v
			outRow[x*4+1] = v
			outRow[x*4+2] = v
		}
	}

	return out
}

// adjustContrastAboutMidpoint applies v' = 128 + (v-128)*factor, clamped.
func adjustContrastAboutMidpoint(img *image.NRGBA, factor float64) *image.NRGBA {
	if factor == 1.0 {
		return img
	}

	var lut [256]uint8
	for i := range lut {
		lut[i] = clampByte(128.0 + (float64(i)-128.0)*factor)
	}

	return applyGrayLUT(img, &lut)
}

// applyGrayLUT maps every pixel of a grayscale NRGBA raster through the
// lookup table, writing the result to all three color channels.
func applyGrayLUT(img *image.NRGBA, lut *[256]uint8) *image.NRGBA {
	out := imaging.Clone(img)
	bounds := out.Bounds()
	for y := 0; y < bounds.Dy(); y++ {
		row := out.Pix[y*out.Stride:]
		for x := 0; x < bounds.Dx(); x++ {
			v := lut[row[x*4]]
			row[x*4] = v
			row[x*4+1] = v
			row[x*4+2] = v
		}
	}
	return out
}

func clampByte(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}
