package pipeline

// Preset bundles the numeric tuning of one pipeline profile. The two shipped
// profiles serve different call sites: Capture for phone-camera uploads,
// Scanner for flatbed/batch scans that need a gentler touch.
type Preset struct {
	Name string

	// Geometry
	MaxDimension int // long-edge cap in pixels; never upscales

	// Photometric enhancement
	ContrastCutoff   float64 // histogram clip percentage per tail
	UnsharpSigma     float64 // gaussian sigma of the unsharp mask
	UnsharpPercent   int     // edge amplification strength
	UnsharpThreshold int     // minimum luminance delta to sharpen
	ContrastFactor   float64 // global multiplier about the midpoint

	// Size-constrained re-encoding
	TargetBytes  int
	StartQuality int
	MinQuality   int
	QualityStep  int
}

const targetSizeBytes = 300 * 1024

// CapturePreset is the primary profile for camera captures: aggressive
// sharpening and contrast so OCR copes with capture blur and uneven light.
func CapturePreset() Preset {
	return Preset{
		Name:             "capture",
		MaxDimension:     1400,
		ContrastCutoff:   2,
		UnsharpSigma:     1.5,
		UnsharpPercent:   150,
		UnsharpThreshold: 2,
		ContrastFactor:   1.8,
		TargetBytes:      targetSizeBytes,
		StartQuality:     90,
		MinQuality:       50,
		QualityStep:      5,
	}
}

// ScannerPreset is the secondary profile for already-clean scans: a larger
// dimension cap and milder enhancement, since scanner output needs less
// correction than a handheld capture.
func ScannerPreset() Preset {
	return Preset{
		Name:             "scanner",
		MaxDimension:     1600,
		ContrastCutoff:   1,
		UnsharpSigma:     1.0,
		UnsharpPercent:   80,
		UnsharpThreshold: 2,
		ContrastFactor:   1.2,
		TargetBytes:      targetSizeBytes,
		StartQuality:     90,
		MinQuality:       50,
		QualityStep:      5,
	}
}

// PresetByName resolves a profile name from a job payload; unknown names fall
// back to the capture profile.
func PresetByName(name string) Preset {
	if name == "scanner" {
		return ScannerPreset()
	}
	return CapturePreset()
}
