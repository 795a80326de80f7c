/**
 * OCR Text-Layer Injector.
 *
 * Runs ocrmypdf as an isolated subprocess against the synthesized PDF with
 * forced full-page recognition, so a crash or hang inside the OCR engine can
 * never take the worker down with it. Strictly best-effort: every failure
 * mode falls back to the pre-OCR document.
 */

package pipeline

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/freightflow/docintake-worker/internal/logging"
)

// OCRInjector invokes the external OCR engine via temp-file handoff.
type OCRInjector struct {
	Binary        string        // ocrmypdf executable
	Language      string        // recognition language model
	Jobs          int           // engine worker threads
	EngineTimeout int           // seconds, passed to --tesseract-timeout
	Timeout       time.Duration // hard wall clock for the whole subprocess
	TempDir       string

	log *logging.Logger
}

// NewOCRInjector builds an injector with the given tuning; zero values fall
// back to the documented defaults.
func NewOCRInjector(binary, language, tempDir string, jobs, engineTimeoutSec int, timeout time.Duration, log *logging.Logger) *OCRInjector {
	if binary == "" {
		binary = "ocrmypdf"
	}
	if language == "" {
		language = "eng"
	}
	if jobs <= 0 {
		jobs = 2
	}
	if engineTimeoutSec <= 0 {
		engineTimeoutSec = 120
	}
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	if log == nil {
		log = logging.NewLogger("ocr")
	}

	return &OCRInjector{
		Binary:        binary,
		Language:      language,
		Jobs:          jobs,
		EngineTimeout: engineTimeoutSec,
		Timeout:       timeout,
		TempDir:       tempDir,
		log:           log,
	}
}

// Apply returns the OCR engine's rewritten document (image layer preserved,
// invisible text layer added) on success, or pdfBytes unchanged on any
// failure. It never returns an error to the caller.
func (o *OCRInjector) Apply(ctx context.Context, source string, pdfBytes []byte) ([]byte, bool) {
	in, err := os.CreateTemp(o.TempDir, "intake-*.pdf")
	if err != nil {
		o.log.Warn("OCR skipped: cannot create temp input", "source", source, "error", err)
		return pdfBytes, false
	}
	inPath := in.Name()
	outPath := strings.TrimSuffix(inPath, ".pdf") + "_ocr.pdf"

	// Both temp files are removed on every exit path, success or failure.
	defer os.Remove(inPath)
	defer os.Remove(outPath)

	if _, err := in.Write(pdfBytes); err != nil {
		in.Close()
		o.log.Warn("OCR skipped: cannot write temp input", "source", source, "error", err)
		return pdfBytes, false
	}
	if err := in.Close(); err != nil {
		o.log.Warn("OCR skipped: cannot close temp input", "source", source, "error", err)
		return pdfBytes, false
	}

	runCtx, cancel := context.WithTimeout(ctx, o.Timeout)
	defer cancel()

	// --force-ocr recognizes every page regardless of any pre-existing text
	// layer; OEM 1 selects the LSTM engine, PSM 3 fully automatic page
	// segmentation.
	args := []string{
		"--language", o.Language,
		"--force-ocr",
		"--rotate-pages",
		"--deskew",
		"--clean",
		"--optimize", "0",
		"--jobs", strconv.Itoa(o.Jobs),
		"--tesseract-timeout", strconv.Itoa(o.EngineTimeout),
		"--tesseract-config", "--oem 1 --psm 3 -c preserve_interword_spaces=1",
		inPath,
		outPath,
	}

	cmd := exec.CommandContext(runCtx, o.Binary, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()

	if runCtx.Err() == context.DeadlineExceeded {
		o.log.Warn("OCR timed out, using image-only document",
			"source", source, "timeout", o.Timeout)
		return pdfBytes, false
	}

	if runErr != nil {
		o.log.Warn("OCR failed, using image-only document",
			"source", source, "error", runErr, "stderr", truncate(stderr.String(), 500))
		return pdfBytes, false
	}

	outBytes, err := os.ReadFile(outPath)
	if err != nil || len(outBytes) == 0 {
		o.log.Warn("OCR produced no output, using image-only document",
			"source", source, "error", err)
		return pdfBytes, false
	}

	o.log.Info("OCR text layer added",
		"source", source, "size", len(outBytes), "duration", time.Since(start).Round(time.Millisecond))
	return outBytes, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s... (%d more bytes)", s[:n], len(s)-n)
}
