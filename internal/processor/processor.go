/**
 * Batch processor for the document intake worker.
 *
 * Orchestrates one intake batch end to end: client / doc-format resolution,
 * the single-page normalization pipeline per asset, artifact delivery to the
 * ingestion endpoints, and outcome persistence.
 *
 * Error policy: domain failures (undecodable image, conversion error) become
 * data on the asset's outcome and never abort the batch. Failures of the
 * surrounding infrastructure (database lookups, whole-batch timeout)
 * propagate to the queue layer.
 */

package processor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/freightflow/docintake-worker/internal/clients"
	"github.com/freightflow/docintake-worker/internal/config"
	"github.com/freightflow/docintake-worker/internal/logging"
	"github.com/freightflow/docintake-worker/internal/pipeline"
	"github.com/freightflow/docintake-worker/internal/storage"
)

// BatchProcessorInterface defines the surface the queue consumers depend on.
type BatchProcessorInterface interface {
	ProcessBatch(ctx context.Context, req *BatchRequest) (*BatchResult, error)
	UpdateJobStatus(ctx context.Context, jobID, status string, metadata map[string]interface{}) error
}

// BatchRequest is one intake job: an ordered list of uploaded assets plus the
// client / document-format context they belong to.
type BatchRequest struct {
	JobID       string
	ClientID    int
	DocFormatID int
	UploadedBy  string
	Preset      string // pipeline profile name; empty selects "capture"
	Assets      []pipeline.RawAsset
}

// AssetResult is the caller-facing outcome for one asset.
type AssetResult struct {
	Source       string  `json:"source"`
	ArtifactName string  `json:"final_name,omitempty"`
	ContentType  string  `json:"content_type,omitempty"`
	DeliveredVia string  `json:"delivered_via,omitempty"`
	OCRApplied   bool    `json:"ocr_applied"`
	Confidence   float64 `json:"text_confidence,omitempty"`
	Error        string  `json:"error,omitempty"`
}

// BatchResult summarizes a processed batch.
type BatchResult struct {
	JobID     string        `json:"job_id"`
	Results   []AssetResult `json:"results"`
	Delivered int           `json:"delivered"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"-"`
}

// ProcessorConfig holds the collaborators a BatchProcessor needs.
type ProcessorConfig struct {
	Config   *config.Config
	Storage  *storage.PostgresClient
	Delivery *clients.DeliveryClient
	Probe    *TextProbe // optional; nil disables text probing
}

// BatchProcessor runs intake batches.
type BatchProcessor struct {
	cfg      *config.Config
	storage  *storage.PostgresClient
	delivery *clients.DeliveryClient
	probe    *TextProbe
	ocr      *pipeline.OCRInjector
	loc      *time.Location
	log      *logging.Logger
}

// NewBatchProcessor creates a batch processor.
func NewBatchProcessor(pc *ProcessorConfig) (*BatchProcessor, error) {
	if pc == nil || pc.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if pc.Storage == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if pc.Delivery == nil {
		return nil, fmt.Errorf("delivery client is required")
	}

	loc, err := time.LoadLocation(pc.Config.NameTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid NAME_TIMEZONE %q: %w", pc.Config.NameTimezone, err)
	}

	log := logging.NewLogger("processor")

	ocr := pipeline.NewOCRInjector(
		pc.Config.OCRBinary,
		pc.Config.OCRLanguage,
		pc.Config.TempDir,
		pc.Config.OCRJobs,
		pc.Config.OCREngineTimeout,
		time.Duration(pc.Config.OCRTimeout)*time.Second,
		logging.NewLogger("ocr"),
	)

	return &BatchProcessor{
		cfg:      pc.Config,
		storage:  pc.Storage,
		delivery: pc.Delivery,
		probe:    pc.Probe,
		ocr:      ocr,
		loc:      loc,
		log:      log,
	}, nil
}

// ProcessBatch runs one intake job and returns per-asset results in input
// order.
func (p *BatchProcessor) ProcessBatch(ctx context.Context, req *BatchRequest) (*BatchResult, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}
	if req.JobID == "" {
		return nil, fmt.Errorf("job ID is required")
	}
	if len(req.Assets) == 0 {
		return nil, fmt.Errorf("batch contains no assets")
	}

	log := p.log.WithJob(req.JobID)
	start := time.Now()

	// Resolve naming context; a bad client or format ID fails the whole
	// batch before any asset work starts.
	client, err := p.storage.GetClient(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}
	format, err := p.storage.GetDocFormat(ctx, req.DocFormatID)
	if err != nil {
		return nil, err
	}

	bc := pipeline.BatchContext{
		ClientName: normalizeName(client.Name),
		DocType:    normalizeName(format.DocType),
	}

	preset := pipeline.PresetByName(req.Preset)
	// Let deployments widen the capture cap without a rebuild.
	if preset.Name == "capture" && p.cfg.MaxImageDimension > 0 {
		preset.MaxDimension = p.cfg.MaxImageDimension
	}
	p.applyEncodingOverrides(&preset)

	pl := pipeline.New(preset, p.ocr, p.loc, logging.NewLogger("pipeline"))

	log.Info("processing batch",
		"client", bc.ClientName, "doc_type", bc.DocType,
		"preset", preset.Name, "assets", len(req.Assets))

	outcomes := pl.Process(ctx, bc, req.Assets)

	result := &BatchResult{JobID: req.JobID, Results: make([]AssetResult, 0, len(outcomes))}
	for i := range outcomes {
		result.Results = append(result.Results, p.finishAsset(ctx, log, req, &outcomes[i]))
	}

	for _, r := range result.Results {
		if r.Error != "" {
			result.Failed++
		} else {
			result.Delivered++
		}
	}
	result.Duration = time.Since(start)

	log.Info("batch complete",
		"delivered", result.Delivered, "failed", result.Failed,
		"duration", result.Duration.Round(time.Millisecond))

	return result, nil
}

// finishAsset probes, delivers and records one pipeline outcome. Delivery
// failures are per-asset data, matching the per-file result shape of the
// upload flow; only the batch-level infrastructure propagates errors.
func (p *BatchProcessor) finishAsset(ctx context.Context, log *logging.Logger, req *BatchRequest, out *pipeline.Outcome) AssetResult {
	res := AssetResult{
		Source:       out.Source,
		ArtifactName: out.ArtifactName,
		ContentType:  out.ContentType,
		OCRApplied:   out.OCRApplied,
		Error:        out.Err,
	}

	if out.Succeeded() && p.probe != nil && len(out.PageImage) > 0 {
		probe, err := p.probe.Probe(ctx, out.PageImage)
		if err != nil {
			log.Warn("text probe failed", "source", out.Source, "error", err)
		} else {
			res.Confidence = probe.Confidence
			log.Debug("text probe",
				"source", out.Source, "confidence", probe.Confidence,
				"chars", len(probe.Text), "duration", probe.Duration.Round(time.Millisecond))
		}
	}

	if out.Succeeded() {
		delivered, err := p.delivery.Deliver(ctx, &clients.Delivery{
			ArtifactName: out.ArtifactName,
			ContentType:  out.ContentType,
			Data:         out.Data,
			UploadedOn:   time.Now().In(p.loc),
		})
		if err != nil {
			log.Warn("delivery failed", "source", out.Source, "artifact", out.ArtifactName, "error", err)
			res.Error = fmt.Sprintf("delivery failed: %v", err)
		} else {
			res.DeliveredVia = delivered.Via
		}
	}

	// Outcome rows are bookkeeping for the review dashboard; a write
	// failure is logged but does not fail an already-delivered asset.
	rec := &storage.OutcomeRecord{
		ID:           uuid.NewString(),
		JobID:        req.JobID,
		ClientID:     req.ClientID,
		DocFormatID:  req.DocFormatID,
		SourceName:   out.Source,
		ArtifactName: out.ArtifactName,
		ContentType:  out.ContentType,
		SizeBytes:    out.SizeBytes,
		JPEGQuality:  out.Quality,
		OCRApplied:   out.OCRApplied,
		Confidence:   res.Confidence,
		DeliveredVia: res.DeliveredVia,
		ErrorMessage: res.Error,
		UploadedBy:   req.UploadedBy,
		UploadedOn:   time.Now().In(p.loc),
	}
	if err := p.storage.RecordOutcome(ctx, rec); err != nil {
		log.Warn("failed to record outcome", "source", out.Source, "error", err)
	}

	return res
}

// UpdateJobStatus persists coarse job state for the queue layer.
func (p *BatchProcessor) UpdateJobStatus(ctx context.Context, jobID, status string, metadata map[string]interface{}) error {
	update := &storage.JobUpdate{
		JobID:    jobID,
		Status:   status,
		Metadata: metadata,
	}

	if metadata != nil {
		if total, ok := metadata["assetsTotal"].(int); ok {
			update.AssetsTotal = total
		}
		if failed, ok := metadata["assetsFailed"].(int); ok {
			update.AssetsFailed = failed
		}
		if d, ok := metadata["processingTime"].(time.Duration); ok {
			update.ProcessingTime = d
		}
		if errMsg, ok := metadata["error"].(string); ok {
			update.ErrorMessage = errMsg
		}
	}

	return p.storage.UpdateJobStatus(ctx, update)
}

// applyEncodingOverrides folds environment-supplied re-encoding tuning into
// the preset, keeping both profiles on one configuration surface.
func (p *BatchProcessor) applyEncodingOverrides(preset *pipeline.Preset) {
	if p.cfg.TargetSizeKB > 0 {
		preset.TargetBytes = p.cfg.TargetSizeKB * 1024
	}
	if p.cfg.JPEGQualityStart > 0 {
		preset.StartQuality = p.cfg.JPEGQualityStart
	}
	if p.cfg.JPEGQualityMin > 0 {
		preset.MinQuality = p.cfg.JPEGQualityMin
	}
	if p.cfg.JPEGQualityStep > 0 {
		preset.QualityStep = p.cfg.JPEGQualityStep
	}
}

// normalizeName makes a DB name filename-safe the way the upload flow always
// has: trim and replace spaces with underscores.
func normalizeName(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), " ", "_")
}
