/**
 * PostgreSQL client for the document intake worker.
 *
 * Resolves client / document-format names for artifact naming and persists
 * one outcome row per processed asset, plus coarse per-job status for the
 * queue layer.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresClient handles database operations
type PostgresClient struct {
	db *sql.DB
}

// Client is a row from the clients table.
type Client struct {
	ID   int
	Name string
}

// DocFormat is a row from the doc_formats table.
type DocFormat struct {
	ID       int
	ClientID int
	DocType  string
	Name     string
	FileType string
}

// OutcomeRecord is the per-asset intake outcome persisted for review.
type OutcomeRecord struct {
	ID           string
	JobID        string
	ClientID     int
	DocFormatID  int
	SourceName   string
	ArtifactName string
	ContentType  string
	SizeBytes    int
	JPEGQuality  int
	OCRApplied   bool
	Confidence   float64
	DeliveredVia string
	ErrorMessage string
	UploadedBy   string
	UploadedOn   time.Time
}

// JobUpdate represents a job status update
type JobUpdate struct {
	JobID          string
	Status         string
	AssetsTotal    int
	AssetsFailed   int
	ProcessingTime time.Duration
	ErrorMessage   string
	Metadata       map[string]interface{}
}

// NewPostgresClient creates a new PostgreSQL client
func NewPostgresClient(databaseURL string) (*PostgresClient, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{db: db}, nil
}

// GetClient loads a client by ID.
func (p *PostgresClient) GetClient(ctx context.Context, clientID int) (*Client, error) {
	var c Client
	err := p.db.QueryRowContext(ctx,
		`SELECT client_id, client_name FROM clients WHERE client_id = $1`,
		clientID,
	).Scan(&c.ID, &c.Name)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("client not found: %d", clientID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load client %d: %w", clientID, err)
	}

	return &c, nil
}

// GetDocFormat loads a document format by ID.
func (p *PostgresClient) GetDocFormat(ctx context.Context, docFormatID int) (*DocFormat, error) {
	var f DocFormat
	err := p.db.QueryRowContext(ctx,
		`SELECT doc_format_id, client_id, doc_type, doc_format_name, file_type
		 FROM doc_formats WHERE doc_format_id = $1`,
		docFormatID,
	).Scan(&f.ID, &f.ClientID, &f.DocType, &f.Name, &f.FileType)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("doc format not found: %d", docFormatID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load doc format %d: %w", docFormatID, err)
	}

	return &f, nil
}

// RecordOutcome upserts one per-asset outcome row.
func (p *PostgresClient) RecordOutcome(ctx context.Context, rec *OutcomeRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("outcome ID is required")
	}
	if rec.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	query := `
		INSERT INTO document_intake (
			id, job_id, client_id, doc_format_id,
			source_name, artifact_name, content_type,
			size_bytes, jpeg_quality, ocr_applied, text_confidence,
			delivered_via, error_message, uploaded_by, uploaded_on,
			created_at, updated_at
		) VALUES (
			$1::uuid, $2::uuid, $3, $4,
			$5, NULLIF($6, ''), NULLIF($7, ''),
			NULLIF($8, 0), NULLIF($9, 0), $10, NULLIF($11::NUMERIC(5,4), 0),
			NULLIF($12, ''), NULLIF($13, ''), COALESCE(NULLIF($14, ''), 'SYSTEM'), $15,
			NOW(), NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			artifact_name = COALESCE(EXCLUDED.artifact_name, document_intake.artifact_name),
			content_type = COALESCE(EXCLUDED.content_type, document_intake.content_type),
			size_bytes = COALESCE(EXCLUDED.size_bytes, document_intake.size_bytes),
			jpeg_quality = COALESCE(EXCLUDED.jpeg_quality, document_intake.jpeg_quality),
			ocr_applied = EXCLUDED.ocr_applied,
			text_confidence = COALESCE(EXCLUDED.text_confidence, document_intake.text_confidence),
			delivered_via = COALESCE(EXCLUDED.delivered_via, document_intake.delivered_via),
			error_message = EXCLUDED.error_message,
			updated_at = NOW()
	`

	_, err := p.db.ExecContext(ctx, query,
		rec.ID,
		rec.JobID,
		rec.ClientID,
		rec.DocFormatID,
		rec.SourceName,
		rec.ArtifactName,
		rec.ContentType,
		rec.SizeBytes,
		rec.JPEGQuality,
		rec.OCRApplied,
		sanitizeConfidence(rec.Confidence),
		rec.DeliveredVia,
		rec.ErrorMessage,
		rec.UploadedBy,
		rec.UploadedOn,
	)
	if err != nil {
		return fmt.Errorf("failed to record outcome (job=%s, source=%s): %w",
			rec.JobID, rec.SourceName, err)
	}

	return nil
}

// UpdateJobStatus upserts the coarse per-job state consumed by dashboards
// and the queue retry logic.
func (p *PostgresClient) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	if update.JobID == "" {
		return fmt.Errorf("job ID is required")
	}
	if update.Status == "" {
		return fmt.Errorf("status is required")
	}

	metadataJSON, err := json.Marshal(update.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO intake_jobs (
			id, status, assets_total, assets_failed,
			processing_time_ms, error_message, metadata,
			created_at, updated_at
		) VALUES (
			$1::uuid, $2, NULLIF($3, 0), $4,
			NULLIF($5, 0), NULLIF($6, ''), COALESCE($7::jsonb, '{}'::jsonb),
			NOW(), NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			assets_total = COALESCE(EXCLUDED.assets_total, intake_jobs.assets_total),
			assets_failed = EXCLUDED.assets_failed,
			processing_time_ms = COALESCE(EXCLUDED.processing_time_ms, intake_jobs.processing_time_ms),
			error_message = NULLIF(EXCLUDED.error_message, ''),
			metadata = COALESCE(EXCLUDED.metadata, intake_jobs.metadata),
			updated_at = NOW()
	`

	_, err = p.db.ExecContext(ctx, query,
		update.JobID,
		update.Status,
		update.AssetsTotal,
		update.AssetsFailed,
		update.ProcessingTime.Milliseconds(),
		update.ErrorMessage,
		metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to update job status (job=%s, status=%s): %w",
			update.JobID, update.Status, err)
	}

	return nil
}

// Ping verifies database connectivity
func (p *PostgresClient) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection
func (p *PostgresClient) Close() error {
	return p.db.Close()
}

// sanitizeConfidence rounds confidence to 4 decimal places and clamps to
// [0, 1] so NUMERIC(5,4) columns never see out-of-range precision.
func sanitizeConfidence(confidence float64) float64 {
	if confidence < 0.0 {
		return 0.0
	}
	if confidence > 1.0 {
		return 1.0
	}
	return float64(int(confidence*10000+0.5)) / 10000
}
