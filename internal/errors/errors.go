package errors

import (
	"fmt"
	"time"
)

/**
 * Custom error types for the document intake worker.
 *
 * Domain failures (decode/conversion) are recorded per asset and never abort a
 * batch; delivery, storage and timeout errors are infrastructure-level and
 * propagate to the queue layer.
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Per-asset domain errors
	ErrorDecodeFailed     ErrorCode = "DECODE_FAILED"
	ErrorConversionFailed ErrorCode = "CONVERSION_FAILED"

	// OCR is best-effort: this code only ever appears in warnings and
	// outcome metadata, never as a returned error.
	ErrorOCRFailed ErrorCode = "OCR_FAILED"

	// Infrastructure errors
	ErrorProcessingTimeout ErrorCode = "PROCESSING_TIMEOUT"
	ErrorStorageFailed     ErrorCode = "STORAGE_FAILED"
	ErrorDeliveryFailed    ErrorCode = "DELIVERY_FAILED"
)

// ProcessingError represents a structured processing error
type ProcessingError struct {
	Code      ErrorCode
	Message   string
	JobID     string
	Source    string // original filename of the asset, if asset-scoped
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// Factory functions for common errors

func NewDecodeError(source string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorDecodeFailed,
		Message:   fmt.Sprintf("cannot decode %q as an image", source),
		Source:    source,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewConversionError(source, stage string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorConversionFailed,
		Message:   fmt.Sprintf("conversion failed at stage %q for %q", stage, source),
		Source:    source,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"stage": stage,
		},
		Cause: cause,
	}
}

func NewProcessingTimeoutError(jobID string, duration time.Duration, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorProcessingTimeout,
		Message:   fmt.Sprintf("processing timed out after %v", duration),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"timeout_duration": duration.String(),
		},
		Cause: cause,
	}
}

func NewStorageFailedError(jobID string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorStorageFailed,
		Message:   "failed to store intake results",
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewDeliveryFailedError(jobID, artifactName string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorDeliveryFailed,
		Message:   fmt.Sprintf("failed to deliver artifact %q", artifactName),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"artifact_name": artifactName,
		},
		Cause: cause,
	}
}

// ToMap converts error to map for database storage
func (e *ProcessingError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Source != "" {
		result["source"] = e.Source
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
