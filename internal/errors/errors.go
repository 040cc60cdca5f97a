package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

/**
 * Custom error types for the table scan worker
 *
 * Every failure that ends a job, or drops an image from a job, is reported
 * as a ProcessingError so it can be stored with the job record.
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Processing errors
	ErrorProcessingTimeout ErrorCode = "PROCESSING_TIMEOUT"
	ErrorOCRFailed         ErrorCode = "OCR_FAILED"
	ErrorNoAttachments     ErrorCode = "NO_ATTACHMENTS"
	ErrorInvalidRequest    ErrorCode = "INVALID_REQUEST"

	// Storage and output errors
	ErrorStorageFailed ErrorCode = "STORAGE_FAILED"
	ErrorSinkFailed    ErrorCode = "SINK_FAILED"

	// Network errors
	ErrorFetchFailed   ErrorCode = "FETCH_FAILED"
	ErrorHistoryFailed ErrorCode = "HISTORY_FAILED"
)

// ErrNoAttachments is the cause of every NO_ATTACHMENTS error.
var ErrNoAttachments = stderrors.New("nothing to process: no image attachments found")

// ProcessingError represents a structured processing error
type ProcessingError struct {
	Code      ErrorCode
	Message   string
	JobID     string
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

func NewProcessingTimeoutError(jobID string, duration time.Duration, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorProcessingTimeout,
		Message:   fmt.Sprintf("Processing timed out after %v", duration),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"timeout_duration": duration.String(),
		},
		Cause: cause,
	}
}

func NewOCRFailedError(jobID string, engine string, source string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorOCRFailed,
		Message:   fmt.Sprintf("Text recognition failed with engine: %s", engine),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"ocr_engine": engine,
			"source":     source,
		},
		Cause: cause,
	}
}

func NewFetchFailedError(jobID string, url string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorFetchFailed,
		Message:   "Failed to download attachment",
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"source": url,
		},
		Cause: cause,
	}
}

func NewHistoryFailedError(jobID string, channelID string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorHistoryFailed,
		Message:   "Failed to collect message history",
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"channel_id": channelID,
		},
		Cause: cause,
	}
}

func NewNoAttachmentsError(jobID string, messages int) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorNoAttachments,
		Message:   fmt.Sprintf("No image attachments in %d message(s)", messages),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"messages": messages,
		},
		Cause: ErrNoAttachments,
	}
}

func NewInvalidRequestError(jobID string, reason string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorInvalidRequest,
		Message:   reason,
		JobID:     jobID,
		Timestamp: time.Now(),
	}
}

func NewSinkFailedError(jobID string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorSinkFailed,
		Message:   "Failed to write table export",
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewStorageFailedError(jobID string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorStorageFailed,
		Message:   "Failed to store export results",
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// CodeOf returns the code of the first ProcessingError in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	var pe *ProcessingError
	if stderrors.As(err, &pe) {
		return pe.Code, true
	}
	return "", false
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

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
