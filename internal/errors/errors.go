package errors

import (
	"fmt"
	"time"
)

/**
 * Error taxonomy for the identity extraction worker
 *
 * The extraction core never fails: backend outages, unparseable or
 * implausible dates and missing fields degrade to empty output and are
 * reported as issues in the explanation. Only the outer layers (image
 * decoding, storage, queue timeouts) return these as Go errors.
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Extraction core (reported, never returned)
	ErrorBackendUnavailable ErrorCode = "BACKEND_UNAVAILABLE"
	ErrorUnparseableDate    ErrorCode = "UNPARSEABLE_DATE"
	ErrorImplausibleDate    ErrorCode = "IMPLAUSIBLE_DATE"
	ErrorNoFieldFound       ErrorCode = "NO_FIELD_FOUND"

	// Outer layers
	ErrorImageDecodeFailed ErrorCode = "IMAGE_DECODE_FAILED"
	ErrorStorageFailed     ErrorCode = "STORAGE_FAILED"
	ErrorProcessingTimeout ErrorCode = "PROCESSING_TIMEOUT"
)

// ExtractionError represents a structured extraction error
type ExtractionError struct {
	Code      ErrorCode
	Message   string
	JobID     string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *ExtractionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ExtractionError) Unwrap() error {
	return e.Cause
}

// Factory functions for common errors

func NewBackendUnavailableError(backend string, region string, cause error) *ExtractionError {
	return &ExtractionError{
		Code:      ErrorBackendUnavailable,
		Message:   fmt.Sprintf("OCR backend %s produced no output", backend),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"backend": backend,
			"region":  region,
		},
		Cause: cause,
	}
}

func NewImplausibleDateError(date string, age int) *ExtractionError {
	return &ExtractionError{
		Code:      ErrorImplausibleDate,
		Message:   fmt.Sprintf("top ranked date %s implies age %d", date, age),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"date": date,
			"age":  age,
		},
	}
}

func NewNoFieldFoundError(field string) *ExtractionError {
	return &ExtractionError{
		Code:      ErrorNoFieldFound,
		Message:   fmt.Sprintf("no value found for %s", field),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"field": field,
		},
	}
}

func NewImageDecodeError(jobID string, cause error) *ExtractionError {
	return &ExtractionError{
		Code:      ErrorImageDecodeFailed,
		Message:   "Failed to decode document image",
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewStorageFailedError(jobID string, cause error) *ExtractionError {
	return &ExtractionError{
		Code:      ErrorStorageFailed,
		Message:   "Failed to store extracted record",
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewProcessingTimeoutError(jobID string, duration time.Duration, cause error) *ExtractionError {
	return &ExtractionError{
		Code:      ErrorProcessingTimeout,
		Message:   fmt.Sprintf("Extraction timed out after %v", duration),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"timeout_duration": duration.String(),
		},
		Cause: cause,
	}
}

// ToMap converts error to map for job status storage
func (e *ExtractionError) ToMap() map[string]interface{} {
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

// CodeOf returns the code of an *ExtractionError anywhere in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	for err != nil {
		if ee, ok := err.(*ExtractionError); ok {
			return ee.Code, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return "", false
		}
		err = u.Unwrap()
	}
	return "", false
}
