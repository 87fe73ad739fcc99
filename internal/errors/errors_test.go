package errors

import (
	"fmt"
	"testing"
	"time"
)

func TestExtractionErrorWrapping(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := NewStorageFailedError("job-1", cause)

	if err.Unwrap() != cause {
		t.Fatalf("Unwrap() did not return cause")
	}

	wrapped := fmt.Errorf("save record: %w", err)
	code, ok := CodeOf(wrapped)
	if !ok || code != ErrorStorageFailed {
		t.Errorf("CodeOf() = %q, %v; want %q, true", code, ok, ErrorStorageFailed)
	}

	if _, ok := CodeOf(cause); ok {
		t.Errorf("CodeOf() on plain error should report false")
	}
}

func TestToMap(t *testing.T) {
	err := NewProcessingTimeoutError("job-2", 2*time.Second, fmt.Errorf("deadline"))
	m := err.ToMap()

	if m["error_code"] != string(ErrorProcessingTimeout) {
		t.Errorf("error_code = %v", m["error_code"])
	}
	if m["timeout_duration"] != "2s" {
		t.Errorf("timeout_duration = %v", m["timeout_duration"])
	}
	if m["cause"] != "deadline" {
		t.Errorf("cause = %v", m["cause"])
	}
}

func TestErrorString(t *testing.T) {
	err := NewNoFieldFoundError("name")
	if got, want := err.Error(), "NO_FIELD_FOUND: no value found for name"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
