/**
 * Queue job format shared by the list queue, the asynq queue and the
 * producers that feed them.
 */

package queue

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	ierrors "github.com/adverant/nexus/idextract-worker/internal/errors"
	"github.com/adverant/nexus/idextract-worker/internal/processor"
)

// TaskTypeExtractIdentity is the task type for one identity document upload.
const TaskTypeExtractIdentity = "extract-identity"

const (
	defaultProcessingTimeout = 5 * time.Minute
	defaultMaxRetries        = 3
)

// RedisJobData represents a job on the Redis list queue
type RedisJobData struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	Payload    JobPayload `json:"payload"`
	CreatedAt  time.Time  `json:"createdAt"`
	Attempts   int        `json:"attempts"`
	MaxRetries int        `json:"maxRetries"`
}

// JobPayload contains the actual job data
type JobPayload struct {
	JobID      string                 `json:"jobId"`
	UserID     string                 `json:"userId,omitempty"`
	Filename   string                 `json:"filename"`
	MimeType   string                 `json:"mimeType,omitempty"`
	FileSize   int64                  `json:"fileSize,omitempty"`
	FileURL    string                 `json:"fileUrl,omitempty"`
	FileBuffer []byte                 `json:"fileBuffer,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// UnmarshalJSON accepts fileBuffer either as a base64 string or as a
// Node.js Buffer object ({"type":"Buffer","data":[...]}).
func (p *JobPayload) UnmarshalJSON(data []byte) error {
	type Alias JobPayload
	aux := &struct {
		FileBuffer interface{} `json:"fileBuffer,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(p),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("failed to unmarshal JobPayload: %w", err)
	}

	if aux.FileBuffer == nil {
		return nil
	}

	switch v := aux.FileBuffer.(type) {
	case string:
		decoded, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return fmt.Errorf("failed to decode base64 fileBuffer: %w", err)
		}
		p.FileBuffer = decoded

	case map[string]interface{}:
		bufferType, ok := v["type"].(string)
		if !ok || bufferType != "Buffer" {
			return fmt.Errorf("invalid Buffer object format (missing or incorrect 'type' field)")
		}
		dataArray, ok := v["data"].([]interface{})
		if !ok {
			return fmt.Errorf("Buffer object missing 'data' array")
		}
		p.FileBuffer = make([]byte, len(dataArray))
		for i, val := range dataArray {
			byteVal, ok := val.(float64)
			if !ok || byteVal < 0 || byteVal > 255 {
				return fmt.Errorf("invalid byte value in Buffer data array at index %d", i)
			}
			p.FileBuffer[i] = byte(byteVal)
		}

	default:
		return fmt.Errorf("fileBuffer must be either base64 string or Buffer object, got %T", v)
	}

	return nil
}

func (p *JobPayload) request() *processor.ProcessRequest {
	return &processor.ProcessRequest{
		JobID:      p.JobID,
		UserID:     p.UserID,
		Filename:   p.Filename,
		MimeType:   p.MimeType,
		FileSize:   p.FileSize,
		FileURL:    p.FileURL,
		FileBuffer: p.FileBuffer,
		Metadata:   p.Metadata,
	}
}

// jobMetadata is what the job row records about the upload itself.
func (p *JobPayload) jobMetadata() map[string]interface{} {
	meta := map[string]interface{}{
		"filename": p.Filename,
		"mimeType": p.MimeType,
		"fileSize": p.FileSize,
	}
	if p.UserID != "" {
		meta["userId"] = p.UserID
	}
	return meta
}

// runJob processes one payload under the processing timeout.
func runJob(ctx context.Context, proc processor.DocumentProcessorInterface, p *JobPayload, timeout time.Duration) (*processor.ProcessResult, error) {
	if timeout <= 0 {
		timeout = defaultProcessingTimeout
	}

	processCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := proc.ProcessDocument(processCtx, p.request())
	if err != nil {
		if processCtx.Err() == context.DeadlineExceeded {
			return nil, ierrors.NewProcessingTimeoutError(p.JobID, timeout, err)
		}
		return nil, err
	}
	return result, nil
}

// retryable reports whether another attempt could succeed. A document
// that does not decode never will.
func retryable(err error) bool {
	code, ok := ierrors.CodeOf(err)
	return !ok || code != ierrors.ErrorImageDecodeFailed
}

func completedMetadata(result *processor.ProcessResult) map[string]interface{} {
	meta := map[string]interface{}{
		"recordId":       result.RecordID,
		"processingTime": result.ProcessingTimeMs,
	}
	if rec := result.Record; rec != nil {
		meta["dobFound"] = rec.DOB != ""
		if rec.ConfidenceMeta != nil {
			meta["nameRule"] = rec.ConfidenceMeta.NameRule
			meta["fatherRule"] = rec.ConfidenceMeta.FatherRule
			meta["dobSource"] = string(rec.ConfidenceMeta.DOBSource)
		}
	}
	return meta
}

func failedMetadata(err error, attempts int, elapsed time.Duration) map[string]interface{} {
	meta := map[string]interface{}{}
	var ee *ierrors.ExtractionError
	if errors.As(err, &ee) {
		for k, v := range ee.ToMap() {
			meta[k] = v
		}
	}
	meta["error"] = err.Error()
	meta["attempts"] = attempts
	meta["processingTime"] = elapsed.Milliseconds()
	return meta
}
