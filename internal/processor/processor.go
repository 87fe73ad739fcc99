/**
 * Document Processor for the identity extraction worker
 *
 * Turns one queued upload into one stored identity record:
 * - Load the image from the job buffer or its URL
 * - Verify it is a supported image by magic bytes
 * - Run the extraction pipeline (regions, OCR fusion, field resolution)
 * - Persist the record and report job status
 */

package processor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	ierrors "github.com/adverant/nexus/idextract-worker/internal/errors"
	"github.com/adverant/nexus/idextract-worker/internal/extract"
	"github.com/adverant/nexus/idextract-worker/internal/logging"
	"github.com/adverant/nexus/idextract-worker/internal/storage"
)

// DocumentProcessorInterface defines the interface for document processing
type DocumentProcessorInterface interface {
	ProcessDocument(ctx context.Context, req *ProcessRequest) (*ProcessResult, error)
	UpdateJobStatus(ctx context.Context, jobID string, status string, metadata map[string]interface{}) error
}

// ProcessorConfig holds processor configuration
type ProcessorConfig struct {
	Pipeline    *extract.Pipeline
	Store       storage.Store
	MaxFileSize int64
	HTTPClient  *http.Client
	Logger      *logging.Logger
}

// ProcessRequest represents a document processing request
type ProcessRequest struct {
	JobID      string
	UserID     string
	Filename   string
	MimeType   string
	FileSize   int64
	FileURL    string
	FileBuffer []byte
	Metadata   map[string]interface{}
}

// ProcessResult represents the processing result
type ProcessResult struct {
	RecordID         int64           `json:"recordId"`
	Record           *extract.Record `json:"record"`
	ProcessingTimeMs int64           `json:"processingTimeMs"`
}

// DocumentProcessor handles document processing
type DocumentProcessor struct {
	config     *ProcessorConfig
	pipeline   *extract.Pipeline
	store      storage.Store
	httpClient *http.Client
	logger     *logging.Logger
}

// NewDocumentProcessor creates a new document processor
func NewDocumentProcessor(cfg *ProcessorConfig) (*DocumentProcessor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	if cfg.Pipeline == nil {
		return nil, fmt.Errorf("pipeline is required")
	}

	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("Processor")
	}

	return &DocumentProcessor{
		config:     cfg,
		pipeline:   cfg.Pipeline,
		store:      cfg.Store,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// ProcessDocument runs one upload through extraction and persistence
func (p *DocumentProcessor) ProcessDocument(ctx context.Context, req *ProcessRequest) (*ProcessResult, error) {
	start := time.Now()
	logger := p.logger.With("job_id", req.JobID)
	logger.Info("Starting identity extraction", "filename", req.Filename)

	// Step 1: Load file
	fileData, err := p.loadFile(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to load file: %w", err)
	}

	// Step 2: Check the bytes are an image or a scanned PDF
	detectedMime := detectMimeTypeFromMagicBytes(fileData)
	if !isSupportedImage(detectedMime) && detectedMime != "application/pdf" {
		return nil, ierrors.NewImageDecodeError(req.JobID,
			fmt.Errorf("unsupported content type %q (declared %q)", detectedMime, req.MimeType))
	}
	if detectedMime != req.MimeType {
		logger.Debug("Corrected MIME type from magic bytes", "declared", req.MimeType, "detected", detectedMime)
		req.MimeType = detectedMime
	}

	// Step 3: Extract
	res, err := p.pipeline.ExtractBytes(ctx, req.JobID, fileData)
	if err != nil {
		return nil, err
	}

	// Step 4: Persist
	rec := res.Record
	recordID, err := p.store.InsertRecord(ctx, &storage.RecordInput{
		JobID:          req.JobID,
		Name:           rec.Name,
		FatherName:     rec.FatherName,
		DOB:            rec.DOB,
		Age:            rec.Age,
		ConfidenceMeta: rec.ConfidenceMeta,
	})
	if err != nil {
		return nil, ierrors.NewStorageFailedError(req.JobID, err)
	}

	elapsed := time.Since(start).Milliseconds()
	logger.Info("Identity extraction stored",
		"record_id", recordID,
		"dob_found", rec.DOB != "",
		"name_rule", rec.ConfidenceMeta.NameRule,
		"processing_ms", elapsed)

	return &ProcessResult{
		RecordID:         recordID,
		Record:           rec,
		ProcessingTimeMs: elapsed,
	}, nil
}

// UpdateJobStatus updates job status in database
func (p *DocumentProcessor) UpdateJobStatus(ctx context.Context, jobID string, status string, metadata map[string]interface{}) error {
	update := &storage.JobUpdate{
		JobID:    jobID,
		Status:   status,
		Metadata: metadata,
	}

	// Extract specific fields from metadata if present
	if metadata != nil {
		if recordID, ok := metadata["recordId"].(int64); ok {
			update.RecordID = recordID
		}
		if processingTime, ok := metadata["processingTime"].(int64); ok {
			update.ProcessingTimeMs = processingTime
		}
		if code, ok := metadata["error_code"].(string); ok {
			update.ErrorCode = code
		}
		if errorMsg, ok := metadata["error"].(string); ok {
			if update.ErrorCode == "" {
				update.ErrorCode = "PROCESSING_ERROR"
			}
			update.ErrorMessage = errorMsg
		}
	}

	return p.store.UpdateJobStatus(ctx, update)
}

// loadFile loads file from buffer or URL
func (p *DocumentProcessor) loadFile(ctx context.Context, req *ProcessRequest) ([]byte, error) {
	if len(req.FileBuffer) > 0 {
		if p.config.MaxFileSize > 0 && int64(len(req.FileBuffer)) > p.config.MaxFileSize {
			return nil, fmt.Errorf("file size exceeds maximum: %d > %d bytes", len(req.FileBuffer), p.config.MaxFileSize)
		}
		return req.FileBuffer, nil
	}

	if req.FileURL != "" {
		fileData, err := p.downloadFileFromURL(ctx, req.JobID, req.FileURL)
		if err != nil {
			return nil, fmt.Errorf("failed to download file: %w", err)
		}
		return fileData, nil
	}

	return nil, fmt.Errorf("no file source provided (buffer or URL)")
}

// downloadFileFromURL downloads a file with exponential backoff
func (p *DocumentProcessor) downloadFileFromURL(ctx context.Context, jobID string, fileURL string) ([]byte, error) {
	const (
		maxRetries       = 3
		initialBackoffMs = 500
		maxBackoffMs     = 8000
	)

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		data, err := p.fetch(ctx, fileURL)
		if err == nil {
			return data, nil
		}
		lastErr = err
		p.logger.Warn("Download attempt failed", "job_id", jobID, "attempt", attempt, "error", err)

		if attempt == maxRetries {
			break
		}
		backoffMs := initialBackoffMs * int(math.Pow(2, float64(attempt-1)))
		if backoffMs > maxBackoffMs {
			backoffMs = maxBackoffMs
		}
		select {
		case <-time.After(time.Duration(backoffMs) * time.Millisecond):
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled during retry backoff: %w", ctx.Err())
		}
	}

	return nil, fmt.Errorf("failed to download file after %d attempts: %w", maxRetries, lastErr)
}

func (p *DocumentProcessor) fetch(ctx context.Context, fileURL string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	limit := p.config.MaxFileSize
	if limit <= 0 {
		limit = 100 * 1024 * 1024
	}
	if resp.ContentLength > limit {
		return nil, fmt.Errorf("file size exceeds maximum: %d > %d bytes", resp.ContentLength, limit)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("file size exceeds maximum: more than %d bytes", limit)
	}
	return data, nil
}

func isSupportedImage(mime string) bool {
	switch mime {
	case "image/png", "image/jpeg", "image/gif", "image/webp", "image/tiff", "image/bmp":
		return true
	}
	return false
}

// detectMimeTypeFromMagicBytes detects the MIME type from content magic bytes.
// Uploads often arrive as application/octet-stream.
func detectMimeTypeFromMagicBytes(data []byte) string {
	if len(data) < 4 {
		return ""
	}

	// PDF: %PDF-
	if bytes.HasPrefix(data, []byte("%PDF")) {
		return "application/pdf"
	}

	// PNG: 0x89 'P' 'N' 'G' 0x0D 0x0A 0x1A 0x0A
	if len(data) >= 8 && bytes.HasPrefix(data, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}) {
		return "image/png"
	}

	// JPEG: 0xFF 0xD8 0xFF
	if bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}) {
		return "image/jpeg"
	}

	// GIF: 'G' 'I' 'F' '8' ('7' or '9') 'a'
	if bytes.HasPrefix(data, []byte("GIF87a")) || bytes.HasPrefix(data, []byte("GIF89a")) {
		return "image/gif"
	}

	// WebP: 'R' 'I' 'F' 'F' .... 'W' 'E' 'B' 'P'
	if len(data) > 12 && bytes.HasPrefix(data, []byte("RIFF")) && string(data[8:12]) == "WEBP" {
		return "image/webp"
	}

	// TIFF: little-endian or big-endian byte order mark
	if bytes.HasPrefix(data, []byte{0x49, 0x49, 0x2A, 0x00}) || bytes.HasPrefix(data, []byte{0x4D, 0x4D, 0x00, 0x2A}) {
		return "image/tiff"
	}

	// BMP: 'B' 'M'
	if bytes.HasPrefix(data, []byte("BM")) {
		return "image/bmp"
	}

	return ""
}
