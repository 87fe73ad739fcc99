/**
 * HTTP API for the identity extraction worker
 *
 * GET  /healthz            database reachability plus dependency checks
 * POST /v1/extract         multipart "file" -> record, explanation, transcript
 * POST /v1/records         save a reviewed record (age re-derived from dob)
 * GET  /v1/records         newest records first
 * POST /v1/jobs            queue an upload for the worker
 * GET  /v1/jobs/{id}       job status
 */

package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/adverant/nexus/idextract-worker/internal/dates"
	ierrors "github.com/adverant/nexus/idextract-worker/internal/errors"
	"github.com/adverant/nexus/idextract-worker/internal/extract"
	"github.com/adverant/nexus/idextract-worker/internal/logging"
	"github.com/adverant/nexus/idextract-worker/internal/queue"
	"github.com/adverant/nexus/idextract-worker/internal/storage"
	"github.com/adverant/nexus/idextract-worker/internal/textclean"
)

const (
	maxListLimit = 1000
	maxAge       = 120
)

// HealthCheck reports one dependency for /healthz. The value is echoed
// in the response; an error marks the service degraded.
type HealthCheck func(ctx context.Context) (interface{}, error)

// Config holds server dependencies
type Config struct {
	Addr             string
	Pipeline         *extract.Pipeline
	Store            storage.Store
	Producer         queue.Producer // nil disables /v1/jobs submission
	MaxImageSize     int64
	RecordsListLimit int
	ExtractTimeout   time.Duration
	Checks           map[string]HealthCheck
	Logger           *logging.Logger
}

// Server serves the HTTP API
type Server struct {
	cfg    *Config
	logger *logging.Logger
	http   *http.Server
}

// New creates a server
func New(cfg *Config) (*Server, error) {
	if cfg.Pipeline == nil {
		return nil, fmt.Errorf("pipeline is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.MaxImageSize <= 0 {
		cfg.MaxImageSize = 20 << 20
	}
	if cfg.RecordsListLimit <= 0 {
		cfg.RecordsListLimit = 200
	}
	if cfg.ExtractTimeout <= 0 {
		cfg.ExtractTimeout = 2 * time.Minute
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("HTTP")
	}

	s := &Server{cfg: cfg, logger: logger}
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler returns the API routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /v1/extract", s.handleExtract)
	mux.HandleFunc("POST /v1/records", s.handleSaveRecord)
	mux.HandleFunc("GET /v1/records", s.handleListRecords)
	mux.HandleFunc("POST /v1/jobs", s.handleSubmitJob)
	mux.HandleFunc("GET /v1/jobs/{id}", s.handleGetJob)
	return mux
}

// ListenAndServe blocks until the server stops. It returns nil after
// Shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info("HTTP API listening", "addr", s.cfg.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

type extractResponse struct {
	Record     *extract.Record `json:"record"`
	Transcript string          `json:"transcript"`
	RecordID   int64           `json:"record_id,omitempty"`
}

type saveRecordRequest struct {
	Name       string `json:"name"`
	FatherName string `json:"father_name"`
	DOB        string `json:"dob"`
}

type saveRecordResponse struct {
	ID  int64 `json:"id"`
	Age int   `json:"age"`
}

type submitJobResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := s.cfg.Store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}

	names := make([]string, 0, len(s.cfg.Checks))
	for name := range s.cfg.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := "ok"
	checks := make(map[string]interface{}, len(names))
	for _, name := range names {
		v, err := s.cfg.Checks[name](ctx)
		if err != nil {
			status = "degraded"
			checks[name] = map[string]string{"error": err.Error()}
			continue
		}
		checks[name] = v
	}

	// Failing checks degrade the status; only the database ping returns 503.
	body := map[string]interface{}{"status": status}
	if len(checks) > 0 {
		body["checks"] = checks
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	data, _, err := s.readUpload(w, r)
	if err != nil {
		writeError(w, uploadStatus(err), err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ExtractTimeout)
	defer cancel()

	res, err := s.cfg.Pipeline.ExtractBytes(ctx, "", data)
	if err != nil {
		if code, ok := ierrors.CodeOf(err); ok && code == ierrors.ErrorImageDecodeFailed {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
		writeError(w, http.StatusGatewayTimeout, err)
		return
	}

	resp := extractResponse{Record: res.Record, Transcript: res.Transcript}

	if save, _ := strconv.ParseBool(r.URL.Query().Get("save")); save {
		rec := res.Record
		id, err := s.cfg.Store.InsertRecord(r.Context(), &storage.RecordInput{
			Name:           rec.Name,
			FatherName:     rec.FatherName,
			DOB:            rec.DOB,
			Age:            rec.Age,
			ConfidenceMeta: rec.ConfidenceMeta,
		})
		if err != nil {
			s.logger.Error("Failed to save extracted record", "error", err)
			writeError(w, http.StatusInternalServerError, ierrors.NewStorageFailedError("", err))
			return
		}
		resp.RecordID = id
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSaveRecord(w http.ResponseWriter, r *http.Request) {
	var req saveRecordRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("bad json: %w", err))
		return
	}

	in := &storage.RecordInput{
		Name:           textclean.CollapseSpaces(req.Name),
		FatherName:     textclean.CollapseSpaces(req.FatherName),
		DOB:            strings.TrimSpace(req.DOB),
		ConfidenceMeta: map[string]interface{}{"source": "manual"},
	}

	if in.DOB != "" {
		age, ok := dates.AgeFromDOB(in.DOB, s.cfg.Pipeline.Now())
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Errorf("dob must be DD/MM/YYYY, got %q", in.DOB))
			return
		}
		if age < 0 || age > maxAge {
			writeError(w, http.StatusBadRequest, fmt.Errorf("dob %s gives age %d, want 0 to %d", in.DOB, age, maxAge))
			return
		}
		t, _ := dates.ParseDOB(in.DOB)
		in.DOB = dates.FormatDOB(t)
		in.Age = age
	}

	id, err := s.cfg.Store.InsertRecord(r.Context(), in)
	if err != nil {
		s.logger.Error("Failed to save record", "error", err)
		writeError(w, http.StatusInternalServerError, ierrors.NewStorageFailedError("", err))
		return
	}

	writeJSON(w, http.StatusCreated, saveRecordResponse{ID: id, Age: in.Age})
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.RecordsListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("limit must be a positive integer"))
			return
		}
		limit = n
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	records, err := s.cfg.Store.ListRecent(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list records", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"records": records})
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Producer == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("job queue not configured"))
		return
	}

	data, filename, err := s.readUpload(w, r)
	if err != nil {
		writeError(w, uploadStatus(err), err)
		return
	}

	payload := &queue.JobPayload{
		JobID:      uuid.NewString(),
		Filename:   filename,
		MimeType:   http.DetectContentType(data),
		FileSize:   int64(len(data)),
		FileBuffer: data,
	}

	// Record the row first so a status poll never races the worker.
	if err := s.cfg.Store.UpdateJobStatus(r.Context(), &storage.JobUpdate{
		JobID:    payload.JobID,
		Status:   storage.JobStatusQueued,
		Metadata: map[string]interface{}{"filename": filename, "fileSize": payload.FileSize},
	}); err != nil {
		s.logger.Error("Failed to record job", "job_id", payload.JobID, "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	jobID, err := s.cfg.Producer.Submit(r.Context(), payload)
	if err != nil {
		s.logger.Error("Failed to enqueue job", "job_id", payload.JobID, "error", err)
		writeError(w, http.StatusBadGateway, err)
		return
	}

	s.logger.Info("Job queued", "job_id", jobID, "filename", filename, "size", payload.FileSize)
	writeJSON(w, http.StatusAccepted, submitJobResponse{JobID: jobID, Status: storage.JobStatusQueued})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid job id %q", id))
		return
	}

	job, err := s.cfg.Store.GetJob(r.Context(), id)
	if errors.Is(err, storage.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, job)
}

var errTooLarge = errors.New("image exceeds maximum size")

// readUpload reads the multipart "file" field, bounded by MaxImageSize.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, error) {
	limit := s.cfg.MaxImageSize
	r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)

	file, header, err := r.FormFile("file")
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, "", errTooLarge
		}
		return nil, "", fmt.Errorf("multipart field \"file\" is required: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, "", errTooLarge
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("uploaded file is empty")
	}
	return data, header.Filename, nil
}

func uploadStatus(err error) int {
	if errors.Is(err, errTooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	body := map[string]string{"error": err.Error()}
	if code, ok := ierrors.CodeOf(err); ok {
		body["code"] = string(code)
	}
	writeJSON(w, status, body)
}
