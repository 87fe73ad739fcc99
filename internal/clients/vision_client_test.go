package clients

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestExtractTextFromBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/internal/vision/extract-text" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req VisionOCRRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		raw, err := base64.StdEncoding.DecodeString(req.Image)
		if err != nil || string(raw) != "png-bytes" {
			t.Errorf("image payload = %q, %v", raw, err)
		}
		if req.Language != "multi" {
			t.Errorf("language = %q", req.Language)
		}
		_ = json.NewEncoder(w).Encode(VisionOCRResponse{
			Success: true,
			Data:    VisionOCRData{Text: "Anil Sharma\nDOB: 12/04/1988", ModelUsed: "vision-x"},
		})
	}))
	defer srv.Close()

	c := NewVisionClient(srv.URL, 5*time.Second)
	resp, err := c.ExtractTextFromBytes(context.Background(), []byte("png-bytes"), "multi")
	if err != nil {
		t.Fatalf("ExtractTextFromBytes() error = %v", err)
	}
	if !strings.Contains(resp.Data.Text, "DOB") {
		t.Errorf("text = %q", resp.Data.Text)
	}
}

func TestExtractTextErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr string
	}{
		{
			name: "bad status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "overloaded", http.StatusServiceUnavailable)
			},
			wantErr: "status 503",
		},
		{
			name: "unsuccessful",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"success":false,"message":"no model"}`))
			},
			wantErr: "no model",
		},
		{
			name: "garbage body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`not json`))
			},
			wantErr: "failed to parse response",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			_, err := NewVisionClient(srv.URL, time.Second).ExtractTextFromBytes(context.Background(), []byte("x"), "en")
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error = %v, want %q", err, tc.wantErr)
			}
		})
	}
}

func TestHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := NewVisionClient(srv.URL, time.Second).HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}
