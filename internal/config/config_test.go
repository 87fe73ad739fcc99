package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/idextract?sslmode=disable")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.QueueBackend != "redis" {
		t.Errorf("QueueBackend = %q, want redis", cfg.QueueBackend)
	}
	if cfg.OCRPrimaryLangs != "tam+eng" || cfg.OCRGeneralLangs != "eng" {
		t.Errorf("OCR langs = %q/%q", cfg.OCRPrimaryLangs, cfg.OCRGeneralLangs)
	}
	if cfg.ResizeTargetWidth != 1400 {
		t.Errorf("ResizeTargetWidth = %d, want 1400", cfg.ResizeTargetWidth)
	}
	if cfg.Timeout() != 2*time.Minute {
		t.Errorf("Timeout() = %v, want 2m", cfg.Timeout())
	}
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "missing database",
			env:     map[string]string{"DATABASE_URL": ""},
			wantErr: "DATABASE_URL",
		},
		{
			name:    "bad queue backend",
			env:     map[string]string{"DATABASE_URL": "postgres://x", "QUEUE_BACKEND": "kafka"},
			wantErr: "QUEUE_BACKEND",
		},
		{
			name:    "concurrency out of range",
			env:     map[string]string{"DATABASE_URL": "postgres://x", "WORKER_CONCURRENCY": "0"},
			wantErr: "WORKER_CONCURRENCY",
		},
		{
			name:    "parallelism out of range",
			env:     map[string]string{"DATABASE_URL": "postgres://x", "OCR_PARALLELISM": "20"},
			wantErr: "OCR_PARALLELISM",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			if err == nil {
				t.Fatalf("expected error containing %q", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error = %v, want mention of %q", err, tc.wantErr)
			}
		})
	}
}

func TestNonNumericFallsBackToDefault(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://x")
	t.Setenv("OCR_PARALLELISM", "many")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.OCRParallelism != 2 {
		t.Errorf("OCRParallelism = %d, want default 2", cfg.OCRParallelism)
	}
}

func TestFromEnvSkipsValidation(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("QUEUE_BACKEND", "asynq")

	cfg := FromEnv()
	if cfg.QueueBackend != "asynq" || cfg.DatabaseURL != "" {
		t.Errorf("cfg = %+v", cfg)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() should still reject a missing DATABASE_URL")
	}
}
