// ABOUTME: Tests for centralized configuration system
// ABOUTME: Verifies environment variable parsing and validation
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/harper/mediaindex/internal/models"
)

func TestLoad_Defaults(t *testing.T) {
	// Clear environment to test defaults
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.EmbeddingModel != "text-embedding-3-small" {
		t.Errorf("EmbeddingModel = %s, want text-embedding-3-small", cfg.EmbeddingModel)
	}
	if cfg.TranscriptionModel != "whisper-1" {
		t.Errorf("TranscriptionModel = %s, want whisper-1", cfg.TranscriptionModel)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.Timeout)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.MaxRetries)
	}
	if cfg.RetryDelay != 2*time.Second {
		t.Errorf("RetryDelay = %v, want 2s", cfg.RetryDelay)
	}
	if cfg.ChunkWorkers != 4 {
		t.Errorf("ChunkWorkers = %d, want 4", cfg.ChunkWorkers)
	}
	if cfg.ChunkParams() != models.DefaultChunkParams() {
		t.Errorf("ChunkParams() = %+v, want %+v", cfg.ChunkParams(), models.DefaultChunkParams())
	}
	if cfg.RedisURL != "" {
		t.Errorf("RedisURL = %s, want empty", cfg.RedisURL)
	}
	if !cfg.MetricsEnabled {
		t.Error("MetricsEnabled = false, want true")
	}
}

func TestLoad_CustomValues(t *testing.T) {
	os.Clearenv()
	os.Setenv("MEDIAINDEX_DATA_DIR", "/tmp/mediaindex-test")
	os.Setenv("OPENAI_API_KEY", "test-key")
	os.Setenv("MEDIAINDEX_EMBEDDING_MODEL", "text-embedding-3-large")
	os.Setenv("OPENAI_TIMEOUT", "60s")
	os.Setenv("OPENAI_MAX_RETRIES", "5")
	os.Setenv("MEDIAINDEX_CHUNK_WORKERS", "8")
	os.Setenv("MEDIAINDEX_CHUNK_DURATION", "20s")
	os.Setenv("MEDIAINDEX_CHUNK_OVERLAP", "0s")
	os.Setenv("MEDIAINDEX_REDIS_URL", "redis://localhost:6379/0")
	os.Setenv("MEDIAINDEX_METRICS", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.OpenAIKey != "test-key" {
		t.Errorf("OpenAIKey = %s, want test-key", cfg.OpenAIKey)
	}
	if cfg.EmbeddingModel != "text-embedding-3-large" {
		t.Errorf("EmbeddingModel = %s, want text-embedding-3-large", cfg.EmbeddingModel)
	}
	if cfg.Timeout != 60*time.Second {
		t.Errorf("Timeout = %v, want 60s", cfg.Timeout)
	}
	if cfg.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", cfg.MaxRetries)
	}
	if cfg.ChunkWorkers != 8 {
		t.Errorf("ChunkWorkers = %d, want 8", cfg.ChunkWorkers)
	}
	if cfg.ChunkParams().ChunkDuration != 20 || cfg.ChunkParams().Overlap != 0 {
		t.Errorf("ChunkParams() = %+v", cfg.ChunkParams())
	}
	if cfg.DBPath() != filepath.Join("/tmp/mediaindex-test", "mediaindex.db") {
		t.Errorf("DBPath() = %s", cfg.DBPath())
	}
	if cfg.MetricsEnabled {
		t.Error("MetricsEnabled = true, want false")
	}
}

func TestValidate_InvalidMaxRetries(t *testing.T) {
	os.Clearenv()
	cfg, _ := Load()

	cfg.MaxRetries = 15
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() should fail for MaxRetries > 10")
	}

	cfg.MaxRetries = -1
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() should fail for MaxRetries < 0")
	}
}

func TestValidate_InvalidChunking(t *testing.T) {
	os.Clearenv()
	os.Setenv("MEDIAINDEX_CHUNK_OVERLAP", "40s")

	if _, err := Load(); err == nil {
		t.Error("Load() should fail when overlap exceeds chunk duration")
	}
}

func TestValidate_InvalidWorkers(t *testing.T) {
	os.Clearenv()
	os.Setenv("MEDIAINDEX_CHUNK_WORKERS", "0")

	if _, err := Load(); err == nil {
		t.Error("Load() should fail for zero chunk workers")
	}
}

func TestServiceFor(t *testing.T) {
	svc, ok := ServiceFor(models.IndexVideo)
	if !ok {
		t.Fatal("ServiceFor(video) not found")
	}
	if svc.Port != 8081 || svc.Path != "/video" {
		t.Errorf("ServiceFor(video) = %+v, want port 8081 path /video", svc)
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name       string
		value      string
		defaultVal bool
		want       bool
	}{
		{"empty uses default true", "", true, true},
		{"empty uses default false", "", false, false},
		{"true", "true", false, true},
		{"1", "1", false, true},
		{"false", "false", true, false},
		{"0", "0", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			if tt.value != "" {
				os.Setenv("TEST_BOOL", tt.value)
			}
			got := getEnvBool("TEST_BOOL", tt.defaultVal)
			if got != tt.want {
				t.Errorf("getEnvBool() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDefaultDataDir_HonorsXDGDataHome(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dir)
	if got := DefaultDataDir(); got != filepath.Join(dir, "mediaindex") {
		t.Errorf("DefaultDataDir() = %q, want under %q", got, dir)
	}

	t.Setenv("XDG_DATA_HOME", "")
	if got := DefaultDataDir(); filepath.Base(got) != "mediaindex" {
		t.Errorf("DefaultDataDir() = %q, want a mediaindex directory", got)
	}
}
