// ABOUTME: Centralized configuration for the media index MCP server
// ABOUTME: Loads from environment variables with validation and defaults
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/adrg/xdg"

	"github.com/harper/mediaindex/internal/models"
)

// Config holds all configuration for the media index service
type Config struct {
	// Storage settings
	DataDir string

	// OpenAI settings
	OpenAIKey          string
	EmbeddingModel     string
	TranscriptionModel string
	VisionModel        string
	Timeout            time.Duration
	MaxRetries         int
	RetryDelay         time.Duration

	// Pipeline settings
	ChunkWorkers     int
	ChunkDuration    time.Duration
	ChunkOverlap     time.Duration
	MinChunkDuration time.Duration
	FFmpegPath       string
	FFprobePath      string

	// Coordination settings
	RedisURL string
	LockTTL  time.Duration

	// Service settings
	MetricsEnabled bool
}

// Service describes one deployable index service: its kind, port and path prefix
type Service struct {
	Kind models.IndexKind
	Port int
	Path string
}

// Services lists the per-kind service bindings used behind the path-routed load balancer
var Services = []Service{
	{Kind: models.IndexAudio, Port: 8080, Path: "/audio"},
	{Kind: models.IndexVideo, Port: 8081, Path: "/video"},
	{Kind: models.IndexImage, Port: 8082, Path: "/image"},
	{Kind: models.IndexDocument, Port: 8083, Path: "/doc"},
}

// ServiceFor returns the binding for a kind
func ServiceFor(kind models.IndexKind) (Service, bool) {
	for _, s := range Services {
		if s.Kind == kind {
			return s, true
		}
	}
	return Service{}, false
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		// Defaults
		DataDir:            getEnv("MEDIAINDEX_DATA_DIR", DefaultDataDir()),
		OpenAIKey:          os.Getenv("OPENAI_API_KEY"),
		EmbeddingModel:     getEnv("MEDIAINDEX_EMBEDDING_MODEL", "text-embedding-3-small"),
		TranscriptionModel: getEnv("MEDIAINDEX_TRANSCRIPTION_MODEL", "whisper-1"),
		VisionModel:        getEnv("MEDIAINDEX_VISION_MODEL", "gpt-4o-mini"),
		Timeout:            getEnvDuration("OPENAI_TIMEOUT", 30*time.Second),
		MaxRetries:         getEnvInt("OPENAI_MAX_RETRIES", 3),
		RetryDelay:         getEnvDuration("OPENAI_RETRY_DELAY", 2*time.Second),
		ChunkWorkers:       getEnvInt("MEDIAINDEX_CHUNK_WORKERS", 4),
		ChunkDuration:      getEnvDuration("MEDIAINDEX_CHUNK_DURATION", 30*time.Second),
		ChunkOverlap:       getEnvDuration("MEDIAINDEX_CHUNK_OVERLAP", 2*time.Second),
		MinChunkDuration:   getEnvDuration("MEDIAINDEX_MIN_CHUNK_DURATION", 5*time.Second),
		FFmpegPath:         getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:        getEnv("FFPROBE_PATH", "ffprobe"),
		RedisURL:           os.Getenv("MEDIAINDEX_REDIS_URL"),
		LockTTL:            getEnvDuration("MEDIAINDEX_LOCK_TTL", 2*time.Minute),
		MetricsEnabled:     getEnvBool("MEDIAINDEX_METRICS", true),
	}

	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	if c.MaxRetries < 0 || c.MaxRetries > 10 {
		return fmt.Errorf("OPENAI_MAX_RETRIES must be 0-10, got %d", c.MaxRetries)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("OPENAI_TIMEOUT must be positive, got %v", c.Timeout)
	}
	if c.ChunkWorkers < 1 || c.ChunkWorkers > 64 {
		return fmt.Errorf("MEDIAINDEX_CHUNK_WORKERS must be 1-64, got %d", c.ChunkWorkers)
	}
	if err := c.ChunkParams().Validate(); err != nil {
		return fmt.Errorf("invalid chunking settings: %w", err)
	}
	if c.LockTTL <= 0 {
		return fmt.Errorf("MEDIAINDEX_LOCK_TTL must be positive, got %v", c.LockTTL)
	}
	return nil
}

// ChunkParams converts the chunk durations into segmentation parameters
func (c *Config) ChunkParams() models.ChunkParams {
	return models.ChunkParams{
		ChunkDuration:    c.ChunkDuration.Seconds(),
		Overlap:          c.ChunkOverlap.Seconds(),
		MinChunkDuration: c.MinChunkDuration.Seconds(),
	}
}

// DBPath returns the SQLite database file path
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "mediaindex.db")
}

// MediaDir returns the directory used for fetched assets and extracted chunks
func (c *Config) MediaDir() string {
	return filepath.Join(c.DataDir, "media")
}

// DefaultDataDir returns the default data directory following the XDG spec
func DefaultDataDir() string {
	// XDG_DATA_HOME is re-read so tests can override it after xdg initializes
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		dataHome = xdg.DataHome
	}
	return filepath.Join(dataHome, "mediaindex")
}

// Helper functions
func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v == "true" || v == "1"
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
