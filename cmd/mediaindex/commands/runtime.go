// ABOUTME: Builds the shared runtime for commands: config, storage, models, locks and registry
// ABOUTME: Also constructs MCP servers with the tools for a set of index kinds
package commands

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/joho/godotenv"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/harper/mediaindex/internal/config"
	"github.com/harper/mediaindex/internal/core"
	"github.com/harper/mediaindex/internal/llm"
	"github.com/harper/mediaindex/internal/lock"
	"github.com/harper/mediaindex/internal/mcp"
	"github.com/harper/mediaindex/internal/models"
	"github.com/harper/mediaindex/internal/storage/sqlite"
)

// runtimeResources holds everything a command needs and must close
type runtimeResources struct {
	cfg      *config.Config
	db       *sqlite.DB
	engine   *core.Engine
	registry *core.Registry
	redis    *lock.Redis
}

func openRuntime(ctx context.Context) (*runtimeResources, error) {
	// Load .env file if it exists (for API keys)
	if err := godotenv.Load(); err != nil && verbose {
		log.Printf("No .env file found (this is okay for production): %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	db, err := sqlite.Open(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	rt := &runtimeResources{cfg: cfg, db: db}

	factory := core.OpenAIFactory(*llm.ConfigFrom(cfg, ""))
	var defaultModels core.Models
	if cfg.OpenAIKey != "" {
		defaultModels, err = factory("")
		if err != nil {
			log.Printf("Warning: Failed to initialize OpenAI client: %v", err)
		} else if verbose {
			log.Println("OpenAI client initialized")
		}
	} else if !quiet {
		log.Println("Warning: OPENAI_API_KEY not set - indexes need an openai_api_key at setup")
	}

	var locker lock.Locker = lock.NewLocal()
	if cfg.RedisURL != "" {
		redisLock, err := lock.NewRedisFromURL(ctx, cfg.RedisURL, cfg.LockTTL)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		rt.redis = redisLock
		locker = lock.Chain{locker, redisLock}
		if verbose {
			log.Printf("Distributed setup lock enabled (owner %s)", redisLock.OwnerID())
		}
	}

	media := core.NewMediaTools(cfg.MediaDir(), cfg.FFmpegPath, cfg.FFprobePath, cfg.ChunkWorkers)
	rt.engine = core.NewEngine(db, defaultModels, media, core.EngineOptions{
		Workers:       cfg.ChunkWorkers,
		ChunkDefaults: cfg.ChunkParams(),
	})
	rt.registry = core.NewRegistry(rt.engine, factory, locker, core.RegistryOptions{
		EmbeddingModel:     cfg.EmbeddingModel,
		TranscriptionModel: cfg.TranscriptionModel,
		VisionModel:        cfg.VisionModel,
		Chunk:              cfg.ChunkParams(),
	})
	return rt, nil
}

// Close releases storage and the redis connection
func (r *runtimeResources) Close() {
	if r.redis != nil {
		if err := r.redis.Close(); err != nil {
			log.Printf("Warning: Error closing redis: %v", err)
		}
	}
	if err := r.db.Close(); err != nil {
		log.Printf("Warning: Error closing storage: %v", err)
	}
}

// newMCPServer builds an MCP server exposing the table tools and the tools of kinds
func (r *runtimeResources) newMCPServer(kinds []models.IndexKind) *mcpserver.MCPServer {
	server := mcpserver.NewMCPServer(
		"mediaindex",
		versionInfo.Version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithRecovery(),
	)
	mcp.RegisterTools(server, r.registry, kinds)
	return server
}

// parseKinds accepts a single kind, a comma-separated list or "all"
func parseKinds(s string) ([]models.IndexKind, error) {
	if strings.EqualFold(strings.TrimSpace(s), "all") {
		return append([]models.IndexKind(nil), models.IndexKinds...), nil
	}
	var kinds []models.IndexKind
	seen := map[models.IndexKind]bool{}
	for _, part := range strings.Split(s, ",") {
		kind, err := models.ParseIndexKind(part)
		if err != nil {
			return nil, err
		}
		if !seen[kind] {
			seen[kind] = true
			kinds = append(kinds, kind)
		}
	}
	return kinds, nil
}
