// ABOUTME: External services the engine depends on: model calls and media tooling
// ABOUTME: Adapts them to the expression evaluator's model-backed builtins
package core

import (
	"context"
	"fmt"

	"github.com/harper/mediaindex/internal/llm"
	"github.com/harper/mediaindex/internal/media"
	"github.com/harper/mediaindex/internal/models"
)

// Models performs remote model calls. *llm.OpenAIClient implements it.
type Models interface {
	EmbeddingModel() string
	Embed(ctx context.Context, texts []string, model string) ([][]float64, error)
	Transcribe(ctx context.Context, path, model string) (*models.Transcript, error)
	Caption(ctx context.Context, location, model string) (string, error)
}

// Media resolves asset locations and runs local media tooling
type Media interface {
	Localize(ctx context.Context, location string) (string, error)
	SplitAudio(ctx context.Context, location string, p models.ChunkParams) ([]media.Chunk, error)
	ExtractAudio(ctx context.Context, location, format string) (string, error)
	DocumentText(ctx context.Context, location string) (string, error)
}

// ModelFactory builds a model client for a credential. An empty key means
// the configured default.
type ModelFactory func(apiKey string) (Models, error)

// OpenAIFactory returns a factory producing OpenAI clients from base settings
func OpenAIFactory(base llm.ClientConfig) ModelFactory {
	return func(apiKey string) (Models, error) {
		cfg := base
		if apiKey != "" {
			cfg.APIKey = apiKey
		}
		client, err := llm.NewOpenAIClientWithConfig(&cfg)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

var errNoModels = models.InvalidArgument("openai_api_key",
	"no OpenAI API key configured; set OPENAI_API_KEY or pass openai_api_key when setting up the index")

// MediaTools is the production Media: downloads through a Fetcher and cuts
// with ffmpeg
type MediaTools struct {
	Fetcher *media.Fetcher
	Toolkit *media.Toolkit
	Workers int
}

// NewMediaTools caches downloads and derived files under dir
func NewMediaTools(dir, ffmpeg, ffprobe string, workers int) *MediaTools {
	return &MediaTools{
		Fetcher: media.NewFetcher(dir),
		Toolkit: media.NewToolkit(ffmpeg, ffprobe, dir),
		Workers: workers,
	}
}

func (m *MediaTools) Localize(ctx context.Context, location string) (string, error) {
	return m.Fetcher.Fetch(ctx, location)
}

func (m *MediaTools) SplitAudio(ctx context.Context, location string, p models.ChunkParams) ([]media.Chunk, error) {
	path, err := m.Fetcher.Fetch(ctx, location)
	if err != nil {
		return nil, err
	}
	return m.Toolkit.Split(ctx, path, p, m.Workers)
}

func (m *MediaTools) ExtractAudio(ctx context.Context, location, format string) (string, error) {
	path, err := m.Fetcher.Fetch(ctx, location)
	if err != nil {
		return "", err
	}
	return m.Toolkit.ExtractAudio(ctx, path, format)
}

func (m *MediaTools) DocumentText(ctx context.Context, location string) (string, error) {
	path, err := m.Fetcher.Fetch(ctx, location)
	if err != nil {
		return "", err
	}
	source := ""
	if media.IsRemote(location) {
		source = location
	}
	return media.ReadDocument(path, source)
}

// modelFunctions implements expr.Functions over Models and Media
type modelFunctions struct {
	models Models
	media  Media
}

func (f modelFunctions) Transcribe(ctx context.Context, location, model string) (*models.Transcript, error) {
	if f.models == nil {
		return nil, errNoModels
	}
	path, err := f.media.Localize(ctx, location)
	if err != nil {
		return nil, err
	}
	return f.models.Transcribe(ctx, path, model)
}

func (f modelFunctions) ExtractAudio(ctx context.Context, location, format string) (string, error) {
	if format == "" {
		format = "mp3"
	}
	return f.media.ExtractAudio(ctx, location, format)
}

func (f modelFunctions) Caption(ctx context.Context, location, model string) (string, error) {
	if f.models == nil {
		return "", errNoModels
	}
	if media.IsRemote(location) {
		return f.models.Caption(ctx, location, model)
	}
	path, err := f.media.Localize(ctx, location)
	if err != nil {
		return "", err
	}
	return f.models.Caption(ctx, path, model)
}

func (f modelFunctions) DocumentText(ctx context.Context, location string) (string, error) {
	text, err := f.media.DocumentText(ctx, location)
	if err != nil {
		return "", fmt.Errorf("document %s: %w", location, err)
	}
	return text, nil
}
