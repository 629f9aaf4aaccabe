// ABOUTME: OpenAI client for embeddings, audio transcription and image captions
// ABOUTME: Every call is bounded by a timeout and retried with exponential backoff
package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/harper/mediaindex/internal/config"
	"github.com/harper/mediaindex/internal/metrics"
	"github.com/harper/mediaindex/internal/models"
	"github.com/harper/mediaindex/internal/util"
	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultEmbeddingModel is the default model for embeddings
	DefaultEmbeddingModel = string(openai.SmallEmbedding3)
	// DefaultTranscriptionModel is the default speech-to-text model
	DefaultTranscriptionModel = openai.Whisper1
	// DefaultVisionModel is the default model for image captions
	DefaultVisionModel = "gpt-4o-mini"

	// maxEmbeddingBatch bounds the inputs sent in one embeddings request
	maxEmbeddingBatch = 256
)

const captionPrompt = "Describe this image in one or two plain sentences for a search index. " +
	"Mention the main subjects, setting and any visible text. Return only the description."

// ClientConfig holds configuration for the OpenAI client
type ClientConfig struct {
	APIKey             string
	BaseURL            string
	EmbeddingModel     string
	TranscriptionModel string
	VisionModel        string
	Timeout            time.Duration
	MaxRetries         int
	RetryDelay         time.Duration
}

// ConfigFrom builds a client configuration from service settings. apiKey
// overrides the configured default credential when non-empty.
func ConfigFrom(cfg *config.Config, apiKey string) *ClientConfig {
	if apiKey == "" {
		apiKey = cfg.OpenAIKey
	}
	return &ClientConfig{
		APIKey:             apiKey,
		EmbeddingModel:     cfg.EmbeddingModel,
		TranscriptionModel: cfg.TranscriptionModel,
		VisionModel:        cfg.VisionModel,
		Timeout:            cfg.Timeout,
		MaxRetries:         cfg.MaxRetries,
		RetryDelay:         cfg.RetryDelay,
	}
}

// OpenAIClient wraps the OpenAI API client with retry logic
type OpenAIClient struct {
	client             *openai.Client
	embeddingModel     string
	transcriptionModel string
	visionModel        string
	policy             util.RetryPolicy
}

// NewOpenAIClientWithConfig creates a new OpenAI client with custom configuration
func NewOpenAIClientWithConfig(cfg *ClientConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, models.InvalidArgument("openai_api_key", "OpenAI API key is required")
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}

	return &OpenAIClient{
		client:             openai.NewClientWithConfig(oc),
		embeddingModel:     orDefault(cfg.EmbeddingModel, DefaultEmbeddingModel),
		transcriptionModel: orDefault(cfg.TranscriptionModel, DefaultTranscriptionModel),
		visionModel:        orDefault(cfg.VisionModel, DefaultVisionModel),
		policy: util.RetryPolicy{
			MaxRetries: cfg.MaxRetries,
			BaseDelay:  cfg.RetryDelay,
			Timeout:    cfg.Timeout,
		},
	}, nil
}

// EmbeddingModel returns the default embedding model name
func (c *OpenAIClient) EmbeddingModel() string {
	return c.embeddingModel
}

// Embed returns one vector per input text, in input order. model may be
// empty to use the configured default.
func (c *OpenAIClient) Embed(ctx context.Context, texts []string, model string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	model = orDefault(model, c.embeddingModel)

	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += maxEmbeddingBatch {
		end := min(start+maxEmbeddingBatch, len(texts))
		batch, err := c.embedBatch(ctx, texts[start:end], model)
		metrics.ObserveModel("embed", err)
		if err != nil {
			return nil, models.Upstream("embedding", err)
		}
		out = append(out, batch...)
	}
	return out, nil
}

func (c *OpenAIClient) embedBatch(ctx context.Context, texts []string, model string) ([][]float64, error) {
	var vectors [][]float64

	err := util.Retry(ctx, c.policy, func(ctx context.Context) error {
		resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
			Input: texts,
			Model: openai.EmbeddingModel(model),
		})
		if err != nil {
			return retryable(err)
		}
		if len(resp.Data) != len(texts) {
			return fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
		}

		data := resp.Data
		sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })

		vectors = make([][]float64, len(data))
		for i, d := range data {
			// Convert []float32 to []float64
			v := make([]float64, len(d.Embedding))
			for k, f := range d.Embedding {
				v[k] = float64(f)
			}
			vectors[i] = v
		}
		return nil
	})

	return vectors, err
}

// Transcribe converts an audio file into text with segment timestamps
func (c *OpenAIClient) Transcribe(ctx context.Context, path, model string) (*models.Transcript, error) {
	model = orDefault(model, c.transcriptionModel)

	var transcript *models.Transcript
	err := util.Retry(ctx, c.policy, func(ctx context.Context) error {
		resp, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
			Model:    model,
			FilePath: path,
			Format:   openai.AudioResponseFormatVerboseJSON,
		})
		if err != nil {
			return retryable(err)
		}

		t := &models.Transcript{
			Text:     strings.TrimSpace(resp.Text),
			Language: resp.Language,
			Duration: resp.Duration,
		}
		for _, s := range resp.Segments {
			t.Segments = append(t.Segments, models.TranscriptSegment{
				Start: s.Start,
				End:   s.End,
				Text:  strings.TrimSpace(s.Text),
			})
		}
		transcript = t
		return nil
	})

	metrics.ObserveModel("transcribe", err)
	if err != nil {
		return nil, models.Upstream("transcription", err)
	}
	return transcript, nil
}

// Caption describes an image. location is a local path or an http(s) URL.
func (c *OpenAIClient) Caption(ctx context.Context, location, model string) (string, error) {
	model = orDefault(model, c.visionModel)

	imageURL, err := imageReference(location)
	if err != nil {
		return "", models.InvalidArgument("image", err.Error())
	}

	var caption string
	err = util.Retry(ctx, c.policy, func(ctx context.Context) error {
		resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role: openai.ChatMessageRoleUser,
					MultiContent: []openai.ChatMessagePart{
						{Type: openai.ChatMessagePartTypeText, Text: captionPrompt},
						{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
							URL:    imageURL,
							Detail: openai.ImageURLDetailLow,
						}},
					},
				},
			},
			Temperature: 0.2,
		})
		if err != nil {
			return retryable(err)
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("no completion choices returned")
		}
		caption = strings.TrimSpace(resp.Choices[0].Message.Content)
		if caption == "" {
			return fmt.Errorf("empty caption returned")
		}
		return nil
	})

	metrics.ObserveModel("caption", err)
	if err != nil {
		return "", models.Upstream("image caption", err)
	}
	return caption, nil
}

// imageReference passes remote URLs through and inlines local files as data URLs
func imageReference(location string) (string, error) {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") || strings.HasPrefix(location, "data:") {
		return location, nil
	}
	data, err := os.ReadFile(location)
	if err != nil {
		return "", fmt.Errorf("failed to read image %s: %w", location, err)
	}
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return "", fmt.Errorf("%s is not an image (detected %s)", location, mime)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// retryable marks client errors as permanent. Rate limits, timeouts and
// server errors stay retryable.
func retryable(err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	if status >= 400 && status < 500 && status != http.StatusRequestTimeout && status != http.StatusTooManyRequests {
		return util.Permanent(err)
	}
	return err
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
