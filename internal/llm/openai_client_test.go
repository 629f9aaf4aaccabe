// ABOUTME: Tests for the OpenAI client against a local fake API server
// ABOUTME: Covers embeddings ordering, transcription segments, captions and retries

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/harper/mediaindex/internal/config"
	"github.com/harper/mediaindex/internal/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewOpenAIClientWithConfig(&ClientConfig{
		APIKey:     "sk-test",
		BaseURL:    srv.URL + "/v1",
		Timeout:    5 * time.Second,
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewOpenAIClientWithConfig() error = %v", err)
	}
	return client
}

func TestNewOpenAIClient_RequiresKey(t *testing.T) {
	_, err := NewOpenAIClientWithConfig(&ClientConfig{})
	if err == nil {
		t.Fatal("expected error for empty API key")
	}
	if models.KindOf(err) != models.KindInvalidArgument {
		t.Errorf("error kind = %v, want invalid_argument", models.KindOf(err))
	}
}

func TestConfigFrom(t *testing.T) {
	cfg := &config.Config{
		OpenAIKey:          "sk-default",
		EmbeddingModel:     "text-embedding-3-large",
		TranscriptionModel: "whisper-1",
		VisionModel:        "gpt-4o",
		Timeout:            10 * time.Second,
		MaxRetries:         1,
		RetryDelay:         time.Second,
	}

	cc := ConfigFrom(cfg, "")
	if cc.APIKey != "sk-default" {
		t.Errorf("APIKey = %q, want sk-default", cc.APIKey)
	}
	cc = ConfigFrom(cfg, "sk-index")
	if cc.APIKey != "sk-index" {
		t.Errorf("APIKey = %q, want sk-index", cc.APIKey)
	}
	if cc.EmbeddingModel != "text-embedding-3-large" || cc.Timeout != 10*time.Second {
		t.Errorf("unexpected config %+v", cc)
	}
}

func TestEmbed_OrdersByIndex(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Model != DefaultEmbeddingModel {
			t.Errorf("model = %q, want %q", req.Model, DefaultEmbeddingModel)
		}

		// Reply out of order to exercise sorting
		data := []map[string]interface{}{}
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]interface{}{
				"object":    "embedding",
				"index":     i,
				"embedding": []float32{float32(i), 1},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"object": "list", "data": data, "model": req.Model})
	})

	vectors, err := client.Embed(context.Background(), []string{"a", "b", "c"}, "")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vectors) != 3 {
		t.Fatalf("got %d vectors, want 3", len(vectors))
	}
	for i, v := range vectors {
		if v[0] != float64(i) {
			t.Errorf("vector %d = %v, want first component %d", i, v, i)
		}
	}
}

func TestEmbed_RetriesThenFails(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
	})

	_, err := client.Embed(context.Background(), []string{"a"}, "")
	if err == nil {
		t.Fatal("expected error")
	}
	if models.KindOf(err) != models.KindUpstream {
		t.Errorf("error kind = %v, want upstream_failure", models.KindOf(err))
	}
	if got := atomic.LoadInt32(&calls); got < 3 {
		t.Errorf("server called %d times, want at least 3 (1 + 2 retries)", got)
	}
}

func TestEmbed_ClientErrorsAreNotRetried(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   int32
	}{
		{"unauthorized", http.StatusUnauthorized, 1},
		{"unknown model", http.StatusNotFound, 1},
		{"rate limited", http.StatusTooManyRequests, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"message":"nope","type":"invalid_request_error"}}`))
			})

			_, err := client.Embed(context.Background(), []string{"a"}, "")
			if models.KindOf(err) != models.KindUpstream {
				t.Fatalf("error = %v, want upstream_failure", err)
			}
			if got := atomic.LoadInt32(&calls); got != tt.want {
				t.Errorf("server called %d times, want %d", got, tt.want)
			}
		})
	}
}

func TestTranscribe_VerboseJSON(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm error = %v", err)
		}
		if got := r.FormValue("response_format"); got != "verbose_json" {
			t.Errorf("response_format = %q, want verbose_json", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"task": "transcribe",
			"language": "english",
			"duration": 12.5,
			"text": " Hello world. Goodbye. ",
			"segments": [
				{"id": 0, "start": 0.0, "end": 6.0, "text": " Hello world."},
				{"id": 1, "start": 6.0, "end": 12.5, "text": " Goodbye."}
			]
		}`))
	})

	path := filepath.Join(t.TempDir(), "chunk.mp3")
	if err := os.WriteFile(path, []byte("ID3fake"), 0644); err != nil {
		t.Fatal(err)
	}

	tr, err := client.Transcribe(context.Background(), path, "")
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if tr.Text != "Hello world. Goodbye." {
		t.Errorf("Text = %q", tr.Text)
	}
	if tr.Language != "english" || tr.Duration != 12.5 {
		t.Errorf("Language/Duration = %q/%v", tr.Language, tr.Duration)
	}
	if len(tr.Segments) != 2 || tr.Segments[1].Start != 6.0 || tr.Segments[1].Text != "Goodbye." {
		t.Errorf("Segments = %+v", tr.Segments)
	}
}

func TestCaption_InlinesLocalImage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Messages []struct {
				Content []struct {
					Type     string `json:"type"`
					ImageURL struct {
						URL string `json:"url"`
					} `json:"image_url"`
				} `json:"content"`
			} `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.Messages) != 1 || len(req.Messages[0].Content) != 2 ||
			!strings.HasPrefix(req.Messages[0].Content[1].ImageURL.URL, "data:image/png;base64,") {
			t.Errorf("unexpected request body %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":" A red square. "},"finish_reason":"stop"}]}`))
	})

	// Minimal PNG header is enough for content sniffing
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	path := filepath.Join(t.TempDir(), "square.png")
	if err := os.WriteFile(path, png, 0644); err != nil {
		t.Fatal(err)
	}

	caption, err := client.Caption(context.Background(), path, "")
	if err != nil {
		t.Fatalf("Caption() error = %v", err)
	}
	if caption != "A red square." {
		t.Errorf("caption = %q", caption)
	}
}

func TestImageReference(t *testing.T) {
	ref, err := imageReference("https://example.com/cat.jpg")
	if err != nil || ref != "https://example.com/cat.jpg" {
		t.Errorf("imageReference(url) = %q, %v", ref, err)
	}

	path := filepath.Join(t.TempDir(), "notes.txt")
	_ = os.WriteFile(path, []byte("plain text"), 0644)
	if _, err := imageReference(path); err == nil {
		t.Error("expected error for non-image file")
	}

	if _, err := imageReference(filepath.Join(t.TempDir(), "missing.png")); err == nil {
		t.Error("expected error for missing file")
	}
}
