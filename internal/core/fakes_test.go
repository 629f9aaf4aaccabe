// ABOUTME: In-memory fakes for model calls and media tooling used by core tests
// ABOUTME: Embeddings are hashed bags of words so equal text scores exactly 1

package core

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"testing"
	"unicode"

	"github.com/harper/mediaindex/internal/media"
	"github.com/harper/mediaindex/internal/models"
	"github.com/harper/mediaindex/internal/storage/sqlite"
)

const fakeDims = 64

type fakeModels struct {
	mu          sync.Mutex
	transcripts map[string]string
	captions    map[string]string
	failPaths   map[string]bool
	embedErr    error
	embedCalls  int
	transcribed []string
}

func newFakeModels() *fakeModels {
	return &fakeModels{
		transcripts: map[string]string{},
		captions:    map[string]string{},
		failPaths:   map[string]bool{},
	}
}

func (f *fakeModels) EmbeddingModel() string { return "fake-embed" }

func (f *fakeModels) Embed(ctx context.Context, texts []string, model string) ([][]float64, error) {
	f.mu.Lock()
	f.embedCalls++
	err := f.embedErr
	f.mu.Unlock()
	if err != nil {
		return nil, models.Upstream("embedding", err)
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = bagOfWords(t)
	}
	return out, nil
}

func (f *fakeModels) Transcribe(ctx context.Context, path, model string) (*models.Transcript, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transcribed = append(f.transcribed, path)
	if f.failPaths[path] {
		return nil, models.Upstream("transcription", errors.New("model timed out"))
	}
	text, ok := f.transcripts[path]
	if !ok {
		text = "silence"
	}
	return &models.Transcript{Text: text, Language: "english"}, nil
}

func (f *fakeModels) Caption(ctx context.Context, location, model string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.captions[location]; ok {
		return c, nil
	}
	return "", models.Upstream("image caption", fmt.Errorf("no caption for %s", location))
}

func bagOfWords(text string) []float64 {
	v := make([]float64, fakeDims)
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%fakeDims]++
	}
	return v
}

type fakeMedia struct {
	mu     sync.Mutex
	chunks map[string]int
	// badCut names the chunk index of a location whose cut fails
	badCut map[string]int
	docs   map[string]string
	splits int
}

func newFakeMedia() *fakeMedia {
	return &fakeMedia{chunks: map[string]int{}, badCut: map[string]int{}, docs: map[string]string{}}
}

func (f *fakeMedia) Localize(ctx context.Context, location string) (string, error) {
	if strings.HasPrefix(location, "missing") {
		return "", models.NotFound(location, "asset not found: %s", location)
	}
	return location, nil
}

func (f *fakeMedia) SplitAudio(ctx context.Context, location string, p models.ChunkParams) ([]media.Chunk, error) {
	if _, err := f.Localize(ctx, location); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.splits++
	n, ok := f.chunks[location]
	bad, hasBad := f.badCut[location]
	f.mu.Unlock()
	if !ok {
		n = 2
	}
	if n < 0 {
		return nil, errors.New("ffmpeg exited with status 1")
	}
	out := make([]media.Chunk, n)
	for i := range n {
		start := float64(i) * (p.ChunkDuration - p.Overlap)
		out[i] = media.Chunk{
			Span: models.ChunkSpan{Index: i, Start: start, End: start + p.ChunkDuration},
			Path: fmt.Sprintf("%s#%d", location, i),
		}
		if hasBad && bad == i {
			out[i].Path = ""
			out[i].Err = fmt.Errorf("chunk %d: ffmpeg exited with status 1", i)
		}
	}
	return out, nil
}

func (f *fakeMedia) ExtractAudio(ctx context.Context, location, format string) (string, error) {
	if _, err := f.Localize(ctx, location); err != nil {
		return "", err
	}
	return location + "." + format, nil
}

func (f *fakeMedia) DocumentText(ctx context.Context, location string) (string, error) {
	text, ok := f.docs[location]
	if !ok {
		return "", models.NotFound(location, "asset not found: %s", location)
	}
	return text, nil
}

type testEnv struct {
	db     *sqlite.DB
	models *fakeModels
	media  *fakeMedia
	engine *Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := sqlite.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	env := &testEnv{db: db, models: newFakeModels(), media: newFakeMedia()}
	env.engine = NewEngine(db, env.models, env.media, EngineOptions{
		Workers:       4,
		ChunkDefaults: models.DefaultChunkParams(),
	})
	return env
}

func mustCount(t *testing.T, e *Engine, table string) int {
	t.Helper()
	n, err := e.Count(context.Background(), table)
	if err != nil {
		t.Fatalf("Count(%s) error = %v", table, err)
	}
	return n
}
