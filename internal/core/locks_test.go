// ABOUTME: Tests for per-tree locking: slow derivation in one index never stalls another
// ABOUTME: Uses a media fake whose audio split blocks until released

package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/harper/mediaindex/internal/media"
	"github.com/harper/mediaindex/internal/models"
)

// stallingMedia blocks SplitAudio of one location until release is closed
type stallingMedia struct {
	*fakeMedia
	location string
	started  chan struct{}
	release  chan struct{}
	once     sync.Once
}

func (m *stallingMedia) SplitAudio(ctx context.Context, location string, p models.ChunkParams) ([]media.Chunk, error) {
	if location == m.location {
		m.once.Do(func() { close(m.started) })
		select {
		case <-m.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return m.fakeMedia.SplitAudio(ctx, location, p)
}

func newStallingEnv(t *testing.T, location string) (*testEnv, *stallingMedia) {
	t.Helper()
	env := newTestEnv(t)
	stall := &stallingMedia{
		fakeMedia: env.media,
		location:  location,
		started:   make(chan struct{}),
		release:   make(chan struct{}),
	}
	env.engine = NewEngine(env.db, env.models, stall, EngineOptions{
		Workers:       4,
		ChunkDefaults: models.DefaultChunkParams(),
	})
	return env, stall
}

func TestSlowInsertDoesNotBlockOtherIndexes(t *testing.T) {
	env, stall := newStallingEnv(t, "slow.mp3")
	reg := newTestRegistry(env)
	ctx := context.Background()

	if _, err := reg.Setup(ctx, models.IndexAudio, "a", "", false); err != nil {
		t.Fatalf("Setup(a) error = %v", err)
	}
	if _, err := reg.Setup(ctx, models.IndexAudio, "c", "", false); err != nil {
		t.Fatalf("Setup(c) error = %v", err)
	}
	idxA, _ := reg.Lookup(ctx, models.IndexAudio, "a")

	inserted := make(chan error, 1)
	go func() {
		_, err := idxA.Insert(ctx, "slow.mp3")
		inserted <- err
	}()
	<-stall.started

	tctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := reg.Setup(tctx, models.IndexAudio, "b", "", false); err != nil {
		t.Fatalf("Setup(b) while a is busy: %v", err)
	}
	idxC, _ := reg.Lookup(ctx, models.IndexAudio, "c")
	if _, err := idxC.Insert(tctx, "quick.mp3"); err != nil {
		t.Fatalf("Insert into c while a is busy: %v", err)
	}

	close(stall.release)
	if err := <-inserted; err != nil {
		t.Fatalf("Insert(slow.mp3) error = %v", err)
	}
	if mustCount(t, env.engine, "audio_index.a_chunks") != 2 {
		t.Error("slow insert should still derive its chunks")
	}
}

func TestSchemaChangeWaitsForInsertInSameTree(t *testing.T) {
	env, stall := newStallingEnv(t, "slow.mp3")
	reg := newTestRegistry(env)
	ctx := context.Background()

	if _, err := reg.Setup(ctx, models.IndexAudio, "a", "", false); err != nil {
		t.Fatalf("Setup(a) error = %v", err)
	}
	idx, _ := reg.Lookup(ctx, models.IndexAudio, "a")

	inserted := make(chan error, 1)
	go func() {
		_, err := idx.Insert(ctx, "slow.mp3")
		inserted <- err
	}()
	<-stall.started

	added := make(chan error, 1)
	go func() {
		_, err := env.engine.AddComputedColumn(ctx, "audio_index.a_sentence_chunks", "shout", "upper(text)")
		added <- err
	}()

	select {
	case err := <-added:
		t.Fatalf("AddComputedColumn returned during an insert into the same tree: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	close(stall.release)
	if err := <-inserted; err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := <-added; err != nil {
		t.Fatalf("AddComputedColumn() error = %v", err)
	}
	res, err := env.engine.Query(ctx, "audio_index.a_sentence_chunks", QueryOptions{Columns: []string{"shout"}})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(res.Rows) == 0 {
		t.Fatal("expected sentence rows")
	}
	for _, r := range res.Rows {
		if r["shout"] != "SILENCE" {
			t.Errorf("shout = %v, want backfilled SILENCE", r["shout"])
		}
	}
}

func TestRootOf(t *testing.T) {
	env := newTestEnv(t)
	reg := newTestRegistry(env)
	ctx := context.Background()
	if _, err := reg.Setup(ctx, models.IndexAudio, "talks", "", false); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	tests := []struct {
		name string
		want string
	}{
		{"audio_index.talks", "audio_index.talks"},
		{"audio_index.talks_chunks", "audio_index.talks"},
		{"audio_index.talks_sentence_chunks", "audio_index.talks"},
		{"audio_index.unknown", "audio_index.unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := rootOf(ctx, env.db.Stores(), tt.name)
			if err != nil {
				t.Fatalf("rootOf() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("rootOf(%s) = %s, want %s", tt.name, got, tt.want)
			}
		})
	}
}
