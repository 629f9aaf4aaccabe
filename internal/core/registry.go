// ABOUTME: Registry of named media indexes with per-name mutual exclusion on setup
// ABOUTME: Each index handle carries its own model credential, never the process environment
package core

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/harper/mediaindex/internal/lock"
	"github.com/harper/mediaindex/internal/models"
)

// RegistryOptions sets the models and chunking used when building index chains
type RegistryOptions struct {
	EmbeddingModel     string
	TranscriptionModel string
	VisionModel        string
	Chunk              models.ChunkParams
}

// Registry maps index names to ready handles
type Registry struct {
	engine    *Engine
	newModels ModelFactory
	locker    lock.Locker
	opts      RegistryOptions

	mu      sync.Mutex
	indexes map[string]*Index
}

// Index is a ready named index bound to a model client
type Index struct {
	Layout models.IndexLayout
	engine *Engine
}

// SetupStatus is the outcome of Setup
type SetupStatus string

const (
	SetupCreated SetupStatus = "created"
	SetupExists  SetupStatus = "exists"
	SetupResumed SetupStatus = "resumed"
)

// SetupResult describes a ready index
type SetupResult struct {
	Layout models.IndexLayout
	Status SetupStatus
}

// Message renders the status for tool callers
func (r *SetupResult) Message() string {
	title := kindTitle(r.Layout.Kind)
	switch r.Status {
	case SetupExists:
		return fmt.Sprintf("%s index '%s' already exists and is ready for use.", title, r.Layout.Table)
	case SetupResumed:
		return fmt.Sprintf("%s index '%s' was incomplete; missing steps were completed and it is ready for use.", title, r.Layout.Table)
	}
	return fmt.Sprintf("%s index '%s' created successfully.", title, r.Layout.Table)
}

// NewRegistry creates a registry. locker guards setup per index name; a nil
// locker falls back to an in-process lock.
func NewRegistry(engine *Engine, factory ModelFactory, locker lock.Locker, opts RegistryOptions) *Registry {
	if locker == nil {
		locker = lock.NewLocal()
	}
	if opts.Chunk == (models.ChunkParams{}) {
		opts.Chunk = models.DefaultChunkParams()
	}
	return &Registry{
		engine:    engine,
		newModels: factory,
		locker:    locker,
		opts:      opts,
		indexes:   map[string]*Index{},
	}
}

// Engine returns the shared table engine with the default credential
func (r *Registry) Engine() *Engine {
	return r.engine
}

// Setup creates the table, views, computed columns and embedding index for a
// named index, or reattaches to them when they exist. Missing steps left by an
// interrupted setup are completed. Existing data is dropped only when replace is set.
func (r *Registry) Setup(ctx context.Context, kind models.IndexKind, name, apiKey string, replace bool) (*SetupResult, error) {
	layout, err := models.NewIndexLayout(kind, name)
	if err != nil {
		return nil, err
	}
	m, err := r.models(apiKey)
	if err != nil {
		return nil, err
	}

	unlock, err := r.locker.Lock(ctx, "index:"+layout.Table)
	if err != nil {
		return nil, err
	}
	defer unlock()

	engine := r.engine.WithModels(m)
	exists, err := r.baseTableExists(ctx, layout)
	if err != nil {
		return nil, err
	}
	if exists && replace {
		if err := engine.DropTable(ctx, layout.Table, true); err != nil {
			return nil, fmt.Errorf("failed to replace %s: %w", layout.Table, err)
		}
		exists = false
	}

	ran := 0
	for _, s := range r.steps(engine, layout) {
		done, err := s.done(ctx)
		if err != nil {
			return nil, err
		}
		if done {
			continue
		}
		if err := s.run(ctx); err != nil {
			return nil, fmt.Errorf("%s: %w", s.name, err)
		}
		ran++
	}

	r.mu.Lock()
	r.indexes[layout.Table] = &Index{Layout: layout, engine: engine}
	r.mu.Unlock()

	result := &SetupResult{Layout: layout, Status: SetupCreated}
	switch {
	case exists && ran == 0:
		result.Status = SetupExists
	case exists:
		result.Status = SetupResumed
	}
	return result, nil
}

// Lookup returns the handle of a set-up index. An index created by an earlier
// process is reattached with the default credential.
func (r *Registry) Lookup(ctx context.Context, kind models.IndexKind, name string) (*Index, error) {
	layout, err := models.NewIndexLayout(kind, name)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	idx, ok := r.indexes[layout.Table]
	r.mu.Unlock()
	if ok {
		return idx, nil
	}

	exists, err := r.baseTableExists(ctx, layout)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, models.NotFound(layout.Table, "%s index '%s' not set up; call %s first", kindTitle(kind), layout.Table, SetupTool(kind))
	}

	// A missing default credential only fails the operations that need it
	m, _ := r.models("")
	idx = &Index{Layout: layout, engine: r.engine.WithModels(m)}

	r.mu.Lock()
	if existing, ok := r.indexes[layout.Table]; ok {
		idx = existing
	} else {
		r.indexes[layout.Table] = idx
	}
	r.mu.Unlock()
	return idx, nil
}

// baseTableExists reports whether the index table exists. A view under the
// same name belongs to another index, such as talks_chunks of talks.
func (r *Registry) baseTableExists(ctx context.Context, l models.IndexLayout) (bool, error) {
	info, err := r.engine.Describe(ctx, l.Table)
	if models.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if info.Kind != models.KindTable {
		return false, models.Conflict(l.Table, fmt.Sprintf("'%s' is a view derived from '%s', not an index table; choose another index name", l.Table, info.Base))
	}
	return true, nil
}

// Forget drops any handle whose index table is table, so the next Lookup
// reattaches or reports the index missing
func (r *Registry) Forget(table string) {
	r.mu.Lock()
	delete(r.indexes, table)
	r.mu.Unlock()
}

// List returns the names of indexes of one kind
func (r *Registry) List(ctx context.Context, kind models.IndexKind) ([]string, error) {
	tables, err := r.engine.ListTables(ctx, kind.Directory()+".")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, t := range tables {
		if t.Kind == models.KindTable {
			names = append(names, t.Name)
		}
	}
	return names, nil
}

// FormatList renders List output for tool callers
func FormatList(kind models.IndexKind, names []string) string {
	if len(names) == 0 {
		return fmt.Sprintf("No %s indexes exist.", kind)
	}
	return fmt.Sprintf("Current %s indexes: %s", kind, strings.Join(names, ", "))
}

func (r *Registry) models(apiKey string) (Models, error) {
	if r.newModels == nil {
		return r.engine.Models(), nil
	}
	if apiKey == "" && r.engine.Models() != nil {
		return r.engine.Models(), nil
	}
	return r.newModels(apiKey)
}

// SetupTool names the setup operation of a kind
func SetupTool(kind models.IndexKind) string {
	return "setup_" + string(kind) + "_index"
}

func kindTitle(kind models.IndexKind) string {
	switch kind {
	case models.IndexAudio:
		return "Audio"
	case models.IndexVideo:
		return "Video"
	case models.IndexImage:
		return "Image"
	}
	return "Document"
}
