// ABOUTME: Derivation chains per index kind and the insert/query operations on an index
// ABOUTME: audio/video: chunk → transcribe → sentences → embed; doc: split → embed; image: caption → embed
package core

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/harper/mediaindex/internal/models"
)

// setupStep is one idempotent piece of an index chain
type setupStep struct {
	name string
	done func(ctx context.Context) (bool, error)
	run  func(ctx context.Context) error
}

const colUploadedAt = "uploaded_at"

func (r *Registry) steps(e *Engine, l models.IndexLayout) []setupStep {
	asset := l.Kind.AssetColumn()
	steps := []setupStep{tableStep(e, l.Table, map[string]string{
		asset:         string(l.Kind.AssetType()),
		colUploadedAt: string(models.TypeTimestamp),
	})}

	transcribe := fmt.Sprintf("transcribe(audio_chunk, model=%s)", strconv.Quote(r.opts.TranscriptionModel))
	if r.opts.TranscriptionModel == "" {
		transcribe = "transcribe(audio_chunk)"
	}
	audioChain := func(audioColumn string) []setupStep {
		chunk := r.opts.Chunk
		return []setupStep{
			viewStep(e, l.Chunks, l.Table, &models.IteratorSpec{Kind: IterAudioSplitter, Params: map[string]interface{}{
				"column":                 audioColumn,
				"chunk_duration_sec":     chunk.ChunkDuration,
				"overlap_sec":            chunk.Overlap,
				"min_chunk_duration_sec": chunk.MinChunkDuration,
			}}),
			columnStep(e, l.Chunks, "transcription", transcribe),
			viewStep(e, l.Sentences, l.Chunks, &models.IteratorSpec{Kind: IterStringSplitter, Params: map[string]interface{}{
				"column":     "transcription.text",
				"separators": string(models.SplitSentence),
			}}),
		}
	}

	switch l.Kind {
	case models.IndexAudio:
		steps = append(steps, audioChain(asset)...)
	case models.IndexVideo:
		steps = append(steps, columnStep(e, l.Table, "audio_extract", "extract_audio(video, format='mp3')"))
		steps = append(steps, audioChain("audio_extract")...)
	case models.IndexDocument:
		steps = append(steps, viewStep(e, l.Chunks, l.Table, &models.IteratorSpec{Kind: IterDocumentSplitter, Params: map[string]interface{}{
			"column":     asset,
			"separators": string(models.SplitSentence),
		}}))
	case models.IndexImage:
		caption := "caption(image)"
		if r.opts.VisionModel != "" {
			caption = fmt.Sprintf("caption(image, model=%s)", strconv.Quote(r.opts.VisionModel))
		}
		steps = append(steps, columnStep(e, l.Table, "caption", caption))
	}

	return append(steps, indexStep(e, l.SearchTable(), l.SearchColumn(), r.opts.EmbeddingModel))
}

func tableStep(e *Engine, table string, columns map[string]string) setupStep {
	return setupStep{
		name: "create table " + table,
		done: func(ctx context.Context) (bool, error) { return e.Exists(ctx, table) },
		run: func(ctx context.Context) error {
			_, err := e.CreateTable(ctx, table, columns, models.IfExistsIgnore)
			return err
		},
	}
}

func viewStep(e *Engine, view, base string, iter *models.IteratorSpec) setupStep {
	return setupStep{
		name: "create view " + view,
		done: func(ctx context.Context) (bool, error) { return e.Exists(ctx, view) },
		run: func(ctx context.Context) error {
			_, err := e.CreateView(ctx, view, base, iter, models.IfExistsIgnore)
			return err
		},
	}
}

func columnStep(e *Engine, table, column, expression string) setupStep {
	return setupStep{
		name: "add column " + table + "." + column,
		done: func(ctx context.Context) (bool, error) {
			info, err := e.Describe(ctx, table)
			if err != nil {
				return false, err
			}
			_, ok := info.Column(column)
			return ok, nil
		},
		run: func(ctx context.Context) error {
			_, err := e.AddComputedColumn(ctx, table, column, expression)
			return err
		},
	}
}

func indexStep(e *Engine, table, column, model string) setupStep {
	return setupStep{
		name: "create embedding index on " + table + "." + column,
		done: func(ctx context.Context) (bool, error) { return e.HasIndex(ctx, table, column) },
		run: func(ctx context.Context) error {
			_, err := e.CreateEmbeddingIndex(ctx, table, column, model)
			return err
		},
	}
}

// Insert adds one asset and runs the full derivation chain for it
func (idx *Index) Insert(ctx context.Context, location string) (*InsertResult, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, models.InvalidArgument("location", "asset location cannot be empty")
	}
	return idx.engine.Insert(ctx, idx.Layout.Table, []map[string]interface{}{{
		idx.Layout.Kind.AssetColumn(): location,
		colUploadedAt:                 time.Now().UTC(),
	}})
}

// InsertMessage renders an insert outcome for tool callers
func (idx *Index) InsertMessage(location string, r *InsertResult) string {
	msg := fmt.Sprintf("%s file '%s' inserted successfully into index '%s'.", kindTitle(idx.Layout.Kind), location, idx.Layout.Table)
	var parts []string
	for _, name := range sortedNames(r.Derived) {
		parts = append(parts, fmt.Sprintf("%d row(s) in %s", r.Derived[name], name))
	}
	if len(parts) > 0 {
		msg += " Derived " + strings.Join(parts, ", ") + "."
	}
	if len(r.Errors) > 0 {
		msg += fmt.Sprintf(" %d step(s) failed and were recorded on their rows:", len(r.Errors))
		for _, e := range r.Errors {
			msg += fmt.Sprintf("\n- %s row %s, %s: %s", e.Table, e.RowID, e.Column, e.Error)
		}
	}
	return msg
}

// QueryHit is one ranked result annotated with its source asset
type QueryHit struct {
	Rank       int      `json:"rank"`
	Score      float64  `json:"score"`
	Text       string   `json:"text"`
	Source     string   `json:"source"`
	UploadedAt string   `json:"uploaded_at,omitempty"`
	Start      *float64 `json:"start_time_sec,omitempty"`
	End        *float64 `json:"end_time_sec,omitempty"`
}

// QueryReport is the ranked answer to a natural-language query
type QueryReport struct {
	Index string     `json:"index"`
	Query string     `json:"query"`
	Kind  string     `json:"kind"`
	Hits  []QueryHit `json:"hits"`
}

// Query ranks the index's text units against text, breaking score ties by
// upload time, newest first
func (idx *Index) Query(ctx context.Context, text string, topN int) (*QueryReport, error) {
	l := idx.Layout
	results, err := idx.engine.SimilaritySearch(ctx, SearchRequest{
		Table:  l.SearchTable(),
		Column: l.SearchColumn(),
		Text:   text,
		TopK:   topN,
		ThenBy: colUploadedAt,
	})
	if err != nil {
		return nil, err
	}

	report := &QueryReport{Index: l.Table, Query: text, Kind: string(l.Kind), Hits: []QueryHit{}}
	for _, r := range results {
		hit := QueryHit{Rank: r.Rank, Score: r.Score}
		hit.Text, _ = r.Values[l.SearchColumn()].(string)
		hit.Source, _ = r.Values[l.Kind.AssetColumn()].(string)
		hit.UploadedAt, _ = r.Values[colUploadedAt].(string)
		if v, ok := r.Values["start_time_sec"].(float64); ok {
			hit.Start = &v
		}
		if v, ok := r.Values["end_time_sec"].(float64); ok {
			hit.End = &v
		}
		report.Hits = append(report.Hits, hit)
	}
	return report, nil
}

// Format renders the report as a ranked plain-text list
func (r *QueryReport) Format() string {
	if len(r.Hits) == 0 {
		return fmt.Sprintf("No results found for '%s' in '%s'.", r.Query, r.Index)
	}
	kind := models.IndexKind(r.Kind)
	label := string(kind.AssetType())

	var b strings.Builder
	fmt.Fprintf(&b, "Query Results for '%s' in '%s':\n\n", r.Query, r.Index)
	for _, h := range r.Hits {
		fmt.Fprintf(&b, "%d. Score: %.4f\n", h.Rank, h.Score)
		fmt.Fprintf(&b, "   Text: %s\n", h.Text)
		fmt.Fprintf(&b, "   From %s: %s", label, h.Source)
		if h.Start != nil && h.End != nil {
			fmt.Fprintf(&b, " (%.1fs-%.1fs)", *h.Start, *h.End)
		}
		b.WriteString("\n\n")
	}
	return b.String()
}
