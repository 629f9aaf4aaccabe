// ABOUTME: View iterators that expand one base row into many view rows
// ABOUTME: audio_splitter cuts time chunks, string/document splitters emit text units
package core

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/harper/mediaindex/internal/expr"
	"github.com/harper/mediaindex/internal/models"
)

// Iterator kinds accepted by CreateView
const (
	IterAudioSplitter    = "audio_splitter"
	IterStringSplitter   = "string_splitter"
	IterDocumentSplitter = "document_splitter"
)

// Iterator expands one base row into the iterator columns of its view rows
type Iterator interface {
	// Spec returns the iterator declaration with defaults filled in
	Spec() *models.IteratorSpec
	// Columns lists the columns the iterator produces
	Columns() []models.Column
	Expand(ctx context.Context, row *models.Row) ([]map[string]interface{}, error)
}

// IteratorKinds lists the supported iterator kinds in sorted order
func IteratorKinds() []string {
	kinds := []string{IterAudioSplitter, IterStringSplitter, IterDocumentSplitter}
	sort.Strings(kinds)
	return kinds
}

type iteratorEnv struct {
	media     Media
	segmenter *TextSegmenter
	defaults  models.ChunkParams
}

func newIterator(spec *models.IteratorSpec, base *models.TableInfo, env iteratorEnv) (Iterator, error) {
	params := spec.Params
	if params == nil {
		params = map[string]interface{}{}
	}

	column, err := paramString(params, "column", "")
	if err != nil {
		return nil, err
	}
	if column == "" {
		return nil, models.InvalidArgument("column", fmt.Sprintf("%s requires a column parameter", spec.Kind))
	}

	switch strings.ToLower(spec.Kind) {
	case IterAudioSplitter:
		if err := requireColumnType(base, column, models.TypeAudio); err != nil {
			return nil, err
		}
		p := env.defaults
		if p.ChunkDuration, err = paramFloat(params, "chunk_duration_sec", p.ChunkDuration); err != nil {
			return nil, err
		}
		if p.Overlap, err = paramFloat(params, "overlap_sec", p.Overlap); err != nil {
			return nil, err
		}
		if p.MinChunkDuration, err = paramFloat(params, "min_chunk_duration_sec", p.MinChunkDuration); err != nil {
			return nil, err
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		return &audioSplitter{column: column, params: p, media: env.media}, nil

	case IterStringSplitter:
		mode, err := splitMode(params)
		if err != nil {
			return nil, err
		}
		node, err := expr.Parse(column)
		if err != nil {
			return nil, err
		}
		ref, ok := node.(*expr.Ref)
		if !ok {
			return nil, models.InvalidArgument("column", fmt.Sprintf("string_splitter column must be a column or json path, got %s", column))
		}
		if err := expr.Validate(ref, base.ColumnTypeMap()); err != nil {
			return nil, err
		}
		if t := expr.InferType(ref, base.ColumnTypeMap()); t != models.TypeString && t != models.TypeJSON {
			return nil, models.InvalidArgument(column, fmt.Sprintf("string_splitter needs a string column, %s has type %s", column, t))
		}
		return &stringSplitter{ref: ref, mode: mode, segmenter: env.segmenter}, nil

	case IterDocumentSplitter:
		if err := requireColumnType(base, column, models.TypeDocument); err != nil {
			return nil, err
		}
		mode, err := splitMode(params)
		if err != nil {
			return nil, err
		}
		return &documentSplitter{column: column, mode: mode, media: env.media, segmenter: env.segmenter}, nil
	}

	return nil, models.InvalidArgument("iterator", fmt.Sprintf("unknown iterator %q; available iterators: %s", spec.Kind, strings.Join(IteratorKinds(), ", ")))
}

type audioSplitter struct {
	column string
	params models.ChunkParams
	media  Media
}

func (a *audioSplitter) Spec() *models.IteratorSpec {
	return &models.IteratorSpec{Kind: IterAudioSplitter, Params: map[string]interface{}{
		"column":                 a.column,
		"chunk_duration_sec":     a.params.ChunkDuration,
		"overlap_sec":            a.params.Overlap,
		"min_chunk_duration_sec": a.params.MinChunkDuration,
	}}
}

func (a *audioSplitter) Columns() []models.Column {
	return []models.Column{
		{Name: "audio_chunk", Type: models.TypeAudio, FromSource: true},
		{Name: "start_time_sec", Type: models.TypeFloat, FromSource: true},
		{Name: "end_time_sec", Type: models.TypeFloat, FromSource: true},
	}
}

func (a *audioSplitter) Expand(ctx context.Context, row *models.Row) ([]map[string]interface{}, error) {
	location, ok := row.Get(a.column).(string)
	if !ok || location == "" {
		return nil, nil
	}
	chunks, err := a.media.SplitAudio(ctx, location, a.params)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]interface{}, len(chunks))
	for i, c := range chunks {
		out[i] = map[string]interface{}{
			"start_time_sec": c.Span.Start,
			"end_time_sec":   c.Span.End,
		}
		if c.Err != nil {
			out[i][models.ColErrors] = map[string]string{"audio_chunk": c.Err.Error()}
			continue
		}
		out[i]["audio_chunk"] = c.Path
	}
	return out, nil
}

type stringSplitter struct {
	ref       *expr.Ref
	mode      models.SplitMode
	segmenter *TextSegmenter
}

func (s *stringSplitter) Spec() *models.IteratorSpec {
	return &models.IteratorSpec{Kind: IterStringSplitter, Params: map[string]interface{}{
		"column":     s.ref.String(),
		"separators": string(s.mode),
	}}
}

func (s *stringSplitter) Columns() []models.Column {
	return []models.Column{{Name: "text", Type: models.TypeString, FromSource: true}}
}

func (s *stringSplitter) Expand(ctx context.Context, row *models.Row) ([]map[string]interface{}, error) {
	v, err := expr.Eval(ctx, s.ref, row, nil)
	if err != nil || v == nil {
		return nil, err
	}
	text, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("%s is %T, not text", s.ref, v)
	}
	return textRows(s.segmenter.Split(text, s.mode)), nil
}

type documentSplitter struct {
	column    string
	mode      models.SplitMode
	media     Media
	segmenter *TextSegmenter
}

func (d *documentSplitter) Spec() *models.IteratorSpec {
	return &models.IteratorSpec{Kind: IterDocumentSplitter, Params: map[string]interface{}{
		"column":     d.column,
		"separators": string(d.mode),
	}}
}

func (d *documentSplitter) Columns() []models.Column {
	return []models.Column{{Name: "text", Type: models.TypeString, FromSource: true}}
}

func (d *documentSplitter) Expand(ctx context.Context, row *models.Row) ([]map[string]interface{}, error) {
	location, ok := row.Get(d.column).(string)
	if !ok || location == "" {
		return nil, nil
	}
	text, err := d.media.DocumentText(ctx, location)
	if err != nil {
		return nil, err
	}
	return textRows(d.segmenter.Split(text, d.mode)), nil
}

func textRows(units []models.TextUnit) []map[string]interface{} {
	out := make([]map[string]interface{}, len(units))
	for i, u := range units {
		out[i] = map[string]interface{}{"text": u.Text}
	}
	return out
}

func requireColumnType(base *models.TableInfo, column string, want models.ColumnType) error {
	col, ok := base.Column(column)
	if !ok {
		return models.NotFound(column, "column %q not found in %s; available columns: %s", column, base.Name, strings.Join(base.ColumnNames(), ", "))
	}
	if col.Type != want {
		return models.InvalidArgument(column, fmt.Sprintf("column %q has type %s, expected %s", column, col.Type, want))
	}
	return nil
}

func splitMode(params map[string]interface{}) (models.SplitMode, error) {
	s, err := paramString(params, "separators", "")
	if err != nil {
		return "", err
	}
	return models.ParseSplitMode(s)
}

func paramString(params map[string]interface{}, key, def string) (string, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", models.InvalidArgument(key, fmt.Sprintf("%s must be a string, got %T", key, v))
	}
	return strings.TrimSpace(s), nil
}

func paramFloat(params map[string]interface{}, key string, def float64) (float64, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err == nil {
			return f, nil
		}
	}
	return 0, models.InvalidArgument(key, fmt.Sprintf("%s must be a number, got %v", key, v))
}
