// ABOUTME: Plans overlapping fixed-duration chunks over an asset and cuts them
// ABOUTME: Planning is pure; cutting runs ffmpeg once per span in parallel
package media

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/harper/mediaindex/internal/models"
)

// Chunk is a cut span with the path of its audio file. Err is set instead of
// Path when cutting this span failed.
type Chunk struct {
	Span models.ChunkSpan
	Path string
	Err  error
}

// PlanChunks divides [0, duration) into spans of p.ChunkDuration that overlap
// by p.Overlap. A trailing span shorter than p.MinChunkDuration is merged into
// the span before it; an asset shorter than the minimum yields one span.
func PlanChunks(duration float64, p models.ChunkParams) ([]models.ChunkSpan, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if duration <= 0 || math.IsNaN(duration) || math.IsInf(duration, 0) {
		return nil, models.InvalidArgument("duration", fmt.Sprintf("asset duration must be positive, got %v", duration))
	}

	var spans []models.ChunkSpan
	start := 0.0
	for {
		end := math.Min(start+p.ChunkDuration, duration)
		spans = append(spans, models.ChunkSpan{Index: len(spans), Start: start, End: end})
		if end >= duration {
			break
		}
		start = end - p.Overlap
	}

	if n := len(spans); n > 1 && spans[n-1].Duration() < p.MinChunkDuration {
		spans[n-2].End = spans[n-1].End
		spans = spans[:n-1]
	}
	return spans, nil
}

// Split probes src, plans its chunks and cuts each one. At most workers
// ffmpeg processes run at once. Chunks are returned in span order; a failed
// cut is reported on its chunk and does not stop the others. Split fails only
// when nothing could be cut or ctx is done.
func (t *Toolkit) Split(ctx context.Context, src string, p models.ChunkParams, workers int) ([]Chunk, error) {
	duration, err := t.Probe(ctx, src)
	if err != nil {
		return nil, err
	}
	spans, err := PlanChunks(duration, p)
	if err != nil {
		return nil, err
	}

	chunks := make([]Chunk, len(spans))
	var g errgroup.Group
	g.SetLimit(max(workers, 1))
	for i, span := range spans {
		g.Go(func() error {
			chunks[i].Span = span
			path, err := t.ExtractSpan(ctx, src, span)
			if err != nil {
				chunks[i].Err = fmt.Errorf("chunk %d (%.1fs-%.1fs): %w", span.Index, span.Start, span.End, err)
				return nil
			}
			chunks[i].Path = path
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	failed := 0
	for _, c := range chunks {
		if c.Err != nil {
			failed++
		}
	}
	if failed == len(chunks) {
		return nil, chunks[0].Err
	}
	return chunks, nil
}
