// ABOUTME: Chunk spans of media assets and text split units
// ABOUTME: Supports asset → chunk → sentence derivation with provenance
package models

import (
	"fmt"
	"strings"
)

// SplitMode selects how text is divided into units
type SplitMode string

const (
	SplitParagraph SplitMode = "paragraph"
	SplitSentence  SplitMode = "sentence"
)

// IsValid reports whether the split mode is known
func (m SplitMode) IsValid() bool {
	return m == SplitParagraph || m == SplitSentence
}

// ParseSplitMode maps a separators argument onto a split mode
func ParseSplitMode(s string) (SplitMode, error) {
	m := SplitMode(strings.ToLower(strings.TrimSpace(s)))
	if m == "" {
		return SplitSentence, nil
	}
	if !m.IsValid() {
		return "", InvalidArgument("separators", fmt.Sprintf("unknown separators %q: use sentence or paragraph", s))
	}
	return m, nil
}

// ChunkParams configures time-based media segmentation
type ChunkParams struct {
	ChunkDuration    float64 `json:"chunk_duration_sec"`
	Overlap          float64 `json:"overlap_sec"`
	MinChunkDuration float64 `json:"min_chunk_duration_sec"`
}

// DefaultChunkParams mirrors the audio index defaults: 30s chunks, 2s overlap, 5s minimum
func DefaultChunkParams() ChunkParams {
	return ChunkParams{ChunkDuration: 30, Overlap: 2, MinChunkDuration: 5}
}

// Validate checks the parameters describe a terminating segmentation
func (p ChunkParams) Validate() error {
	if p.ChunkDuration <= 0 {
		return InvalidArgument("chunk_duration_sec", "chunk_duration_sec must be positive")
	}
	if p.Overlap < 0 || p.Overlap >= p.ChunkDuration {
		return InvalidArgument("overlap_sec", "overlap_sec must be >= 0 and smaller than chunk_duration_sec")
	}
	if p.MinChunkDuration < 0 || p.MinChunkDuration > p.ChunkDuration {
		return InvalidArgument("min_chunk_duration_sec", "min_chunk_duration_sec must be between 0 and chunk_duration_sec")
	}
	return nil
}

// ChunkSpan is a time-bounded slice of an asset
type ChunkSpan struct {
	Index int     `json:"index"`
	Start float64 `json:"start_time_sec"`
	End   float64 `json:"end_time_sec"`
}

// Duration returns the span length in seconds
func (s ChunkSpan) Duration() float64 {
	return s.End - s.Start
}

// TextUnit is one split piece of text with its position in the source
type TextUnit struct {
	Pos  int    `json:"pos"`
	Text string `json:"text"`
}
