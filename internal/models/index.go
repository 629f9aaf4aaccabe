// ABOUTME: Named media index kinds and their table/view naming layout
// ABOUTME: Each kind owns a directory holding base table, chunk and sentence views
package models

import (
	"fmt"
	"strings"
)

// IndexKind is the media type a named index ingests
type IndexKind string

const (
	IndexAudio    IndexKind = "audio"
	IndexVideo    IndexKind = "video"
	IndexImage    IndexKind = "image"
	IndexDocument IndexKind = "doc"
)

// IndexKinds lists every supported kind
var IndexKinds = []IndexKind{IndexAudio, IndexVideo, IndexImage, IndexDocument}

// ParseIndexKind maps a name onto a kind
func ParseIndexKind(s string) (IndexKind, error) {
	k := IndexKind(strings.ToLower(strings.TrimSpace(s)))
	if k == "document" {
		k = IndexDocument
	}
	for _, known := range IndexKinds {
		if k == known {
			return k, nil
		}
	}
	return "", InvalidArgument("kind", fmt.Sprintf("unknown index kind %q: use audio, video, image or doc", s))
}

// Directory is the table directory that holds indexes of this kind
func (k IndexKind) Directory() string {
	return string(k) + "_index"
}

// AssetColumn is the base table column holding the asset location
func (k IndexKind) AssetColumn() string {
	switch k {
	case IndexAudio:
		return "audio_file"
	case IndexVideo:
		return "video"
	case IndexImage:
		return "image"
	case IndexDocument:
		return "document"
	}
	return "asset"
}

// AssetType is the column type of the asset column
func (k IndexKind) AssetType() ColumnType {
	switch k {
	case IndexAudio:
		return TypeAudio
	case IndexVideo:
		return TypeVideo
	case IndexImage:
		return TypeImage
	}
	return TypeDocument
}

// IndexLayout names the structures backing one named index
type IndexLayout struct {
	Kind      IndexKind `json:"kind"`
	Name      string    `json:"name"`
	Table     string    `json:"table"`
	Chunks    string    `json:"chunks,omitempty"`
	Sentences string    `json:"sentences,omitempty"`
}

// NewIndexLayout derives the table and view names for an index
func NewIndexLayout(kind IndexKind, name string) (IndexLayout, error) {
	name = strings.TrimSpace(name)
	if err := ValidateColumnName(name); err != nil {
		return IndexLayout{}, InvalidArgument("table_name", fmt.Sprintf("invalid index name %q: use letters, digits and underscores", name))
	}
	dir := kind.Directory()
	layout := IndexLayout{
		Kind:  kind,
		Name:  name,
		Table: dir + "." + name,
	}
	switch kind {
	case IndexAudio, IndexVideo:
		layout.Chunks = dir + "." + name + "_chunks"
		layout.Sentences = dir + "." + name + "_sentence_chunks"
	case IndexDocument:
		layout.Chunks = dir + "." + name + "_chunks"
	}
	return layout, nil
}

// SearchTable is the table or view carrying the embedding index
func (l IndexLayout) SearchTable() string {
	switch l.Kind {
	case IndexAudio, IndexVideo:
		return l.Sentences
	case IndexDocument:
		return l.Chunks
	}
	return l.Table
}

// SearchColumn is the indexed text column
func (l IndexLayout) SearchColumn() string {
	if l.Kind == IndexImage {
		return "caption"
	}
	return "text"
}
