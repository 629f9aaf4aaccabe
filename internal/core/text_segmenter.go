// ABOUTME: TextSegmenter splits transcript and document text into ordered units
// ABOUTME: Implements paragraph and sentence splitting with stable positions
package core

import (
	"strings"
	"unicode"

	"github.com/harper/mediaindex/internal/models"
)

// TextSegmenter handles sentence and paragraph splitting
type TextSegmenter struct{}

// NewTextSegmenter creates a new TextSegmenter instance
func NewTextSegmenter() *TextSegmenter {
	return &TextSegmenter{}
}

// Split divides text into units in source order. Blank text yields no units.
func (ts *TextSegmenter) Split(text string, mode models.SplitMode) []models.TextUnit {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var pieces []string
	switch mode {
	case models.SplitParagraph:
		pieces = splitParagraphs(text)
	default:
		for _, para := range splitParagraphs(text) {
			pieces = append(pieces, splitSentences(para)...)
		}
	}

	units := make([]models.TextUnit, 0, len(pieces))
	for _, p := range pieces {
		units = append(units, models.TextUnit{Pos: len(units), Text: p})
	}
	return units
}

// splitParagraphs splits text on blank lines
func splitParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var result []string
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.Join(strings.Fields(para), " ")
		if para != "" {
			result = append(result, para)
		}
	}
	return result
}

// splitSentences cuts after '.', '!' or '?' when followed by whitespace or the end of text.
// Runs of terminators and closing quotes stay with their sentence.
func splitSentences(text string) []string {
	runes := []rune(text)

	var result []string
	start := 0
	for i := 0; i < len(runes); i++ {
		if !isTerminator(runes[i]) {
			continue
		}
		end := i + 1
		for end < len(runes) && (isTerminator(runes[end]) || isClosing(runes[end])) {
			end++
		}
		if end < len(runes) && !unicode.IsSpace(runes[end]) {
			continue
		}
		if sent := strings.TrimSpace(string(runes[start:end])); sent != "" {
			result = append(result, sent)
		}
		start = end
		i = end - 1
	}

	if rest := strings.TrimSpace(string(runes[start:])); rest != "" {
		result = append(result, rest)
	}
	return result
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isClosing(r rune) bool {
	return r == '"' || r == '\'' || r == ')' || r == '”' || r == '’'
}
