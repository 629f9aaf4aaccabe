// ABOUTME: Extracts plain text from document assets
// ABOUTME: Text and markdown are read directly, HTML goes through readability
package media

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	readability "github.com/go-shiori/go-readability"

	"github.com/harper/mediaindex/internal/models"
)

// ReadDocument returns the text content of the document at path. sourceURL
// is the original location and is used to resolve relative links in HTML.
func ReadDocument(path, sourceURL string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", models.NotFound(path, "document not found: %s", path)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".html", ".htm", ".xhtml":
		return htmlText(data, sourceURL)
	case ".txt", ".md", ".markdown", ".text", ".rst", "":
		if ext == "" && looksLikeHTML(data) {
			return htmlText(data, sourceURL)
		}
		if !utf8.Valid(data) {
			return "", models.InvalidArgument(path, fmt.Sprintf("document %s is not valid UTF-8 text", path))
		}
		return strings.TrimSpace(string(data)), nil
	default:
		return "", models.InvalidArgument(path, fmt.Sprintf("unsupported document type %q: use .txt, .md or .html", ext))
	}
}

func htmlText(data []byte, sourceURL string) (string, error) {
	pageURL, err := url.Parse(sourceURL)
	if err != nil || sourceURL == "" {
		pageURL = &url.URL{Scheme: "file", Path: "/"}
	}
	article, err := readability.FromReader(bytes.NewReader(data), pageURL)
	if err != nil {
		return "", fmt.Errorf("failed to extract article text: %w", err)
	}
	text := strings.TrimSpace(article.TextContent)
	if title := strings.TrimSpace(article.Title); title != "" && !strings.HasPrefix(text, title) {
		text = title + "\n\n" + text
	}
	return text, nil
}

func looksLikeHTML(data []byte) bool {
	head := strings.ToLower(string(data[:min(len(data), 512)]))
	return strings.Contains(head, "<html") || strings.Contains(head, "<!doctype html")
}
