// ABOUTME: Tests for shared CLI utility functions
// ABOUTME: Covers truncation, cell formatting, kind parsing and port resolution

package commands

import (
	"testing"

	"github.com/harper/mediaindex/internal/models"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{"short string", "hello", 10, "hello"},
		{"exact length", "hello", 5, "hello"},
		{"needs truncation", "hello world", 8, "hello..."},
		{"tiny max", "hello", 2, "he"},
		{"unicode", "héllo wörld", 8, "héllo..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncate(tt.input, tt.maxLen); got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
			}
		})
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		name  string
		input interface{}
		want  string
	}{
		{"nil", nil, "-"},
		{"string with newline", "a\nb", "a b"},
		{"whole float", float64(30), "30"},
		{"fraction", 0.25, "0.25"},
		{"bool", true, "true"},
		{"object", map[string]interface{}{"k": "v"}, `{"k":"v"}`},
		{"list", []interface{}{"a", float64(1)}, `["a",1]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatValue(tt.input); got != tt.want {
				t.Errorf("formatValue(%v) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseKinds(t *testing.T) {
	tests := []struct {
		input   string
		want    []models.IndexKind
		wantErr bool
	}{
		{"audio", []models.IndexKind{models.IndexAudio}, false},
		{"all", models.IndexKinds, false},
		{"ALL", models.IndexKinds, false},
		{"audio,document,audio", []models.IndexKind{models.IndexAudio, models.IndexDocument}, false},
		{"podcast", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseKinds(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseKinds(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("parseKinds(%q) = %v, want %v", tt.input, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("parseKinds(%q)[%d] = %s, want %s", tt.input, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestResolvePort(t *testing.T) {
	tests := []struct {
		name    string
		kinds   []models.IndexKind
		port    int
		want    int
		wantErr bool
	}{
		{"audio default", []models.IndexKind{models.IndexAudio}, 0, 8080, false},
		{"video default", []models.IndexKind{models.IndexVideo}, 0, 8081, false},
		{"image default", []models.IndexKind{models.IndexImage}, 0, 8082, false},
		{"doc default", []models.IndexKind{models.IndexDocument}, 0, 8083, false},
		{"all uses first kind", models.IndexKinds, 0, 8080, false},
		{"explicit", []models.IndexKind{models.IndexImage}, 9000, 9000, false},
		{"out of range", []models.IndexKind{models.IndexAudio}, 70000, 0, true},
		{"no kinds", nil, 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolvePort(tt.kinds, tt.port)
			if (err != nil) != tt.wantErr {
				t.Fatalf("resolvePort() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("resolvePort() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestValidatePositiveInt(t *testing.T) {
	if err := validatePositiveInt(1, "limit"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := validatePositiveInt(0, "limit"); err == nil {
		t.Error("expected error for zero")
	}
}
