// ABOUTME: Tests for Embedding model and dimension validation
// ABOUTME: Verifies vector dimension checking for embedding consistency
package models

import (
	"strings"
	"testing"
)

func TestEmbedding_ValidateDimension(t *testing.T) {
	tests := []struct {
		name        string
		embedding   Embedding
		expectedDim int
		wantErr     bool
		errContains string
	}{
		{
			name:        "valid dimension match",
			embedding:   Embedding{RowID: "row_001", Vector: []float64{0.1, 0.2, 0.3, 0.4}},
			expectedDim: 4,
		},
		{
			name:        "any dimension accepted",
			embedding:   Embedding{RowID: "row_002", Vector: []float64{0.1}},
			expectedDim: 0,
		},
		{
			name:        "empty vector",
			embedding:   Embedding{RowID: "row_003", Vector: []float64{}},
			expectedDim: 4,
			wantErr:     true,
			errContains: "cannot be empty",
		},
		{
			name:        "nil vector",
			embedding:   Embedding{RowID: "row_004"},
			expectedDim: 0,
			wantErr:     true,
			errContains: "cannot be empty",
		},
		{
			name:        "dimension mismatch",
			embedding:   Embedding{RowID: "row_005", Vector: []float64{0.1, 0.2}},
			expectedDim: 4,
			wantErr:     true,
			errContains: "expected 4, got 2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.embedding.ValidateDimension(tt.expectedDim)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateDimension() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("error = %q, want it to contain %q", err.Error(), tt.errContains)
			}
		})
	}
}
