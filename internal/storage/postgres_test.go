package storage

import "testing"

func TestSanitizeConfidence(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{0.85, 0.85},
		{0.123456, 0.1235},
		{0.99999, 1.0},
		{-0.5, 0.0},
		{1.7, 1.0},
		{0.0, 0.0},
	}

	for _, tt := range tests {
		if got := sanitizeConfidence(tt.in); got != tt.want {
			t.Errorf("sanitizeConfidence(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewPostgresClientRequiresURL(t *testing.T) {
	if _, err := NewPostgresClient(""); err == nil {
		t.Fatal("empty database URL accepted")
	}
}
