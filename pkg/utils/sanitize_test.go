package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "ACME Corp", "ACME Corp"},
		{"control chars", "AC\x00ME\x07", "ACME"},
		{"keeps newline", "line1\nline2", "line1\nline2"},
		{"trims", "  padded  ", "padded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeString(tt.in))
		})
	}
}
