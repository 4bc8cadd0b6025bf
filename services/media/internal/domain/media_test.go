package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidSegment(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"checkout", true},
		{"cart_42-a", true},
		{"", false},
		{"../etc", false},
		{"a/b", false},
		{"with space", false},
		{string(make([]byte, 65)), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsValidSegment(tt.in), "%q", tt.in)
	}
}
