package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name             string
		page, size       int
		wantFrom, wantSz int
	}{
		{"first page", 1, 20, 0, 20},
		{"third page", 3, 20, 40, 20},
		{"zero page", 0, 5, 0, 5},
		{"negative size", 2, -1, DefaultPageSize, DefaultPageSize},
		{"too large", 1, 1000, 0, DefaultPageSize},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			from, size := Calculate(tt.page, tt.size)
			assert.Equal(t, tt.wantFrom, from)
			assert.Equal(t, tt.wantSz, size)
		})
	}
}

func TestParseIntDefault(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 4, ParseIntDefault("4", 1))
	assert.Equal(t, 1, ParseIntDefault("", 1))
	assert.Equal(t, 1, ParseIntDefault("x", 1))
}
