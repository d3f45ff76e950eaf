package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWindow(t *testing.T) {
	tests := []struct {
		name        string
		page, limit int
		offset      int
		size        int
	}{
		{"first page", 1, 10, 0, 10},
		{"third page", 3, 10, 20, 10},
		{"defaults", 0, 0, 0, DefaultPageSize},
		{"negative page", -4, 5, 0, 5},
		{"limit capped", 2, 1000, MaxPageSize, MaxPageSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			offset, size := Window(tt.page, tt.limit)
			assert.Equal(t, tt.offset, offset)
			assert.Equal(t, tt.size, size)
		})
	}
}

func TestWindow_HugePageDoesNotOverflow(t *testing.T) {
	for _, limit := range []int{1, 7, DefaultPageSize, MaxPageSize} {
		offset, size := Window(math.MaxInt, limit)
		assert.GreaterOrEqual(t, offset, 0, "limit %d", limit)
		assert.GreaterOrEqual(t, offset+size, offset, "limit %d", limit)
	}
}
