package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaginationFor(t *testing.T) {
	tests := []struct {
		name                       string
		offset, limit, total       int
		wantNext, wantPrev         bool
		nextOffset, previousOffset int
	}{
		{name: "first page", offset: 0, limit: 10, total: 25, wantNext: true, nextOffset: 10},
		{name: "middle page", offset: 10, limit: 10, total: 25, wantNext: true, nextOffset: 20, wantPrev: true, previousOffset: 0},
		{name: "last page", offset: 20, limit: 10, total: 25, wantPrev: true, previousOffset: 10},
		{name: "exact fit", offset: 0, limit: 25, total: 25},
		{name: "unaligned previous", offset: 5, limit: 10, total: 25, wantNext: true, nextOffset: 15, wantPrev: true, previousOffset: 0},
		{name: "past the end", offset: 30, limit: 10, total: 25},
		{name: "empty result", offset: 0, limit: 10, total: 0},
		{name: "zero limit", offset: 0, limit: 0, total: 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := PaginationFor(tt.offset, tt.limit, tt.total)

			assert.Equal(t, tt.wantNext, p.HasNext())
			assert.Equal(t, tt.wantPrev, p.HasPrevious())
			if tt.wantNext {
				assert.Equal(t, tt.nextOffset, *p.NextOffset)
				assert.Equal(t, tt.limit, *p.NextLimit)
			}
			if tt.wantPrev {
				assert.Equal(t, tt.previousOffset, *p.PreviousOffset)
				assert.Equal(t, tt.limit, *p.PreviousLimit)
			}
		})
	}
}
