package search

// Pagination describes the windows adjacent to the current one.
// A nil offset means the window does not exist.
type Pagination struct {
	NextOffset     *int `json:"next_offset,omitempty"`
	NextLimit      *int `json:"next_limit,omitempty"`
	PreviousOffset *int `json:"previous_offset,omitempty"`
	PreviousLimit  *int `json:"previous_limit,omitempty"`
}

// HasNext reports whether a next window exists
func (p Pagination) HasNext() bool { return p.NextOffset != nil }

// HasPrevious reports whether a previous window exists
func (p Pagination) HasPrevious() bool { return p.PreviousOffset != nil }

// PaginationFor computes the next and previous windows for the window
// [offset, offset+limit) over total rows
func PaginationFor(offset, limit, total int) Pagination {
	var p Pagination
	if offset < 0 || offset >= total || limit <= 0 {
		return p
	}

	if next := offset + limit; next < total {
		p.NextOffset = intPtr(next)
		p.NextLimit = intPtr(limit)
	}

	if offset > 0 {
		prev := offset - limit
		if prev < 0 {
			prev = 0
		}
		p.PreviousOffset = intPtr(prev)
		p.PreviousLimit = intPtr(limit)
	}

	return p
}

func intPtr(i int) *int { return &i }
