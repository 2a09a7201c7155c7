package core

// Pagination selects one page of a listing; pages start at 1.
type Pagination struct {
	Page    int
	PerPage int
}

func NewPagination(page, perPage int) Pagination {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	return Pagination{Page: page, PerPage: perPage}
}

func (p Pagination) Limit() int  { return p.PerPage }
func (p Pagination) Offset() int { return (p.Page - 1) * p.PerPage }

// Bounds returns the slice bounds of the page within a list of n items.
func (p Pagination) Bounds(n int) (int, int) {
	start := p.Offset()
	if start > n {
		start = n
	}
	end := start + p.Limit()
	if end > n {
		end = n
	}
	return start, end
}

type Page struct {
	CurrentPage int         `json:"current_page"`
	PerPage     int         `json:"per_page"`
	Total       int         `json:"total"`
	LastPage    int         `json:"last_page"`
	Data        interface{} `json:"data"`
}

func NewPage(p Pagination, total int, data interface{}) Page {
	last := 1
	if total > 0 && p.PerPage > 0 {
		last = (total + p.PerPage - 1) / p.PerPage
	}
	return Page{
		CurrentPage: p.Page,
		PerPage:     p.PerPage,
		Total:       total,
		LastPage:    last,
		Data:        data,
	}
}
