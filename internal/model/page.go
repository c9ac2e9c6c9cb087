package model

// Pagination limits
const (
	DefaultPageLimit = 10
	MaxPageLimit     = 50
)

// Pagination describes where a Page sits in the file's comment sequence.
type Pagination struct {
	Total   int  `json:"total"`
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	Pages   int  `json:"pages"`
	HasMore bool `json:"hasMore"`
}

// NewPagination derives pages and hasMore from total and limit.
func NewPagination(total, page, limit int) Pagination {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return Pagination{
		Total:   total,
		Page:    page,
		Limit:   limit,
		Pages:   pages,
		HasMore: page < pages,
	}
}

// Page is one newest-first slice of a file's comments. It is built fresh
// for every query and never mutated by the server.
type Page struct {
	Comments   []Comment  `json:"comments"`
	Pagination Pagination `json:"pagination"`
}

// ValidatePageParams rejects out-of-range pagination input.
func ValidatePageParams(page, limit int) error {
	if page < 1 {
		return NewValidationError("page", "page must be at least 1")
	}
	if limit < 1 || limit > MaxPageLimit {
		return NewValidationError("limit", "limit must be between 1 and 50")
	}
	return nil
}
