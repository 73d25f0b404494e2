package documents

// PaginatedResult represents a paginated response with data and metadata
type PaginatedResult struct {
	Data       []*Document `json:"data"`
	Page       int         `json:"page"`
	PageSize   int         `json:"pageSize"`
	Total      int64       `json:"totalItems"`
	TotalPages int         `json:"totalPages"`
}

// NewPaginatedResult fills in the page count.
func NewPaginatedResult(data []*Document, page, pageSize int, total int64) PaginatedResult {
	pages := 0
	if pageSize > 0 {
		pages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	if data == nil {
		data = []*Document{}
	}
	return PaginatedResult{Data: data, Page: page, PageSize: pageSize, Total: total, TotalPages: pages}
}
