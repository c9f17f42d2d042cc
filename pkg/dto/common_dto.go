package dto

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type AuthorResponse struct {
	ID         uint    `json:"id"`
	Username   string  `json:"username"`
	AvatarURL  *string `json:"avatar_url"`
	Reputation int     `json:"reputation"`
}

type PageQuery struct {
	Page     int `form:"page" binding:"omitempty,min=1"`
	PageSize int `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// Normalize fills defaults and returns offset and limit.
func (q *PageQuery) Normalize() (offset, limit int) {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
	return (q.Page - 1) * q.PageSize, q.PageSize
}

type PaginationMeta struct {
	CurrentPage int   `json:"current_page"`
	TotalPages  int   `json:"total_pages"`
	TotalItems  int64 `json:"total_items"`
	Limit       int   `json:"limit"`
}

func NewPaginationMeta(q PageQuery, total int64) PaginationMeta {
	totalPages := int(total) / q.PageSize
	if int(total)%q.PageSize != 0 {
		totalPages++
	}
	return PaginationMeta{
		CurrentPage: q.Page,
		TotalPages:  totalPages,
		TotalItems:  total,
		Limit:       q.PageSize,
	}
}
