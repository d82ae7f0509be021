package util

const DefaultPageSize = 10

func Calculate(page, size int) (offset, limit int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = DefaultPageSize
	}
	offset = (page - 1) * size
	return offset, size
}

type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int64 `json:"pages"`
}

func Paginate(page, limit int, total int64) Pagination {
	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = DefaultPageSize
	}
	return Pagination{
		Page:  page,
		Limit: limit,
		Total: total,
		Pages: (total + int64(limit) - 1) / int64(limit),
	}
}
