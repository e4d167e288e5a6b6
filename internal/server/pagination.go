package server

import (
	"strconv"
	"strings"

	"dles/internal/web"

	"github.com/gin-gonic/gin"
)

func parsePagination(c *gin.Context, defaultLimit, maxLimit int) (int, int) {
	page := 1
	limit := defaultLimit
	if raw := strings.TrimSpace(c.Query("page")); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			page = value
		}
	}
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			limit = value
		}
	}
	if maxLimit > 0 && limit > maxLimit {
		limit = maxLimit
	}
	return page, limit
}

func totalPages(total int64, limit int) int {
	if limit <= 0 {
		limit = 1
	}
	pages := int((total + int64(limit) - 1) / int64(limit))
	if pages == 0 {
		pages = 1
	}
	return pages
}

func buildPaginationData(basePath string, page, limit int, total int64) web.PaginationData {
	if limit <= 0 {
		limit = 1
	}
	pages := totalPages(total, limit)
	if page <= 0 {
		page = 1
	}
	if page > pages {
		page = pages
	}
	data := web.PaginationData{
		BasePath:   basePath,
		Page:       page,
		PerPage:    limit,
		Total:      int(total),
		TotalPages: pages,
	}
	data.HasPrev = page > 1
	data.HasNext = page < pages
	if data.HasPrev {
		data.PrevPage = page - 1
	}
	if data.HasNext {
		data.NextPage = page + 1
	}
	return data
}
