package utils

import "github.com/gofiber/fiber/v2"

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Page is a window into a listing, taken from ?page= and ?limit=.
type Page struct {
	Number int
	Size   int
}

// ParsePage reads the page query. Bad or missing values fall back to the first page of
// defaultPageSize; sizes above maxPageSize are clamped.
func ParsePage(c *fiber.Ctx) Page {
	page := Page{
		Number: c.QueryInt("page", 1),
		Size:   c.QueryInt("limit", defaultPageSize),
	}
	if page.Number < 1 {
		page.Number = 1
	}
	switch {
	case page.Size < 1:
		page.Size = defaultPageSize
	case page.Size > maxPageSize:
		page.Size = maxPageSize
	}
	return page
}

// Offset is the number of rows skipped before this page.
func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

// Meta is the pagination block sent next to a listing of total rows.
func (p Page) Meta(total int64) fiber.Map {
	pages := (total + int64(p.Size) - 1) / int64(p.Size)
	return fiber.Map{
		"current_page":   p.Number,
		"items_per_page": p.Size,
		"total_items":    total,
		"total_pages":    pages,
		"has_next":       int64(p.Number) < pages,
	}
}
