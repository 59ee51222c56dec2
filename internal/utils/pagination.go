// Package utils provides small, generic helper functions used across
// different layers of the application. These utilities are independent
// of domain or business logic.
package utils

import "strconv"

// Page size bounds shared by every list endpoint.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// AtoiDefault converts a string to an int using strconv.Atoi.
// If the string is empty or cannot be parsed as an integer,
// it returns the provided default value instead.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// ClampPage parses raw page and page_size values. Unparseable input falls
// back to page 1 and DefaultPageSize; the size is kept in [1, MaxPageSize].
//
//	page, size := utils.ClampPage("3", "500") // 3, 100
func ClampPage(pageRaw, sizeRaw string) (page, size int) {
	page = max(AtoiDefault(pageRaw, 1), 1)
	size = min(max(AtoiDefault(sizeRaw, DefaultPageSize), 1), MaxPageSize)
	return page, size
}

// Offset returns the index of the first row of page.
func Offset(page, size int) int {
	return (page - 1) * size
}

// TotalPages returns how many pages of size hold total rows.
func TotalPages(total int64, size int) int {
	if size <= 0 || total <= 0 {
		return 0
	}
	return int((total + int64(size) - 1) / int64(size))
}
