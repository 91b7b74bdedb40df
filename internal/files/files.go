package files

import (
	"io"
	"time"
)

// Category is the document classification of an uploaded file.
type Category string

const (
	CategoryPassport    Category = "passport"
	CategoryUtilityBill Category = "utility_bill"
	CategoryOther       Category = "other"
)

// Categories lists every valid category in display order.
var Categories = []Category{
	CategoryPassport,
	CategoryUtilityBill,
	CategoryOther,
}

// ParseCategory returns the category named by s. The match is exact and
// case-sensitive.
func ParseCategory(s string) (Category, bool) {
	for _, c := range Categories {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// File is the metadata row of one stored document.
type File struct {
	ID           int64
	Name         string
	OriginalName string
	Category     Category
	Path         string
	ContentType  string
	Size         int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Grouped maps every category to its files. All categories are present,
// empty ones map to an empty slice.
type Grouped map[Category][]*File

// GroupByCategory buckets files by category, keeping their order.
func GroupByCategory(list []*File) Grouped {
	grouped := make(Grouped, len(Categories))
	for _, c := range Categories {
		grouped[c] = []*File{}
	}
	for _, f := range list {
		if _, ok := grouped[f.Category]; !ok {
			continue
		}
		grouped[f.Category] = append(grouped[f.Category], f)
	}
	return grouped
}

// Upload is a file received from a client, before validation.
type Upload struct {
	Name        string
	Category    string
	ContentType string
	Size        int64
	Content     io.Reader
}
