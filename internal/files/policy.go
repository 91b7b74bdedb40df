package files

import "slices"

// MaxSize is the largest accepted document, in bytes.
const MaxSize int64 = 4 * 1024 * 1024

// AllowedContentTypes is the MIME allow-list for documents.
var AllowedContentTypes = []string{
	"image/jpeg",
	"image/jpg",
	"image/png",
	"application/pdf",
}

// Policy implements Validator with fixed limits.
type Policy struct {
	maxSize      int64
	contentTypes []string
}

// NewPolicy returns the document policy: MaxSize and AllowedContentTypes.
func NewPolicy() *Policy {
	return &Policy{
		maxSize:      MaxSize,
		contentTypes: AllowedContentTypes,
	}
}

// ValidateCategory fails with *InvalidCategoryError unless category is one
// of Categories.
func (p *Policy) ValidateCategory(category string) error {
	if _, ok := ParseCategory(category); !ok {
		return &InvalidCategoryError{Category: category, Valid: Categories}
	}
	return nil
}

// ValidateFile checks size, then content type. It fails with
// *RejectedError on the first breached limit.
func (p *Policy) ValidateFile(contentType string, size int64) error {
	if size > p.maxSize {
		return newSizeRejection(p.maxSize)
	}
	if !slices.Contains(p.contentTypes, contentType) {
		return newContentTypeRejection(p.contentTypes)
	}
	return nil
}
