package files

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when no metadata row matches an id.
	ErrNotFound = errors.New("file not found")

	// ErrStorage marks failures of the physical byte store.
	ErrStorage = errors.New("storage failure")
)

// InvalidCategoryError reports a category outside the fixed set.
type InvalidCategoryError struct {
	Category string
	Valid    []Category
}

func (e *InvalidCategoryError) Error() string {
	valid := make([]string, len(e.Valid))
	for i, c := range e.Valid {
		valid[i] = string(c)
	}
	return "Invalid file type. Allowed types: " + strings.Join(valid, ", ")
}

// RejectionReason names the policy limit a file breached.
type RejectionReason string

const (
	ReasonSize        RejectionReason = "size"
	ReasonContentType RejectionReason = "content_type"
)

// RejectedError reports a file refused by the size or MIME policy.
type RejectedError struct {
	Reason  RejectionReason
	Message string
}

func (e *RejectedError) Error() string {
	return e.Message
}

func newSizeRejection(limit int64) *RejectedError {
	return &RejectedError{
		Reason:  ReasonSize,
		Message: fmt.Sprintf("File size must not exceed %dMB", limit/1024/1024),
	}
}

func newContentTypeRejection(allowed []string) *RejectedError {
	return &RejectedError{
		Reason:  ReasonContentType,
		Message: "Invalid file type. Allowed types: " + strings.Join(allowed, ", "),
	}
}
