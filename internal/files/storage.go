package files

import (
	"context"
	"io"
)

// Stored describes bytes written by a Storage.
type Stored struct {
	// Name is the generated file name, unique within the storage.
	Name string
	// Path locates the bytes inside the storage namespace.
	Path string
	// Size is the number of bytes written.
	Size int64
	// ContentType is the type detected from the written bytes.
	ContentType string
}

// Validator checks uploads against the document policy.
type Validator interface {
	ValidateCategory(category string) error
	ValidateFile(contentType string, size int64) error
}

// Storage defines the interface for the physical file storage
type Storage interface {
	// Store writes content under a category-scoped path with a generated name.
	Store(content io.Reader, name string, category Category) (*Stored, error)

	// Delete removes the bytes at path. A missing path is not an error.
	Delete(path string) error

	// Exists checks if path exists
	Exists(path string) bool
}

// Repository defines the interface for storing and retrieving file metadata
type Repository interface {
	// Create persists file and assigns its ID and timestamps.
	Create(ctx context.Context, file *File) error

	// FindByID returns ErrNotFound when no row has the id.
	FindByID(ctx context.Context, id int64) (*File, error)

	// Delete removes one row inside a transaction. Returns ErrNotFound
	// when no row has the id.
	Delete(ctx context.Context, id int64) error

	// List returns all rows, oldest first.
	List(ctx context.Context) ([]*File, error)

	// ListGrouped returns all rows grouped by category, every category present.
	ListGrouped(ctx context.Context) (Grouped, error)
}
