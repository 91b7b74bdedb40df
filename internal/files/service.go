package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/dustin/go-humanize"
)

// Service sequences validation, storage and metadata for documents
type Service struct {
	validator Validator
	storage   Storage
	repo      Repository
}

// NewService creates a new file service
func NewService(validator Validator, storage Storage, repo Repository) *Service {
	return &Service{
		validator: validator,
		storage:   storage,
		repo:      repo,
	}
}

// Store validates an upload, writes its bytes and records its metadata.
//
// Validation errors are returned unchanged and nothing is kept: the written
// bytes are checked again for size and detected type. Storage
// errors wrap ErrStorage and no row is created. If the row cannot be
// created the bytes stay on disk; they are logged so the reconciliation
// sweep can find them.
func (s *Service) Store(ctx context.Context, upload *Upload) (*File, error) {
	if err := s.validator.ValidateCategory(upload.Category); err != nil {
		return nil, err
	}
	if err := s.validator.ValidateFile(upload.ContentType, upload.Size); err != nil {
		return nil, err
	}
	category := Category(upload.Category)

	// One byte past MaxSize is enough to tell an under-reported size.
	content := io.LimitReader(upload.Content, MaxSize+1)
	stored, err := s.storage.Store(content, upload.Name, category)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to store file: %w", ErrStorage, err)
	}

	contentType := upload.ContentType
	if stored.ContentType != "" {
		contentType = stored.ContentType
	}
	if !sameContentType(contentType, upload.ContentType) {
		slog.Warn("Declared content type differs from stored bytes",
			"declared", upload.ContentType,
			"detected", contentType,
			"path", stored.Path,
		)
	}

	// The written bytes decide: declared size and type are client claims.
	if err := s.validator.ValidateFile(contentType, stored.Size); err != nil {
		if delErr := s.storage.Delete(stored.Path); delErr != nil {
			slog.Warn("Failed to delete rejected file", "orphaned_path", stored.Path, "error", delErr)
		}
		return nil, err
	}

	file := &File{
		Name:         stored.Name,
		OriginalName: upload.Name,
		Category:     category,
		Path:         stored.Path,
		ContentType:  contentType,
		Size:         stored.Size,
	}
	if err := s.repo.Create(ctx, file); err != nil {
		slog.Warn("Stored file has no metadata row", "orphaned_path", stored.Path, "error", err)
		return nil, fmt.Errorf("failed to save file metadata: %w", err)
	}

	slog.Info("File stored",
		"file_id", file.ID,
		"file_type", file.Category,
		"path", file.Path,
		"size", humanize.IBytes(uint64(file.Size)),
	)
	return file, nil
}

// Delete removes a document. The physical delete is best effort: its
// failure is logged and the metadata row is still removed, since the row
// decides whether the document exists.
func (s *Service) Delete(ctx context.Context, id int64) error {
	file, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.storage.Delete(file.Path); err != nil {
		slog.Warn("Failed to delete stored bytes", "file_id", id, "orphaned_path", file.Path, "error", err)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete file metadata: %w", err)
	}

	slog.Info("File deleted", "file_id", id, "path", file.Path)
	return nil
}

// ListGrouped returns every document grouped by category.
func (s *Service) ListGrouped(ctx context.Context) (Grouped, error) {
	return s.repo.ListGrouped(ctx)
}

// sameContentType treats image/jpg as an alias of image/jpeg.
func sameContentType(a, b string) bool {
	norm := func(s string) string {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "image/jpg" {
			return "image/jpeg"
		}
		return s
	}
	return norm(a) == norm(b)
}
