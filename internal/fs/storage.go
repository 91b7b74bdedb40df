package fs

import (
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/pavel-fokin/dossier-files/internal/files"
)

// sniffLen is how many leading bytes are kept for content detection.
const sniffLen = 3072

// Storage implements files.Storage on top of an afero filesystem
type Storage struct {
	fs      afero.Fs
	baseDir string
}

// NewStorage creates a storage rooted at dataDir on the OS filesystem
func NewStorage(dataDir, baseDir string) (*Storage, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return NewStorageFs(afero.NewBasePathFs(afero.NewOsFs(), dataDir), baseDir), nil
}

// NewStorageFs creates a storage over an arbitrary afero filesystem
func NewStorageFs(fsys afero.Fs, baseDir string) *Storage {
	return &Storage{
		fs:      fsys,
		baseDir: strings.Trim(filepath.ToSlash(baseDir), "/"),
	}
}

// Store writes content to <base>/<category>/<uuid><ext>. The name is never
// reused: an existing path fails the write.
func (s *Storage) Store(content io.Reader, name string, category files.Category) (*files.Stored, error) {
	storedName := generateName(name)
	dir := path.Join(s.baseDir, string(category))
	storagePath := path.Join(dir, storedName)

	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create category directory: %w", err)
	}

	file, err := s.fs.OpenFile(storagePath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	head := &headBuffer{limit: sniffLen}
	size, err := io.Copy(file, io.TeeReader(content, head))
	if err != nil {
		file.Close()
		s.fs.Remove(storagePath)
		return nil, fmt.Errorf("failed to write file content: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		s.fs.Remove(storagePath)
		return nil, fmt.Errorf("failed to sync file: %w", err)
	}

	if err := file.Close(); err != nil {
		s.fs.Remove(storagePath)
		return nil, fmt.Errorf("failed to close file: %w", err)
	}

	return &files.Stored{
		Name:        storedName,
		Path:        storagePath,
		Size:        size,
		ContentType: DetectContentType(head.Bytes()),
	}, nil
}

// Delete removes the file at storagePath
func (s *Storage) Delete(storagePath string) error {
	if !s.Exists(storagePath) {
		return nil // File already deleted
	}
	if err := s.fs.Remove(storagePath); err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// Exists checks if a file exists
func (s *Storage) Exists(storagePath string) bool {
	info, err := s.fs.Stat(storagePath)
	return err == nil && !info.IsDir()
}

// ModTime returns when the file at storagePath was last written.
func (s *Storage) ModTime(storagePath string) (time.Time, error) {
	info, err := s.fs.Stat(storagePath)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to stat file: %w", err)
	}
	return info.ModTime(), nil
}

// List returns the path of every stored file, sorted.
func (s *Storage) List() ([]string, error) {
	var paths []string

	err := afero.Walk(s.fs, s.baseDir, func(p string, info iofs.FileInfo, err error) error {
		if err != nil {
			if errors.Is(err, iofs.ErrNotExist) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		paths = append(paths, filepath.ToSlash(p))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk storage: %w", err)
	}

	return paths, nil
}

// FileSystem exposes the stored files for read-only HTTP serving.
func (s *Storage) FileSystem() http.FileSystem {
	return afero.NewHttpFs(afero.NewReadOnlyFs(s.fs))
}

// DetectContentType returns the MIME type of data without parameters.
func DetectContentType(data []byte) string {
	mtype := mimetype.Detect(data).String()
	if i := strings.Index(mtype, ";"); i != -1 {
		mtype = strings.TrimSpace(mtype[:i])
	}
	return mtype
}

// generateName returns a random name keeping the lower-cased extension of
// the original name.
func generateName(originalName string) string {
	ext := strings.ToLower(filepath.Ext(originalName))
	if ext == "." {
		ext = ""
	}
	return uuid.NewString() + ext
}

// headBuffer keeps the first limit bytes written to it.
type headBuffer struct {
	buf   []byte
	limit int
}

func (h *headBuffer) Write(p []byte) (int, error) {
	if room := h.limit - len(h.buf); room > 0 {
		if len(p) < room {
			room = len(p)
		}
		h.buf = append(h.buf, p[:room]...)
	}
	return len(p), nil
}

func (h *headBuffer) Bytes() []byte {
	return h.buf
}
