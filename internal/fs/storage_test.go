package fs

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavel-fokin/dossier-files/internal/files"
)

var pdfHeader = []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n1 0 obj\n<<>>\nendobj\n")

func newMemStorage() *Storage {
	return NewStorageFs(afero.NewBasePathFs(afero.NewMemMapFs(), "/data"), "dossier-files")
}

func TestStorageStore(t *testing.T) {
	s := newMemStorage()

	stored, err := s.Store(bytes.NewReader(pdfHeader), "My Passport.PDF", files.CategoryPassport)
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(stored.Name, ".pdf"))
	assert.Len(t, stored.Name, 36+len(".pdf"))
	assert.Equal(t, "dossier-files/passport/"+stored.Name, stored.Path)
	assert.Equal(t, int64(len(pdfHeader)), stored.Size)
	assert.Equal(t, "application/pdf", stored.ContentType)
	assert.True(t, s.Exists(stored.Path))

	data, err := afero.ReadFile(s.fs, stored.Path)
	require.NoError(t, err)
	assert.Equal(t, pdfHeader, data)
}

func TestStorageStoreUniqueNames(t *testing.T) {
	s := newMemStorage()

	first, err := s.Store(strings.NewReader("a"), "scan.png", files.CategoryOther)
	require.NoError(t, err)
	second, err := s.Store(strings.NewReader("b"), "scan.png", files.CategoryOther)
	require.NoError(t, err)

	assert.NotEqual(t, first.Path, second.Path)
}

func TestStorageStoreWithoutExtension(t *testing.T) {
	s := newMemStorage()

	stored, err := s.Store(strings.NewReader("data"), "README", files.CategoryOther)
	require.NoError(t, err)

	assert.NotContains(t, stored.Name, ".")
	assert.Equal(t, int64(4), stored.Size)
}

type failingReader struct{}

func (failingReader) Read(p []byte) (int, error) {
	return 0, errors.New("connection reset")
}

func TestStorageStoreRemovesPartialFile(t *testing.T) {
	s := newMemStorage()

	_, err := s.Store(io.MultiReader(strings.NewReader("partial"), failingReader{}), "x.pdf", files.CategoryPassport)
	require.Error(t, err)

	paths, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestStorageDelete(t *testing.T) {
	s := newMemStorage()

	stored, err := s.Store(strings.NewReader("bill"), "bill.jpg", files.CategoryUtilityBill)
	require.NoError(t, err)

	require.NoError(t, s.Delete(stored.Path))
	assert.False(t, s.Exists(stored.Path))

	// deleting again is not an error
	assert.NoError(t, s.Delete(stored.Path))
	assert.NoError(t, s.Delete("dossier-files/passport/missing.pdf"))
}

func TestStorageExistsIgnoresDirectories(t *testing.T) {
	s := newMemStorage()

	_, err := s.Store(strings.NewReader("x"), "x.png", files.CategoryOther)
	require.NoError(t, err)

	assert.False(t, s.Exists("dossier-files/other"))
}

func TestStorageList(t *testing.T) {
	s := newMemStorage()

	paths, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, paths)

	var want []string
	for _, c := range files.Categories {
		stored, err := s.Store(strings.NewReader("x"), "x.pdf", c)
		require.NoError(t, err)
		want = append(want, stored.Path)
	}

	paths, err = s.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, want, paths)
}

func TestStorageFileSystem(t *testing.T) {
	s := newMemStorage()

	stored, err := s.Store(bytes.NewReader(pdfHeader), "p.pdf", files.CategoryPassport)
	require.NoError(t, err)

	f, err := s.FileSystem().Open("/" + stored.Path)
	require.NoError(t, err)
	defer f.Close()

	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, pdfHeader, data)

	_, err = s.FileSystem().Open("/dossier-files/passport/nope.pdf")
	assert.Error(t, err)
}

func TestDetectContentType(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"pdf", pdfHeader, "application/pdf"},
		{"png", []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), "image/png"},
		{"jpeg", []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00"), "image/jpeg"},
		{"text drops charset", []byte("hello world"), "text/plain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectContentType(tt.data))
		})
	}
}

func TestStorageModTime(t *testing.T) {
	s := newMemStorage()
	before := time.Now().Add(-time.Second)

	stored, err := s.Store(strings.NewReader("x"), "x.pdf", files.CategoryOther)
	require.NoError(t, err)

	modTime, err := s.ModTime(stored.Path)
	require.NoError(t, err)
	assert.True(t, modTime.After(before))

	_, err = s.ModTime("dossier-files/other/missing.pdf")
	assert.Error(t, err)
}
