package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavel-fokin/dossier-files/internal/config"
	"github.com/pavel-fokin/dossier-files/internal/files"
	"github.com/pavel-fokin/dossier-files/internal/fs"
	"github.com/pavel-fokin/dossier-files/internal/sqlite"
)

const adminToken = "test-token"

type listResponse struct {
	Data    map[string][]fileView `json:"data"`
	Message string                `json:"message"`
}

type uploadResponse struct {
	Data    fileView `json:"data"`
	Message string   `json:"message"`
}

func testConfig() *config.Config {
	return &config.Config{
		Addr:           ":0",
		DataDir:        "/data",
		BaseDir:        "dossier-files",
		PublicURL:      "/storage",
		DBDriver:       config.DriverSQLite,
		MaxBodySize:    8 << 20,
		AllowedOrigins: []string{"*"},
		LogFormat:      "json",
	}
}

func setupTestServer(t *testing.T, cfg *config.Config) *httptest.Server {
	t.Helper()

	repo, err := sqlite.NewRepository(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	storage := fs.NewStorageFs(afero.NewBasePathFs(afero.NewMemMapFs(), cfg.DataDir), cfg.BaseDir)
	svc := files.NewService(files.NewPolicy(), storage, repo)

	ts := httptest.NewServer(NewRouter(cfg, svc, storage.FileSystem(), repo))
	t.Cleanup(ts.Close)
	return ts
}

func pdfContent(size int) []byte {
	content := bytes.Repeat([]byte{' '}, size)
	copy(content, "%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")
	return content
}

func newUploadRequest(t *testing.T, url, filename, contentType, fileType string, content []byte) *http.Request {
	t.Helper()

	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)

	if filename != "" {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
		h.Set("Content-Type", contentType)
		part, err := writer.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	if fileType != "" {
		require.NoError(t, writer.WriteField("file_type", fileType))
	}
	require.NoError(t, writer.Close())

	req, err := http.NewRequest(http.MethodPost, url+"/api/dossier-files", body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()

	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func listDocuments(t *testing.T, url string) listResponse {
	t.Helper()

	resp, err := http.Get(url + "/api/dossier-files")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decode[listResponse](t, resp)
}

func TestIntegration(t *testing.T) {
	ts := setupTestServer(t, testConfig())
	content := pdfContent(1024)

	var uploaded fileView
	t.Run("Upload", func(t *testing.T) {
		req := newUploadRequest(t, ts.URL, "passport.pdf", "application/pdf", "passport", content)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		body := decode[uploadResponse](t, resp)
		uploaded = body.Data

		assert.Equal(t, "File uploaded successfully", body.Message)
		assert.NotZero(t, uploaded.ID)
		assert.Equal(t, "passport.pdf", uploaded.OriginalFilename)
		assert.Equal(t, "passport", uploaded.FileType)
		assert.Equal(t, "dossier-files/passport/"+uploaded.Filename, uploaded.FilePath)
		assert.Equal(t, "/storage/"+uploaded.FilePath, uploaded.FileURL)
		assert.Equal(t, "application/pdf", uploaded.MimeType)
		assert.Equal(t, int64(1024), uploaded.Size)
		assert.Equal(t, "1 KB", uploaded.HumanSize)
		assert.True(t, uploaded.IsPDF)
		assert.False(t, uploaded.IsImage)
		assert.NotEmpty(t, uploaded.CreatedAt)
	})

	t.Run("Download", func(t *testing.T) {
		resp, err := http.Get(ts.URL + uploaded.FileURL)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, content, data)
	})

	t.Run("List", func(t *testing.T) {
		body := listDocuments(t, ts.URL)

		assert.Equal(t, "Dossier files retrieved successfully", body.Message)
		require.Len(t, body.Data["passport"], 1)
		assert.Equal(t, uploaded.ID, body.Data["passport"][0].ID)
		assert.NotNil(t, body.Data["utility_bill"])
		assert.Empty(t, body.Data["utility_bill"])
		assert.NotNil(t, body.Data["other"])
		assert.Empty(t, body.Data["other"])
	})

	t.Run("Delete", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/api/dossier-files/%d", ts.URL, uploaded.ID), nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "File deleted successfully", decode[messageResponse](t, resp).Message)
	})

	t.Run("List after delete", func(t *testing.T) {
		body := listDocuments(t, ts.URL)
		assert.Empty(t, body.Data["passport"])
	})

	t.Run("Download after delete", func(t *testing.T) {
		resp, err := http.Get(ts.URL + uploaded.FileURL)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("Delete again", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/api/dossier-files/%d", ts.URL, uploaded.ID), nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "File not found", decode[messageResponse](t, resp).Message)
	})
}

func TestUploadValidation(t *testing.T) {
	ts := setupTestServer(t, testConfig())

	tests := []struct {
		name        string
		filename    string
		contentType string
		fileType    string
		content     []byte
		field       string
		message     string
		envelope    string
	}{
		{
			name:     "missing file",
			fileType: "passport",
			field:    "file",
			message:  "A file is required",
			envelope: "A file is required",
		},
		{
			name:        "missing file type",
			filename:    "passport.pdf",
			contentType: "application/pdf",
			content:     pdfContent(64),
			field:       "file_type",
			message:     "The file type is required",
			envelope:    "The file type is required",
		},
		{
			name:        "unknown category",
			filename:    "passport.pdf",
			contentType: "application/pdf",
			fileType:    "visa",
			content:     pdfContent(64),
			field:       "file_type",
			message:     "Invalid file type. Allowed types: passport, utility_bill, other",
			envelope:    "Invalid file type or format",
		},
		{
			name:        "bad extension",
			filename:    "notes.txt",
			contentType: "text/plain",
			fileType:    "other",
			content:     []byte("hello"),
			field:       "file",
			message:     "The file must be a PDF, PNG, or JPG",
			envelope:    "The file must be a PDF, PNG, or JPG",
		},
		{
			name:        "disallowed content type",
			filename:    "scan.png",
			contentType: "image/gif",
			fileType:    "other",
			content:     []byte("GIF89a"),
			field:       "file",
			message:     "Invalid file type. Allowed types: image/jpeg, image/jpg, image/png, application/pdf",
			envelope:    "Invalid file type or format",
		},
		{
			name:        "over 4MB",
			filename:    "big.pdf",
			contentType: "application/pdf",
			fileType:    "other",
			content:     pdfContent(int(files.MaxSize) + 1),
			field:       "file",
			message:     "The file size must not exceed 4MB",
			envelope:    "The file size must not exceed 4MB",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := newUploadRequest(t, ts.URL, tt.filename, tt.contentType, tt.fileType, tt.content)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

			body := decode[errorResponse](t, resp)
			assert.Equal(t, tt.envelope, body.Message)
			assert.Contains(t, body.Errors[tt.field], tt.message)
		})
	}

	body := listDocuments(t, ts.URL)
	for _, c := range files.Categories {
		assert.Empty(t, body.Data[string(c)], "rejected uploads must not be recorded")
	}
}

func TestUploadBodyTooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.MaxBodySize = 1024
	ts := setupTestServer(t, cfg)

	t.Run("declared length", func(t *testing.T) {
		req := newUploadRequest(t, ts.URL, "big.pdf", "application/pdf", "other", pdfContent(4096))
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		require.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)

		body := decode[errorResponse](t, resp)
		assert.Equal(t, "File size exceeds the maximum limit", body.Message)
		assert.Equal(t, []string{"The file size must not exceed 4MB"}, body.Errors["file"])
	})

	t.Run("streamed body", func(t *testing.T) {
		upload := newUploadRequest(t, "", "big.pdf", "application/pdf", "other", pdfContent(4096))
		body, err := io.ReadAll(upload.Body)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/api/dossier-files", io.MultiReader(bytes.NewReader(body)))
		req.Header.Set("Content-Type", upload.Header.Get("Content-Type"))
		rr := httptest.NewRecorder()

		storage := fs.NewStorageFs(afero.NewMemMapFs(), cfg.BaseDir)
		NewRouter(cfg, files.NewService(files.NewPolicy(), storage, nil), nil, nil).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	})
}

func TestUploadRecordsDetectedContentType(t *testing.T) {
	ts := setupTestServer(t, testConfig())

	req := newUploadRequest(t, ts.URL, "scan.pdf", "application/octet-stream", "utility_bill", pdfContent(2048))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	body := decode[uploadResponse](t, resp)
	assert.Equal(t, "application/pdf", body.Data.MimeType)
	assert.Equal(t, "2 KB", body.Data.HumanSize)
}

func TestUploadRejectsMislabelledContent(t *testing.T) {
	ts := setupTestServer(t, testConfig())

	content := []byte("<html><script>alert(1)</script></html>")
	req := newUploadRequest(t, ts.URL, "passport.pdf", "application/pdf", "passport", content)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	body := decode[errorResponse](t, resp)
	assert.Equal(t, "Invalid file type or format", body.Message)
	assert.Equal(t, []string{"Invalid file type. Allowed types: image/jpeg, image/jpg, image/png, application/pdf"}, body.Errors["file"])

	list := listDocuments(t, ts.URL)
	assert.Empty(t, list.Data["passport"])
}

func TestAdminTokenGuardsMutations(t *testing.T) {
	cfg := testConfig()
	cfg.AdminToken = adminToken
	ts := setupTestServer(t, cfg)

	req := newUploadRequest(t, ts.URL, "passport.pdf", "application/pdf", "passport", pdfContent(128))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req = newUploadRequest(t, ts.URL, "passport.pdf", "application/pdf", "passport", pdfContent(128))
	req.Header.Set("Authorization", "Bearer "+adminToken)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	// listing stays open
	body := listDocuments(t, ts.URL)
	assert.Len(t, body.Data["passport"], 1)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := setupTestServer(t, testConfig())

	listDocuments(t, ts.URL)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), `dossier_http_requests_total{method="GET",route="/api/dossier-files`)
}
