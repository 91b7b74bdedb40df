package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pavel-fokin/dossier-files/internal/files"
	"github.com/pavel-fokin/dossier-files/internal/fs"
)

// FileService is the document workflow the handlers drive.
type FileService interface {
	Store(ctx context.Context, upload *files.Upload) (*files.File, error)
	Delete(ctx context.Context, id int64) error
	ListGrouped(ctx context.Context) (files.Grouped, error)
}

// Pinger reports whether the metadata store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

const (
	multipartMemory = 4 << 20
	sniffLen        = 3072
)

func healthz(pinger Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if pinger != nil {
			if err := pinger.Ping(r.Context()); err != nil {
				slog.Error("Health check failed", "error", err)
				writeJSON(w, http.StatusServiceUnavailable, messageResponse{Message: "Database unavailable"})
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	}
}

func listFiles(svc FileService, publicURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		grouped, err := svc.ListGrouped(r.Context())
		if err != nil {
			slog.Error("List files failed", "error", err)
			operationsTotal.WithLabelValues("list", "error").Inc()
			writeJSON(w, http.StatusInternalServerError, messageResponse{Message: msgUnexpected})
			return
		}

		operationsTotal.WithLabelValues("list", "ok").Inc()
		writeJSON(w, http.StatusOK, dataResponse{
			Data:    newGroupedView(grouped, publicURL),
			Message: msgListed,
		})
	}
}

func uploadFile(svc FileService, v *validator.Validate, publicURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			if isBodyTooLarge(err) {
				operationsTotal.WithLabelValues("upload", "too_large").Inc()
				writeTooLarge(w)
				return
			}
			// Not a multipart body: validation reports the missing fields.
			slog.Debug("Failed to parse multipart form", "error", err)
		}

		form := &uploadForm{FileType: r.FormValue("file_type")}
		file, header, err := r.FormFile("file")
		if err == nil {
			defer file.Close()
			form.Filename = header.Filename
			form.Size = header.Size
		}

		if message, errs := validateForm(v, form); errs != nil {
			operationsTotal.WithLabelValues("upload", "invalid").Inc()
			writeValidationError(w, message, errs)
			return
		}

		// The allow-list applies to what the bytes are, not what the
		// client says they are.
		contentType, err := sniffContentType(file)
		if err != nil {
			slog.Error("Failed to read upload", "error", err, "filename", header.Filename)
			writeUploadFailed(w)
			return
		}
		if declared := header.Header.Get("Content-Type"); declared != contentType {
			slog.Debug("Declared content type replaced by detected",
				"declared", declared,
				"detected", contentType,
				"filename", header.Filename,
			)
		}

		stored, err := svc.Store(r.Context(), &files.Upload{
			Name:        header.Filename,
			Category:    form.FileType,
			ContentType: contentType,
			Size:        header.Size,
			Content:     file,
		})
		if err != nil {
			handleUploadError(w, err, header.Filename)
			return
		}

		operationsTotal.WithLabelValues("upload", "ok").Inc()
		writeJSON(w, http.StatusCreated, dataResponse{
			Data:    newFileView(stored, publicURL),
			Message: msgUploaded,
		})
	}
}

func handleUploadError(w http.ResponseWriter, err error, filename string) {
	var categoryErr *files.InvalidCategoryError
	var rejectedErr *files.RejectedError

	switch {
	case errors.As(err, &categoryErr):
		operationsTotal.WithLabelValues("upload", "invalid").Inc()
		writeValidationError(w, msgInvalidFile, map[string][]string{"file_type": {categoryErr.Error()}})
	case errors.As(err, &rejectedErr):
		operationsTotal.WithLabelValues("upload", "rejected").Inc()
		writeValidationError(w, msgInvalidFile, map[string][]string{"file": {rejectedErr.Error()}})
	case isBodyTooLarge(err):
		operationsTotal.WithLabelValues("upload", "too_large").Inc()
		writeTooLarge(w)
	default:
		slog.Error("Upload failed", "error", err, "filename", filename, "storage", errors.Is(err, files.ErrStorage))
		operationsTotal.WithLabelValues("upload", "error").Inc()
		writeUploadFailed(w)
	}
}

func writeUploadFailed(w http.ResponseWriter) {
	writeJSON(w, http.StatusInternalServerError, errorResponse{
		Message: msgUploadFailed,
		Errors:  map[string][]string{"file": {msgUnexpected}},
	})
}

// sniffContentType detects the content type from the leading bytes and
// rewinds the file.
func sniffContentType(file multipart.File) (string, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return fs.DetectContentType(head[:n]), nil
}

func deleteFile(svc FileService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil || id <= 0 {
			writeJSON(w, http.StatusNotFound, messageResponse{Message: msgNotFound})
			return
		}

		if err := svc.Delete(r.Context(), id); err != nil {
			if errors.Is(err, files.ErrNotFound) {
				operationsTotal.WithLabelValues("delete", "not_found").Inc()
				writeJSON(w, http.StatusNotFound, messageResponse{Message: msgNotFound})
				return
			}
			slog.Error("Delete failed", "error", err, "file_id", id)
			operationsTotal.WithLabelValues("delete", "error").Inc()
			writeJSON(w, http.StatusInternalServerError, messageResponse{Message: msgUnexpected})
			return
		}

		operationsTotal.WithLabelValues("delete", "ok").Inc()
		writeJSON(w, http.StatusOK, messageResponse{Message: msgDeleted})
	}
}
