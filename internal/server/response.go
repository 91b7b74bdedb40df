package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

const (
	msgListed         = "Dossier files retrieved successfully"
	msgUploaded       = "File uploaded successfully"
	msgDeleted        = "File deleted successfully"
	msgNotFound       = "File not found"
	msgInvalidFile    = "Invalid file type or format"
	msgUploadFailed   = "File upload failed. Please try again."
	msgUnexpected     = "An unexpected error occurred"
	msgTooLarge       = "File size exceeds the maximum limit"
	msgTooLargeDetail = "The file size must not exceed 4MB"
)

type messageResponse struct {
	Message string `json:"message"`
}

type dataResponse struct {
	Data    any    `json:"data"`
	Message string `json:"message"`
}

type errorResponse struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeValidationError(w http.ResponseWriter, message string, errs map[string][]string) {
	writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
		Message: message,
		Errors:  errs,
	})
}

func writeTooLarge(w http.ResponseWriter) {
	writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{
		Message: msgTooLarge,
		Errors:  map[string][]string{"file": {msgTooLargeDetail}},
	})
}
