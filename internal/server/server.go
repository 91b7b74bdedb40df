// Package server exposes the dossier document API over HTTP.
package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pavel-fokin/dossier-files/internal/config"
)

// New builds the HTTP server. storedFiles serves the bytes that file_url
// points to; pinger backs the health check and may be nil.
func New(cfg *config.Config, svc FileService, storedFiles http.FileSystem, pinger Pinger) *http.Server {
	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      NewRouter(cfg, svc, storedFiles, pinger),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

// NewRouter wires routes and middleware.
func NewRouter(cfg *config.Config, svc FileService, storedFiles http.FileSystem, pinger Pinger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(loggingMiddleware)
	r.Use(metricsMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		MaxAge:         300,
	}))

	r.Get("/healthz", healthz(pinger))
	r.Handle("/metrics", promhttp.Handler())

	v := newFormValidator()
	r.Route("/api/dossier-files", func(r chi.Router) {
		r.Get("/", listFiles(svc, cfg.PublicURL))
		r.With(auth(cfg.AdminToken), limitBody(cfg.MaxBodySize)).
			Post("/", uploadFile(svc, v, cfg.PublicURL))
		r.With(auth(cfg.AdminToken)).Delete("/{id}", deleteFile(svc))
	})

	if storedFiles != nil {
		prefix := cfg.StoragePrefix()
		r.Get(prefix+"/*", serveStored(prefix, storedFiles))
	}

	return r
}

// serveStored serves stored bytes without directory listings.
func serveStored(prefix string, storedFiles http.FileSystem) http.HandlerFunc {
	fileServer := http.StripPrefix(prefix, http.FileServer(storedFiles))
	return func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			writeJSON(w, http.StatusNotFound, messageResponse{Message: msgNotFound})
			return
		}
		fileServer.ServeHTTP(w, r)
	}
}
