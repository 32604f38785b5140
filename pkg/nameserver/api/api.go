// Package api exposes the name server's read-only admin surface over
// HTTP: health, catalog listings, and prometheus metrics. The wire
// protocol owns all mutation; nothing here writes.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scribefs/scribefs/internal/logger"
	"github.com/scribefs/scribefs/pkg/catalog"
	"github.com/scribefs/scribefs/pkg/metrics"
)

// Config holds configuration for the admin API server.
type Config struct {
	// ListenAddr is the HTTP address, e.g. ":8080".
	ListenAddr string

	// Catalog is the metadata store to expose.
	Catalog *catalog.Service
}

// Server is the admin HTTP server.
type Server struct {
	config    Config
	catalog   *catalog.Service
	http      *http.Server
	startTime time.Time
}

// response is the standard reply wrapper.
type response struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// NewServer builds the admin API around a catalog.
func NewServer(cfg Config) *Server {
	s := &Server{
		config:    cfg,
		catalog:   cfg.Catalog,
		startTime: time.Now(),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.health)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/files", s.files)
		r.Get("/users", s.users)
		r.Get("/storage-servers", s.storageServers)
	})
	if metrics.IsEnabled() {
		r.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	}

	s.http = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Serve runs the HTTP server until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("admin api started", "address", s.config.ListenAddr)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Handler returns the underlying handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	st := s.catalog.Snapshot()
	writeJSON(w, http.StatusOK, response{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Data: map[string]any{
			"service":         "scribefs",
			"uptime_sec":      int64(time.Since(s.startTime).Seconds()),
			"users":           st.Users,
			"files":           st.Files,
			"storage_servers": st.StorageServers,
		},
	})
}

// fileEntry is the JSON shape of a catalog row.
type fileEntry struct {
	Filename    string    `json:"filename"`
	Owner       string    `json:"owner"`
	Location    string    `json:"location,omitempty"`
	WordCount   int       `json:"word_count"`
	CharCount   int       `json:"char_count"`
	LastAccess  time.Time `json:"last_access"`
	AccessList  string    `json:"access_list,omitempty"`
	Annotation  string    `json:"annotation,omitempty"`
	IsDirectory bool      `json:"is_directory,omitempty"`
}

func (s *Server) files(w http.ResponseWriter, _ *http.Request) {
	files := s.catalog.Files()
	entries := make([]fileEntry, len(files))
	for i, fi := range files {
		entry := fileEntry{
			Filename:    fi.Filename,
			Owner:       fi.Owner,
			WordCount:   fi.WordCount,
			CharCount:   fi.CharCount,
			LastAccess:  fi.LastAccess.UTC(),
			AccessList:  fi.AccessList(),
			Annotation:  fi.Annotation,
			IsDirectory: fi.IsDirectory,
		}
		if !fi.SS.IsZero() {
			entry.Location = fi.SS.String()
		}
		entries[i] = entry
	}
	writeJSON(w, http.StatusOK, response{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Data:      entries,
	})
}

func (s *Server) users(w http.ResponseWriter, _ *http.Request) {
	users := s.catalog.Users()
	type userEntry struct {
		Username string `json:"username"`
		LastAddr string `json:"last_addr,omitempty"`
	}
	entries := make([]userEntry, len(users))
	for i, u := range users {
		entries[i] = userEntry{Username: u.Username, LastAddr: u.LastAddr}
	}
	writeJSON(w, http.StatusOK, response{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Data:      entries,
	})
}

func (s *Server) storageServers(w http.ResponseWriter, _ *http.Request) {
	servers := s.catalog.StorageServers()
	type ssEntry struct {
		Endpoint   string    `json:"endpoint"`
		KnownFiles []string  `json:"known_files,omitempty"`
		Registered time.Time `json:"registered"`
	}
	entries := make([]ssEntry, len(servers))
	for i, ss := range servers {
		entries[i] = ssEntry{
			Endpoint:   ss.Endpoint.String(),
			KnownFiles: ss.KnownFiles,
			Registered: ss.Registered.UTC(),
		}
	}
	writeJSON(w, http.StatusOK, response{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Data:      entries,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Debug("writing api response failed", logger.Err(err))
	}
}
