package httpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/blackmichael/studio-posts/internal/config"
	"github.com/blackmichael/studio-posts/internal/domain"
)

// FontLister returns available font family names.
type FontLister interface {
	Families(ctx context.Context) ([]string, error)
}

// Server is the HTTP server for posts, photos, fonts and appointments.
type Server struct {
	cfg         *config.Config
	postService *domain.PostService
	fonts       FontLister
	photos      fs.FS
	logger      *slog.Logger
	httpServer  *http.Server
}

// NewServer creates a new HTTP server. stream serves GET /posts/stream and
// may be nil.
func NewServer(
	cfg *config.Config,
	postService *domain.PostService,
	fonts FontLister,
	stream http.Handler,
	logger *slog.Logger,
) *Server {
	s := &Server{
		cfg:         cfg,
		postService: postService,
		fonts:       fonts,
		photos:      os.DirFS(cfg.PhotosDir),
		logger:      logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /posts", s.handleListPosts)
	mux.HandleFunc("POST /newpost", s.handleNewPost)
	mux.HandleFunc("DELETE /posts/{id}", s.handleDeletePost)
	mux.HandleFunc("GET /photos/{photoId}", s.handleGetPhoto)
	mux.HandleFunc("GET /fonts", s.handleFonts)
	mux.HandleFunc("POST /appointment", s.handleAppointment)
	mux.HandleFunc("GET /health", s.handleHealth)
	if stream != nil {
		mux.Handle("GET /posts/stream", stream)
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      withLogging(logger, withCORS(cfg.AllowedOrigin, mux)),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start begins listening for HTTP requests. It blocks until the server is
// shut down or an error occurs.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// postResponse keeps photo_paths as the JSON-encoded string stored in the
// database, which is what existing front-ends parse.
type postResponse struct {
	ID         int64  `json:"id"`
	PhotoPaths string `json:"photo_paths"`
	Caption    string `json:"caption"`
}

func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := s.postService.ListPosts(r.Context())
	if err != nil {
		s.logger.Error("failed to list posts", "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to list posts")
		return
	}

	resp := make([]postResponse, 0, len(posts))
	for _, p := range posts {
		encoded, err := json.Marshal(p.Photos)
		if err != nil {
			s.logger.Error("failed to encode photo paths", "id", p.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "InternalError", "failed to list posts")
			return
		}
		resp = append(resp, postResponse{ID: p.ID, PhotoPaths: string(encoded), Caption: p.Caption})
	}

	writeJSON(w, http.StatusOK, resp)
}

type newPostRequest struct {
	PhotoPaths []string `json:"photo_paths"`
	Caption    *string  `json:"caption"`
}

func (s *Server) handleNewPost(w http.ResponseWriter, r *http.Request) {
	var req newPostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logger.Warn("invalid newpost body", "error", err)
		writeError(w, http.StatusBadRequest, "InvalidRequest", "photo_paths and caption are required")
		return
	}
	if len(req.PhotoPaths) == 0 || req.Caption == nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "photo_paths and caption are required")
		return
	}

	id, saved, err := s.postService.SubmitPost(r.Context(), req.PhotoPaths, *req.Caption)
	if err != nil {
		var vErr *domain.ValidationError
		if errors.As(err, &vErr) {
			writeError(w, http.StatusBadRequest, "InvalidRequest", vErr.Message)
			return
		}
		s.logger.Error("failed to save post", "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to save post")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":          id,
		"photo_paths": saved,
	})
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	// A non-numeric ID cannot match any row.
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "NotFound", "post not found")
		return
	}

	deleted, err := s.postService.DeletePost(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to delete post", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to delete post")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "NotFound", "post not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": "deleted"})
}

func (s *Server) handleGetPhoto(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("photoId")
	if !fs.ValidPath(name) || name == "." {
		writeError(w, http.StatusNotFound, "NotFound", "photo not found")
		return
	}

	info, err := fs.Stat(s.photos, name)
	if err != nil || !info.Mode().IsRegular() {
		s.logger.Warn("photo not found", "photo", name, "error", err)
		writeError(w, http.StatusNotFound, "NotFound", "photo not found")
		return
	}

	http.ServeFileFS(w, r, s.photos, name)
}

func (s *Server) handleFonts(w http.ResponseWriter, r *http.Request) {
	families, err := s.fonts.Families(r.Context())
	if err != nil {
		s.logger.Error("failed to load fonts", "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to load fonts")
		return
	}
	writeJSON(w, http.StatusOK, families)
}

type appointmentRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

func (s *Server) handleAppointment(w http.ResponseWriter, r *http.Request) {
	var req appointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "name and phone are required")
		return
	}

	if err := s.postService.RequestAppointment(r.Context(), req.Name, req.Phone); err != nil {
		var vErr *domain.ValidationError
		if errors.As(err, &vErr) {
			writeError(w, http.StatusBadRequest, "InvalidRequest", vErr.Message)
			return
		}
		s.logger.Error("failed to forward appointment", "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to send appointment request")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, map[string]string{
		"error":   errType,
		"message": message,
	})
}

func withCORS(origin string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func withLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Hijack lets the stream endpoint upgrade through the logging wrapper.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
