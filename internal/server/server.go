package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rs/cors"

	"github.com/christopherjohns/fekoyaha/internal/blob"
	"github.com/christopherjohns/fekoyaha/internal/chat"
	"github.com/christopherjohns/fekoyaha/internal/directory"
	"github.com/christopherjohns/fekoyaha/internal/metrics"
	"github.com/christopherjohns/fekoyaha/internal/ratelimit"
	"github.com/christopherjohns/fekoyaha/internal/room"
	"github.com/christopherjohns/fekoyaha/internal/ws"
)

// keywordPattern validates room keywords: lowercase alphanumerics and
// hyphens, no leading or trailing hyphen, at most 32 characters.
var keywordPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,30}[a-z0-9]$|^[a-z0-9]$`)

func validKeyword(keyword string) bool {
	return len(keyword) <= 32 && keywordPattern.MatchString(keyword)
}

// Server is the HTTP front of the service: room API, WebSocket upgrades,
// the upload flow, and the credentialed admin surface.
type Server struct {
	addr       string
	mux        *http.ServeMux
	handler    http.Handler
	log        *slog.Logger
	store      chat.Store
	rooms      *room.Registry
	wsHandler  *ws.Handler
	blobs      blob.Store
	dir        *directory.Directory
	adminToken string
	limiter    *ratelimit.IPLimiter
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) { s.log = log }
}

// WithStore sets the durable room store. Defaults to an in-memory store.
func WithStore(store chat.Store) Option {
	return func(s *Server) { s.store = store }
}

// WithBlobStore enables the upload flow.
func WithBlobStore(blobs blob.Store) Option {
	return func(s *Server) { s.blobs = blobs }
}

// WithDirectory enables the best-effort room index.
func WithDirectory(dir *directory.Directory) Option {
	return func(s *Server) { s.dir = dir }
}

// WithAdminToken enables the admin surface behind the given shared secret.
func WithAdminToken(token string) Option {
	return func(s *Server) { s.adminToken = token }
}

// WithCreateRateLimit caps room creations and uploads per IP per minute.
func WithCreateRateLimit(perMinute int) Option {
	return func(s *Server) { s.limiter = ratelimit.NewIPLimiter(perMinute, time.Minute) }
}

// New creates a Server listening on addr.
func New(addr string, opts ...Option) *Server {
	s := &Server{
		addr: addr,
		mux:  http.NewServeMux(),
		log:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = chat.NewMemStore()
	}
	if s.limiter == nil {
		s.limiter = ratelimit.NewIPLimiter(10, time.Minute)
	}

	var dir room.DirectoryUpdater
	if s.dir != nil {
		dir = s.dir
	}
	s.rooms = room.NewRegistry(s.store, dir, s.log)
	s.wsHandler = ws.NewHandler(s.rooms, s.log)

	s.routes()
	s.handler = cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}).Handler(s.mux)
	return s
}

// Rooms exposes the registry, for the binary and for tests.
func (s *Server) Rooms() *room.Registry {
	return s.rooms
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", metrics.Handler())

	s.mux.HandleFunc("GET /api/room/{keyword}/info", s.withKeyword(s.handleInfo))
	s.mux.HandleFunc("POST /api/room/{keyword}/create", s.withKeyword(s.handleCreate))
	s.mux.HandleFunc("GET /api/room/{keyword}/ws", s.withKeyword(s.handleWS))
	s.mux.HandleFunc("POST /api/room/{keyword}/upload", s.withKeyword(s.handleUpload))
	s.mux.HandleFunc("POST /api/room/{keyword}/upload-file", s.withKeyword(s.handleUploadFile))
	s.mux.HandleFunc("GET /files/{key...}", s.handleFile)

	s.mux.HandleFunc("GET /api/admin/rooms", s.requireAdmin(s.handleAdminRooms))
	s.mux.HandleFunc("GET /api/admin/room/{keyword}/info", s.requireAdmin(s.withKeyword(s.handleAdminInfo)))
	s.mux.HandleFunc("POST /api/admin/room/{keyword}/lock", s.requireAdmin(s.withKeyword(s.handleAdminLock)))
	s.mux.HandleFunc("POST /api/admin/room/{keyword}/clear", s.requireAdmin(s.withKeyword(s.handleAdminClear)))
	s.mux.HandleFunc("POST /api/admin/room/{keyword}/delete", s.requireAdmin(s.withKeyword(s.handleAdminDelete)))
}

// ServeHTTP serves the CORS-wrapped mux; it exists so tests can drive the
// server without a listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.handler}

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.limiter.Prune()
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// withKeyword validates and lowercases the {keyword} path segment.
func (s *Server) withKeyword(next func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		keyword := strings.ToLower(r.PathValue("keyword"))
		if !validKeyword(keyword) {
			writeError(w, http.StatusBadRequest, "Invalid room keyword")
			return
		}
		next(w, r, keyword)
	}
}

// requireAdmin gates a handler behind the shared admin credential. With no
// token configured the whole admin surface is disabled.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.adminToken == "" || r.Header.Get("Authorization") != s.adminToken {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next(w, r)
	}
}

// clientIP extracts the caller's IP for rate limiting, honoring the
// routing collaborator's X-Forwarded-For when present.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request, keyword string) {
	info, err := s.rooms.Get(keyword).Info(r.Context())
	if err != nil {
		s.log.Error("room info", "room", keyword, "err", err)
		writeError(w, http.StatusInternalServerError, "Storage unavailable")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request, keyword string) {
	if !s.limiter.Allow(clientIP(r)) {
		writeError(w, http.StatusTooManyRequests, "Too many rooms created, slow down")
		return
	}

	meta, err := s.rooms.Get(keyword).Create(r.Context())
	switch {
	case errors.Is(err, chat.ErrRoomExists):
		writeError(w, http.StatusConflict, "Room already exists")
	case err != nil:
		s.log.Error("room create", "room", keyword, "err", err)
		writeError(w, http.StatusInternalServerError, "Storage unavailable")
	default:
		writeJSON(w, http.StatusCreated, map[string]any{"success": true, "metadata": meta})
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request, keyword string) {
	s.wsHandler.Serve(w, r, keyword)
}

func (s *Server) handleAdminRooms(w http.ResponseWriter, r *http.Request) {
	if s.dir == nil {
		writeJSON(w, http.StatusOK, map[string]any{"rooms": []directory.Entry{}})
		return
	}
	entries, err := s.dir.List(r.Context())
	if err != nil {
		s.log.Error("admin rooms", "err", err)
		writeError(w, http.StatusInternalServerError, "Directory unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": entries})
}

func (s *Server) handleAdminInfo(w http.ResponseWriter, r *http.Request, keyword string) {
	report, err := s.rooms.Get(keyword).Inspect(r.Context())
	if err != nil {
		s.log.Error("admin inspect", "room", keyword, "err", err)
		writeError(w, http.StatusInternalServerError, "Storage unavailable")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleAdminLock(w http.ResponseWriter, r *http.Request, keyword string) {
	locked, err := s.rooms.Get(keyword).ToggleLock(r.Context())
	switch {
	case errors.Is(err, chat.ErrRoomNotFound):
		writeError(w, http.StatusNotFound, "Room does not exist")
	case err != nil:
		s.log.Error("admin lock", "room", keyword, "err", err)
		writeError(w, http.StatusInternalServerError, "Storage unavailable")
	default:
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "isLocked": locked})
	}
}

func (s *Server) handleAdminClear(w http.ResponseWriter, r *http.Request, keyword string) {
	err := s.rooms.Get(keyword).ClearHistory(r.Context())
	switch {
	case errors.Is(err, chat.ErrRoomNotFound):
		writeError(w, http.StatusNotFound, "Room does not exist")
	case err != nil:
		s.log.Error("admin clear", "room", keyword, "err", err)
		writeError(w, http.StatusInternalServerError, "Storage unavailable")
	default:
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}
}

func (s *Server) handleAdminDelete(w http.ResponseWriter, r *http.Request, keyword string) {
	err := s.rooms.Get(keyword).Delete(r.Context())
	switch {
	case errors.Is(err, chat.ErrRoomNotFound):
		writeError(w, http.StatusNotFound, "Room does not exist")
	case err != nil:
		s.log.Error("admin delete", "room", keyword, "err", err)
		writeError(w, http.StatusInternalServerError, "Storage unavailable")
	default:
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}
}
