package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/christopherjohns/fekoyaha/internal/blob"
	"github.com/christopherjohns/fekoyaha/internal/metrics"
)

// uploadRequest is the client's announcement of a pending upload.
type uploadRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// handleUpload validates a pending upload and hands back the storage key
// and the URLs the client needs. Size and content-kind validation happens
// here, at the upload boundary, never in the room coordinator.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, keyword string) {
	if s.blobs == nil {
		writeError(w, http.StatusNotImplemented, "Uploads are disabled")
		return
	}
	if !s.limiter.Allow(clientIP(r)) {
		writeError(w, http.StatusTooManyRequests, "Too many uploads, slow down")
		return
	}

	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid upload request")
		return
	}
	if req.Size > blob.MaxUploadSize {
		writeError(w, http.StatusBadRequest, "File too large (max 20MB)")
		return
	}
	if !blob.Allowed(req.ContentType) {
		writeError(w, http.StatusBadRequest, "Invalid file type")
		return
	}

	key := blob.NewKey(keyword, req.Filename)
	writeJSON(w, http.StatusOK, map[string]string{
		"key":       key,
		"fileUrl":   "/files/" + key,
		"uploadUrl": "/api/room/" + keyword + "/upload-file",
	})
}

// handleUploadFile receives the multipart upload body and stores it under
// the key issued by handleUpload.
func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request, keyword string) {
	if s.blobs == nil {
		writeError(w, http.StatusNotImplemented, "Uploads are disabled")
		return
	}

	if err := r.ParseMultipartForm(blob.MaxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid upload body")
		return
	}
	key := r.FormValue("key")
	if key == "" || !strings.HasPrefix(key, keyword+"/") {
		writeError(w, http.StatusBadRequest, "Missing file or key")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing file or key")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !blob.Allowed(contentType) {
		writeError(w, http.StatusBadRequest, "Invalid file type")
		return
	}
	if header.Size > blob.MaxUploadSize {
		writeError(w, http.StatusBadRequest, "File too large (max 20MB)")
		return
	}

	if err := s.blobs.Put(r.Context(), key, contentType, file); err != nil {
		s.log.Error("store upload", "room", keyword, "key", key, "err", err)
		writeError(w, http.StatusInternalServerError, "Upload failed")
		return
	}

	metrics.UploadsAccepted.Inc()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "fileUrl": "/files/" + key})
}

// handleFile serves a stored blob with immutable caching headers.
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	if s.blobs == nil {
		http.NotFound(w, r)
		return
	}

	key := r.PathValue("key")
	obj, err := s.blobs.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		s.log.Error("read blob", "key", key, "err", err)
		writeError(w, http.StatusInternalServerError, "Storage unavailable")
		return
	}
	defer obj.Body.Close()

	w.Header().Set("Content-Type", obj.ContentType)
	w.Header().Set("Cache-Control", "public, max-age=31536000")
	if obj.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	io.Copy(w, obj.Body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
