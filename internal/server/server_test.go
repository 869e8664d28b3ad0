package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/christopherjohns/fekoyaha/internal/blob"
)

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	opts = append([]Option{WithLogger(slog.New(slog.DiscardHandler))}, opts...)
	return New(":0", opts...)
}

func doRequest(t *testing.T, s *Server, method, target string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	req.RemoteAddr = "192.0.2.1:1234"
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestInfoUnknownRoom(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/room/nowhere/info", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var info struct {
		Exists bool `json:"exists"`
	}
	decodeBody(t, rec, &info)
	if info.Exists {
		t.Error("expected exists=false for an uncreated room")
	}
}

func TestCreateThenConflict(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/room/general/create", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, s, http.MethodPost, "/api/room/general/create", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate create, got %d", rec.Code)
	}

	rec = doRequest(t, s, http.MethodGet, "/api/room/general/info", nil)
	var info struct {
		Exists       bool `json:"exists"`
		MessageCount int  `json:"messageCount"`
	}
	decodeBody(t, rec, &info)
	if !info.Exists || info.MessageCount != 1 {
		t.Errorf("expected created room with seed message, got %+v", info)
	}
}

func TestKeywordValidation(t *testing.T) {
	s := newTestServer(t)

	for _, kw := range []string{"-bad", "bad-", "has_underscore", "UPPERCASE!", strings.Repeat("a", 33)} {
		rec := doRequest(t, s, http.MethodPost, "/api/room/"+kw+"/create", nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("keyword %q: expected 400, got %d", kw, rec.Code)
		}
	}

	// Uppercase letters are folded before validation.
	rec := doRequest(t, s, http.MethodPost, "/api/room/General/create", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected mixed-case keyword to fold and create, got %d", rec.Code)
	}
	rec = doRequest(t, s, http.MethodGet, "/api/room/general/info", nil)
	var info struct {
		Exists bool `json:"exists"`
	}
	decodeBody(t, rec, &info)
	if !info.Exists {
		t.Error("expected folded keyword to address the same room")
	}
}

func TestCreateRateLimit(t *testing.T) {
	s := newTestServer(t, WithCreateRateLimit(2))

	for i, kw := range []string{"one", "two"} {
		rec := doRequest(t, s, http.MethodPost, "/api/room/"+kw+"/create", nil)
		if rec.Code != http.StatusCreated {
			t.Fatalf("create %d: expected 201, got %d", i, rec.Code)
		}
	}
	rec := doRequest(t, s, http.MethodPost, "/api/room/three/create", nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 past the limit, got %d", rec.Code)
	}
}

func TestAdminRequiresToken(t *testing.T) {
	s := newTestServer(t, WithAdminToken("secret"))

	rec := doRequest(t, s, http.MethodGet, "/api/admin/rooms", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/admin/rooms", nil)
	req.Header.Set("Authorization", "wrong")
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/admin/rooms", nil)
	req.Header.Set("Authorization", "secret")
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", rec.Code)
	}
}

func TestAdminDisabledWithoutToken(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/rooms", nil)
	req.Header.Set("Authorization", "")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected admin surface disabled, got %d", rec.Code)
	}
}

func adminRequest(t *testing.T, s *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set("Authorization", "secret")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestAdminLockClearDelete(t *testing.T) {
	s := newTestServer(t, WithAdminToken("secret"))
	doRequest(t, s, http.MethodPost, "/api/room/ops/create", nil)

	rec := adminRequest(t, s, http.MethodPost, "/api/admin/room/ops/lock")
	var lock struct {
		IsLocked bool `json:"isLocked"`
	}
	decodeBody(t, rec, &lock)
	if rec.Code != http.StatusOK || !lock.IsLocked {
		t.Fatalf("expected lock toggled on, got %d %+v", rec.Code, lock)
	}

	rec = adminRequest(t, s, http.MethodPost, "/api/admin/room/ops/lock")
	decodeBody(t, rec, &lock)
	if lock.IsLocked {
		t.Error("expected second toggle to unlock")
	}

	rec = adminRequest(t, s, http.MethodPost, "/api/admin/room/ops/clear")
	if rec.Code != http.StatusOK {
		t.Fatalf("clear: expected 200, got %d", rec.Code)
	}

	rec = adminRequest(t, s, http.MethodGet, "/api/admin/room/ops/info")
	var report struct {
		Messages []json.RawMessage `json:"messages"`
	}
	decodeBody(t, rec, &report)
	if len(report.Messages) != 0 {
		t.Errorf("expected empty log after clear, got %d messages", len(report.Messages))
	}

	rec = adminRequest(t, s, http.MethodPost, "/api/admin/room/ops/delete")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", rec.Code)
	}

	rec = doRequest(t, s, http.MethodGet, "/api/room/ops/info", nil)
	var info struct {
		Exists bool `json:"exists"`
	}
	decodeBody(t, rec, &info)
	if info.Exists {
		t.Error("expected room gone after delete")
	}
}

func TestAdminOpsOnMissingRoom(t *testing.T) {
	s := newTestServer(t, WithAdminToken("secret"))

	for _, op := range []string{"lock", "clear", "delete"} {
		rec := adminRequest(t, s, http.MethodPost, "/api/admin/room/ghost/"+op)
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", op, rec.Code)
		}
	}
}

func newBlobServer(t *testing.T) *Server {
	t.Helper()
	blobs, err := blob.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("fs store: %v", err)
	}
	return newTestServer(t, WithBlobStore(blobs))
}

func multipartBody(t *testing.T, key, filename, contentType string, data []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("key", key); err != nil {
		t.Fatalf("write key field: %v", err)
	}
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestUploadDisabledWithoutBlobStore(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodPost, "/api/room/pics/upload", strings.NewReader(`{}`))
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501 without a blob store, got %d", rec.Code)
	}
}

func TestUploadValidation(t *testing.T) {
	s := newBlobServer(t)

	cases := []struct {
		name string
		body string
	}{
		{"too large", `{"filename":"a.png","contentType":"image/png","size":30000000}`},
		{"bad type", `{"filename":"a.exe","contentType":"application/octet-stream","size":10}`},
		{"invalid json", `{`},
	}
	for _, tc := range cases {
		rec := doRequest(t, s, http.MethodPost, "/api/room/pics/upload", strings.NewReader(tc.body))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", tc.name, rec.Code)
		}
	}

	rec := doRequest(t, s, http.MethodPost, "/api/room/pics/upload",
		strings.NewReader(`{"filename":"cat.png","contentType":"image/png","size":1024}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for a valid announcement, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Key       string `json:"key"`
		FileURL   string `json:"fileUrl"`
		UploadURL string `json:"uploadUrl"`
	}
	decodeBody(t, rec, &resp)
	if !strings.HasPrefix(resp.Key, "pics/") {
		t.Errorf("expected key scoped to the room, got %q", resp.Key)
	}
	if resp.FileURL != "/files/"+resp.Key {
		t.Errorf("expected file URL derived from key, got %q", resp.FileURL)
	}
	if resp.UploadURL != "/api/room/pics/upload-file" {
		t.Errorf("unexpected upload URL %q", resp.UploadURL)
	}
}

func TestUploadFileRoundTrip(t *testing.T) {
	s := newBlobServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/room/pics/upload",
		strings.NewReader(`{"filename":"cat.png","contentType":"image/png","size":4}`))
	var announce struct {
		Key string `json:"key"`
	}
	decodeBody(t, rec, &announce)

	body, contentType := multipartBody(t, announce.Key, "cat.png", "image/png", []byte("\x89PNG"))
	req := httptest.NewRequest(http.MethodPost, "/api/room/pics/upload-file", body)
	req.Header.Set("Content-Type", contentType)
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload-file: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, s, http.MethodGet, "/files/"+announce.Key, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("files: expected 200, got %d", rec.Code)
	}
	if got := rec.Body.String(); got != "\x89PNG" {
		t.Errorf("expected stored bytes back, got %q", got)
	}
	if cc := rec.Header().Get("Cache-Control"); !strings.Contains(cc, "max-age") {
		t.Errorf("expected immutable caching headers, got %q", cc)
	}
}

func TestUploadFileRejectsForeignKey(t *testing.T) {
	s := newBlobServer(t)

	body, contentType := multipartBody(t, "other/steal.png", "steal.png", "image/png", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/api/room/pics/upload-file", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a key outside the room, got %d", rec.Code)
	}
}

func TestFileNotFound(t *testing.T) {
	s := newBlobServer(t)
	rec := doRequest(t, s, http.MethodGet, "/files/pics/missing.png", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
