package handlers

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/mediastore/mediastore/internal/auth"
	"github.com/mediastore/mediastore/internal/collection"
	"github.com/mediastore/mediastore/internal/events"
	"github.com/mediastore/mediastore/internal/jobs"
	"github.com/mediastore/mediastore/internal/reconcile"
	"github.com/mediastore/mediastore/internal/storage"

	mserr "github.com/mediastore/mediastore/internal/errors"
)

// stubRecords is an in-memory RecordService for handler tests.
type stubRecords struct {
	records map[string]*collection.Mediafile
	tickets map[string]*collection.Ticket
}

func (s *stubRecords) GetMediafile(ctx context.Context, creds auth.Credentials, id string) (*collection.Mediafile, error) {
	mf, ok := s.records[id]
	if !ok {
		return nil, mserr.ErrNotFound.WithMessagef("mediafile %s not found", id)
	}
	cp := *mf
	return &cp, nil
}

func (s *stubRecords) UpdateMediafile(ctx context.Context, creds auth.Credentials, mf *collection.Mediafile) error {
	s.records[mf.ID] = mf
	return nil
}

func (s *stubRecords) PatchMediafile(ctx context.Context, creds auth.Credentials, id string, fields map[string]any) error {
	return nil
}

func (s *stubRecords) DeleteMediafile(ctx context.Context, creds auth.Credentials, id string) error {
	delete(s.records, id)
	return nil
}

func (s *stubRecords) GetTicket(ctx context.Context, creds auth.Credentials, id string) (*collection.Ticket, error) {
	tk, ok := s.tickets[id]
	if !ok {
		return nil, mserr.ErrNotFound.WithMessagef("ticket %s not found", id)
	}
	return tk, nil
}

// newTestRouter wires a gateway over in-memory dependencies with the same
// routes the server registers.
func newTestRouter(t *testing.T) (chi.Router, *storage.MemoryStore, *stubRecords) {
	t.Helper()
	store := storage.NewMemoryStore()
	records := &stubRecords{
		records: make(map[string]*collection.Mediafile),
		tickets: make(map[string]*collection.Ticket),
	}
	engine := &reconcile.Engine{
		Store:           store,
		Bucket:          "media",
		Collection:      records,
		Publisher:       events.NopPublisher{},
		CheckDuplicates: true,
	}
	gw := NewGateway(engine, store, "media", jobs.NopTracker{})

	r := chi.NewRouter()
	r.Post("/upload", gw.Upload)
	r.Post("/upload/transcode", gw.UploadTranscode)
	r.Post("/upload/*", gw.UploadKey)
	r.Post("/upload-with-ticket", gw.UploadWithTicket)
	r.Post("/upload-with-ticket/*", gw.UploadKeyWithTicket)
	r.Get("/download/*", gw.Download)
	r.Get("/download-with-ticket/*", gw.DownloadWithTicket)
	r.Head("/download-with-ticket/*", gw.HeadDownload)
	r.Delete("/delete", gw.DeleteBulk)
	r.Delete("/delete/*", gw.DeleteKey)
	r.Get("/unique/{fingerprint}", gw.Unique)
	return r, store, records
}

// multipartBody builds a multipart request body with a single file part.
func multipartBody(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile failed: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("writing part failed: %v", err)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

var testPNG = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)

func doUpload(t *testing.T, router chi.Router, path, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, filename, content)
	req := httptest.NewRequest("POST", path, body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestUploadStoresObject(t *testing.T) {
	router, store, records := newTestRouter(t)
	records.records["mf-1"] = &collection.Mediafile{ID: "mf-1", Filename: "cat.png"}

	rec := doUpload(t, router, "/upload?id=mf-1", "cat.png", testPNG)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.Len() != 0 {
		t.Errorf("expected empty body, got %q", rec.Body.String())
	}

	keys, err := store.ListByPrefix(context.Background(), "media", "")
	if err != nil {
		t.Fatalf("ListByPrefix failed: %v", err)
	}
	if len(keys) != 1 || !strings.HasSuffix(keys[0], "-cat.png") {
		t.Errorf("unexpected stored keys: %v", keys)
	}
}

func TestUploadDuplicateReturns409(t *testing.T) {
	router, _, records := newTestRouter(t)
	records.records["mf-1"] = &collection.Mediafile{ID: "mf-1", Filename: "cat.png"}
	records.records["mf-2"] = &collection.Mediafile{ID: "mf-2", Filename: "copy.png"}

	if rec := doUpload(t, router, "/upload?id=mf-1", "cat.png", testPNG); rec.Code != http.StatusCreated {
		t.Fatalf("first upload: expected 201, got %d", rec.Code)
	}

	rec := doUpload(t, router, "/upload?id=mf-2", "copy.png", testPNG)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "matches existing file") {
		t.Errorf("409 body should name the existing file, got %q", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "-cat.png") {
		t.Errorf("409 body should carry the first upload's key, got %q", rec.Body.String())
	}
}

func TestUploadWithoutTargetReturns400(t *testing.T) {
	router, _, _ := newTestRouter(t)
	rec := doUpload(t, router, "/upload", "cat.png", testPNG)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestUploadWithTicket(t *testing.T) {
	router, store, records := newTestRouter(t)
	records.tickets["t-1"] = &collection.Ticket{ID: "t-1", Location: "inbox/cat.png", MediafileID: "mf-1"}
	records.records["mf-1"] = &collection.Mediafile{ID: "mf-1", Filename: "cat.png"}

	rec := doUpload(t, router, "/upload-with-ticket?ticket_id=t-1", "cat.png", testPNG)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	keys, _ := store.ListByPrefix(context.Background(), "media", "")
	if len(keys) != 1 || !strings.HasSuffix(keys[0], "-inbox/cat.png") {
		t.Errorf("ticket location not used for key: %v", keys)
	}
}

func TestUploadKeyWithTicket(t *testing.T) {
	router, store, records := newTestRouter(t)
	// A ticket without a location leaves the explicit key in charge.
	records.tickets["t-1"] = &collection.Ticket{ID: "t-1", MediafileID: "mf-1"}
	records.records["mf-1"] = &collection.Mediafile{ID: "mf-1", Filename: "cat.png"}

	rec := doUpload(t, router, "/upload-with-ticket/custom/name.png?ticket_id=t-1", "cat.png", testPNG)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	keys, _ := store.ListByPrefix(context.Background(), "media", "")
	if len(keys) != 1 || !strings.HasSuffix(keys[0], "-custom/name.png") {
		t.Errorf("explicit key not used: %v", keys)
	}
}

func TestUploadTranscodeRegistersDerivative(t *testing.T) {
	router, store, records := newTestRouter(t)
	records.records["mf-1"] = &collection.Mediafile{ID: "mf-1", Filename: "abc-cat.png"}

	rec := doUpload(t, router, "/upload/transcode?id=mf-1", "cat.jpg", []byte("jpeg bytes"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	keys, _ := store.ListByPrefix(context.Background(), "media", "")
	if len(keys) != 1 || !strings.Contains(keys[0], "-transcode-cat.jpg") {
		t.Errorf("unexpected transcode keys: %v", keys)
	}
}

func TestDownloadWithConcreteEndIsPartial(t *testing.T) {
	router, store, _ := newTestRouter(t)
	content := "0123456789"
	store.Put(context.Background(), "media", "abc-data.bin", strings.NewReader(content), 10)

	req := httptest.NewRequest("GET", "/download/abc-data.bin", nil)
	req.Header.Set("Range", "bytes=0-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusPartialContent {
		t.Fatalf("expected 206, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Range"); got != "bytes 0-1/10" {
		t.Errorf("Content-Range = %q, want %q", got, "bytes 0-1/10")
	}
	if got := rec.Header().Get("Content-Length"); got != "2" {
		t.Errorf("Content-Length = %q, want 2", got)
	}
	if got := rec.Header().Get("Content-Transfer-Encoding"); got != "binary" {
		t.Errorf("Content-Transfer-Encoding = %q, want binary", got)
	}
	if body, _ := io.ReadAll(rec.Body); string(body) != "01" {
		t.Errorf("body = %q, want %q", body, "01")
	}
}

func TestDownloadOpenEndedRangeServesFull(t *testing.T) {
	router, store, _ := newTestRouter(t)
	content := "0123456789"
	store.Put(context.Background(), "media", "abc-data.bin", strings.NewReader(content), 10)

	req := httptest.NewRequest("GET", "/download/abc-data.bin", nil)
	req.Header.Set("Range", "bytes=5-")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// No concrete end offset: not forced partial.
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body, _ := io.ReadAll(rec.Body); string(body) != content {
		t.Errorf("body = %q, want full content", body)
	}
}

func TestDownloadMissingKeyIs404(t *testing.T) {
	router, _, _ := newTestRouter(t)

	req := httptest.NewRequest("GET", "/download/never-uploaded.png", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "never-uploaded.png") {
		t.Errorf("404 body should name the key, got %q", rec.Body.String())
	}
}

func TestDownloadWithTicketChecksTicket(t *testing.T) {
	router, store, records := newTestRouter(t)
	records.tickets["t-1"] = &collection.Ticket{ID: "t-1"}
	records.tickets["t-old"] = &collection.Ticket{ID: "t-old", Expired: true}
	store.Put(context.Background(), "media", "abc-cat.png", bytes.NewReader(testPNG), int64(len(testPNG)))

	req := httptest.NewRequest("GET", "/download-with-ticket/abc-cat.png?ticket_id=t-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid ticket: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	for _, url := range []string{
		"/download-with-ticket/abc-cat.png",
		"/download-with-ticket/abc-cat.png?ticket_id=t-unknown",
		"/download-with-ticket/abc-cat.png?ticket_id=t-old",
	} {
		req := httptest.NewRequest("GET", url, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", url, rec.Code)
		}
	}
}

func TestHeadDownloadReportsMetadata(t *testing.T) {
	router, store, _ := newTestRouter(t)
	store.Put(context.Background(), "media", "abc-cat.png", bytes.NewReader(testPNG), int64(len(testPNG)))

	req := httptest.NewRequest("HEAD", "/download-with-ticket/abc-cat.png", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Accept-Ranges"); got != "bytes" {
		t.Errorf("Accept-Ranges = %q, want bytes", got)
	}
	if got := rec.Header().Get("Content-Type"); got != "image/png" {
		t.Errorf("Content-Type = %q, want image/png", got)
	}
}

func TestDeleteKey(t *testing.T) {
	router, store, _ := newTestRouter(t)
	store.Put(context.Background(), "media", "abc-cat.png", bytes.NewReader(testPNG), int64(len(testPNG)))

	req := httptest.NewRequest("DELETE", "/delete/abc-cat.png", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	keys, _ := store.ListByPrefix(context.Background(), "media", "")
	if len(keys) != 0 {
		t.Errorf("object not deleted: %v", keys)
	}
}

func TestDeleteBulkToleratesMissingKeys(t *testing.T) {
	router, store, _ := newTestRouter(t)
	store.Put(context.Background(), "media", "abc-cat.png", bytes.NewReader(testPNG), int64(len(testPNG)))

	req := httptest.NewRequest("DELETE", "/delete", strings.NewReader(`["abc-cat.png", "never-existed"]`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	keys, _ := store.ListByPrefix(context.Background(), "media", "")
	if len(keys) != 0 {
		t.Errorf("existing key not deleted alongside missing one: %v", keys)
	}
}

func TestDeleteBulkRejectsMalformedBody(t *testing.T) {
	router, _, _ := newTestRouter(t)

	req := httptest.NewRequest("DELETE", "/delete", strings.NewReader(`{"not": "an array"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestUnique(t *testing.T) {
	router, _, records := newTestRouter(t)
	records.records["mf-1"] = &collection.Mediafile{ID: "mf-1", Filename: "cat.png"}

	req := httptest.NewRequest("GET", "/unique/d41d8cd98f00b204e9800998ecf8427e", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for unused fingerprint, got %d", rec.Code)
	}

	if rec := doUpload(t, router, "/upload?id=mf-1", "cat.png", testPNG); rec.Code != http.StatusCreated {
		t.Fatalf("upload failed: %d", rec.Code)
	}
	fp := records.records["mf-1"].Identifiers[0]

	req = httptest.NewRequest("GET", "/unique/"+fp, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for used fingerprint, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), fp+"-cat.png") {
		t.Errorf("409 body should name the conflicting key, got %q", rec.Body.String())
	}
}

func TestParseRangeHeader(t *testing.T) {
	tests := []struct {
		header  string
		start   int64
		end     int64
		hasEnd  bool
		wantErr bool
		nilSpec bool
	}{
		{header: "", nilSpec: true},
		{header: "bytes=0-1", start: 0, end: 1, hasEnd: true},
		{header: "bytes=5-", start: 5},
		{header: "bytes=-5", start: 0, end: 5, hasEnd: true},
		{header: "bytes=9-5", wantErr: true},
		{header: "bytes=0-1,5-6", wantErr: true},
		{header: "items=0-1", wantErr: true},
		{header: "bytes=-", wantErr: true},
	}
	for _, tt := range tests {
		spec, err := parseRangeHeader(tt.header)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseRangeHeader(%q): expected error", tt.header)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseRangeHeader(%q): %v", tt.header, err)
			continue
		}
		if tt.nilSpec {
			if spec != nil {
				t.Errorf("parseRangeHeader(%q) = %+v, want nil", tt.header, spec)
			}
			continue
		}
		if spec.Start != tt.start || spec.End != tt.end || spec.HasEnd != tt.hasEnd {
			t.Errorf("parseRangeHeader(%q) = %+v, want start=%d end=%d hasEnd=%v",
				tt.header, spec, tt.start, tt.end, tt.hasEnd)
		}
	}
}
