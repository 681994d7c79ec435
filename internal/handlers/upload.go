package handlers

import (
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mediastore/mediastore/internal/auth"
	"github.com/mediastore/mediastore/internal/metrics"
	"github.com/mediastore/mediastore/internal/reconcile"

	mserr "github.com/mediastore/mediastore/internal/errors"
)

// maxUploadMemory is the in-memory threshold for multipart parsing; larger
// files spill to temp files, which still satisfy io.ReadSeeker.
const maxUploadMemory = 32 << 20

// Upload handles POST /upload?id=, the primary upload addressed by mediafile id.
func (g *Gateway) Upload(w http.ResponseWriter, r *http.Request) {
	g.runUpload(w, r, "file", reconcile.UploadRequest{
		MediafileID: r.URL.Query().Get("id"),
	})
}

// UploadKey handles POST /upload/{key}, a primary upload with an explicit key.
func (g *Gateway) UploadKey(w http.ResponseWriter, r *http.Request) {
	g.runUpload(w, r, "file", reconcile.UploadRequest{
		Key:         chi.URLParam(r, "*"),
		MediafileID: r.URL.Query().Get("id"),
	})
}

// UploadWithTicket handles POST /upload-with-ticket?ticket_id=, an upload
// authorized by an externally issued ticket.
func (g *Gateway) UploadWithTicket(w http.ResponseWriter, r *http.Request) {
	g.runUpload(w, r, "ticket", reconcile.UploadRequest{
		MediafileID: r.URL.Query().Get("id"),
		TicketID:    r.URL.Query().Get("ticket_id"),
	})
}

// UploadKeyWithTicket handles POST /upload-with-ticket/{key}?ticket_id=, a
// ticket-authorized upload with an explicit key. A ticket location still
// takes precedence over the key in the derivation.
func (g *Gateway) UploadKeyWithTicket(w http.ResponseWriter, r *http.Request) {
	g.runUpload(w, r, "ticket", reconcile.UploadRequest{
		Key:         chi.URLParam(r, "*"),
		MediafileID: r.URL.Query().Get("id"),
		TicketID:    r.URL.Query().Get("ticket_id"),
	})
}

// UploadTranscode handles POST /upload/transcode?id=, a derivative upload
// registered on the primary record.
func (g *Gateway) UploadTranscode(w http.ResponseWriter, r *http.Request) {
	creds := auth.FromContext(r.Context())
	file, filename, err := formFile(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer file.Close()

	req := reconcile.UploadRequest{
		File:        file,
		Filename:    filename,
		MediafileID: r.URL.Query().Get("id"),
	}

	job, _ := g.jobs.Create(r.Context(), creds, "file_upload", "Upload transcode", "", req.MediafileID)
	g.jobs.Progress(r.Context(), creds, job)

	res, err := g.engine.UploadTranscode(r.Context(), creds, req)
	if err != nil {
		g.jobs.Fail(r.Context(), creds, job, err.Error())
		metrics.UploadsTotal.WithLabelValues("transcode", uploadOutcome(err)).Inc()
		writeError(w, r, err)
		return
	}
	g.jobs.Finish(r.Context(), creds, job, "stored as "+res.Key)
	metrics.UploadsTotal.WithLabelValues("transcode", "stored").Inc()
	w.WriteHeader(http.StatusCreated)
}

// runUpload is the shared primary upload flow: parse the multipart file,
// track a job, run the reconciliation engine, and map the outcome.
func (g *Gateway) runUpload(w http.ResponseWriter, r *http.Request, kind string, req reconcile.UploadRequest) {
	creds := auth.FromContext(r.Context())
	file, filename, err := formFile(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer file.Close()
	req.File = file
	req.Filename = filename

	job, _ := g.jobs.Create(r.Context(), creds, "file_upload", "Upload file", "", req.MediafileID)
	g.jobs.Progress(r.Context(), creds, job)

	res, err := g.engine.UploadFile(r.Context(), creds, req)
	if err != nil {
		g.jobs.Fail(r.Context(), creds, job, err.Error())
		metrics.UploadsTotal.WithLabelValues(kind, uploadOutcome(err)).Inc()
		writeError(w, r, err)
		return
	}
	g.jobs.Finish(r.Context(), creds, job, "stored as "+res.Key)
	metrics.UploadsTotal.WithLabelValues(kind, "stored").Inc()
	w.WriteHeader(http.StatusCreated)
}

// formFile extracts the uploaded file part and its filename.
func formFile(r *http.Request) (multipart.File, string, error) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		return nil, "", mserr.ErrPreconditionFailed.WithMessagef("request is not a valid multipart upload: %v", err)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", mserr.ErrPreconditionFailed.WithMessagef("upload is missing the file part")
	}
	return file, header.Filename, nil
}

func uploadOutcome(err error) string {
	if mserr.IsDuplicate(err) {
		return "duplicate"
	}
	return "error"
}
