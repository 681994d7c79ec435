package handlers

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mediastore/mediastore/internal/auth"
	"github.com/mediastore/mediastore/internal/metrics"
	"github.com/mediastore/mediastore/internal/storage"
)

// Download handles GET /download/{key}. With a concrete range end it serves
// 206 partial content; otherwise the full object (or full remainder) as 200.
// The body is streamed, never buffered.
func (g *Gateway) Download(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")

	info, err := g.store.HeadInfo(r.Context(), g.bucket, key)
	if err != nil {
		metrics.DownloadsTotal.WithLabelValues("not_found").Inc()
		writeError(w, r, err)
		return
	}

	spec, err := parseRangeHeader(r.Header.Get("Range"))
	if err != nil {
		metrics.DownloadsTotal.WithLabelValues("error").Inc()
		writeError(w, r, err)
		return
	}

	if spec != nil && spec.HasEnd {
		g.servePartial(w, r, key, info, spec)
		return
	}

	// No concrete end offset: full content, 200.
	rc, total, err := g.store.Get(r.Context(), g.bucket, key, nil)
	if err != nil {
		metrics.DownloadsTotal.WithLabelValues("error").Inc()
		writeError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", info.ContentType)
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Length", strconv.FormatInt(total, 10))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		slog.Warn("streaming download failed", "key", key, "error", err)
	}
	metrics.DownloadsTotal.WithLabelValues("full").Inc()
}

// servePartial performs the second, ranged fetch and writes a 206 response.
func (g *Gateway) servePartial(w http.ResponseWriter, r *http.Request, key string, info *storage.ObjectInfo, spec *rangeSpec) {
	end := spec.End
	if end >= info.Size {
		end = info.Size - 1
	}
	rng := &storage.ByteRange{Start: spec.Start, End: end}

	rc, total, err := g.store.Get(r.Context(), g.bucket, key, rng)
	if err != nil {
		metrics.DownloadsTotal.WithLabelValues("error").Inc()
		writeError(w, r, err)
		return
	}
	defer rc.Close()

	length := end - spec.Start + 1
	w.Header().Set("Content-Type", info.ContentType)
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", spec.Start, end, total))
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	w.Header().Set("Content-Transfer-Encoding", "binary")
	w.WriteHeader(http.StatusPartialContent)
	if _, err := io.Copy(w, rc); err != nil {
		slog.Warn("streaming partial download failed", "key", key, "error", err)
	}
	metrics.DownloadsTotal.WithLabelValues("partial").Inc()
}

// DownloadWithTicket handles GET /download-with-ticket/{key}?ticket_id=.
// The ticket is fetched and validated before any bytes are served; every
// ticket failure surfaces as a 400.
func (g *Gateway) DownloadWithTicket(w http.ResponseWriter, r *http.Request) {
	creds := auth.FromContext(r.Context())
	if err := g.engine.CheckTicket(r.Context(), creds, r.URL.Query().Get("ticket_id")); err != nil {
		metrics.DownloadsTotal.WithLabelValues("error").Inc()
		writeError(w, r, err)
		return
	}
	g.Download(w, r)
}

// HeadDownload handles HEAD /download-with-ticket/{key}, a metadata-only
// probe reporting length, type, and range support.
func (g *Gateway) HeadDownload(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")

	info, err := g.store.HeadInfo(r.Context(), g.bucket, key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", info.ContentType)
	w.Header().Set("Accept-Ranges", info.AcceptRanges)
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	w.WriteHeader(http.StatusOK)
}
