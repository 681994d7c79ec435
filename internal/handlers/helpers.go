// Package handlers implements the HTTP surface of the mediafile gateway:
// uploads, downloads, deletes, and the fingerprint uniqueness probe.
package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	mserr "github.com/mediastore/mediastore/internal/errors"
)

// rangeSpec is a parsed Range request header. A download is only forced
// partial when the caller named a concrete end offset.
type rangeSpec struct {
	Start  int64
	End    int64
	HasEnd bool
}

// parseRangeHeader parses a "bytes=start-end" header. Defaulting: an omitted
// start means 0; an omitted end means the full remainder of the object, which
// is served as a regular 200 response.
func parseRangeHeader(header string) (*rangeSpec, error) {
	if header == "" {
		return nil, nil
	}
	if !strings.HasPrefix(header, "bytes=") {
		return nil, mserr.ErrInvalidRange.WithMessagef("invalid range header: missing bytes= prefix")
	}
	spec := strings.TrimPrefix(header, "bytes=")
	if strings.Contains(spec, ",") {
		return nil, mserr.ErrInvalidRange.WithMessagef("multi-range not supported")
	}
	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return nil, mserr.ErrInvalidRange.WithMessagef("invalid range spec: %q", spec)
	}

	startStr := strings.TrimSpace(parts[0])
	endStr := strings.TrimSpace(parts[1])
	if startStr == "" && endStr == "" {
		return nil, mserr.ErrInvalidRange.WithMessagef("invalid range: both start and end are empty")
	}

	rs := &rangeSpec{}
	if startStr != "" {
		start, err := strconv.ParseInt(startStr, 10, 64)
		if err != nil || start < 0 {
			return nil, mserr.ErrInvalidRange.WithMessagef("invalid range start: %q", startStr)
		}
		rs.Start = start
	}
	if endStr != "" {
		end, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || end < 0 {
			return nil, mserr.ErrInvalidRange.WithMessagef("invalid range end: %q", endStr)
		}
		rs.End = end
		rs.HasEnd = true
	}
	if rs.HasEnd && rs.Start > rs.End {
		return nil, mserr.ErrInvalidRange.WithMessagef("range start %d > end %d", rs.Start, rs.End)
	}
	return rs, nil
}

// writeError translates the error taxonomy to an HTTP response. Duplicate
// conditions surface as 409, taxonomy errors carry their own status, and
// anything else on a write path is a 400 with the explanation string.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if dup := mserr.AsDuplicate(err); dup != nil {
		writePlain(w, http.StatusConflict, dup.Message)
		return
	}

	var se *mserr.StorageError
	if errors.As(err, &se) {
		writePlain(w, se.HTTPStatus, se.Message)
		return
	}

	slog.Warn("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	writePlain(w, http.StatusBadRequest, err.Error())
}

func writePlain(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if body != "" {
		fmt.Fprintln(w, body)
	}
}
