package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mediastore/mediastore/internal/metrics"

	mserr "github.com/mediastore/mediastore/internal/errors"
)

// DeleteKey handles DELETE /delete/{key} and removes a single stored object.
func (g *Gateway) DeleteKey(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	if key == "" {
		writeError(w, r, mserr.ErrPreconditionFailed.WithMessagef("delete requires a key"))
		return
	}
	if err := g.engine.DeleteFiles(r.Context(), []string{key}); err != nil {
		writeError(w, r, err)
		return
	}
	metrics.DeletesTotal.Inc()
	w.WriteHeader(http.StatusNoContent)
}

// DeleteBulk handles DELETE /delete and removes the keys listed in the JSON
// array body. Missing keys are tolerated per the at-least-once deletion
// policy.
func (g *Gateway) DeleteBulk(w http.ResponseWriter, r *http.Request) {
	var keys []string
	if err := json.NewDecoder(r.Body).Decode(&keys); err != nil {
		writeError(w, r, mserr.ErrPreconditionFailed.WithMessagef("delete body must be a JSON array of keys: %v", err))
		return
	}
	if len(keys) == 0 {
		writeError(w, r, mserr.ErrPreconditionFailed.WithMessagef("delete body names no keys"))
		return
	}
	if err := g.engine.DeleteFiles(r.Context(), keys); err != nil {
		writeError(w, r, err)
		return
	}
	metrics.DeletesTotal.Add(float64(len(keys)))
	w.WriteHeader(http.StatusNoContent)
}
