package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Unique handles GET /unique/{fingerprint}: 200 when no stored object
// carries the fingerprint, 409 naming the conflicting key when one does.
func (g *Gateway) Unique(w http.ResponseWriter, r *http.Request) {
	fp := chi.URLParam(r, "fingerprint")

	key, err := g.engine.Unique(r.Context(), fp)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if key == "" {
		w.WriteHeader(http.StatusOK)
		return
	}
	writePlain(w, http.StatusConflict, key)
}
