package api

import (
	"errors"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/belief0714/AINarrativeRPG/internal/media"
)

// handleStatic serves previously generated reply audio by filename.
func (h *Handler) handleStatic(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")

	f, err := h.files.Open(name)
	if err != nil {
		switch {
		case errors.Is(err, media.ErrInvalidFilename):
			Error(w, http.StatusBadRequest, "request", "invalid filename")
		case os.IsNotExist(err):
			Error(w, http.StatusNotFound, "request", "file not found")
		default:
			Error(w, http.StatusInternalServerError, "media", "could not open file")
		}
		return
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		Error(w, http.StatusInternalServerError, "media", "could not stat file")
		return
	}

	http.ServeContent(w, r, name, info.ModTime(), f)
}
