package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/snarg/scribe/internal/storage"
)

var audioContentTypes = map[string]string{
	".m4a":  "audio/mp4",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".flac": "audio/flac",
	".webm": "audio/webm",
}

// AudioHandler serves archived source audio by stored filename.
type AudioHandler struct {
	store storage.AudioStore // nil when archiving is disabled
	log   zerolog.Logger
}

func NewAudioHandler(store storage.AudioStore, log zerolog.Logger) *AudioHandler {
	return &AudioHandler{
		store: store,
		log:   log.With().Str("handler", "audio").Logger(),
	}
}

func (h *AudioHandler) Routes(r chi.Router) {
	r.Get("/audio/{name}", h.Get)
}

// Get streams a locally archived file or redirects to a presigned URL for
// remote backends.
func (h *AudioHandler) Get(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !storage.ValidKey(name) {
		WriteMessage(w, http.StatusBadRequest, "Invalid audio name")
		return
	}

	err := h.serve(w, r, name)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrArchiveDisabled):
		WriteMessage(w, http.StatusNotFound, "Audio archive disabled")
	case errors.Is(err, storage.ErrNotFound):
		WriteMessage(w, http.StatusNotFound, "Audio not found")
	case errors.Is(err, storage.ErrInvalidKey):
		WriteMessage(w, http.StatusBadRequest, "Invalid audio name")
	default:
		h.log.Error().Err(err).Str("name", name).Str("request_id", RequestIDFrom(r.Context())).Msg("audio lookup failed")
		WriteMessage(w, http.StatusInternalServerError, "Failed to fetch audio")
	}
}

func (h *AudioHandler) serve(w http.ResponseWriter, r *http.Request, name string) error {
	if h.store == nil {
		return storage.ErrArchiveDisabled
	}
	ctx := r.Context()

	if h.store.Type() == "s3" {
		if !h.store.Exists(ctx, name) {
			return storage.ErrNotFound
		}
		url, err := h.store.URL(ctx, name)
		if err != nil {
			return err
		}
		if url != "" {
			http.Redirect(w, r, url, http.StatusFound)
			return nil
		}
	}

	rc, err := h.store.Open(ctx, name)
	if err != nil {
		return err
	}
	defer rc.Close()

	ext := strings.ToLower(filepath.Ext(name))
	ct, ok := audioContentTypes[ext]
	if !ok {
		if ct = mime.TypeByExtension(ext); ct == "" {
			ct = "application/octet-stream"
		}
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename=%q`, name))

	// Local files support range requests for seeking in <audio> players.
	if rs, ok := rc.(io.ReadSeeker); ok {
		http.ServeContent(w, r, name, time.Time{}, rs)
		return nil
	}
	w.WriteHeader(http.StatusOK)
	_, err = io.Copy(w, rc)
	if err != nil {
		h.log.Warn().Err(err).Str("name", name).Msg("audio stream interrupted")
	}
	return nil
}
