package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/snarg/scribe/internal/database"
	"github.com/snarg/scribe/internal/ingest"
)

const audioField = "audio"

// Uploader runs one uploaded audio file through transcription and storage.
type Uploader interface {
	ProcessUpload(ctx context.Context, up ingest.Upload) (*database.Transcription, error)
}

// UploadHandler handles POST /upload.
type UploadHandler struct {
	uploader Uploader
	maxBytes int64
	log      zerolog.Logger
}

// NewUploadHandler creates a new upload handler. maxBytes caps the request
// body; 0 disables the cap.
func NewUploadHandler(uploader Uploader, maxBytes int64, log zerolog.Logger) *UploadHandler {
	return &UploadHandler{
		uploader: uploader,
		maxBytes: maxBytes,
		log:      log.With().Str("handler", "upload").Logger(),
	}
}

// Routes registers the upload endpoint.
func (h *UploadHandler) Routes(r chi.Router) {
	r.Post("/upload", h.Upload)
}

// Upload streams the "audio" part of a multipart form into the pipeline.
// Other form fields are ignored.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	}

	mr, err := r.MultipartReader()
	if err != nil {
		// Not multipart at all: there is no file to transcribe.
		WriteMessage(w, http.StatusBadRequest, "No audio uploaded")
		return
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			h.writeReadError(w, err)
			return
		}
		if part.FormName() != audioField || part.FileName() == "" {
			part.Close()
			continue
		}

		rec, err := h.uploader.ProcessUpload(r.Context(), ingest.Upload{
			Filename:    part.FileName(),
			ContentType: part.Header.Get("Content-Type"),
			Body:        part,
			Source:      "upload",
		})
		part.Close()
		if err != nil {
			h.writeProcessError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, UploadResponse{
			Message: "Transcription successful",
			Text:    rec.Text,
		})
		return
	}

	WriteMessage(w, http.StatusBadRequest, "No audio uploaded")
}

func (h *UploadHandler) writeReadError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		WriteMessage(w, http.StatusBadRequest, "Audio file too large")
		return
	}
	WriteMessage(w, http.StatusBadRequest, "Invalid multipart form")
}

func (h *UploadHandler) writeProcessError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, ingest.ErrNoAudio):
		WriteMessage(w, http.StatusBadRequest, "No audio uploaded")
	case errors.As(err, &tooLarge):
		WriteMessage(w, http.StatusBadRequest, "Audio file too large")
	case errors.Is(err, ingest.ErrBadUpload):
		WriteMessage(w, http.StatusBadRequest, "Invalid multipart form")
	default:
		h.log.Error().Err(err).
			Str("request_id", RequestIDFrom(r.Context())).
			Msg("transcription failed")
		WriteMessage(w, http.StatusInternalServerError, "Transcription failed")
	}
}
