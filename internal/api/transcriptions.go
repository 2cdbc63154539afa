package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/snarg/scribe/internal/database"
)

// HistoryService lists and clears stored transcripts.
type HistoryService interface {
	History(ctx context.Context) ([]database.Transcription, error)
	ClearHistory(ctx context.Context) (int64, error)
}

type TranscriptionsHandler struct {
	history HistoryService
	log     zerolog.Logger
}

func NewTranscriptionsHandler(history HistoryService, log zerolog.Logger) *TranscriptionsHandler {
	return &TranscriptionsHandler{
		history: history,
		log:     log.With().Str("handler", "transcriptions").Logger(),
	}
}

func (h *TranscriptionsHandler) Routes(r chi.Router) {
	r.Get("/transcriptions", h.List)
	r.Delete("/transcriptions", h.Clear)
}

// List returns every transcript, newest first, as a JSON array.
func (h *TranscriptionsHandler) List(w http.ResponseWriter, r *http.Request) {
	recs, err := h.history.History(r.Context())
	if err != nil {
		h.log.Error().Err(err).Str("request_id", RequestIDFrom(r.Context())).Msg("list transcriptions failed")
		WriteMessage(w, http.StatusInternalServerError, "Failed to fetch history")
		return
	}
	if recs == nil {
		recs = []database.Transcription{}
	}
	WriteJSON(w, http.StatusOK, recs)
}

// Clear deletes every transcript.
func (h *TranscriptionsHandler) Clear(w http.ResponseWriter, r *http.Request) {
	n, err := h.history.ClearHistory(r.Context())
	if err != nil {
		h.log.Error().Err(err).Str("request_id", RequestIDFrom(r.Context())).Msg("clear transcriptions failed")
		WriteMessage(w, http.StatusInternalServerError, "Failed to delete history")
		return
	}
	WriteJSON(w, http.StatusOK, ClearResponse{
		Message:      "All transcriptions deleted",
		DeletedCount: n,
	})
}
