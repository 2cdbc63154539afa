package api

import (
	"encoding/json"
	"net/http"
)

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// MessageResponse is the body of every error and of plain acknowledgements.
type MessageResponse struct {
	Message string `json:"message"`
}

// WriteMessage writes {"message": msg}.
func WriteMessage(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, MessageResponse{Message: msg})
}

// UploadResponse is returned by a successful POST /upload.
type UploadResponse struct {
	Message string `json:"message"`
	Text    string `json:"text"`
}

// ClearResponse is returned by DELETE /transcriptions.
type ClearResponse struct {
	Message      string `json:"message"`
	DeletedCount int64  `json:"deletedCount"`
}
