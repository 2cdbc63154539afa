package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/scribe/internal/database"
)

func TestTranscriptionsList(t *testing.T) {
	t.Run("returns_records_in_order", func(t *testing.T) {
		newer := time.Date(2024, 2, 25, 17, 0, 0, 0, time.UTC)
		svc := &fakeService{recs: []database.Transcription{
			{ID: "b", AudioFile: "2-b.wav", Text: "second", CreatedAt: newer},
			{ID: "a", AudioFile: "1-a.wav", Text: "first", CreatedAt: newer.Add(-time.Minute)},
		}}
		h := NewTranscriptionsHandler(svc, zerolog.Nop())
		rec := httptest.NewRecorder()
		h.List(rec, httptest.NewRequest("GET", "/transcriptions", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var got []map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatal(err)
		}
		if len(got) != 2 {
			t.Fatalf("got %d records, want 2", len(got))
		}
		if got[0]["_id"] != "b" || got[0]["audioFile"] != "2-b.wav" || got[0]["text"] != "second" {
			t.Errorf("first record = %v", got[0])
		}
		if got[0]["createdAt"] != "2024-02-25T17:00:00Z" {
			t.Errorf("createdAt = %v", got[0]["createdAt"])
		}
	})

	t.Run("empty_is_array_not_null", func(t *testing.T) {
		h := NewTranscriptionsHandler(&fakeService{}, zerolog.Nop())
		rec := httptest.NewRecorder()
		h.List(rec, httptest.NewRequest("GET", "/transcriptions", nil))
		if strings.TrimSpace(rec.Body.String()) != "[]" {
			t.Errorf("body = %q, want []", rec.Body.String())
		}
	})

	t.Run("store_failure_returns_500", func(t *testing.T) {
		h := NewTranscriptionsHandler(&fakeService{historyErr: errBoom}, zerolog.Nop())
		rec := httptest.NewRecorder()
		h.List(rec, httptest.NewRequest("GET", "/transcriptions", nil))
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", rec.Code)
		}
		if msg := decodeMessage(t, rec); msg != "Failed to fetch history" {
			t.Errorf("message = %q", msg)
		}
	})
}

func TestTranscriptionsClear(t *testing.T) {
	t.Run("returns_deleted_count", func(t *testing.T) {
		h := NewTranscriptionsHandler(&fakeService{deleted: 3}, zerolog.Nop())
		rec := httptest.NewRecorder()
		h.Clear(rec, httptest.NewRequest("DELETE", "/transcriptions", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var resp ClearResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		if resp.Message != "All transcriptions deleted" || resp.DeletedCount != 3 {
			t.Errorf("response = %+v", resp)
		}
	})

	t.Run("zero_deleted_on_empty_store", func(t *testing.T) {
		h := NewTranscriptionsHandler(&fakeService{}, zerolog.Nop())
		rec := httptest.NewRecorder()
		h.Clear(rec, httptest.NewRequest("DELETE", "/transcriptions", nil))
		if !strings.Contains(rec.Body.String(), `"deletedCount":0`) {
			t.Errorf("body = %s, want deletedCount 0", rec.Body.String())
		}
	})

	t.Run("store_failure_returns_500", func(t *testing.T) {
		h := NewTranscriptionsHandler(&fakeService{clearErr: errBoom}, zerolog.Nop())
		rec := httptest.NewRecorder()
		h.Clear(rec, httptest.NewRequest("DELETE", "/transcriptions", nil))
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", rec.Code)
		}
		if msg := decodeMessage(t, rec); msg != "Failed to delete history" {
			t.Errorf("message = %q", msg)
		}
	})
}
