package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/snarg/scribe/internal/database"
	"github.com/snarg/scribe/internal/ingest"
)

func newTestUploadHandler(up Uploader, maxBytes int64) *UploadHandler {
	return NewUploadHandler(up, maxBytes, zerolog.Nop())
}

func doUpload(t *testing.T, h *UploadHandler, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/upload", body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.Upload(rec, req)
	return rec
}

func decodeMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body MessageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not valid JSON: %v (%s)", err, rec.Body.String())
	}
	return body.Message
}

func TestUpload_Success(t *testing.T) {
	svc := &fakeService{rec: &database.Transcription{ID: "rec-1", Text: "hello world"}}
	h := newTestUploadHandler(svc, 0)

	body, ct := buildMultipartForm(t, map[string]string{"note": "ignored"}, "audio", []byte("RIFFfake"), "sample.wav")
	rec := doUpload(t, h, body, ct)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp UploadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Message != "Transcription successful" || resp.Text != "hello world" {
		t.Errorf("response = %+v", resp)
	}
	if svc.lastUp.Filename != "sample.wav" {
		t.Errorf("Filename = %q, want sample.wav", svc.lastUp.Filename)
	}
	if svc.lastUp.Source != "upload" {
		t.Errorf("Source = %q, want upload", svc.lastUp.Source)
	}
	if string(svc.lastBody) != "RIFFfake" {
		t.Errorf("body = %q, want RIFFfake", svc.lastBody)
	}
}

func TestUpload_ClientErrors(t *testing.T) {
	tests := []struct {
		name        string
		build       func(t *testing.T) (*bytes.Buffer, string)
		wantMessage string
	}{
		{
			name: "missing_audio_field",
			build: func(t *testing.T) (*bytes.Buffer, string) {
				return buildMultipartForm(t, map[string]string{"foo": "bar"}, "", nil, "")
			},
			wantMessage: "No audio uploaded",
		},
		{
			name: "wrong_file_field",
			build: func(t *testing.T) (*bytes.Buffer, string) {
				return buildMultipartForm(t, nil, "file", []byte("data"), "a.wav")
			},
			wantMessage: "No audio uploaded",
		},
		{
			name: "audio_as_plain_field",
			build: func(t *testing.T) (*bytes.Buffer, string) {
				return buildMultipartForm(t, map[string]string{"audio": "not a file"}, "", nil, "")
			},
			wantMessage: "No audio uploaded",
		},
		{
			name: "not_multipart",
			build: func(t *testing.T) (*bytes.Buffer, string) {
				return bytes.NewBufferString(`{"audio":"x"}`), "application/json"
			},
			wantMessage: "No audio uploaded",
		},
		{
			name: "truncated_multipart",
			build: func(t *testing.T) (*bytes.Buffer, string) {
				return bytes.NewBufferString("--xyz\r\nContent-Disposition: form-data; name=\"a\"\r\n\r\nval"), "multipart/form-data; boundary=xyz"
			},
			wantMessage: "Invalid multipart form",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{}
			body, ct := tt.build(t)
			rec := doUpload(t, newTestUploadHandler(svc, 0), body, ct)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
			if msg := decodeMessage(t, rec); msg != tt.wantMessage {
				t.Errorf("message = %q, want %q", msg, tt.wantMessage)
			}
			if svc.uploads != 0 {
				t.Errorf("uploader called %d times, want 0", svc.uploads)
			}
		})
	}
}

func TestUpload_ServiceErrors(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantMessage string
	}{
		{"no_audio", fmt.Errorf("wrapped: %w", ingest.ErrNoAudio), http.StatusBadRequest, "No audio uploaded"},
		{"too_large", fmt.Errorf("write temp: %w", &http.MaxBytesError{Limit: 10}), http.StatusBadRequest, "Audio file too large"},
		{"bad_upload", fmt.Errorf("write temp: %w: %w", ingest.ErrBadUpload, io.ErrUnexpectedEOF), http.StatusBadRequest, "Invalid multipart form"},
		{"provider_failure", fmt.Errorf("deepgram transcribe: %w", errBoom), http.StatusInternalServerError, "Transcription failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{uploadErr: tt.err}
			body, ct := buildMultipartForm(t, nil, "audio", []byte("data"), "a.wav")
			rec := doUpload(t, newTestUploadHandler(svc, 0), body, ct)
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
			msg := decodeMessage(t, rec)
			if msg != tt.wantMessage {
				t.Errorf("message = %q, want %q", msg, tt.wantMessage)
			}
			if strings.Contains(rec.Body.String(), "boom") {
				t.Error("internal cause leaked into response")
			}
		})
	}
}

func TestUpload_BodyTooLarge(t *testing.T) {
	store := newMemStore()
	prov := &stubProvider{text: "never"}
	h := newTestUploadHandler(newTestPipeline(t, store, prov), 1024)

	body, ct := buildMultipartForm(t, nil, "audio", bytes.Repeat([]byte{1}, 4096), "big.wav")
	rec := doUpload(t, h, body, ct)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if msg := decodeMessage(t, rec); msg != "Audio file too large" {
		t.Errorf("message = %q", msg)
	}
	if prov.callCount() != 0 || store.len() != 0 {
		t.Errorf("provider calls = %d, records = %d; want 0, 0", prov.callCount(), store.len())
	}
}

func TestUpload_TruncatedBodyWithPipeline(t *testing.T) {
	store := newMemStore()
	prov := &stubProvider{text: "never"}
	h := newTestUploadHandler(newTestPipeline(t, store, prov), 0)

	// A client that disconnects halfway through a 4 KiB audio part.
	full, ct := buildMultipartForm(t, nil, "audio", bytes.Repeat([]byte("RIFF"), 1024), "sample.wav")
	half := bytes.NewBuffer(full.Bytes()[:full.Len()/2])
	rec := doUpload(t, h, half, ct)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if msg := decodeMessage(t, rec); msg != "Invalid multipart form" {
		t.Errorf("message = %q, want Invalid multipart form", msg)
	}
	if prov.callCount() != 0 || store.len() != 0 {
		t.Errorf("provider calls = %d, records = %d; want 0, 0", prov.callCount(), store.len())
	}
}

func TestUpload_EmptyFileWithPipeline(t *testing.T) {
	store := newMemStore()
	prov := &stubProvider{text: "never"}
	h := newTestUploadHandler(newTestPipeline(t, store, prov), 0)

	body, ct := buildMultipartForm(t, nil, "audio", []byte{}, "empty.wav")
	rec := doUpload(t, h, body, ct)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if prov.callCount() != 0 || store.len() != 0 {
		t.Errorf("provider calls = %d, records = %d; want 0, 0", prov.callCount(), store.len())
	}
}

func TestUpload_ProviderFailureWithPipeline(t *testing.T) {
	store := newMemStore()
	prov := &stubProvider{err: errBoom}
	h := newTestUploadHandler(newTestPipeline(t, store, prov), 0)

	body, ct := buildMultipartForm(t, nil, "audio", []byte("data"), "a.wav")
	rec := doUpload(t, h, body, ct)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if msg := decodeMessage(t, rec); msg != "Transcription failed" {
		t.Errorf("message = %q", msg)
	}
	if prov.callCount() != 1 {
		t.Errorf("provider calls = %d, want 1 (no retry)", prov.callCount())
	}
	if store.len() != 0 {
		t.Errorf("records = %d, want 0", store.len())
	}
}
