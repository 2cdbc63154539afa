package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/snarg/scribe/internal/database"
	"github.com/snarg/scribe/internal/ingest"
	"github.com/snarg/scribe/internal/storage"
	"github.com/snarg/scribe/internal/transcribe"
)

// memStore is an in-memory ingest.RecordStore.
type memStore struct {
	mu    sync.Mutex
	recs  []database.Transcription
	clock time.Time
	seq   int
	err   error
}

func newMemStore() *memStore {
	return &memStore{clock: time.Unix(1708881234, 0).UTC()}
}

func (s *memStore) InsertTranscription(ctx context.Context, audioFile, text string) (*database.Transcription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.seq++
	s.clock = s.clock.Add(time.Second)
	rec := database.Transcription{
		ID:        fmt.Sprintf("rec-%d", s.seq),
		AudioFile: audioFile,
		Text:      text,
		CreatedAt: s.clock,
	}
	s.recs = append(s.recs, rec)
	return &rec, nil
}

func (s *memStore) ListTranscriptions(ctx context.Context) ([]database.Transcription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([]database.Transcription, len(s.recs))
	copy(out, s.recs)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memStore) DeleteAllTranscriptions(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	n := int64(len(s.recs))
	s.recs = nil
	return n, nil
}

func (s *memStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recs)
}

// stubProvider returns a fixed transcript.
type stubProvider struct {
	mu    sync.Mutex
	text  string
	err   error
	calls int
}

func (p *stubProvider) Transcribe(ctx context.Context, audio []byte, opts transcribe.Options) (*transcribe.Response, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	return &transcribe.Response{Text: p.text}, nil
}

func (p *stubProvider) Name() string  { return "stub" }
func (p *stubProvider) Model() string { return "stub-1" }

func (p *stubProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func newTestPipeline(t *testing.T, store *memStore, prov *stubProvider) *ingest.Pipeline {
	t.Helper()
	return ingest.NewPipeline(ingest.PipelineOptions{
		Store:       store,
		Provider:    prov,
		UploadDir:   t.TempDir(),
		SmartFormat: true,
	})
}

// fakeService implements Service with canned results.
type fakeService struct {
	rec        *database.Transcription
	uploadErr  error
	recs       []database.Transcription
	historyErr error
	deleted    int64
	clearErr   error

	uploads  int
	lastUp   ingest.Upload
	lastBody []byte
}

func (f *fakeService) ProcessUpload(ctx context.Context, up ingest.Upload) (*database.Transcription, error) {
	f.uploads++
	f.lastUp = up
	f.lastBody, _ = io.ReadAll(up.Body)
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	return f.rec, nil
}

func (f *fakeService) History(ctx context.Context) ([]database.Transcription, error) {
	return f.recs, f.historyErr
}

func (f *fakeService) ClearHistory(ctx context.Context) (int64, error) {
	return f.deleted, f.clearErr
}

// memArchive is an in-memory storage.AudioStore.
type memArchive struct {
	kind  string
	files map[string][]byte
	url   string
	err   error
}

func (a *memArchive) Save(ctx context.Context, key string, data []byte, contentType string) error {
	a.files[key] = data
	return nil
}

func (a *memArchive) URL(ctx context.Context, key string) (string, error) {
	return a.url, a.err
}

func (a *memArchive) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if a.err != nil {
		return nil, a.err
	}
	data, ok := a.files[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (a *memArchive) Exists(ctx context.Context, key string) bool {
	_, ok := a.files[key]
	return ok
}

func (a *memArchive) Type() string { return a.kind }

var errBoom = errors.New("boom")

// buildMultipartForm writes optional text fields and one optional file part.
func buildMultipartForm(t *testing.T, fields map[string]string, fileField string, fileData []byte, fileName string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		writer.WriteField(k, v)
	}
	if fileData != nil && fileField != "" {
		part, err := writer.CreateFormFile(fileField, fileName)
		if err != nil {
			t.Fatal(err)
		}
		part.Write(fileData)
	}
	writer.Close()
	return body, writer.FormDataContentType()
}
