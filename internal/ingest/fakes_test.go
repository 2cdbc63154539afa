package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/snarg/scribe/internal/database"
	"github.com/snarg/scribe/internal/transcribe"
)

// memStore is an in-memory RecordStore with a controllable clock.
type memStore struct {
	mu      sync.Mutex
	recs    []database.Transcription
	seq     int
	clock   time.Time
	failOn  string // "insert", "list", "delete"
	lastErr error
}

func newMemStore() *memStore {
	return &memStore{clock: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (s *memStore) InsertTranscription(ctx context.Context, audioFile, text string) (*database.Transcription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn == "insert" {
		return nil, errors.New("insert failed")
	}
	s.seq++
	s.clock = s.clock.Add(time.Second)
	t := database.Transcription{
		ID:        fmt.Sprintf("id-%04d", s.seq),
		AudioFile: audioFile,
		Text:      text,
		CreatedAt: s.clock,
	}
	s.recs = append(s.recs, t)
	return &t, nil
}

func (s *memStore) ListTranscriptions(ctx context.Context) ([]database.Transcription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn == "list" {
		return nil, errors.New("list failed")
	}
	out := make([]database.Transcription, len(s.recs))
	copy(out, s.recs)
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *memStore) DeleteAllTranscriptions(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn == "delete" {
		return 0, errors.New("delete failed")
	}
	n := int64(len(s.recs))
	s.recs = nil
	return n, nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recs)
}

// fakeProvider returns a fixed transcript and records what it was sent.
type fakeProvider struct {
	mu       sync.Mutex
	text     string
	err      error
	calls    int
	lastOpts transcribe.Options
	lastData []byte
	delay    time.Duration
	resp     *transcribe.Response // returned as is when set
}

func (p *fakeProvider) Transcribe(ctx context.Context, audio []byte, opts transcribe.Options) (*transcribe.Response, error) {
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.lastOpts = opts
	p.lastData = append([]byte(nil), audio...)
	if p.err != nil {
		return nil, p.err
	}
	if p.resp != nil {
		return p.resp, nil
	}
	text := p.text
	if text == "" {
		// Echo the audio so concurrent callers get distinct transcripts.
		text = string(audio)
	}
	return &transcribe.Response{Text: text}, nil
}

func (p *fakeProvider) Name() string  { return "fake" }
func (p *fakeProvider) Model() string { return "fake-1" }

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// memArchive is an in-memory AudioStore.
type memArchive struct {
	mu    sync.Mutex
	files map[string][]byte
	err   error
}

func newMemArchive() *memArchive { return &memArchive{files: map[string][]byte{}} }

func (a *memArchive) Save(ctx context.Context, key string, data []byte, contentType string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.files[key] = append([]byte(nil), data...)
	return nil
}
func (a *memArchive) URL(ctx context.Context, key string) (string, error) { return "", nil }
func (a *memArchive) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}
func (a *memArchive) Exists(ctx context.Context, key string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.files[key]
	return ok
}
func (a *memArchive) Type() string { return "memory" }

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (r *recordingPublisher) Publish(eventType string, data any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, eventType)
	return r.err
}
