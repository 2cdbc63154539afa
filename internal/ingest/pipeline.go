package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/snarg/scribe/internal/database"
	"github.com/snarg/scribe/internal/metrics"
	"github.com/snarg/scribe/internal/storage"
	"github.com/snarg/scribe/internal/transcribe"
)

var (
	// ErrNoAudio is returned when an upload carries no audio bytes.
	ErrNoAudio = errors.New("no audio uploaded")
	// ErrBadUpload wraps failures reading the upload body, such as a
	// request that ends in the middle of the audio part.
	ErrBadUpload = errors.New("unreadable upload body")
)

// Event types published after state changes.
const (
	EventTranscriptionCreated = "transcription.created"
	EventHistoryCleared       = "history.cleared"
)

// RecordStore persists transcript records. Records are never updated.
type RecordStore interface {
	InsertTranscription(ctx context.Context, audioFile, text string) (*database.Transcription, error)
	ListTranscriptions(ctx context.Context) ([]database.Transcription, error)
	DeleteAllTranscriptions(ctx context.Context) (int64, error)
}

// Publisher receives pipeline events. Failures are logged, never returned to callers.
type Publisher interface {
	Publish(eventType string, data any) error
}

// Upload is one audio file submitted for transcription.
type Upload struct {
	Filename    string // original client filename
	ContentType string // as declared by the client; may be empty
	Body        io.Reader
	Source      string // "upload" or "watch", for metrics and logs
}

// PipelineOptions configures the upload-transcribe-persist flow.
type PipelineOptions struct {
	Store       RecordStore
	Provider    transcribe.Provider
	Archive     storage.AudioStore // nil disables archiving
	Publisher   Publisher          // nil disables events
	UploadDir   string
	SmartFormat bool
	Language    string
	Timeout     time.Duration // 0 = rely on the provider's HTTP client timeout
	Now         func() time.Time
	Log         zerolog.Logger
}

// Pipeline runs uploads through the transcription provider into the record store.
// It holds no per-request state; concurrent calls are independent.
type Pipeline struct {
	opts     PipelineOptions
	log      zerolog.Logger
	inFlight atomic.Int64
}

func NewPipeline(opts PipelineOptions) *Pipeline {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Pipeline{
		opts: opts,
		log:  opts.Log.With().Str("component", "pipeline").Logger(),
	}
}

// InFlight returns the number of uploads currently being processed.
func (p *Pipeline) InFlight() int64 { return p.inFlight.Load() }

// ProcessUpload spools the upload to a temp file, reads it back, transcribes
// it and stores the resulting record. The temp file is always removed.
func (p *Pipeline) ProcessUpload(ctx context.Context, up Upload) (*database.Transcription, error) {
	p.inFlight.Add(1)
	defer p.inFlight.Add(-1)

	source := up.Source
	if source == "" {
		source = "upload"
	}
	storedName := StoredName(p.opts.Now(), up.Filename)
	pattern := "upload-*" + filepath.Ext(storedName)

	var rec *database.Transcription
	var audio []byte
	err := storage.WithTempFile(p.opts.UploadDir, pattern, uploadReader{up.Body}, func(path string) error {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read upload: %w", err)
		}
		if len(data) == 0 {
			return ErrNoAudio
		}
		audio = data
		metrics.UploadBytes.Observe(float64(len(data)))

		text, err := p.transcribe(ctx, data, up, storedName)
		if err != nil {
			return err
		}

		rec, err = p.opts.Store.InsertTranscription(ctx, storedName, text)
		if err != nil {
			return fmt.Errorf("save transcription: %w", err)
		}
		return nil
	})
	if err != nil {
		status := "error"
		if errors.Is(err, ErrNoAudio) || errors.Is(err, ErrBadUpload) {
			status = "rejected"
		}
		metrics.TranscriptionsTotal.WithLabelValues(p.opts.Provider.Name(), source, status).Inc()
		return nil, err
	}
	metrics.TranscriptionsTotal.WithLabelValues(p.opts.Provider.Name(), source, "ok").Inc()

	p.archive(ctx, storedName, audio, up)
	p.publish(EventTranscriptionCreated, rec)

	p.log.Info().
		Str("id", rec.ID).
		Str("audio_file", rec.AudioFile).
		Str("source", source).
		Int("bytes", len(audio)).
		Int("chars", len(rec.Text)).
		Msg("transcription stored")

	return rec, nil
}

// ProcessFile transcribes a file already on disk, e.g. from the watch folder.
func (p *Pipeline) ProcessFile(ctx context.Context, path string) (*database.Transcription, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return p.ProcessUpload(ctx, Upload{
		Filename: filepath.Base(path),
		Body:     f,
		Source:   "watch",
	})
}

// History returns every stored record, newest first.
func (p *Pipeline) History(ctx context.Context) ([]database.Transcription, error) {
	recs, err := p.opts.Store.ListTranscriptions(ctx)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []database.Transcription{}
	}
	return recs, nil
}

// ClearHistory deletes every stored record and returns how many were removed.
func (p *Pipeline) ClearHistory(ctx context.Context) (int64, error) {
	n, err := p.opts.Store.DeleteAllTranscriptions(ctx)
	if err != nil {
		return 0, err
	}
	metrics.RecordsDeletedTotal.Add(float64(n))
	p.publish(EventHistoryCleared, map[string]any{"deletedCount": n})
	p.log.Info().Int64("deleted", n).Msg("history cleared")
	return n, nil
}

func (p *Pipeline) transcribe(ctx context.Context, data []byte, up Upload, storedName string) (string, error) {
	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}

	provider := p.opts.Provider
	start := time.Now()
	resp, err := provider.Transcribe(ctx, data, transcribe.Options{
		ContentType: audioContentType(up.ContentType, storedName, data),
		Filename:    up.Filename,
		Language:    p.opts.Language,
		SmartFormat: p.opts.SmartFormat,
	})
	metrics.TranscriptionDuration.WithLabelValues(provider.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		return "", fmt.Errorf("%s transcribe: %w", provider.Name(), err)
	}

	p.log.Debug().
		Str("provider", provider.Name()).
		Str("model", provider.Model()).
		Float64("audio_seconds", resp.Duration).
		Float64("confidence", resp.Confidence).
		Str("language", resp.Language).
		Int("words", len(resp.Words)).
		Dur("elapsed", time.Since(start)).
		Msg("transcription received")

	return strings.TrimSpace(resp.Text), nil
}

// archive is best-effort: a failed archive write never fails the upload.
func (p *Pipeline) archive(ctx context.Context, key string, data []byte, up Upload) {
	if p.opts.Archive == nil {
		return
	}
	ct := audioContentType(up.ContentType, key, data)
	if err := p.opts.Archive.Save(ctx, key, data, ct); err != nil {
		p.log.Warn().Err(err).Str("key", key).Str("store", p.opts.Archive.Type()).Msg("audio archive failed")
	}
}

func (p *Pipeline) publish(eventType string, data any) {
	if p.opts.Publisher == nil {
		return
	}
	if err := p.opts.Publisher.Publish(eventType, data); err != nil {
		p.log.Warn().Err(err).Str("event", eventType).Msg("event publish failed")
	}
}

// uploadReader tags read failures of the client body so callers can tell a
// broken upload from a server-side failure. io.EOF passes through untouched.
type uploadReader struct{ r io.Reader }

func (u uploadReader) Read(p []byte) (int, error) {
	n, err := u.r.Read(p)
	if err != nil && err != io.EOF {
		err = fmt.Errorf("%w: %w", ErrBadUpload, err)
	}
	return n, err
}

// StoredName returns the name an upload is recorded under:
// "<unix millis>-<8 hex>-<base filename>". Path elements are stripped. The
// random part keeps same-name uploads within one millisecond apart.
func StoredName(now time.Time, filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, `\`, "/"))
	if base == "." || base == "/" || base == ".." || base == "" {
		base = "audio"
	}
	return fmt.Sprintf("%d-%s-%s", now.UnixMilli(), uuid.NewString()[:8], base)
}

// audioMIMETypes covers extensions missing from Go's builtin mime table.
var audioMIMETypes = map[string]string{
	".wav":  "audio/wav",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".mp4":  "audio/mp4",
	".aac":  "audio/aac",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
	".opus": "audio/ogg",
	".webm": "audio/webm",
}

// audioContentType picks the declared type when it is specific, then the
// extension, then content sniffing.
func audioContentType(declared, filename string, data []byte) string {
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if ct, ok := audioMIMETypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return http.DetectContentType(data)
}
