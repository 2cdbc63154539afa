package transcribe

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNoTranscript is returned when a provider answers successfully but the
// response carries no transcript where one is expected.
var ErrNoTranscript = errors.New("no transcript in response")

// Provider is the interface for speech-to-text backends.
type Provider interface {
	Transcribe(ctx context.Context, audio []byte, opts Options) (*Response, error)
	Name() string  // "deepgram", "whisper"
	Model() string // model identifier for logs
}

// Options are per-request settings. Zero values are omitted from the request.
type Options struct {
	ContentType string // MIME type of the audio, e.g. "audio/wav"
	Filename    string // original filename, used by multipart backends
	Language    string
	SmartFormat bool
}

// Response is the common transcription result from any provider.
type Response struct {
	Text       string
	Language   string
	Duration   float64 // audio duration in seconds
	Confidence float64
	Words      []Word // nil if provider doesn't return word timestamps
}

// Word is a timestamped word from any STT provider.
type Word struct {
	Word  string
	Start float64 // seconds
	End   float64 // seconds
}

// Settings selects and configures a provider.
type Settings struct {
	Provider string // "deepgram" or "whisper"
	URL      string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// New builds the provider named in s.
func New(s Settings) (Provider, error) {
	switch s.Provider {
	case "deepgram":
		return NewDeepgramClient(s.URL, s.APIKey, s.Model, s.Timeout), nil
	case "whisper":
		return NewWhisperClient(s.URL, s.APIKey, s.Model, s.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown transcription provider %q", s.Provider)
	}
}
