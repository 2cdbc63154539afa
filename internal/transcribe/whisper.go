package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// WhisperClient calls an OpenAI-compatible /v1/audio/transcriptions endpoint
// through go-openai. Implements the Provider interface.
type WhisperClient struct {
	client *openai.Client
	model  string
}

// NewWhisperClient creates a new Whisper client. url may be the full
// transcriptions endpoint or the API base ("http://host:8000/v1"). apiKey may
// be empty for self-hosted servers; no Authorization header is sent then.
func NewWhisperClient(url, apiKey, model string, timeout time.Duration) *WhisperClient {
	cfg := openai.DefaultConfig(apiKey)
	if url != "" {
		cfg.BaseURL = whisperBaseURL(url)
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	if model == "" {
		model = openai.Whisper1
	}
	return &WhisperClient{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// whisperBaseURL strips the endpoint path go-openai appends itself.
func whisperBaseURL(url string) string {
	url = strings.TrimRight(url, "/")
	return strings.TrimSuffix(url, "/audio/transcriptions")
}

// typedReader lets go-openai set the file part's Content-Type.
type typedReader struct {
	*bytes.Reader
	contentType string
}

func (r typedReader) ContentType() string { return r.contentType }

// Name returns the provider name.
func (wc *WhisperClient) Name() string { return "whisper" }

// Model returns the configured model identifier.
func (wc *WhisperClient) Model() string { return wc.model }

// Transcribe sends the audio as multipart/form-data. Whisper has no smart
// formatting switch; its output is already punctuated, so SmartFormat is ignored.
func (wc *WhisperClient) Transcribe(ctx context.Context, audio []byte, opts Options) (*Response, error) {
	filename := opts.Filename
	if filename == "" {
		filename = "audio"
	}

	resp, err := wc.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:                  wc.model,
		FilePath:               filename,
		Reader:                 typedReader{bytes.NewReader(audio), opts.ContentType},
		Language:               opts.Language,
		Format:                 openai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []openai.TranscriptionTimestampGranularity{openai.TranscriptionTimestampGranularityWord},
	})
	if err != nil {
		return nil, fmt.Errorf("whisper request: %w", err)
	}

	var words []Word
	if len(resp.Words) > 0 {
		words = make([]Word, len(resp.Words))
		for i, ww := range resp.Words {
			words[i] = Word{Word: ww.Word, Start: ww.Start, End: ww.End}
		}
	}

	return &Response{
		Text:     resp.Text,
		Language: resp.Language,
		Duration: resp.Duration,
		Words:    words,
	}, nil
}
