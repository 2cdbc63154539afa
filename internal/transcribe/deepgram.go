package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DeepgramClient calls Deepgram's pre-recorded /v1/listen endpoint with the
// raw audio bytes as the request body.
// Implements the Provider interface.
type DeepgramClient struct {
	url     string
	apiKey  string
	model   string // e.g. "nova-2"
	timeout time.Duration
	client  *http.Client
}

// deepgramResponse is the subset of the /v1/listen response we read.
type deepgramResponse struct {
	Metadata struct {
		RequestID string  `json:"request_id"`
		Duration  float64 `json:"duration"`
	} `json:"metadata"`
	Results struct {
		Channels []deepgramChannel `json:"channels"`
	} `json:"results"`
}

type deepgramChannel struct {
	DetectedLanguage string                `json:"detected_language"`
	Alternatives     []deepgramAlternative `json:"alternatives"`
}

type deepgramAlternative struct {
	Transcript string         `json:"transcript"`
	Confidence float64        `json:"confidence"`
	Words      []deepgramWord `json:"words"`
}

type deepgramWord struct {
	Word           string  `json:"word"`
	PunctuatedWord string  `json:"punctuated_word"`
	Start          float64 `json:"start"`
	End            float64 `json:"end"`
}

// deepgramError is the body Deepgram returns on non-2xx responses.
type deepgramError struct {
	ErrCode   string `json:"err_code"`
	ErrMsg    string `json:"err_msg"`
	RequestID string `json:"request_id"`
}

// NewDeepgramClient creates a Deepgram pre-recorded client.
func NewDeepgramClient(endpoint, apiKey, model string, timeout time.Duration) *DeepgramClient {
	return &DeepgramClient{
		url:     endpoint,
		apiKey:  apiKey,
		model:   model,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

// Name returns the provider name.
func (dg *DeepgramClient) Name() string { return "deepgram" }

// Model returns the configured model identifier.
func (dg *DeepgramClient) Model() string { return dg.model }

// Transcribe posts the audio to Deepgram and extracts
// results.channels[0].alternatives[0].transcript.
func (dg *DeepgramClient) Transcribe(ctx context.Context, audio []byte, opts Options) (*Response, error) {
	u, err := url.Parse(dg.url)
	if err != nil {
		return nil, fmt.Errorf("parse deepgram url: %w", err)
	}
	q := u.Query()
	if dg.model != "" {
		q.Set("model", dg.model)
	}
	if opts.SmartFormat {
		q.Set("smart_format", "true")
	}
	if opts.Language != "" {
		q.Set("language", opts.Language)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(audio))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	contentType := opts.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Token "+dg.apiKey)

	resp, err := dg.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deepgram request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var de deepgramError
		if json.Unmarshal(body, &de) == nil && de.ErrMsg != "" {
			return nil, fmt.Errorf("deepgram API error (status %d, %s): %s", resp.StatusCode, de.ErrCode, de.ErrMsg)
		}
		return nil, fmt.Errorf("deepgram API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result deepgramResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return result.toResponse()
}

func (r *deepgramResponse) toResponse() (*Response, error) {
	if len(r.Results.Channels) == 0 {
		return nil, fmt.Errorf("deepgram: %w (no channels)", ErrNoTranscript)
	}
	ch := r.Results.Channels[0]
	if len(ch.Alternatives) == 0 {
		return nil, fmt.Errorf("deepgram: %w (no alternatives)", ErrNoTranscript)
	}
	alt := ch.Alternatives[0]

	var words []Word
	if len(alt.Words) > 0 {
		words = make([]Word, len(alt.Words))
		for i, w := range alt.Words {
			text := w.PunctuatedWord
			if text == "" {
				text = w.Word
			}
			words[i] = Word{Word: text, Start: w.Start, End: w.End}
		}
	}

	return &Response{
		Text:       alt.Transcript,
		Language:   ch.DetectedLanguage,
		Duration:   r.Metadata.Duration,
		Confidence: alt.Confidence,
		Words:      words,
	}, nil
}
