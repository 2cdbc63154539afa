package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/scribe/internal/config"
)

var (
	// ErrNotFound is returned when an archived audio key does not exist.
	ErrNotFound = errors.New("audio not found")
	// ErrInvalidKey is returned for keys that are not a single path element.
	ErrInvalidKey = errors.New("invalid audio key")
	// ErrArchiveDisabled is returned by lookups when no archive is configured.
	ErrArchiveDisabled = errors.New("audio archive disabled")
)

// AudioStore archives uploaded source audio under its stored filename.
type AudioStore interface {
	// Save stores audio data under key.
	Save(ctx context.Context, key string, data []byte, contentType string) error

	// URL returns a presigned URL for the audio file.
	// Returns "" for local-only backends.
	URL(ctx context.Context, key string) (string, error)

	// Open returns a reader for the audio file, or ErrNotFound.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists checks if an audio file exists.
	Exists(ctx context.Context, key string) bool

	// Type returns "local" or "s3".
	Type() string
}

// New creates the AudioStore selected by kind ("none", "local", "s3").
// For "none" it returns a nil store and no error; callers treat nil as
// archiving disabled. Returns an error if S3 is configured but unreachable.
func New(kind string, cfg config.S3Config, audioDir string, log zerolog.Logger) (AudioStore, error) {
	switch kind {
	case "", "none":
		return nil, nil
	case "local":
		return NewLocalStore(audioDir), nil
	case "s3":
	default:
		return nil, fmt.Errorf("unknown audio archive %q", kind)
	}

	s3store, err := NewS3Store(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("S3 init failed: %w", err)
	}

	// Startup validation: verify credentials and bucket access
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s3store.HeadBucket(ctx); err != nil {
		return nil, fmt.Errorf("S3 startup check failed (bucket=%q endpoint=%q): %w",
			cfg.Bucket, cfg.Endpoint, err)
	}
	log.Info().Str("bucket", cfg.Bucket).Str("endpoint", cfg.Endpoint).Msg("S3 connection verified")

	return s3store, nil
}

// ValidKey reports whether key is safe to use as an archive object name:
// non-empty, a single path element, and not a dot entry.
func ValidKey(key string) bool {
	if key == "" || key == "." || key == ".." {
		return false
	}
	return !strings.ContainsAny(key, `/\`) && !strings.ContainsRune(key, 0)
}
