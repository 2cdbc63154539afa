package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL"`

	// Transcription backend
	Provider       string        `env:"TRANSCRIBE_PROVIDER" envDefault:"deepgram"`
	DeepgramAPIKey string        `env:"DEEPGRAM_API_KEY"`
	DeepgramURL    string        `env:"DEEPGRAM_URL" envDefault:"https://api.deepgram.com/v1/listen"`
	WhisperURL     string        `env:"WHISPER_URL"`
	WhisperAPIKey  string        `env:"WHISPER_API_KEY"`
	Model          string        `env:"TRANSCRIBE_MODEL" envDefault:"nova-2"`
	SmartFormat    bool          `env:"TRANSCRIBE_SMART_FORMAT" envDefault:"true"`
	Language       string        `env:"TRANSCRIBE_LANGUAGE"`
	Timeout        time.Duration `env:"TRANSCRIBE_TIMEOUT" envDefault:"60s"`

	// Uploads
	UploadDir   string `env:"UPLOAD_DIR" envDefault:"./uploads"`
	MaxUploadMB int64  `env:"MAX_UPLOAD_MB" envDefault:"32"`

	// Audio archive: "none", "local" or "s3"
	AudioArchive string `env:"AUDIO_ARCHIVE" envDefault:"none"`
	AudioDir     string `env:"AUDIO_DIR" envDefault:"./audio"`
	S3           S3Config

	// Optional event publishing
	MQTTBrokerURL string `env:"MQTT_BROKER_URL"`
	MQTTClientID  string `env:"MQTT_CLIENT_ID" envDefault:"scribe"`
	MQTTTopic     string `env:"MQTT_TOPIC" envDefault:"scribe/events"`
	MQTTUsername  string `env:"MQTT_USERNAME"`
	MQTTPassword  string `env:"MQTT_PASSWORD"`

	// Optional watch folder ingest
	WatchDir string `env:"WATCH_DIR"`

	Port         string        `env:"PORT" envDefault:"5000"`
	HTTPAddr     string        `env:"HTTP_ADDR"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"120s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	CORSOrigins  []string      `env:"CORS_ORIGINS" envSeparator:","`

	AuthToken string `env:"AUTH_TOKEN"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
}

// S3Config holds the settings for the S3-compatible audio archive.
type S3Config struct {
	Bucket        string        `env:"S3_BUCKET"`
	Endpoint      string        `env:"S3_ENDPOINT"`
	Region        string        `env:"S3_REGION" envDefault:"us-east-1"`
	AccessKey     string        `env:"S3_ACCESS_KEY"`
	SecretKey     string        `env:"S3_SECRET_KEY"`
	Prefix        string        `env:"S3_PREFIX"`
	PresignExpiry time.Duration `env:"S3_PRESIGN_EXPIRY" envDefault:"1h"`
}

// Enabled reports whether enough S3 settings are present to build a client.
func (s S3Config) Enabled() bool {
	return s.Bucket != ""
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile     string
	HTTPAddr    string
	LogLevel    string
	DatabaseURL string
	UploadDir   string
	WatchDir    string
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	// Load .env file (silent if missing)
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Apply CLI overrides (non-empty values win)
	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.DatabaseURL != "" {
		cfg.DatabaseURL = overrides.DatabaseURL
	}
	if overrides.UploadDir != "" {
		cfg.UploadDir = overrides.UploadDir
	}
	if overrides.WatchDir != "" {
		cfg.WatchDir = overrides.WatchDir
	}

	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	cfg.AudioArchive = strings.ToLower(strings.TrimSpace(cfg.AudioArchive))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings that would only fail later at request time.
func (c *Config) Validate() error {
	var errs []error

	// Checked here rather than with env's required tag so --database-url
	// can supply it.
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required (or --database-url)"))
	}

	switch c.Provider {
	case "deepgram":
		if c.DeepgramAPIKey == "" {
			errs = append(errs, errors.New("DEEPGRAM_API_KEY is required when TRANSCRIBE_PROVIDER=deepgram"))
		}
	case "whisper":
		if c.WhisperURL == "" {
			errs = append(errs, errors.New("WHISPER_URL is required when TRANSCRIBE_PROVIDER=whisper"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown TRANSCRIBE_PROVIDER %q (want deepgram or whisper)", c.Provider))
	}

	switch c.AudioArchive {
	case "none", "local":
	case "s3":
		if !c.S3.Enabled() {
			errs = append(errs, errors.New("S3_BUCKET is required when AUDIO_ARCHIVE=s3"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown AUDIO_ARCHIVE %q (want none, local or s3)", c.AudioArchive))
	}

	if c.MaxUploadMB < 1 {
		errs = append(errs, fmt.Errorf("MAX_UPLOAD_MB must be >= 1, got %d", c.MaxUploadMB))
	}

	return errors.Join(errs...)
}

// Addr returns the listen address. HTTP_ADDR wins over PORT.
func (c *Config) Addr() string {
	if c.HTTPAddr != "" {
		return c.HTTPAddr
	}
	return ":" + c.Port
}

// MaxUploadBytes returns the upload size limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB << 20
}
