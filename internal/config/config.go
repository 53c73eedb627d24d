package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config contains server configuration parameters.
type Config struct {
	LogLevel            int     `env:"LOG_LEVEL" envDefault:"0"`
	HTTPPort            string  `env:"HTTP_PORT" envDefault:"8080"`
	AdminToken          string  `env:"ADMIN_TOKEN"`
	ConfidenceThreshold float64 `env:"CONFIDENCE_THRESHOLD" envDefault:"130.0"`
	CascadeFile         string  `env:"CASCADE_FILE" envDefault:"haarcascade_frontalface_default.xml"`
	Detect              Detect  `envPrefix:"DETECT_"`
	Storage             Storage `envPrefix:""`
}

// Detect contains face-detection parameters.
type Detect struct {
	ScaleFactor  float64 `env:"SCALE_FACTOR" envDefault:"1.2"`
	MinNeighbors int     `env:"MIN_NEIGHBORS" envDefault:"5"`
}

// Storage contains storage backend selection and per-backend parameters.
type Storage struct {
	Backend    string `env:"STORAGE_BACKEND" envDefault:"local"`
	Prefix     string `env:"STORAGE_PREFIX"`
	DatasetDir string `env:"DATASET_DIR" envDefault:"./dataset"`
	S3         S3     `envPrefix:"S3_"`
	Azure      Azure  `envPrefix:"AZURE_"`
}

// S3 contains parameters for the S3-compatible backend.
type S3 struct {
	Endpoint  string `env:"ENDPOINT" envDefault:"s3.amazonaws.com"`
	Bucket    string `env:"BUCKET"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	UseSSL    bool   `env:"USE_SSL" envDefault:"true"`
}

// Azure contains parameters for the blob-container backend.
type Azure struct {
	ConnectionString string `env:"CONNECTION_STRING"`
	Container        string `env:"CONTAINER"`
}

// NewConfig loads configuration from environment variables and validates
// that the selected storage backend has its required settings. A missing
// required setting is a fatal configuration error, not a per-call one.
func NewConfig() (*Config, error) {
	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Storage.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks backend-specific required settings.
func (s *Storage) Validate() error {
	switch s.Backend {
	case "local":
		if s.DatasetDir == "" {
			return fmt.Errorf("DATASET_DIR required for local backend")
		}
	case "s3":
		if s.S3.Bucket == "" {
			return fmt.Errorf("S3_BUCKET required for s3 backend")
		}
	case "azure":
		if s.Azure.ConnectionString == "" {
			return fmt.Errorf("AZURE_CONNECTION_STRING required for azure backend")
		}
		if s.Azure.Container == "" {
			return fmt.Errorf("AZURE_CONTAINER required for azure backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", s.Backend)
	}
	return nil
}
