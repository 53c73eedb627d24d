package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_DefaultValues(t *testing.T) {
	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, 0, cfg.LogLevel)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, 130.0, cfg.ConfidenceThreshold)
	assert.Equal(t, "haarcascade_frontalface_default.xml", cfg.CascadeFile)
	assert.Equal(t, 1.2, cfg.Detect.ScaleFactor)
	assert.Equal(t, 5, cfg.Detect.MinNeighbors)
	assert.Equal(t, "local", cfg.Storage.Backend)
	assert.Equal(t, "./dataset", cfg.Storage.DatasetDir)
	assert.Equal(t, "s3.amazonaws.com", cfg.Storage.S3.Endpoint)
	assert.Equal(t, true, cfg.Storage.S3.UseSSL)
}

func TestNewConfig_EnvironmentOverrides(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		expected func(*testing.T, *Config)
	}{
		{
			name: "threshold and detector overrides",
			envVars: map[string]string{
				"CONFIDENCE_THRESHOLD": "85.5",
				"DETECT_SCALE_FACTOR":  "1.1",
				"DETECT_MIN_NEIGHBORS": "3",
			},
			expected: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 85.5, cfg.ConfidenceThreshold)
				assert.Equal(t, 1.1, cfg.Detect.ScaleFactor)
				assert.Equal(t, 3, cfg.Detect.MinNeighbors)
			},
		},
		{
			name: "s3 backend",
			envVars: map[string]string{
				"STORAGE_BACKEND": "s3",
				"STORAGE_PREFIX":  "faces",
				"S3_ENDPOINT":     "localhost:9000",
				"S3_BUCKET":       "face-images",
				"S3_ACCESS_KEY":   "ak",
				"S3_SECRET_KEY":   "sk",
				"S3_USE_SSL":      "false",
			},
			expected: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "s3", cfg.Storage.Backend)
				assert.Equal(t, "faces", cfg.Storage.Prefix)
				assert.Equal(t, "localhost:9000", cfg.Storage.S3.Endpoint)
				assert.Equal(t, "face-images", cfg.Storage.S3.Bucket)
				assert.Equal(t, false, cfg.Storage.S3.UseSSL)
			},
		},
		{
			name: "azure backend",
			envVars: map[string]string{
				"STORAGE_BACKEND":         "azure",
				"AZURE_CONNECTION_STRING": "UseDevelopmentStorage=true",
				"AZURE_CONTAINER":         "faces",
			},
			expected: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "azure", cfg.Storage.Backend)
				assert.Equal(t, "faces", cfg.Storage.Azure.Container)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}
			cfg, err := NewConfig()
			require.NoError(t, err)
			tt.expected(t, cfg)
		})
	}
}

func TestNewConfig_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr string
	}{
		{
			name:    "s3 without bucket",
			envVars: map[string]string{"STORAGE_BACKEND": "s3"},
			wantErr: "S3_BUCKET required",
		},
		{
			name:    "azure without connection string",
			envVars: map[string]string{"STORAGE_BACKEND": "azure", "AZURE_CONTAINER": "c"},
			wantErr: "AZURE_CONNECTION_STRING required",
		},
		{
			name: "azure without container",
			envVars: map[string]string{
				"STORAGE_BACKEND":         "azure",
				"AZURE_CONNECTION_STRING": "UseDevelopmentStorage=true",
			},
			wantErr: "AZURE_CONTAINER required",
		},
		{
			name:    "unknown backend",
			envVars: map[string]string{"STORAGE_BACKEND": "ftp"},
			wantErr: "unknown storage backend",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}
			cfg, err := NewConfig()
			assert.Nil(t, cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
