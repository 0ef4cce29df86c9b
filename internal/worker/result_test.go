package worker

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpetrik/styletransfer-be/internal/api/domain"
)

func TestParsePayload(t *testing.T) {
	tests := []struct {
		name      string
		stdout    string
		wantErr   bool
		errString string
	}{
		{
			name:    "valid payload",
			stdout:  `{"id":"job_1_abcd1234","image_url":"data:image/png;base64,xyz"}`,
			wantErr: false,
		},
		{
			name:      "not json",
			stdout:    "Traceback (most recent call last):\n  ...",
			wantErr:   true,
			errString: "not valid JSON",
		},
		{
			name:      "error field set",
			stdout:    `{"error":"CUDA out of memory"}`,
			wantErr:   true,
			errString: "worker reported error: CUDA out of memory",
		},
		{
			name:      "missing image reference",
			stdout:    `{"id":"job_1_abcd1234"}`,
			wantErr:   true,
			errString: "no image reference",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := parsePayload([]byte(tt.stdout))

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
				assert.NotEmpty(t, payload.ImageURL)
			}
		})
	}
}

func TestBuildResult(t *testing.T) {
	requested := domain.Parameters{Strength: 0.5, Steps: 10}

	t.Run("payload overrides request bundle", func(t *testing.T) {
		seed := int64(42)
		strength := 0.9
		sampler := "DPM++ 2M"
		payload := &workerPayload{
			ID:       "custom-id",
			ImageURL: "http://example.com/out.png",
			Parameters: &payloadParams{
				Seed:     &seed,
				Strength: &strength,
				Sampler:  &sampler,
			},
		}

		result := buildResult("job_1", payload, requested)

		assert.Equal(t, "custom-id", result.ID)
		assert.Equal(t, "http://example.com/out.png", result.ImageURL)
		assert.Equal(t, int64(42), result.Seed)
		assert.Equal(t, 0.9, result.Parameters.Strength)
		assert.Equal(t, "DPM++ 2M", result.Parameters.Sampler)
		// Bundle value kept where the payload is silent
		assert.Equal(t, 10, result.Parameters.Steps)
		// Defaults fill what neither side provided
		assert.Equal(t, domain.DefaultCfgScale, result.Parameters.CfgScale)
	})

	t.Run("defaults and generated identifiers", func(t *testing.T) {
		payload := &workerPayload{ImageURL: "http://example.com/out.png"}

		result := buildResult("job_1", payload, domain.Parameters{})

		assert.True(t, len(result.ID) > len("job_1_"))
		assert.Contains(t, result.ID, "job_1_")
		assert.GreaterOrEqual(t, result.Seed, int64(0))
		assert.Equal(t, domain.DefaultParameters(), result.Parameters)
		assert.False(t, result.Degraded)
	})
}

func TestDegradedResult(t *testing.T) {
	dir := t.TempDir()
	inputPath := filepath.Join(dir, "job_1_input.jpg")
	content := []byte("fake-jpeg-bytes")
	require.NoError(t, os.WriteFile(inputPath, content, 0o644))

	result, err := degradedResult("job_1", inputPath, domain.Parameters{})
	require.NoError(t, err)

	wantURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(content)
	assert.Equal(t, wantURL, result.ImageURL)
	assert.True(t, result.Degraded)
	assert.Contains(t, result.ID, "job_1_")
	assert.Equal(t, domain.DefaultParameters(), result.Parameters)
}

func TestDegradedResult_MissingInput(t *testing.T) {
	_, err := degradedResult("job_1", filepath.Join(t.TempDir(), "gone.png"), domain.Parameters{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read input artifact")
}

func TestMimeTypeFor(t *testing.T) {
	assert.Equal(t, "image/jpeg", mimeTypeFor("/tmp/a.JPG"))
	assert.Equal(t, "image/jpeg", mimeTypeFor("/tmp/a.jpeg"))
	assert.Equal(t, "image/webp", mimeTypeFor("/tmp/a.webp"))
	assert.Equal(t, "image/png", mimeTypeFor("/tmp/a.png"))
	assert.Equal(t, "image/png", mimeTypeFor("/tmp/a.bin"))
}
