package worker

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hpetrik/styletransfer-be/internal/api/domain"
)

// workerPayload is the structured shape the worker script prints on
// standard output when it succeeds. Every field is optional; missing
// values are filled from the request bundle or the documented defaults.
type workerPayload struct {
	ID         string         `json:"id"`
	ImageURL   string         `json:"image_url"`
	Error      string         `json:"error"`
	Parameters *payloadParams `json:"parameters"`
}

type payloadParams struct {
	Seed     *int64   `json:"seed"`
	Strength *float64 `json:"strength"`
	CfgScale *float64 `json:"cfgScale"`
	Steps    *int     `json:"steps"`
	Sampler  *string  `json:"sampler"`
}

// parsePayload decodes worker stdout into a workerPayload. It fails when
// the output is not JSON, carries an error field, or omits the image
// reference; the caller falls back to a degraded result in all cases.
func parsePayload(stdout []byte) (*workerPayload, error) {
	var payload workerPayload
	if err := json.Unmarshal(stdout, &payload); err != nil {
		return nil, fmt.Errorf("worker output is not valid JSON: %w", err)
	}
	if payload.Error != "" {
		return nil, fmt.Errorf("worker reported error: %s", payload.Error)
	}
	if payload.ImageURL == "" {
		return nil, fmt.Errorf("worker output has no image reference")
	}
	return &payload, nil
}

// buildResult materializes a Result from a parsed worker payload. The
// request bundle provides parameter values the payload omits, and the
// documented defaults cover the rest. A fresh pseudo-random seed is
// generated when neither the payload nor the bundle supplies one.
func buildResult(jobID string, payload *workerPayload, requested domain.Parameters) domain.Result {
	params := requested.Normalize()
	seed := int64(-1)

	if payload.Parameters != nil {
		p := payload.Parameters
		if p.Strength != nil && *p.Strength > 0 {
			params.Strength = *p.Strength
		}
		if p.CfgScale != nil && *p.CfgScale > 0 {
			params.CfgScale = *p.CfgScale
		}
		if p.Steps != nil && *p.Steps > 0 {
			params.Steps = *p.Steps
		}
		if p.Sampler != nil && *p.Sampler != "" {
			params.Sampler = *p.Sampler
		}
		if p.Seed != nil {
			seed = *p.Seed
		}
	}

	if seed < 0 {
		seed = randomSeed()
	}

	id := payload.ID
	if id == "" {
		id = resultID(jobID)
	}

	return domain.Result{
		ID:         id,
		ImageURL:   payload.ImageURL,
		Seed:       seed,
		Parameters: params,
		CreatedAt:  time.Now(),
	}
}

// degradedResult builds the guaranteed fallback: the original input
// artifact re-encoded as a self-contained data URI, with defaulted
// parameters and the degraded flag set so operators can tell fallbacks
// from real generations.
func degradedResult(jobID, inputPath string, requested domain.Parameters) (domain.Result, error) {
	data, err := os.ReadFile(inputPath)
	if err != nil {
		return domain.Result{}, fmt.Errorf("failed to read input artifact: %w", err)
	}

	encoded := base64.StdEncoding.EncodeToString(data)
	imageURL := fmt.Sprintf("data:%s;base64,%s", mimeTypeFor(inputPath), encoded)

	return domain.Result{
		ID:         resultID(jobID),
		ImageURL:   imageURL,
		Seed:       randomSeed(),
		Parameters: requested.Normalize(),
		CreatedAt:  time.Now(),
		Degraded:   true,
	}, nil
}

func resultID(jobID string) string {
	return jobID + "_" + uuid.NewString()[:8]
}

func randomSeed() int64 {
	return rand.Int63n(1 << 32)
}

func mimeTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	default:
		return "image/png"
	}
}
