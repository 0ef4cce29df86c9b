package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/hpetrik/styletransfer-be/internal/api/domain"
	"github.com/hpetrik/styletransfer-be/internal/api/dto"
)

// DefaultRequestTimeout is the network-level timeout of one status
// request, independent of the overall job deadline.
const DefaultRequestTimeout = 10 * time.Second

// API is the HTTP client of the style-transfer server.
type API struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewAPI creates an API client. A non-positive requestTimeout falls back
// to DefaultRequestTimeout.
func NewAPI(baseURL string, requestTimeout time.Duration, logger *slog.Logger) *API {
	if requestTimeout <= 0 {
		requestTimeout = DefaultRequestTimeout
	}

	return &API{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		logger: logger,
	}
}

// Submit uploads the input image with the model id and parameter bundle
// and returns the submission response. Results is populated when the
// server ran synchronously.
func (a *API) Submit(ctx context.Context, imagePath, modelID string, params domain.Parameters) (*dto.ProcessResponse, error) {
	imageData, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read input image: %w", err)
	}

	paramsJSON, err := json.Marshal(map[string]interface{}{
		"strength": params.Strength,
		"cfgScale": params.CfgScale,
		"steps":    params.Steps,
		"sampler":  params.Sampler,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode parameters: %w", err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("image", filepath.Base(imagePath))
	if err != nil {
		return nil, fmt.Errorf("failed to build multipart form: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image part: %w", err)
	}
	if err := writer.WriteField("model_id", modelID); err != nil {
		return nil, fmt.Errorf("failed to write model_id field: %w", err)
	}
	if err := writer.WriteField("parameters", string(paramsJSON)); err != nil {
		return nil, fmt.Errorf("failed to write parameters field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/process", &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create submit request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("submit request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("submit rejected: %s", readError(resp.Body, resp.StatusCode))
	}

	var processResp dto.ProcessResponse
	if err := json.NewDecoder(resp.Body).Decode(&processResp); err != nil {
		return nil, fmt.Errorf("failed to decode submit response: %w", err)
	}
	if processResp.JobID == "" {
		return nil, fmt.Errorf("submit response has no job_id")
	}

	return &processResp, nil
}

// Status fetches the status view of one job. The server responds 200
// even for unknown ids, so any non-200 here is a transport-level fault.
func (a *API) Status(ctx context.Context, jobID string) (*dto.StatusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/status/"+jobID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create status request: %w", err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status request rejected: %s", readError(resp.Body, resp.StatusCode))
	}

	var statusResp dto.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&statusResp); err != nil {
		return nil, fmt.Errorf("failed to decode status response: %w", err)
	}

	return &statusResp, nil
}

// SaveResults hands a completed job's results to the durable store.
func (a *API) SaveResults(ctx context.Context, jobID string, results []dto.ResultDTO) error {
	body, err := json.Marshal(dto.SaveResultsRequest{
		JobID:   jobID,
		Results: results,
	})
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/v1/results", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create save request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("save request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("save rejected: %s", readError(resp.Body, resp.StatusCode))
	}

	return nil
}

func readError(body io.Reader, statusCode int) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(body).Decode(&payload); err == nil && payload.Error != "" {
		return fmt.Sprintf("status %d: %s", statusCode, payload.Error)
	}
	return fmt.Sprintf("status %d", statusCode)
}
