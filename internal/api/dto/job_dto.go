package dto

import (
	"time"

	"github.com/hpetrik/styletransfer-be/internal/api/domain"
)

// ProcessResponse is the body of POST /process. Results is populated only
// by the synchronous variant; polling clients short-circuit when it is
// present.
type ProcessResponse struct {
	JobID   string      `json:"job_id"`
	Status  string      `json:"status,omitempty"`
	Results []ResultDTO `json:"results,omitempty"`
}

// StatusResponse is the body of GET /status/:job_id. It is returned with
// HTTP 200 for unknown ids too, as a synthetic failed view, so clients
// always parse a status object and never branch on the HTTP status.
type StatusResponse struct {
	JobID        string      `json:"job_id"`
	Status       string      `json:"status"`
	Progress     int         `json:"progress"`
	CurrentStep  *string     `json:"current_step"`
	Results      []ResultDTO `json:"results"`
	ErrorMessage *string     `json:"error_message"`
	CompletedAt  *string     `json:"completed_at"`
}

// ResultDTO is the client schema of one generated result.
type ResultDTO struct {
	ID         string        `json:"id"`
	ImageURL   string        `json:"imageUrl"`
	Seed       int64         `json:"seed"`
	Parameters ParametersDTO `json:"parameters"`
	CreatedAt  int64         `json:"createdAt"` // unix millis
	Degraded   bool          `json:"degraded,omitempty"`
}

// ParametersDTO is the client schema of the generation parameters.
type ParametersDTO struct {
	Strength float64 `json:"strength"`
	CfgScale float64 `json:"cfgScale"`
	Steps    int     `json:"steps"`
	Sampler  string  `json:"sampler"`
}

// ListJobsResponse is the body of GET /jobs.
type ListJobsResponse struct {
	Jobs       []StatusResponse `json:"jobs"`
	TotalCount int              `json:"total_count"`
}

// SaveResultsRequest is the body of POST /api/v1/results, the durable
// persistence hand-off of the client fallback chain.
type SaveResultsRequest struct {
	JobID   string      `json:"job_id" binding:"required"`
	Results []ResultDTO `json:"results" binding:"required"`
}

// ListResultsResponse is the body of GET /api/v1/results.
type ListResultsResponse struct {
	Results    []ResultDTO `json:"results"`
	TotalCount int         `json:"total_count"`
}

// NewStatusResponse translates a job record into the client schema.
func NewStatusResponse(job domain.Job) StatusResponse {
	resp := StatusResponse{
		JobID:    job.JobID,
		Status:   job.Status,
		Progress: job.Progress,
		Results:  NewResultDTOs(job.Results),
	}

	if job.CurrentStep != "" {
		step := job.CurrentStep
		resp.CurrentStep = &step
	}
	if job.ErrorMessage != "" {
		msg := job.ErrorMessage
		resp.ErrorMessage = &msg
	}
	if job.CompletedAt != nil {
		completedAt := job.CompletedAt.UTC().Format(time.RFC3339)
		resp.CompletedAt = &completedAt
	}

	return resp
}

// NotFoundStatusResponse is the synthetic failed view returned for ids
// unknown to the job store.
func NotFoundStatusResponse(jobID string) StatusResponse {
	step := "Job not found"
	msg := "Job not found"
	return StatusResponse{
		JobID:        jobID,
		Status:       domain.JobStatusFailed,
		Progress:     0,
		CurrentStep:  &step,
		Results:      []ResultDTO{},
		ErrorMessage: &msg,
	}
}

// NewResultDTOs translates result records into the client schema,
// always yielding a non-nil slice.
func NewResultDTOs(results []domain.Result) []ResultDTO {
	out := make([]ResultDTO, 0, len(results))
	for _, r := range results {
		out = append(out, NewResultDTO(r))
	}
	return out
}

// NewResultDTO translates one result record into the client schema.
func NewResultDTO(r domain.Result) ResultDTO {
	return ResultDTO{
		ID:       r.ID,
		ImageURL: r.ImageURL,
		Seed:     r.Seed,
		Parameters: ParametersDTO{
			Strength: r.Parameters.Strength,
			CfgScale: r.Parameters.CfgScale,
			Steps:    r.Parameters.Steps,
			Sampler:  r.Parameters.Sampler,
		},
		CreatedAt: r.CreatedAt.UnixMilli(),
		Degraded:  r.Degraded,
	}
}

// ToDomain translates a client-schema result back into a record.
func (r ResultDTO) ToDomain() domain.Result {
	return domain.Result{
		ID:       r.ID,
		ImageURL: r.ImageURL,
		Seed:     r.Seed,
		Parameters: domain.Parameters{
			Strength: r.Parameters.Strength,
			CfgScale: r.Parameters.CfgScale,
			Steps:    r.Parameters.Steps,
			Sampler:  r.Parameters.Sampler,
		},
		CreatedAt: time.UnixMilli(r.CreatedAt),
		Degraded:  r.Degraded,
	}
}
