package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hpetrik/styletransfer-be/internal/api/domain"
	"github.com/hpetrik/styletransfer-be/internal/api/dto"
	"github.com/hpetrik/styletransfer-be/internal/worker"
)

// ProcessImage handles POST /process.
// Accepts a multipart form with the input image, a model id and an
// optional JSON parameter bundle, creates a job record and hands the job
// to the worker pool. The response carries the job id immediately; in
// sync mode it blocks on the worker and carries the results inline.
func (h *JobHandler) ProcessImage(c *gin.Context) {
	file, err := c.FormFile("image")
	if err != nil {
		h.logger.Warn("Submission rejected - missing image")
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "image is required",
		})
		return
	}

	modelID := strings.TrimSpace(c.PostForm("model_id"))
	if modelID == "" {
		h.logger.Warn("Submission rejected - missing model_id")
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "model_id is required",
		})
		return
	}

	params, err := parseParameters(c.PostForm("parameters"))
	if err != nil {
		h.logger.Warn("Submission rejected - malformed parameters",
			slog.Any("error", err),
		)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "parameters must be a valid JSON object",
		})
		return
	}

	// Time-based prefix plus random suffix; unique with overwhelming
	// probability, no global sequence needed.
	jobID := fmt.Sprintf("job_%d_%s", time.Now().Unix(), uuid.NewString()[:8])

	if _, err := h.jobs.Create(jobID); err != nil {
		h.logger.Error("Failed to create job record",
			slog.String("job_id", jobID),
			slog.Any("error", err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to start processing",
			"details": err.Error(),
		})
		return
	}

	// No admission control exists: every accepted submission runs
	// immediately, so the record starts out processing, not pending.
	job, err := h.jobs.Update(jobID, func(j *domain.Job) {
		j.Status = domain.JobStatusProcessing
		j.Progress = 5
		j.CurrentStep = "Starting processing..."
		j.ModelID = modelID
	})
	if err != nil {
		h.logger.Error("Failed to initialize job record",
			slog.String("job_id", jobID),
			slog.Any("error", err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to start processing",
			"details": err.Error(),
		})
		return
	}

	inputPath := filepath.Join(h.scratchDir, jobID+"_input"+artifactExt(file.Filename))
	if err := c.SaveUploadedFile(file, inputPath); err != nil {
		h.logger.Error("Failed to persist input artifact",
			slog.String("job_id", jobID),
			slog.String("path", inputPath),
			slog.Any("error", err),
		)
		h.failJob(jobID, "Input save failed", "failed to save input artifact")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to start processing",
			"details": err.Error(),
		})
		return
	}

	h.logger.Info("Started processing job",
		slog.String("job_id", jobID),
		slog.String("model_id", modelID),
		slog.Int64("image_size", file.Size),
	)
	h.publishTransition(c.Request.Context(), job)

	if h.syncMode {
		// Synchronous variant: block on the worker and respond with the
		// results inline so the client can skip polling entirely.
		h.runJob(c.Request.Context(), jobID, inputPath, modelID, params)

		job, _ := h.jobs.Get(jobID)
		c.JSON(http.StatusOK, dto.ProcessResponse{
			JobID:   jobID,
			Status:  job.Status,
			Results: dto.NewResultDTOs(job.Results),
		})
		return
	}

	task := worker.Task{
		JobID: jobID,
		Run: func(ctx context.Context) {
			h.runJob(ctx, jobID, inputPath, modelID, params)
		},
	}

	if err := h.pool.Enqueue(task); err != nil {
		h.logger.Error("Failed to enqueue job",
			slog.String("job_id", jobID),
			slog.Any("error", err),
		)
		h.failJob(jobID, "Worker dispatch failed", err.Error())

		// Backpressure is not a server fault: a full queue asks the
		// client to retry later, everything else is a 500.
		if errors.Is(err, worker.ErrQueueFull) {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":   "Server is busy, try again later",
				"details": err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to start processing",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, dto.ProcessResponse{
		JobID:  jobID,
		Status: domain.JobStatusProcessing,
	})
}

// runJob invokes the worker adapter and settles the job record. Worker
// malfunction never fails the job - the adapter absorbs it into a
// degraded result. Only a launch failure reaches the failed branch.
func (h *JobHandler) runJob(ctx context.Context, jobID, inputPath, modelID string, params domain.Parameters) {
	results, err := h.runner.Run(ctx, jobID, inputPath, modelID, params)
	if err != nil {
		h.logger.Error("Job failed",
			slog.String("job_id", jobID),
			slog.Any("error", err),
		)
		h.failJob(jobID, "Worker launch failed", err.Error())
		return
	}

	job, updateErr := h.jobs.Update(jobID, func(j *domain.Job) {
		j.Status = domain.JobStatusCompleted
		j.Progress = 100
		j.CurrentStep = "Processing complete"
		j.Results = results
	})
	if updateErr != nil {
		h.logger.Error("Failed to complete job record",
			slog.String("job_id", jobID),
			slog.Any("error", updateErr),
		)
		return
	}

	h.logger.Info("Job completed",
		slog.String("job_id", jobID),
		slog.Int("results", len(results)),
		slog.Bool("degraded", anyDegraded(results)),
	)
	h.publishTransition(ctx, job)
}

func (h *JobHandler) failJob(jobID, step, message string) {
	job, err := h.jobs.Update(jobID, func(j *domain.Job) {
		j.Status = domain.JobStatusFailed
		j.Progress = 0
		j.CurrentStep = step
		j.ErrorMessage = message
	})
	if err != nil {
		h.logger.Error("Failed to mark job failed",
			slog.String("job_id", jobID),
			slog.Any("error", err),
		)
		return
	}
	h.publishTransition(context.Background(), job)
}

// GetJobStatus handles GET /status/:job_id.
// Always responds 200: an unknown id yields a synthetic failed view with
// a "Job not found" step, never a transport-level 404, so the polling
// client parses one shape on every path.
func (h *JobHandler) GetJobStatus(c *gin.Context) {
	jobID := c.Param("job_id")

	job, ok := h.jobs.Get(jobID)
	if !ok {
		h.logger.Debug("Status query for unknown job",
			slog.String("job_id", jobID),
		)
		c.JSON(http.StatusOK, dto.NotFoundStatusResponse(jobID))
		return
	}

	c.JSON(http.StatusOK, dto.NewStatusResponse(job))
}

// ListJobs handles GET /jobs - every job record of this server instance.
func (h *JobHandler) ListJobs(c *gin.Context) {
	jobs := h.jobs.List()

	views := make([]dto.StatusResponse, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, dto.NewStatusResponse(job))
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       views,
		TotalCount: len(views),
	})
}

// HealthCheck handles GET /health and GET /.
func (h *JobHandler) HealthCheck(c *gin.Context) {
	dbStatus := "disabled"
	if h.dbHealth != nil {
		dbStatus = "connected"
		if err := h.dbHealth.HealthCheck(c.Request.Context()); err != nil {
			dbStatus = "unreachable"
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"service":     h.serviceName,
		"database":    dbStatus,
		"active_jobs": h.jobs.ActiveCount(),
		"total_jobs":  h.jobs.Len(),
	})
}

func (h *JobHandler) publishTransition(ctx context.Context, job domain.Job) {
	h.events.Publish(ctx, eventFor(job))
}

func parseParameters(raw string) (domain.Parameters, error) {
	params := domain.DefaultParameters()
	if raw == "" {
		return params, nil
	}

	var bundle struct {
		Strength *float64 `json:"strength"`
		CfgScale *float64 `json:"cfgScale"`
		Steps    *int     `json:"steps"`
		Sampler  *string  `json:"sampler"`
	}
	if err := json.Unmarshal([]byte(raw), &bundle); err != nil {
		return domain.Parameters{}, fmt.Errorf("invalid parameters JSON: %w", err)
	}

	if bundle.Strength != nil && *bundle.Strength > 0 {
		params.Strength = *bundle.Strength
	}
	if bundle.CfgScale != nil && *bundle.CfgScale > 0 {
		params.CfgScale = *bundle.CfgScale
	}
	if bundle.Steps != nil && *bundle.Steps > 0 {
		params.Steps = *bundle.Steps
	}
	if bundle.Sampler != nil && *bundle.Sampler != "" {
		params.Sampler = *bundle.Sampler
	}

	return params, nil
}

func artifactExt(filename string) string {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".jpg", ".jpeg", ".webp", ".png":
		return ext
	default:
		return ".png"
	}
}

func anyDegraded(results []domain.Result) bool {
	for _, r := range results {
		if r.Degraded {
			return true
		}
	}
	return false
}
