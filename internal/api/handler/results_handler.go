package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/hpetrik/styletransfer-be/internal/api/domain"
	"github.com/hpetrik/styletransfer-be/internal/api/dto"
	"github.com/hpetrik/styletransfer-be/internal/api/storage"
	"github.com/hpetrik/styletransfer-be/internal/events"
)

// SaveResults handles POST /api/v1/results - the durable persistence
// hand-off of the client fallback chain.
func (h *JobHandler) SaveResults(c *gin.Context) {
	if h.results == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "result store is not configured",
		})
		return
	}

	var req dto.SaveResultsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid save-results request",
			slog.Any("error", err),
		)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	results := make([]domain.Result, 0, len(req.Results))
	for _, r := range req.Results {
		results = append(results, r.ToDomain())
	}

	if err := h.results.SaveResults(c.Request.Context(), req.JobID, results); err != nil {
		h.logger.Error("Failed to persist results",
			slog.String("job_id", req.JobID),
			slog.Any("error", err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to persist results",
		})
		return
	}

	h.logger.Info("Results persisted",
		slog.String("job_id", req.JobID),
		slog.Int("count", len(results)),
	)

	c.JSON(http.StatusOK, gin.H{
		"job_id": req.JobID,
		"saved":  len(results),
	})
}

// ListResults handles GET /api/v1/results with optional job_id and limit
// query parameters, most recent first.
func (h *JobHandler) ListResults(c *gin.Context) {
	if h.results == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "result store is not configured",
		})
		return
	}

	limit := 50
	if rawLimit := c.Query("limit"); rawLimit != "" {
		parsed, err := strconv.Atoi(rawLimit)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "limit must be a positive integer",
			})
			return
		}
		limit = parsed
	}
	if limit > 500 {
		limit = 500
	}

	filter := storage.ResultFilter{
		JobID: c.Query("job_id"),
		Limit: limit,
	}

	results, err := h.results.ListResults(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list results",
			slog.Any("error", err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list results",
		})
		return
	}

	c.JSON(http.StatusOK, dto.ListResultsResponse{
		Results:    dto.NewResultDTOs(results),
		TotalCount: len(results),
	})
}

// eventFor translates a job record into its lifecycle event.
func eventFor(job domain.Job) events.Event {
	event := events.Event{
		JobID:    job.JobID,
		Status:   job.Status,
		Progress: job.Progress,
		ModelID:  job.ModelID,
		Error:    job.ErrorMessage,
		Degraded: anyDegraded(job.Results),
	}
	if job.CompletedAt != nil {
		event.Timestamp = *job.CompletedAt
	}
	return event
}
