package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/hpetrik/styletransfer-be/internal/api/domain"
)

// RunnerConfig holds the external worker invocation settings.
type RunnerConfig struct {
	Command string        // interpreter, e.g. "python3"
	Script  string        // worker script path, e.g. "process_image.py"
	Timeout time.Duration // per-job wall clock limit
}

// Runner invokes the external single-shot worker for one job and
// normalizes its outcome into a result list.
//
// The runner never surfaces worker-internal failures to its caller: a
// crash, a non-zero exit or unparsable output is absorbed into a single
// degraded result built from the input artifact. Only a failure to launch
// the process at all (or to read the input for the fallback) returns an
// error, which the submission path turns into a failed job.
type Runner struct {
	config RunnerConfig
	logger *slog.Logger
}

// NewRunner creates a runner for the configured worker command.
func NewRunner(config RunnerConfig, logger *slog.Logger) *Runner {
	return &Runner{
		config: config,
		logger: logger,
	}
}

// Run executes the worker with the input artifact path, the model id and
// the JSON-encoded parameter bundle, and returns at least one result.
func (r *Runner) Run(ctx context.Context, jobID, inputPath, modelID string, params domain.Parameters) ([]domain.Result, error) {
	paramsJSON, err := json.Marshal(map[string]interface{}{
		"strength": params.Strength,
		"cfgScale": params.CfgScale,
		"steps":    params.Steps,
		"sampler":  params.Sampler,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode parameters: %w", err)
	}

	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, r.config.Command, r.config.Script, inputPath, modelID, string(paramsJSON))

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Info("Spawning worker process",
		slog.String("job_id", jobID),
		slog.String("command", r.config.Command),
		slog.String("script", r.config.Script),
		slog.String("model_id", modelID),
	)

	if err := cmd.Start(); err != nil {
		r.logger.Error("Failed to launch worker process",
			slog.String("job_id", jobID),
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("failed to launch worker: %w", err)
	}

	runErr := cmd.Wait()

	if runErr != nil {
		r.logger.Warn("Worker process exited with failure, building degraded result",
			slog.String("job_id", jobID),
			slog.Any("error", runErr),
			slog.String("stderr", truncate(stderr.String(), 512)),
		)
		return r.fallback(jobID, inputPath, params)
	}

	payload, parseErr := parsePayload(stdout.Bytes())
	if parseErr != nil {
		r.logger.Warn("Worker output unusable, building degraded result",
			slog.String("job_id", jobID),
			slog.Any("error", parseErr),
			slog.String("stdout", truncate(stdout.String(), 512)),
		)
		return r.fallback(jobID, inputPath, params)
	}

	result := buildResult(jobID, payload, params)
	r.logger.Info("Worker completed",
		slog.String("job_id", jobID),
		slog.String("result_id", result.ID),
		slog.Int64("seed", result.Seed),
	)

	return []domain.Result{result}, nil
}

func (r *Runner) fallback(jobID, inputPath string, params domain.Parameters) ([]domain.Result, error) {
	result, err := degradedResult(jobID, inputPath, params)
	if err != nil {
		// The input artifact itself is gone; nothing displayable remains.
		return nil, err
	}
	return []domain.Result{result}, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
