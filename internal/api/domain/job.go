package domain

import (
	"errors"
	"time"
)

// Job status constants. Every job moves strictly forward:
// pending -> processing -> completed|failed.
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

var (
	// ErrJobNotFound is returned when a job id is unknown to the job store
	ErrJobNotFound = errors.New("job not found")

	// ErrJobExists is returned when a job id is created twice
	ErrJobExists = errors.New("job already exists")

	// ErrTerminalState is returned when an update would move a job out of
	// a terminal state
	ErrTerminalState = errors.New("job already in terminal state")
)

// Job is one submitted generation request and its tracked lifecycle.
// Records are owned by the job store; callers only ever see copies.
type Job struct {
	JobID        string
	Status       string
	Progress     int
	CurrentStep  string
	ModelID      string
	ErrorMessage string
	Results      []Result
	CreatedAt    time.Time
	CompletedAt  *time.Time
}

// IsTerminal reports whether the job has reached a final state.
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// Result is one generated output of a job. Degraded results are produced
// from the original input when the worker fails or emits unusable output.
type Result struct {
	ID         string
	ImageURL   string
	Seed       int64
	Parameters Parameters
	CreatedAt  time.Time
	Degraded   bool
}

// Parameters are the effective generation parameters of a result.
type Parameters struct {
	Strength float64
	CfgScale float64
	Steps    int
	Sampler  string
}

// Generation parameter defaults, applied whenever the request bundle or
// the worker payload omits a field.
const (
	DefaultStrength = 0.7
	DefaultCfgScale = 7.5
	DefaultSteps    = 20
	DefaultSampler  = "Euler a"
)

// DefaultParameters returns a Parameters with all fields defaulted.
func DefaultParameters() Parameters {
	return Parameters{
		Strength: DefaultStrength,
		CfgScale: DefaultCfgScale,
		Steps:    DefaultSteps,
		Sampler:  DefaultSampler,
	}
}

// Normalize fills zero-valued fields with their defaults.
func (p Parameters) Normalize() Parameters {
	if p.Strength <= 0 {
		p.Strength = DefaultStrength
	}
	if p.CfgScale <= 0 {
		p.CfgScale = DefaultCfgScale
	}
	if p.Steps <= 0 {
		p.Steps = DefaultSteps
	}
	if p.Sampler == "" {
		p.Sampler = DefaultSampler
	}
	return p
}
