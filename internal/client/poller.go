package client

import (
	"context"
	"log/slog"
	"time"

	"github.com/hpetrik/styletransfer-be/internal/api/domain"
	"github.com/hpetrik/styletransfer-be/internal/api/dto"
)

// Poller states. Terminal states are StateCompleted and StateFailed.
type State string

const (
	StatePending      State = "pending"
	StateInitializing State = "initializing"
	StateProcessing   State = "processing"
	StateCompleted    State = "completed"
	StateFailed       State = "failed"
)

// Poller timing defaults.
const (
	DefaultPollInterval  = 2 * time.Second
	DefaultJobDeadline   = 25 * time.Second
	DefaultAnimationTick = 200 * time.Millisecond
	DefaultAnimationStep = 2
	DefaultAnimationCap  = 85
)

// TimeoutMessage is surfaced when the hard deadline fires. The backend
// offers no cancellation primitive, so the worker may still be running.
const TimeoutMessage = "Processing timeout - the job may still be running on the server"

// Update is one observable progress change, delivered to OnUpdate.
type Update struct {
	State       State
	Progress    int
	CurrentStep string
}

// Outcome is the final, terminal result of one polled job.
type Outcome struct {
	JobID        string
	State        State
	Progress     int
	CurrentStep  string
	ErrorMessage string
	Results      []dto.ResultDTO
	SavedDurably bool
}

// PollerConfig holds the poller dependencies and timing knobs. Zero
// timing values fall back to the defaults above.
type PollerConfig struct {
	API           *API
	Chain         *FallbackChain
	Logger        *slog.Logger
	PollInterval  time.Duration
	JobDeadline   time.Duration
	AnimationTick time.Duration
	AnimationStep int
	AnimationCap  int
	OnUpdate      func(Update)
}

// Poller is the client-side state machine around one submitted job:
//
//	pending -> initializing -> processing -> completed | failed
//
// While the job runs it blends a locally animated synthetic progress
// signal with the server-reported progress, polls on a fixed interval,
// and enforces a hard overall deadline independent of the backend. The
// whole machine runs on the caller's goroutine as one select loop over
// the animation ticker, the poll ticker and the deadline timer, so both
// timers are torn down together and no stray tick can mutate state after
// a terminal transition.
type Poller struct {
	api           *API
	chain         *FallbackChain
	logger        *slog.Logger
	pollInterval  time.Duration
	jobDeadline   time.Duration
	animationTick time.Duration
	animationStep int
	animationCap  int
	onUpdate      func(Update)
}

// NewPoller creates a poller with defaults applied.
func NewPoller(cfg *PollerConfig) *Poller {
	p := &Poller{
		api:           cfg.API,
		chain:         cfg.Chain,
		logger:        cfg.Logger,
		pollInterval:  cfg.PollInterval,
		jobDeadline:   cfg.JobDeadline,
		animationTick: cfg.AnimationTick,
		animationStep: cfg.AnimationStep,
		animationCap:  cfg.AnimationCap,
		onUpdate:      cfg.OnUpdate,
	}

	if p.pollInterval <= 0 {
		p.pollInterval = DefaultPollInterval
	}
	if p.jobDeadline <= 0 {
		p.jobDeadline = DefaultJobDeadline
	}
	if p.animationTick <= 0 {
		p.animationTick = DefaultAnimationTick
	}
	if p.animationStep <= 0 {
		p.animationStep = DefaultAnimationStep
	}
	if p.animationCap <= 0 {
		p.animationCap = DefaultAnimationCap
	}
	if p.onUpdate == nil {
		p.onUpdate = func(Update) {}
	}

	return p
}

// Run submits the image and drives the job to a terminal state. A
// submission failure is the only error return; once a job id exists,
// every path - including the hard deadline - ends in a terminal Outcome.
func (p *Poller) Run(ctx context.Context, imagePath, modelID string, params domain.Parameters) (*Outcome, error) {
	resp, err := p.api.Submit(ctx, imagePath, modelID, params)
	if err != nil {
		return nil, err
	}

	jobID := resp.JobID
	p.logger.Info("Job submitted",
		slog.String("job_id", jobID),
	)

	// Synthetic progress starts at 5 the moment the submission lands.
	animated := 5
	displayed := 5
	currentStep := "Starting processing..."
	p.notify(StateInitializing, displayed, currentStep)

	// Pre-resolved synchronous completion: results arrived inline, no
	// polling needed.
	if len(resp.Results) > 0 {
		saved := p.persist(ctx, jobID, resp.Results)
		p.notify(StateCompleted, 100, "Processing complete")
		return &Outcome{
			JobID:        jobID,
			State:        StateCompleted,
			Progress:     100,
			CurrentStep:  "Processing complete",
			Results:      resp.Results,
			SavedDurably: saved,
		}, nil
	}

	animTicker := time.NewTicker(p.animationTick)
	defer animTicker.Stop()
	pollTicker := time.NewTicker(p.pollInterval)
	defer pollTicker.Stop()
	deadline := time.NewTimer(p.jobDeadline)
	defer deadline.Stop()

	state := StateInitializing

	for {
		select {
		case <-ctx.Done():
			p.notify(StateFailed, displayed, "Canceled")
			return &Outcome{
				JobID:        jobID,
				State:        StateFailed,
				Progress:     displayed,
				CurrentStep:  "Canceled",
				ErrorMessage: ctx.Err().Error(),
			}, nil

		case <-deadline.C:
			// The hard deadline fires regardless of the backend's true
			// state; the job may be orphaned server-side.
			p.logger.Warn("Job deadline reached",
				slog.String("job_id", jobID),
				slog.Duration("deadline", p.jobDeadline),
			)
			p.notify(StateFailed, displayed, "Processing timeout")
			return &Outcome{
				JobID:        jobID,
				State:        StateFailed,
				Progress:     displayed,
				CurrentStep:  "Processing timeout",
				ErrorMessage: TimeoutMessage,
			}, nil

		case <-animTicker.C:
			if animated < p.animationCap {
				animated += p.animationStep
				if animated > p.animationCap {
					animated = p.animationCap
				}
			}
			if animated > displayed {
				displayed = animated
				p.notify(state, displayed, currentStep)
			}

		case <-pollTicker.C:
			status, err := p.api.Status(ctx, jobID)
			if err != nil {
				// Transient by definition: one failed poll never fails
				// the job, only the hard deadline does.
				p.logger.Warn("Status poll failed, will retry",
					slog.String("job_id", jobID),
					slog.Any("error", err),
				)
				continue
			}

			if status.CurrentStep != nil {
				currentStep = *status.CurrentStep
			}

			switch status.Status {
			case domain.JobStatusCompleted:
				animTicker.Stop()
				pollTicker.Stop()
				saved := p.persist(ctx, jobID, status.Results)
				p.notify(StateCompleted, 100, currentStep)
				return &Outcome{
					JobID:        jobID,
					State:        StateCompleted,
					Progress:     100,
					CurrentStep:  currentStep,
					Results:      status.Results,
					SavedDurably: saved,
				}, nil

			case domain.JobStatusFailed:
				animTicker.Stop()
				pollTicker.Stop()
				errorMessage := "Processing failed"
				if status.ErrorMessage != nil {
					errorMessage = *status.ErrorMessage
				}
				p.notify(StateFailed, displayed, currentStep)
				return &Outcome{
					JobID:        jobID,
					State:        StateFailed,
					Progress:     displayed,
					CurrentStep:  currentStep,
					ErrorMessage: errorMessage,
				}, nil

			default:
				state = StateProcessing
				// The animation may lead the server, but the server's
				// true progress never regresses the displayed value.
				if status.Progress > displayed {
					displayed = status.Progress
				}
				p.notify(state, displayed, currentStep)
			}
		}
	}
}

func (p *Poller) persist(ctx context.Context, jobID string, results []dto.ResultDTO) bool {
	if p.chain == nil {
		return false
	}
	saved := p.chain.Persist(ctx, jobID, results)
	if !saved {
		p.logger.Warn("Durable persistence failed, results kept locally",
			slog.String("job_id", jobID),
			slog.Int("count", len(results)),
		)
	}
	return saved
}

func (p *Poller) notify(state State, progress int, step string) {
	p.onUpdate(Update{
		State:       state,
		Progress:    progress,
		CurrentStep: step,
	})
}
