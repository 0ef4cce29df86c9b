package handler

import (
	"context"
	"log/slog"

	"github.com/hpetrik/styletransfer-be/internal/api/domain"
	"github.com/hpetrik/styletransfer-be/internal/api/storage"
	"github.com/hpetrik/styletransfer-be/internal/events"
	"github.com/hpetrik/styletransfer-be/internal/jobstore"
	"github.com/hpetrik/styletransfer-be/internal/worker"
)

// Runner invokes the external worker for one job. Satisfied by
// worker.Runner; tests substitute a stub.
type Runner interface {
	Run(ctx context.Context, jobID, inputPath, modelID string, params domain.Parameters) ([]domain.Result, error)
}

// ResultStore is the durable result store contract. Satisfied by
// storage.Storage; nil when no database is configured.
type ResultStore interface {
	SaveResults(ctx context.Context, jobID string, results []domain.Result) error
	ListResults(ctx context.Context, filter storage.ResultFilter) ([]domain.Result, error)
}

// HealthChecker reports whether the result store database is reachable.
// Satisfied by postgresql.Client; nil when no database is configured.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger      *slog.Logger
	Jobs        *jobstore.Store
	Pool        *worker.Pool
	Runner      Runner
	Results     ResultStore   // nil when database is disabled
	DBHealth    HealthChecker // nil when database is disabled
	Events      events.Publisher
	ScratchDir  string
	SyncMode    bool
	ServiceName string
}

// JobHandler handles job submission, status and result persistence
type JobHandler struct {
	logger      *slog.Logger
	jobs        *jobstore.Store
	pool        *worker.Pool
	runner      Runner
	results     ResultStore
	dbHealth    HealthChecker
	events      events.Publisher
	scratchDir  string
	syncMode    bool
	serviceName string
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	evts := deps.Events
	if evts == nil {
		evts = events.NoopPublisher{}
	}

	name := deps.ServiceName
	if name == "" {
		name = "style-transfer-api"
	}

	return &JobHandler{
		logger:      deps.Logger,
		jobs:        deps.Jobs,
		pool:        deps.Pool,
		runner:      deps.Runner,
		results:     deps.Results,
		dbHealth:    deps.DBHealth,
		events:      evts,
		scratchDir:  deps.ScratchDir,
		syncMode:    deps.SyncMode,
		serviceName: name,
	}
}
