package jobstore

import (
	"sync"
	"time"

	"github.com/hpetrik/styletransfer-be/internal/api/domain"
)

// Store is the process-wide registry of job records. It is volatile and
// scoped to a single server instance: records live for the process
// lifetime and are never evicted.
//
// The store owns its records exclusively. Create, Get and Update all
// return copies, so no caller ever holds a mutable reference into the
// registry; mutation happens only through Update.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*domain.Job
}

// New creates an empty job store.
func New() *Store {
	return &Store{
		jobs: make(map[string]*domain.Job),
	}
}

// Create registers a new job record in pending state. Creating the same
// id twice returns domain.ErrJobExists.
func (s *Store) Create(jobID string) (domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[jobID]; exists {
		return domain.Job{}, domain.ErrJobExists
	}

	job := &domain.Job{
		JobID:     jobID,
		Status:    domain.JobStatusPending,
		Progress:  0,
		CreatedAt: time.Now(),
	}
	s.jobs[jobID] = job

	return copyJob(job), nil
}

// Get returns a copy of the job record. An unknown id is a normal
// outcome, reported by ok=false rather than an error.
func (s *Store) Get(jobID string) (domain.Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return domain.Job{}, false
	}
	return copyJob(job), true
}

// Update applies fn to the job record under the store lock and returns a
// copy of the updated record. The store enforces the record invariants
// regardless of what fn does:
//
//   - a job never leaves a terminal state (domain.ErrTerminalState)
//   - progress is clamped to 0-100 and never regresses, except when the
//     job transitions to failed
//   - CreatedAt is immutable
func (s *Store) Update(jobID string, fn func(*domain.Job)) (domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return domain.Job{}, domain.ErrJobNotFound
	}

	snapshot := copyJob(job)
	wasTerminal := job.IsTerminal()

	fn(job)

	if wasTerminal && job.Status != snapshot.Status {
		// Roll back the whole record, not just the status fields: a
		// rejected update must leave no trace.
		*job = snapshot
		return domain.Job{}, domain.ErrTerminalState
	}

	job.CreatedAt = snapshot.CreatedAt

	if job.Progress < 0 {
		job.Progress = 0
	}
	if job.Progress > 100 {
		job.Progress = 100
	}
	if job.Status != domain.JobStatusFailed && job.Progress < snapshot.Progress {
		job.Progress = snapshot.Progress
	}

	if job.IsTerminal() && job.CompletedAt == nil {
		now := time.Now()
		job.CompletedAt = &now
	}

	return copyJob(job), nil
}

// List returns copies of all job records, in no particular order.
func (s *Store) List() []domain.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]domain.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, copyJob(job))
	}
	return jobs
}

// ActiveCount returns the number of jobs not yet in a terminal state.
func (s *Store) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, job := range s.jobs {
		if !job.IsTerminal() {
			count++
		}
	}
	return count
}

// Len returns the total number of job records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

func copyJob(job *domain.Job) domain.Job {
	out := *job
	if job.Results != nil {
		out.Results = make([]domain.Result, len(job.Results))
		copy(out.Results, job.Results)
	}
	if job.CompletedAt != nil {
		completedAt := *job.CompletedAt
		out.CompletedAt = &completedAt
	}
	return out
}
