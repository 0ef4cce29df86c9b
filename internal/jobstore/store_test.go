package jobstore

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpetrik/styletransfer-be/internal/api/domain"
)

func TestStore_Create(t *testing.T) {
	store := New()

	job, err := store.Create("job_1")
	require.NoError(t, err)
	assert.Equal(t, "job_1", job.JobID)
	assert.Equal(t, domain.JobStatusPending, job.Status)
	assert.Equal(t, 0, job.Progress)
	assert.False(t, job.CreatedAt.IsZero())
	assert.Nil(t, job.CompletedAt)

	_, err = store.Create("job_1")
	assert.ErrorIs(t, err, domain.ErrJobExists)
	assert.Equal(t, 1, store.Len())
}

func TestStore_Get(t *testing.T) {
	store := New()

	_, err := store.Create("job_1")
	require.NoError(t, err)

	job, ok := store.Get("job_1")
	assert.True(t, ok)
	assert.Equal(t, "job_1", job.JobID)

	_, ok = store.Get("job_unknown")
	assert.False(t, ok)
}

func TestStore_Update(t *testing.T) {
	store := New()
	_, err := store.Create("job_1")
	require.NoError(t, err)

	job, err := store.Update("job_1", func(j *domain.Job) {
		j.Status = domain.JobStatusProcessing
		j.Progress = 5
		j.CurrentStep = "Starting processing..."
	})
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusProcessing, job.Status)
	assert.Equal(t, 5, job.Progress)
	assert.Equal(t, "Starting processing...", job.CurrentStep)
	assert.Nil(t, job.CompletedAt)
}

func TestStore_Update_UnknownJob(t *testing.T) {
	store := New()

	_, err := store.Update("job_unknown", func(j *domain.Job) {
		j.Progress = 50
	})
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestStore_Update_TerminalStateIsFinal(t *testing.T) {
	store := New()
	_, err := store.Create("job_1")
	require.NoError(t, err)

	_, err = store.Update("job_1", func(j *domain.Job) {
		j.Status = domain.JobStatusCompleted
		j.Progress = 100
	})
	require.NoError(t, err)

	_, err = store.Update("job_1", func(j *domain.Job) {
		j.Status = domain.JobStatusProcessing
		j.Progress = 10
	})
	assert.ErrorIs(t, err, domain.ErrTerminalState)

	// The rejected update must not have touched the record
	job, ok := store.Get("job_1")
	require.True(t, ok)
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)
}

func TestStore_Update_TerminalViolationRollsBackWholeRecord(t *testing.T) {
	store := New()
	_, err := store.Create("job_1")
	require.NoError(t, err)

	_, err = store.Update("job_1", func(j *domain.Job) {
		j.Status = domain.JobStatusCompleted
		j.Progress = 100
		j.CurrentStep = "Processing complete"
		j.Results = []domain.Result{{ID: "job_1_out", ImageURL: "data:image/png;base64,xyz"}}
	})
	require.NoError(t, err)

	_, err = store.Update("job_1", func(j *domain.Job) {
		j.Status = domain.JobStatusFailed
		j.CurrentStep = "tampered step"
		j.ErrorMessage = "tampered error"
		j.Results = nil
	})
	assert.ErrorIs(t, err, domain.ErrTerminalState)

	// Every field of the rejected mutation is rolled back, not just the
	// status pair
	job, ok := store.Get("job_1")
	require.True(t, ok)
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.Equal(t, "Processing complete", job.CurrentStep)
	assert.Empty(t, job.ErrorMessage)
	require.Len(t, job.Results, 1)
	assert.Equal(t, "job_1_out", job.Results[0].ID)
	assert.NotNil(t, job.CompletedAt)
}

func TestStore_Update_ProgressRules(t *testing.T) {
	tests := []struct {
		name         string
		setup        func(j *domain.Job)
		update       func(j *domain.Job)
		wantProgress int
	}{
		{
			name:         "clamps above 100",
			update:       func(j *domain.Job) { j.Progress = 150 },
			wantProgress: 100,
		},
		{
			name:         "clamps below 0",
			update:       func(j *domain.Job) { j.Progress = -10 },
			wantProgress: 0,
		},
		{
			name: "never regresses while running",
			setup: func(j *domain.Job) {
				j.Status = domain.JobStatusProcessing
				j.Progress = 60
			},
			update:       func(j *domain.Job) { j.Progress = 30 },
			wantProgress: 60,
		},
		{
			name: "regression allowed on failure",
			setup: func(j *domain.Job) {
				j.Status = domain.JobStatusProcessing
				j.Progress = 60
			},
			update: func(j *domain.Job) {
				j.Status = domain.JobStatusFailed
				j.Progress = 0
			},
			wantProgress: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := New()
			_, err := store.Create("job_1")
			require.NoError(t, err)

			if tt.setup != nil {
				_, err = store.Update("job_1", tt.setup)
				require.NoError(t, err)
			}

			job, err := store.Update("job_1", tt.update)
			require.NoError(t, err)
			assert.Equal(t, tt.wantProgress, job.Progress)
		})
	}
}

func TestStore_Update_CreatedAtImmutable(t *testing.T) {
	store := New()
	created, err := store.Create("job_1")
	require.NoError(t, err)

	job, err := store.Update("job_1", func(j *domain.Job) {
		j.CreatedAt = time.Now().Add(-time.Hour)
	})
	require.NoError(t, err)
	assert.Equal(t, created.CreatedAt, job.CreatedAt)
}

func TestStore_Update_SetsCompletedAt(t *testing.T) {
	store := New()
	_, err := store.Create("job_1")
	require.NoError(t, err)

	job, err := store.Update("job_1", func(j *domain.Job) {
		j.Status = domain.JobStatusFailed
		j.ErrorMessage = "worker exited"
	})
	require.NoError(t, err)
	require.NotNil(t, job.CompletedAt)
	assert.WithinDuration(t, time.Now(), *job.CompletedAt, time.Second)
}

func TestStore_ReturnsCopies(t *testing.T) {
	store := New()
	_, err := store.Create("job_1")
	require.NoError(t, err)

	_, err = store.Update("job_1", func(j *domain.Job) {
		j.Status = domain.JobStatusCompleted
		j.Results = []domain.Result{{ID: "job_1_abcd1234", ImageURL: "data:image/png;base64,xyz"}}
	})
	require.NoError(t, err)

	job, ok := store.Get("job_1")
	require.True(t, ok)

	// Mutating the copy must not leak back into the store
	job.Status = domain.JobStatusPending
	job.Results[0].ID = "tampered"

	fresh, ok := store.Get("job_1")
	require.True(t, ok)
	assert.Equal(t, domain.JobStatusCompleted, fresh.Status)
	assert.Equal(t, "job_1_abcd1234", fresh.Results[0].ID)
}

func TestStore_ListAndCounts(t *testing.T) {
	store := New()

	for i := 0; i < 3; i++ {
		_, err := store.Create(fmt.Sprintf("job_%d", i))
		require.NoError(t, err)
	}

	_, err := store.Update("job_0", func(j *domain.Job) {
		j.Status = domain.JobStatusCompleted
	})
	require.NoError(t, err)

	assert.Len(t, store.List(), 3)
	assert.Equal(t, 3, store.Len())
	assert.Equal(t, 2, store.ActiveCount())
}

func TestStore_ConcurrentAccess(t *testing.T) {
	store := New()

	const workers = 20
	var wg sync.WaitGroup
	wg.Add(workers)

	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()

			jobID := fmt.Sprintf("job_%d", i)
			_, err := store.Create(jobID)
			assert.NoError(t, err)

			for p := 10; p <= 100; p += 10 {
				progress := p
				_, err := store.Update(jobID, func(j *domain.Job) {
					j.Status = domain.JobStatusProcessing
					j.Progress = progress
				})
				assert.NoError(t, err)
			}

			_, ok := store.Get(jobID)
			assert.True(t, ok)
		}(i)
	}

	wg.Wait()
	assert.Equal(t, workers, store.Len())
}
