package client

import (
	"context"
	"sync"

	"github.com/hpetrik/styletransfer-be/internal/api/dto"
)

// ResultSink receives the results of one completed job.
type ResultSink interface {
	Save(ctx context.Context, jobID string, results []dto.ResultDTO) error
}

// APISink persists results through the server's durable result store.
type APISink struct {
	api *API
}

// NewAPISink creates the durable sink of the fallback chain.
func NewAPISink(api *API) *APISink {
	return &APISink{api: api}
}

func (s *APISink) Save(ctx context.Context, jobID string, results []dto.ResultDTO) error {
	return s.api.SaveResults(ctx, jobID, results)
}

// LocalResults is the ephemeral client-local result list. It catches
// results the durable store could not take, so generated output is never
// lost from view. Most recent results come first.
type LocalResults struct {
	mu    sync.Mutex
	items []dto.ResultDTO
}

// NewLocalResults creates an empty local result list.
func NewLocalResults() *LocalResults {
	return &LocalResults{}
}

// Add prepends results, keeping the most recent first.
func (l *LocalResults) Add(results []dto.ResultDTO) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(append([]dto.ResultDTO{}, results...), l.items...)
}

// Items returns a copy of the local list.
func (l *LocalResults) Items() []dto.ResultDTO {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]dto.ResultDTO, len(l.items))
	copy(out, l.items)
	return out
}

// Merge prepends the local list to durably stored results for display.
func (l *LocalResults) Merge(durable []dto.ResultDTO) []dto.ResultDTO {
	local := l.Items()
	return append(local, durable...)
}

// FallbackChain routes each completed result set through exactly one of
// two paths: the durable sink, or the local list when the sink errors.
type FallbackChain struct {
	sink  ResultSink
	local *LocalResults
}

// NewFallbackChain creates a chain over the given sink and local list.
func NewFallbackChain(sink ResultSink, local *LocalResults) *FallbackChain {
	return &FallbackChain{
		sink:  sink,
		local: local,
	}
}

// Persist attempts the durable sink first and falls back to the local
// list on any error. It reports whether the durable path succeeded; the
// results are visible through exactly one of the two paths either way.
func (f *FallbackChain) Persist(ctx context.Context, jobID string, results []dto.ResultDTO) bool {
	if len(results) == 0 {
		return false
	}

	if err := f.sink.Save(ctx, jobID, results); err != nil {
		f.local.Add(results)
		return false
	}
	return true
}
