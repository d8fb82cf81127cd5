// Package fetch contains a scripted Fetcher double for report tests.
package fetch

import (
	"context"
	"sync"

	"github.com/novalabs/wa-reporting/internal/domain/model"
	"github.com/novalabs/wa-reporting/internal/ports"
)

var _ ports.Fetcher = (*StubFetcher)(nil)

// StubFetcher answers fetches from a handler func and records every request
// so tests can assert on call patterns (e.g., that no secondary fetches ran).
type StubFetcher struct {
	Handler func(ctx context.Context, req model.PageRequest) (model.FetchResult, error)

	mu    sync.Mutex
	calls []model.PageRequest
}

func (f *StubFetcher) Fetch(ctx context.Context, req model.PageRequest) (model.FetchResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	return f.Handler(ctx, req)
}

// Calls returns a copy of every request seen so far.
func (f *StubFetcher) Calls() []model.PageRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.PageRequest, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallsFor returns the requests against one resource.
func (f *StubFetcher) CallsFor(resource string) []model.PageRequest {
	var out []model.PageRequest
	for _, c := range f.Calls() {
		if c.Resource == resource {
			out = append(out, c)
		}
	}
	return out
}
