package testutil

import (
	"context"
	"sync"

	"github.com/andrewblevins/space-sub000/internal/space"
)

// FlakyRemote wraps a RemoteRepository and fails Create for selected
// conversation titles. Use to exercise partial-failure handling in bulk
// transfers.
type FlakyRemote struct {
	space.RemoteRepository

	mu        sync.Mutex
	failures  map[string]error
	attempted []string
}

// NewFlakyRemote wraps inner with no failures configured.
func NewFlakyRemote(inner space.RemoteRepository) *FlakyRemote {
	return &FlakyRemote{
		RemoteRepository: inner,
		failures:         make(map[string]error),
	}
}

// FailCreate makes Create return err whenever it is called with the given
// title.
func (f *FlakyRemote) FailCreate(title string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[title] = err
}

func (f *FlakyRemote) Create(ctx context.Context, title string, metadata map[string]any) (*space.Session, error) {
	f.mu.Lock()
	f.attempted = append(f.attempted, title)
	err := f.failures[title]
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return f.RemoteRepository.Create(ctx, title, metadata)
}

// CreateAttempts returns the titles passed to Create, in order.
func (f *FlakyRemote) CreateAttempts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.attempted...)
}
