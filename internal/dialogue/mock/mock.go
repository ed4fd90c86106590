// Package mock provides a scripted dialogue backend for tests.
package mock

import (
	"context"
	"sync"

	"iris/internal/dialogue"
)

// Backend returns Reply/Err for every call and records each request.
type Backend struct {
	mu       sync.Mutex
	Reply    string
	Err      error
	requests []dialogue.Request
}

var _ dialogue.Backend = (*Backend)(nil)

func (b *Backend) Complete(ctx context.Context, req dialogue.Request) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, req)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return b.Reply, b.Err
}

// Requests returns a copy of the recorded requests.
func (b *Backend) Requests() []dialogue.Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]dialogue.Request, len(b.requests))
	copy(out, b.requests)
	return out
}

// Calls returns how many requests were made.
func (b *Backend) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.requests)
}
