// Package memory is an in-process session backend. Nothing survives a
// restart, so it is meant for tests and one-shot runs.
package memory

import (
	"context"
	"sync"
)

type Backend struct {
	mu     sync.RWMutex
	values map[string]string
}

func New() *Backend {
	return &Backend{values: make(map[string]string)}
}

func (b *Backend) Get(_ context.Context, keys ...string) (map[string]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := b.values[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (b *Backend) Set(_ context.Context, values map[string]string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for k, v := range values {
		b.values[k] = v
	}
	return nil
}

func (b *Backend) Delete(_ context.Context, keys ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, k := range keys {
		delete(b.values, k)
	}
	return nil
}

func (b *Backend) Close() error { return nil }
