// Package storage persists editor collections as JSON blobs in a key-value store,
// the server-side stand-in for the browser's local storage.
package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// KV is a synchronous string key-value store.
type KV interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}

// Lister is implemented by stores that can enumerate keys.
type Lister interface {
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Pinger is implemented by stores backed by a connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Memory is an in-process KV. It is safe for concurrent use.
type Memory struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *Memory) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}
