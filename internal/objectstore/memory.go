package objectstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/NINAnor/tabmon-species-api/internal/errors"
)

// ErrNotFound is returned by MemClient.Download for missing keys.
var ErrNotFound = errors.Newf("object not found").
	Category(errors.CategoryNotFound).
	Component("objectstore").
	Build()

// MemClient is an in-memory Client used in tests and local development.
type MemClient struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemClient returns an empty in-memory object store.
func NewMemClient() *MemClient {
	return &MemClient{objects: make(map[string][]byte)}
}

// List returns sorted keys under prefix.
func (m *MemClient) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// ListPrefixes returns the sorted common prefixes directly under prefix.
func (m *MemClient) ListPrefixes(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]struct{})
	for k := range m.objects {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		rest := k[len(prefix):]
		idx := strings.Index(rest, "/")
		if idx < 0 {
			continue
		}
		seen[prefix+rest[:idx+1]] = struct{}{}
	}
	prefixes := make([]string, 0, len(seen))
	for p := range seen {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)
	return prefixes, nil
}

// Download returns a copy of the stored object.
func (m *MemClient) Download(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	body, ok := m.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(body))
	copy(out, body)
	return out, nil
}

// Upload stores a copy of body under key.
func (m *MemClient) Upload(_ context.Context, key string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := make([]byte, len(body))
	copy(stored, body)
	m.objects[key] = stored
	return nil
}

// Exists reports whether key is present.
func (m *MemClient) Exists(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[key]
	return ok, nil
}
