package blob

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-process Store used by tests and bucket-less local runs.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string]memoryObject
	rev     int64
	baseURL string
}

type memoryObject struct {
	body        []byte
	contentType string
	etag        string
}

// NewMemoryStore returns an empty store. URLs are served under a fake host so
// completed records still carry resolvable-looking links.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]memoryObject),
		baseURL: "memory://lecture-notes",
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	body := make([]byte, len(obj.body))
	copy(body, obj.body)
	return body, obj.etag, nil
}

func (m *MemoryStore) Put(_ context.Context, key string, body []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store(key, body, contentType)
	return nil
}

func (m *MemoryStore) PutIfMatch(_ context.Context, key string, body []byte, contentType, ifMatch string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok || obj.etag != ifMatch {
		return fmt.Errorf("%w: %s", ErrPreconditionFailed, key)
	}
	m.store(key, body, contentType)
	return nil
}

// store must be called with the mutex held.
func (m *MemoryStore) store(key string, body []byte, contentType string) {
	m.rev++
	stored := make([]byte, len(body))
	copy(stored, body)
	m.objects[key] = memoryObject{
		body:        stored,
		contentType: contentType,
		etag:        fmt.Sprintf("rev-%d", m.rev),
	}
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *MemoryStore) ListKeys(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryStore) PublicURL(key string) string {
	return m.baseURL + "/" + key
}

// Len reports the number of stored objects, for tests.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
