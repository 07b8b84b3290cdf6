package store

import "sync"

// KV is the durable key/value medium behind a Store. Get reports absence with
// ok=false, which is distinct from an empty value.
type KV interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Delete(key string) error
}

// Backend is a key/value medium shared by many namespaces, one per profile.
type Backend interface {
	Get(namespace, key string) (value string, ok bool, err error)
	Set(namespace, key, value string) error
	Delete(namespace, key string) error
}

// Namespaced returns the view of backend restricted to namespace.
func Namespaced(backend Backend, namespace string) KV {
	return &namespacedKV{backend: backend, namespace: namespace}
}

type namespacedKV struct {
	backend   Backend
	namespace string
}

func (n *namespacedKV) Get(key string) (string, bool, error) {
	return n.backend.Get(n.namespace, key)
}

func (n *namespacedKV) Set(key, value string) error {
	return n.backend.Set(n.namespace, key, value)
}

func (n *namespacedKV) Delete(key string) error {
	return n.backend.Delete(n.namespace, key)
}

// MemoryBackend is a process-local Backend.
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[string]map[string]string
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string]map[string]string)}
}

func (m *MemoryBackend) Get(namespace, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[namespace][key]
	return v, ok, nil
}

func (m *MemoryBackend) Set(namespace, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ns, ok := m.data[namespace]
	if !ok {
		ns = make(map[string]string)
		m.data[namespace] = ns
	}
	ns[key] = value
	return nil
}

func (m *MemoryBackend) Delete(namespace, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data[namespace], key)
	if len(m.data[namespace]) == 0 {
		delete(m.data, namespace)
	}
	return nil
}

// NewMemoryKV returns a single-namespace in-memory KV.
func NewMemoryKV() KV {
	return Namespaced(NewMemoryBackend(), "")
}
