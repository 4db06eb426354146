package crypto

import (
	"context"
	"fmt"
	"sync"
)

// MemorySecretStore keeps secrets in process memory. Development and
// single-node deployments only; production custody belongs to Vault.
type MemorySecretStore struct {
	mu      sync.RWMutex
	secrets map[string]map[string]interface{}
}

// NewMemorySecretStore returns an empty in-process secret store.
func NewMemorySecretStore() *MemorySecretStore {
	return &MemorySecretStore{secrets: make(map[string]map[string]interface{})}
}

func (m *MemorySecretStore) Put(_ context.Context, path string, data map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := make(map[string]interface{}, len(data))
	for k, v := range data {
		copied[k] = v
	}
	m.secrets[path] = copied
	return nil
}

func (m *MemorySecretStore) Get(_ context.Context, path string) (map[string]interface{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.secrets[path]
	if !ok {
		return nil, fmt.Errorf("secret %s not found", path)
	}
	return data, nil
}

func (m *MemorySecretStore) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.secrets, path)
	return nil
}
