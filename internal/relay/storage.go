package relay

import (
	"context"
	"sync"
)

// MemoryStorage is the in-process TokenStorage used by the client execution
// context and by tests. One instance corresponds to one browser's local
// storage on the receiving origin.
type MemoryStorage struct {
	mu    sync.Mutex
	token string
	// failWrites simulates disabled storage.
	failWrites error
}

// NewMemoryStorage creates an empty in-memory token storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

// FailWrites makes subsequent saves return err. Used to exercise the
// storage-disabled failure path.
func (m *MemoryStorage) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWrites = err
}

func (m *MemoryStorage) Save(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites != nil {
		return m.failWrites
	}
	m.token = token
	return nil
}

func (m *MemoryStorage) Load(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, nil
}

func (m *MemoryStorage) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	return nil
}
