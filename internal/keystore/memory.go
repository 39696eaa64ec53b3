package keystore

import (
	"sync"

	"github.com/illarion/cipherstore/internal/crypto"
)

// Memory is a process-local KeyStore. Keys do not survive the process.
type Memory struct {
	mu          sync.Mutex
	entries     map[string]*Key
	createCalls int
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]*Key)}
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) HasEntry(alias string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[alias]
	return ok, nil
}

func (m *Memory) CreateEntry(alias string, params Params) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.createCalls++
	if err := params.Validate(); err != nil {
		return err
	}
	if _, ok := m.entries[alias]; ok {
		return nil
	}

	material, err := crypto.GenerateRandom(params.KeySize / 8)
	if err != nil {
		return err
	}
	key, err := newKey(alias, params, material)
	if err != nil {
		return err
	}
	m.entries[alias] = key
	return nil
}

func (m *Memory) GetKey(alias string) (*Key, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key, ok := m.entries[alias]
	if !ok {
		return nil, ErrNotFound
	}
	return key, nil
}

// CreateCalls returns how many times CreateEntry has been called
func (m *Memory) CreateCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createCalls
}
