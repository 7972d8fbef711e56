// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package climate

import (
	"context"
	"sync"

	"github.com/Thermoquad/mistral/pkg/fujitsu"
)

// Store persists the committed thermostat state
type Store interface {
	// Load returns the stored state; ok is false when nothing was stored yet
	Load(ctx context.Context) (s fujitsu.State, ok bool, err error)
	Save(ctx context.Context, s fujitsu.State) error
}

// MemoryStore keeps the state in memory
type MemoryStore struct {
	mu    sync.Mutex
	state fujitsu.State
	saved bool
	saves int
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(ctx context.Context) (fujitsu.State, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.saved, nil
}

func (m *MemoryStore) Save(ctx context.Context, s fujitsu.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
	m.saved = true
	m.saves++
	return nil
}

// Saves returns how many times Save was called
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
