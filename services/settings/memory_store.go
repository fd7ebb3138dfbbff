// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package settings

import (
	"context"
	"sync"
)

// MemoryStore keeps settings in process memory, for tests and for
// embedders that do not persist settings.
type MemoryStore struct {
	mu sync.RWMutex
	s  Settings
}

// NewMemoryStore returns a store seeded with initial (defaults applied).
func NewMemoryStore(initial Settings) *MemoryStore {
	return &MemoryStore{s: initial.WithDefaults()}
}

// Load returns the current settings.
func (m *MemoryStore) Load(ctx context.Context) (Settings, error) {
	if err := ctx.Err(); err != nil {
		return Settings{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s, nil
}

// Save validates and replaces the current settings.
func (m *MemoryStore) Save(ctx context.Context, s Settings) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s = s.WithDefaults()
	if err := s.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.s = s
	m.mu.Unlock()
	return nil
}

var _ Store = (*MemoryStore)(nil)
