// internal/settings/store.go
package settings

import (
	"fmt"
	"os"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"
)

// Store is a source of polling parameters.
type Store interface {
	Load() (Params, error)
}

// FileStore reads Params from a YAML file on every Load,
// so edits to the file take effect on the next refresh.
type FileStore struct {
	Path string
}

func (s FileStore) Load() (Params, error) {
	b, err := os.ReadFile(s.Path)
	if err != nil {
		return Params{}, fmt.Errorf("settings: read %s: %w", s.Path, err)
	}
	var p Params
	if err := yaml.Unmarshal(b, &p); err != nil {
		return Params{}, fmt.Errorf("settings: parse %s: %w", s.Path, err)
	}
	return p, nil
}

// MemoryStore holds Params set at runtime, e.g. from the bus.
type MemoryStore struct {
	mu sync.Mutex
	p  Params
}

// NewMemoryStore returns a store seeded with p.
func NewMemoryStore(p Params) *MemoryStore {
	return &MemoryStore{p: clone(p)}
}

func (s *MemoryStore) Load() (Params, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.p), nil
}

// Set replaces the stored Params after validating them.
func (s *MemoryStore) Set(p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.p = clone(p)
	s.mu.Unlock()
	return nil
}

// Update applies f to a copy of the stored Params and stores the result
// if it validates. The read, change and write happen under one lock.
func (s *MemoryStore) Update(f func(*Params)) (Params, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := clone(s.p)
	f(&p)
	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	s.p = clone(p)
	return clone(p), nil
}

func clone(p Params) Params {
	p.AnalogPins = slices.Clone(p.AnalogPins)
	p.DigitalPins = slices.Clone(p.DigitalPins)
	return p
}
