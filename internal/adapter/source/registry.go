// Package source implements per-tribunal gazette adapters and the registry
// that resolves them by source code.
package source

import (
	"sort"
	"sync"
	"time"

	"gazeta/internal/domain"
)

// Adapter bundles the capability set for one gazette source.
type Adapter struct {
	Code       string
	Discovery  domain.Discovery
	Downloader domain.Downloader
	Analyzer   domain.Analyzer
}

// CreateDiario builds a pending gazette entity for the given edition date.
// Only URL construction happens here; no network I/O.
func (a *Adapter) CreateDiario(date time.Time) (*domain.Diario, error) {
	url, err := a.Discovery.URLForDate(date)
	if err != nil {
		return nil, err
	}
	return domain.NewDiario(a.Code, date, url), nil
}

// Factory produces the adapter for one source code.
type Factory func() *Adapter

// Registry is the process-wide mapping from source code to adapter
// factory. Built-ins are registered at startup; additional sources may be
// registered at runtime. Registering an existing code overwrites it.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds or replaces the factory for a source code.
func (r *Registry) Register(code string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[code] = factory
}

// Get resolves the adapter for a source code. An unregistered code yields
// an UnknownSourceError, never a panic.
func (r *Registry) Get(code string) (*Adapter, error) {
	r.mu.RLock()
	factory, ok := r.factories[code]
	r.mu.RUnlock()
	if !ok {
		return nil, &domain.UnknownSourceError{Code: code}
	}
	return factory(), nil
}

// SupportedCodes returns the registered source codes, sorted.
func (r *Registry) SupportedCodes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	codes := make([]string, 0, len(r.factories))
	for code := range r.factories {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
