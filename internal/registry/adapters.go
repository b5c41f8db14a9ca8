package registry

import (
	"fmt"
	"sync"

	"github.com/harborline/checkout-engine/pkg/enums"
)

// AdapterRegistry maps (kind, code) to a concrete adapter implementation.
// It is populated at startup and read-only afterwards; consumers type-assert
// the returned value to their adapter interface.
type AdapterRegistry struct {
	mu      sync.RWMutex
	entries map[adapterKey]any
}

type adapterKey struct {
	kind enums.ModuleKind
	code string
}

// NewAdapterRegistry returns an empty adapter registry.
func NewAdapterRegistry() *AdapterRegistry {
	return &AdapterRegistry{entries: make(map[adapterKey]any)}
}

// Register binds an adapter to (kind, code). Duplicate registrations are a
// startup bug and return an error.
func (r *AdapterRegistry) Register(kind enums.ModuleKind, code string, adapter any) error {
	if !kind.IsValid() {
		return fmt.Errorf("invalid module kind %q", kind)
	}
	if code == "" {
		return fmt.Errorf("adapter code is required")
	}
	if adapter == nil {
		return fmt.Errorf("adapter for %s/%s is nil", kind, code)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	key := adapterKey{kind: kind, code: code}
	if _, exists := r.entries[key]; exists {
		return fmt.Errorf("adapter already registered for %s/%s", kind, code)
	}
	r.entries[key] = adapter
	return nil
}

// Lookup returns the adapter bound to (kind, code), if any.
func (r *AdapterRegistry) Lookup(kind enums.ModuleKind, code string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.entries[adapterKey{kind: kind, code: code}]
	return adapter, ok
}
