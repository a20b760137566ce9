// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/pdiddy/kbforge/pkg/types"
)

// Registry runs named extraction routines. The coordinator treats each
// routine as opaque: it may return an error or panic.
type Registry interface {
	// Names returns every routine the registry knows, in a stable order.
	Names() []string

	// Run executes the named routine against text with its config slice.
	Run(ctx context.Context, name, text string, cfg map[string]any) (*types.ExtractionResult, error)
}

// Func is an extraction routine.
type Func func(ctx context.Context, text string, cfg map[string]any) (*types.ExtractionResult, error)

// FuncRegistry is a Registry backed by a map of Funcs.
type FuncRegistry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewFuncRegistry creates an empty registry.
func NewFuncRegistry() *FuncRegistry {
	return &FuncRegistry{funcs: make(map[string]Func)}
}

// Register adds or replaces the routine under name.
func (r *FuncRegistry) Register(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

// Names returns registered names sorted lexicographically.
func (r *FuncRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes the routine registered under name.
func (r *FuncRegistry) Run(ctx context.Context, name, text string, cfg map[string]any) (*types.ExtractionResult, error) {
	r.mu.RLock()
	fn, ok := r.funcs[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown extractor %q", name)
	}
	return fn(ctx, text, cfg)
}
