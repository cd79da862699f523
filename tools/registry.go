// Tool management and registration.
//
// Information Hiding:
// - Tool storage and lookup implementation hidden
// - Tool lifecycle management hidden
// - Registration and discovery mechanisms abstracted

package tools

import (
	"fmt"
	"sort"
	"sync"

	"github.com/richinex/inkwell/llm"
)

// Registry manages available tools with dynamic registration.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string // registration order, for a stable wire catalog
}

// NewRegistry creates a new empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register adds a new tool to the registry.
// Returns error if a tool with the same name already exists.
func (r *Registry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := tool.Metadata().Name
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool '%s' already registered", name)
	}
	r.tools[name] = tool
	r.order = append(r.order, name)
	return nil
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, exists := r.tools[name]
	return tool, exists
}

// Has checks if a tool exists in the registry.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.tools[name]
	return exists
}

// Names returns all registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns metadata for all registered tools in registration order.
func (r *Registry) List() []ToolMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	metadata := make([]ToolMetadata, 0, len(r.order))
	for _, name := range r.order {
		metadata = append(metadata, r.tools[name].Metadata())
	}
	return metadata
}

// Definitions returns the JSON-schema tool catalog sent to the model, in
// registration order.
func (r *Registry) Definitions() []llm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]llm.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Metadata().Definition())
	}
	return defs
}

// Default limits for the writing tool catalog.
const (
	// DefaultMaxFileSize bounds manuscript files handled by the file tools.
	DefaultMaxFileSize = 4 * 1024 * 1024
)

// WritingCatalog returns the writing tool set, confined to the given
// workspace directory. An empty workdir disables path confinement.
func WritingCatalog(workdir string) []Tool {
	var allowed []string
	if workdir != "" {
		allowed = []string{workdir}
	}

	return []Tool{
		NewWriteFileTool(DefaultMaxFileSize).WithAllowedPaths(allowed),
		NewReadFileTool(DefaultMaxFileSize).WithAllowedPaths(allowed),
		NewAppendFileTool(DefaultMaxFileSize).WithAllowedPaths(allowed),
		NewListFilesTool().WithAllowedPaths(allowed),
	}
}

// WithDefaults creates a registry with the writing tool catalog, confined to
// the given workspace directory.
func WithDefaults(workdir string) (*Registry, error) {
	registry := NewRegistry()

	for _, t := range WritingCatalog(workdir) {
		if err := registry.Register(t); err != nil {
			return nil, fmt.Errorf("failed to register default tools: %w", err)
		}
	}

	return registry, nil
}
