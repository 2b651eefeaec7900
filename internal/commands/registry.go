// Package commands implements the "/command" surface: a registry of
// command definitions plus the dispatcher that routes an inbound
// transport.Context to either a registered command or the Turn Engine as
// a plain conversational prompt. Grounded on
// pkg/connector/commandregistry/registry.go's map+alias+mutex shape,
// adapted away from mautrix's commands.FullHandler/commands.Event since
// this bridge has its own transport.Context abstraction.
package commands

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/megobari/megobari/internal/transport"
)

// HandlerFunc runs one command invocation. args is the command line split
// on whitespace with the leading "/name" removed.
type HandlerFunc func(ctx context.Context, tc transport.Context, args []string) error

// Definition describes one registered command.
type Definition struct {
	Name        string
	Aliases     []string
	Args        string // usage string, e.g. "<name> <prompt>"
	Description string
	Section     string
	Handler     HandlerFunc
}

// Registry collects command Definitions by name and alias.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]Definition
	aliases  map[string]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[string]Definition),
		aliases:  make(map[string]string),
	}
}

// Register adds a command definition. A later call with the same Name
// replaces the earlier one.
func (r *Registry) Register(def Definition) {
	if def.Name == "" || def.Handler == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[def.Name] = def
	for _, alias := range def.Aliases {
		r.aliases[alias] = def.Name
	}
}

// Get retrieves a Definition by name or alias.
func (r *Registry) Get(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if canonical, ok := r.aliases[name]; ok {
		name = canonical
	}
	def, ok := r.commands[name]
	return def, ok
}

// All returns every Definition, sorted by name.
func (r *Registry) All() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.commands))
	for _, def := range r.commands {
		out = append(out, def)
	}
	slices.SortFunc(out, func(a, b Definition) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return out
}
