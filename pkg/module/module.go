// Package module defines chat commands and the registry the gateway
// dispatches to.
package module

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"relaybot/pkg/i18n"
	"relaybot/pkg/session"
)

// Request is one invocation of a module.
type Request struct {
	Session *session.MessageSession
	// Args are the whitespace separated words after the module name.
	Args []string
	// Prefix is the command prefix the message used.
	Prefix string
}

// Arg returns the i-th argument or "".
func (r Request) Arg(i int) string {
	if i < 0 || i >= len(r.Args) {
		return ""
	}

	return r.Args[i]
}

// Locale returns the session locale, nil without one.
func (r Request) Locale() i18n.Locale {
	if r.Session == nil {
		return nil
	}

	return r.Session.Locale()
}

// Module is one named chat command.
type Module interface {
	Name() string
	Handle(ctx context.Context, req Request) error
}

// Validator is implemented by modules whose configuration can be checked
// before the first request.
type Validator interface {
	Validate() error
}

// ConfigError reports a module configured in a way that cannot work.
type ConfigError struct {
	Module string
	Detail string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("module %s: invalid configuration: %s", e.Module, e.Detail)
}

// Registry maps lowercase module names to modules.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]Module
}

// NewRegistry registers mods in order. Duplicate names are an error.
func NewRegistry(mods ...Module) (*Registry, error) {
	r := &Registry{modules: make(map[string]Module)}
	for _, mod := range mods {
		if err := r.Register(mod); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Register adds mod under its lowercase name. A Validator that reports an
// error is not registered.
func (r *Registry) Register(mod Module) error {
	name := strings.ToLower(strings.TrimSpace(mod.Name()))
	if name == "" {
		return fmt.Errorf("module name is required")
	}
	if v, ok := mod.(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("register %s: %w", name, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.modules[name]; exists {
		return fmt.Errorf("module %q already registered", name)
	}
	r.modules[name] = mod

	return nil
}

// Lookup finds a module case-insensitively.
func (r *Registry) Lookup(name string) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mod, ok := r.modules[strings.ToLower(name)]
	return mod, ok
}

// Names lists registered module names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// T resolves key against loc, or returns the key without a locale.
func T(loc i18n.Locale, key string, args map[string]any) string {
	if loc == nil {
		return key
	}

	return loc.T(key, args)
}
