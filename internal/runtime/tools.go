package runtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/felixgeelhaar/recall/internal/command"
)

var ErrRegistrySealed = errors.New("tool registry is sealed")

// ToolRegistry maps command tags to handlers. It is filled at startup and
// sealed before the first turn; after that the tag set is closed.
type ToolRegistry struct {
	mu       sync.RWMutex
	handlers map[string]command.Handler
	order    []string
	sealed   bool
}

func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		handlers: make(map[string]command.Handler),
	}
}

// Register adds h under its spec's tag.
func (tr *ToolRegistry) Register(h command.Handler) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if tr.sealed {
		return ErrRegistrySealed
	}
	tag := strings.ToLower(strings.TrimSpace(h.Spec().Tag))
	if tag == "" {
		return fmt.Errorf("tool has no tag")
	}
	if strings.Contains(tag, command.Open) || strings.Contains(tag, command.Close) {
		return fmt.Errorf("tool tag %q contains a delimiter", tag)
	}
	if _, exists := tr.handlers[tag]; exists {
		return fmt.Errorf("tool %q already registered", tag)
	}
	tr.handlers[tag] = h
	tr.order = append(tr.order, tag)
	return nil
}

// Seal closes the registry to further registration.
func (tr *ToolRegistry) Seal() {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.sealed = true
}

func (tr *ToolRegistry) Sealed() bool {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return tr.sealed
}

func (tr *ToolRegistry) Lookup(tag string) (command.Handler, bool) {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	h, ok := tr.handlers[strings.ToLower(tag)]
	return h, ok
}

// Specs returns every handler's spec in registration order.
func (tr *ToolRegistry) Specs() []command.Spec {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	specs := make([]command.Spec, 0, len(tr.order))
	for _, tag := range tr.order {
		specs = append(specs, tr.handlers[tag].Spec())
	}
	return specs
}

func (tr *ToolRegistry) Count() int {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return len(tr.handlers)
}

// Execute resolves inv's tag, applies the handler's defaults and required
// arguments, and runs it. The spec is returned so the caller knows whether
// the result is ephemeral.
func (tr *ToolRegistry) Execute(ctx context.Context, inv *command.Invocation) (string, command.Spec, error) {
	h, ok := tr.Lookup(inv.Tag)
	if !ok {
		return "", command.Spec{}, fmt.Errorf("%w: %s", command.ErrUnknownTag, inv.Tag)
	}
	spec := h.Spec()
	if err := spec.Prepare(inv); err != nil {
		return "", spec, err
	}
	out, err := h.Handle(ctx, inv)
	return out, spec, err
}
