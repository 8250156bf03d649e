package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/caspar0/caspar/internal/log"
)

// Registry holds the tools available to the agent.
//
// Registry is safe for concurrent use by multiple goroutines.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]*Tool
	logger log.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger log.Logger) *Registry {
	return &Registry{
		tools:  make(map[string]*Tool),
		logger: logger,
	}
}

// NewDefaultRegistry creates a registry with the standard customer-service
// tools: order_lookup, create_ticket, account_info.
func NewDefaultRegistry(logger log.Logger) (*Registry, error) {
	r := NewRegistry(logger)

	orderLookup, err := NewOrderLookup()
	if err != nil {
		return nil, err
	}
	createTicket, err := NewCreateTicket()
	if err != nil {
		return nil, err
	}
	accountInfo, err := NewAccountInfo()
	if err != nil {
		return nil, err
	}

	for _, t := range []*Tool{orderLookup, createTicket, accountInfo} {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a tool. Duplicate names are rejected.
func (r *Registry) Register(t *Tool) error {
	if t == nil {
		return fmt.Errorf("tool is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[t.name]; ok {
		return fmt.Errorf("tool %q already registered", t.name)
	}
	r.tools[t.name] = t
	r.logger.Debug("tool registered", "tool", t.name,
		"retry_safe", t.retrySafe, "business_critical", t.businessCritical)
	return nil
}

// Get returns the named tool. ErrUnknownTool if absent.
func (r *Registry) Get(name string) (*Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	return t, nil
}

// Names returns the registered tool names in sorted order.
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

// Validate checks args against the named tool's schema without invoking it.
func (r *Registry) Validate(name string, args map[string]any) error {
	t, err := r.Get(name)
	if err != nil {
		return err
	}
	return t.Validate(args)
}

// Execute runs the named tool.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	t, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return t.Execute(ctx, args)
}
