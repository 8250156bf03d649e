// Package tools implements the business tool registry: order lookup, ticket
// creation, and account info. Each tool declares a JSON schema for its
// arguments (derived from its input struct via google/jsonschema-go), a
// retry-safety flag, and a business-criticality flag. The agent validates
// arguments against the schema BEFORE invoking a tool; a mismatch never
// reaches the tool function.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// Tool is a registered business operation.
type Tool struct {
	name        string
	description string

	// retrySafe marks tools whose invocation can be repeated without
	// side effects. Non-retry-safe tools are never blindly retried.
	retrySafe bool

	// businessCritical marks tools whose permanent failure escalates the
	// conversation instead of just being reported.
	businessCritical bool

	schema   *jsonschema.Schema
	resolved *jsonschema.Resolved
	run      func(ctx context.Context, args map[string]any) (map[string]any, error)
}

// Options carries the per-tool flags for New.
type Options struct {
	RetrySafe        bool
	BusinessCritical bool
}

// New builds a Tool whose argument schema is inferred from In.
// The handler receives decoded arguments; schema validation has already
// happened by the time it runs.
func New[In any](name, description string, opts Options,
	handler func(ctx context.Context, in In) (map[string]any, error)) (*Tool, error) {

	schema, err := jsonschema.For[In](nil)
	if err != nil {
		return nil, fmt.Errorf("deriving schema for %s: %w", name, err)
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolving schema for %s: %w", name, err)
	}

	run := func(ctx context.Context, args map[string]any) (map[string]any, error) {
		// Round-trip through JSON to decode the untyped arguments into In.
		raw, err := json.Marshal(args)
		if err != nil {
			return nil, Errorf(name, KindInvalidArgs, "encoding arguments: %v", err)
		}
		var in In
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&in); err != nil {
			return nil, Errorf(name, KindInvalidArgs, "decoding arguments: %v", err)
		}
		return handler(ctx, in)
	}

	return &Tool{
		name:             name,
		description:      description,
		retrySafe:        opts.RetrySafe,
		businessCritical: opts.BusinessCritical,
		schema:           schema,
		resolved:         resolved,
		run:              run,
	}, nil
}

// Name returns the registry name of the tool.
func (t *Tool) Name() string { return t.name }

// Description returns the human-readable tool description.
func (t *Tool) Description() string { return t.description }

// RetrySafe reports whether invocations may be repeated.
func (t *Tool) RetrySafe() bool { return t.retrySafe }

// BusinessCritical reports whether a permanent failure should escalate.
func (t *Tool) BusinessCritical() bool { return t.businessCritical }

// Schema returns the JSON schema for the tool's arguments.
func (t *Tool) Schema() *jsonschema.Schema { return t.schema }

// Validate checks args against the tool's input schema without invoking it.
// Returns a KindInvalidArgs error on mismatch.
func (t *Tool) Validate(args map[string]any) error {
	if err := t.resolved.Validate(args); err != nil {
		return Errorf(t.name, KindInvalidArgs, "schema validation: %v", err)
	}
	return nil
}

// Execute runs the tool. Callers are expected to Validate first; Execute
// validates again as a backstop.
func (t *Tool) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	if err := t.Validate(args); err != nil {
		return nil, err
	}
	return t.run(ctx, args)
}
