package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/caspar0/caspar/internal/log"
)

func defaultRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewDefaultRegistry(log.NewNop())
	if err != nil {
		t.Fatalf("NewDefaultRegistry() error: %v", err)
	}
	return r
}

func TestRegistry_Names(t *testing.T) {
	r := defaultRegistry(t)
	want := []string{"account_info", "create_ticket", "order_lookup"}
	got := r.Names()
	if len(got) != len(want) {
		t.Fatalf("Names() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

// Schema derivation must succeed for every bundled tool and carry the field
// descriptions through to the schema the classifier prompt renders.
func TestDefaultTools_SchemaDescriptions(t *testing.T) {
	r := defaultRegistry(t)

	for _, name := range r.Names() {
		tool, err := r.Get(name)
		if err != nil {
			t.Fatalf("Get(%s) error: %v", name, err)
		}
		schema := tool.Schema()
		if schema == nil || len(schema.Properties) == 0 {
			t.Fatalf("%s: schema has no properties", name)
		}
		for prop, ps := range schema.Properties {
			if ps.Description == "" {
				t.Errorf("%s.%s: missing description", name, prop)
			}
		}
	}
}

func TestRegistry_UnknownTool(t *testing.T) {
	r := defaultRegistry(t)
	if err := r.Validate("refund_everything", nil); !errors.Is(err, ErrUnknownTool) {
		t.Errorf("Validate(unknown) = %v, want ErrUnknownTool", err)
	}
	if _, err := r.Execute(context.Background(), "refund_everything", nil); !errors.Is(err, ErrUnknownTool) {
		t.Errorf("Execute(unknown) = %v, want ErrUnknownTool", err)
	}
}

func TestRegistry_Validate_SchemaMismatch(t *testing.T) {
	r := defaultRegistry(t)

	tests := []struct {
		name string
		tool string
		args map[string]any
		ok   bool
	}{
		{"valid order lookup", "order_lookup", map[string]any{"order_id": "TF-10001"}, true},
		{"missing required field", "order_lookup", map[string]any{}, false},
		{"wrong type", "order_lookup", map[string]any{"order_id": 10001}, false},
		{"valid ticket", "create_ticket", map[string]any{
			"conversation_id": "c1", "category": "billing", "summary": "double charge",
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Validate(tt.tool, tt.args)
			if tt.ok && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
			if !tt.ok {
				if err == nil {
					t.Fatal("Validate() = nil, want invalid_args error")
				}
				if KindOf(err) != KindInvalidArgs {
					t.Errorf("KindOf(%v) = %q, want invalid_args", err, KindOf(err))
				}
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	if got := KindOf(Errorf("x", KindTransient, "boom")); got != KindTransient {
		t.Errorf("KindOf(transient) = %q", got)
	}
	if got := KindOf(errors.New("plain")); got != KindPermanent {
		t.Errorf("KindOf(plain) = %q, want permanent", got)
	}
}

func TestKind_Retryable(t *testing.T) {
	if !KindTransient.Retryable() {
		t.Error("transient should be retryable")
	}
	for _, k := range []Kind{KindPermanent, KindInvalidArgs, KindNotFound, KindUnauthorized} {
		if k.Retryable() {
			t.Errorf("%s should not be retryable", k)
		}
	}
}

func TestToolFlags(t *testing.T) {
	r := defaultRegistry(t)

	tests := []struct {
		tool             string
		retrySafe        bool
		businessCritical bool
	}{
		{"order_lookup", true, false},
		{"account_info", true, false},
		{"create_ticket", false, true},
	}
	for _, tt := range tests {
		tool, err := r.Get(tt.tool)
		if err != nil {
			t.Fatalf("Get(%s) error: %v", tt.tool, err)
		}
		if tool.RetrySafe() != tt.retrySafe {
			t.Errorf("%s.RetrySafe() = %v, want %v", tt.tool, tool.RetrySafe(), tt.retrySafe)
		}
		if tool.BusinessCritical() != tt.businessCritical {
			t.Errorf("%s.BusinessCritical() = %v, want %v", tt.tool, tool.BusinessCritical(), tt.businessCritical)
		}
	}
}
