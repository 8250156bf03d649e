package observability

import (
	"context"
	"testing"
)

func TestSetupDatadog(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"defaults", Config{}},
		{"custom host", Config{AgentHost: "custom-host:4318", Environment: "staging", ServiceName: "caspar-staging"}},
		{"agent unavailable", Config{AgentHost: "localhost:1", Environment: "test", ServiceName: "caspar-test"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			// Setup degrades gracefully when no agent is listening; spans
			// simply fail to export.
			shutdown, err := SetupDatadog(ctx, tt.cfg)
			if err != nil {
				t.Fatalf("SetupDatadog() error: %v", err)
			}
			if shutdown == nil {
				t.Fatal("SetupDatadog() returned nil shutdown")
			}
			if err := shutdown(ctx); err != nil {
				t.Errorf("shutdown() error: %v", err)
			}
		})
	}
}
