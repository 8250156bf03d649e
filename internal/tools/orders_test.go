package tools

import (
	"context"
	"testing"
)

func TestNormalizeOrderID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"TF-10001", "TF-10001"},
		{"tf-10001", "TF-10001"},
		{"TF10001", "TF-10001"},
		{"10001", "TF-10001"},
		{"#10001", "TF-10001"},
		{"  tf-10002  ", "TF-10002"},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		if got := NormalizeOrderID(tt.in); got != tt.want {
			t.Errorf("NormalizeOrderID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestOrderLookup_Execute(t *testing.T) {
	tool, err := NewOrderLookup()
	if err != nil {
		t.Fatalf("NewOrderLookup() error: %v", err)
	}
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		out, err := tool.Execute(ctx, map[string]any{"order_id": "10002"})
		if err != nil {
			t.Fatalf("Execute() error: %v", err)
		}
		if out["order_id"] != "TF-10002" || out["status"] != "shipped" {
			t.Errorf("Execute() = %v", out)
		}
	})

	t.Run("not found is permanent", func(t *testing.T) {
		_, err := tool.Execute(ctx, map[string]any{"order_id": "TF-99999"})
		if KindOf(err) != KindNotFound {
			t.Errorf("KindOf() = %q, want not_found", KindOf(err))
		}
	})

	t.Run("customer mismatch is unauthorized", func(t *testing.T) {
		_, err := tool.Execute(ctx, map[string]any{
			"order_id":     "TF-10002",
			"customer_ref": "CUST-1000",
		})
		if KindOf(err) != KindUnauthorized {
			t.Errorf("KindOf() = %q, want unauthorized", KindOf(err))
		}
	})

	t.Run("matching customer passes", func(t *testing.T) {
		_, err := tool.Execute(ctx, map[string]any{
			"order_id":     "TF-10002",
			"customer_ref": "CUST-1001",
		})
		if err != nil {
			t.Errorf("Execute() error: %v", err)
		}
	})
}

func TestAccountInfo_Execute(t *testing.T) {
	tool, err := NewAccountInfo()
	if err != nil {
		t.Fatalf("NewAccountInfo() error: %v", err)
	}
	ctx := context.Background()

	out, err := tool.Execute(ctx, map[string]any{"customer_ref": "cust-1003"})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if out["tier"] != "platinum" {
		t.Errorf("tier = %v, want platinum", out["tier"])
	}

	_, err = tool.Execute(ctx, map[string]any{"customer_ref": "CUST-9999"})
	if KindOf(err) != KindNotFound {
		t.Errorf("KindOf() = %q, want not_found", KindOf(err))
	}
}

func TestCustomerTier(t *testing.T) {
	tier, ok := CustomerTier("CUST-1002")
	if !ok || tier != TierGold {
		t.Errorf("CustomerTier(CUST-1002) = %v, %v", tier, ok)
	}
	if !tier.VIP() {
		t.Error("gold should be VIP")
	}
	if _, ok := CustomerTier("CUST-0000"); ok {
		t.Error("unknown customer should not resolve")
	}
	if TierBronze.VIP() {
		t.Error("bronze should not be VIP")
	}
}
