package tools

import (
	"context"
	"strings"
)

// OrderLookupInput is the order_lookup argument schema.
type OrderLookupInput struct {
	OrderID string `json:"order_id" jsonschema:"Order identifier such as TF-10001 or a bare order number"`
	// CustomerRef scopes the lookup; a mismatch is rejected as unauthorized.
	CustomerRef string `json:"customer_ref,omitempty" jsonschema:"Customer reference the order must belong to"`
}

// order is a row in the demo order book.
type order struct {
	ID          string
	CustomerRef string
	Status      string
	Items       []string
	ETA         string
	Carrier     string
}

// orderBook is the deterministic demo dataset. IDs start at TF-10001 and
// cycle through the shipping statuses so every state is reachable in tests.
var orderBook = map[string]order{
	"TF-10001": {
		ID: "TF-10001", CustomerRef: "CUST-1000", Status: "processing",
		Items: []string{"wireless earbuds"}, ETA: "2026-09-03",
	},
	"TF-10002": {
		ID: "TF-10002", CustomerRef: "CUST-1001", Status: "shipped",
		Items: []string{"mechanical keyboard", "usb-c hub"}, ETA: "2026-09-01", Carrier: "DHL",
	},
	"TF-10003": {
		ID: "TF-10003", CustomerRef: "CUST-1002", Status: "delivered",
		Items: []string{"standing desk"}, ETA: "2026-08-25", Carrier: "UPS",
	},
	"TF-10004": {
		ID: "TF-10004", CustomerRef: "CUST-1003", Status: "delayed",
		Items: []string{"monitor arm"}, ETA: "2026-09-10", Carrier: "FedEx",
	},
	"TF-10005": {
		ID: "TF-10005", CustomerRef: "CUST-1004", Status: "returned",
		Items: []string{"webcam"}, ETA: "",
	},
}

// NewOrderLookup creates the order_lookup tool.
//
// Retry-safe: a read has no side effects. Not business-critical: a failed
// lookup is reported to the customer, not escalated.
func NewOrderLookup() (*Tool, error) {
	return New[OrderLookupInput](
		"order_lookup",
		"Look up the status, items, and delivery estimate of a customer order by its order ID.",
		Options{RetrySafe: true},
		lookupOrder,
	)
}

func lookupOrder(_ context.Context, in OrderLookupInput) (map[string]any, error) {
	id := NormalizeOrderID(in.OrderID)
	if id == "" {
		return nil, Errorf("order_lookup", KindInvalidArgs, "order_id is required")
	}

	o, ok := orderBook[id]
	if !ok {
		return nil, Errorf("order_lookup", KindNotFound, "order %s not found", id)
	}
	if in.CustomerRef != "" && !strings.EqualFold(in.CustomerRef, o.CustomerRef) {
		return nil, Errorf("order_lookup", KindUnauthorized,
			"order %s does not belong to %s", id, in.CustomerRef)
	}

	out := map[string]any{
		"order_id": o.ID,
		"status":   o.Status,
		"items":    o.Items,
	}
	if o.ETA != "" {
		out["estimated_delivery"] = o.ETA
	}
	if o.Carrier != "" {
		out["carrier"] = o.Carrier
	}
	return out, nil
}

// NormalizeOrderID maps customer-typed variants onto the canonical TF-NNNNN
// form: "tf-10001", "TF10001", and "10001" all become "TF-10001".
func NormalizeOrderID(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}
	s = strings.TrimPrefix(s, "TF-")
	s = strings.TrimPrefix(s, "TF")
	s = strings.TrimPrefix(s, "#")
	if s == "" {
		return ""
	}
	return "TF-" + s
}
