package tools

import (
	"context"
	"strings"
	"testing"
)

func TestCreateTicket_DedupByConversationAndCategory(t *testing.T) {
	tool, err := NewCreateTicket()
	if err != nil {
		t.Fatalf("NewCreateTicket() error: %v", err)
	}
	ctx := context.Background()

	args := map[string]any{
		"conversation_id": "conv-1",
		"category":        "billing",
		"summary":         "charged twice",
	}

	first, err := tool.Execute(ctx, args)
	if err != nil {
		t.Fatalf("first Execute() error: %v", err)
	}
	if first["existing"] != false {
		t.Error("first create should not be marked existing")
	}

	second, err := tool.Execute(ctx, args)
	if err != nil {
		t.Fatalf("second Execute() error: %v", err)
	}
	if second["ticket_id"] != first["ticket_id"] {
		t.Errorf("dedup failed: %v vs %v", second["ticket_id"], first["ticket_id"])
	}
	if second["existing"] != true {
		t.Error("second create should be marked existing")
	}

	// Different category opens a fresh ticket.
	other, err := tool.Execute(ctx, map[string]any{
		"conversation_id": "conv-1",
		"category":        "shipping",
		"summary":         "late delivery",
	})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if other["ticket_id"] == first["ticket_id"] {
		t.Error("different category should not dedup")
	}
}

func TestCreateTicket_RequiresFields(t *testing.T) {
	tool, err := NewCreateTicket()
	if err != nil {
		t.Fatalf("NewCreateTicket() error: %v", err)
	}
	ctx := context.Background()

	_, err = tool.Execute(ctx, map[string]any{
		"conversation_id": "  ",
		"category":        "billing",
		"summary":         "x",
	})
	if KindOf(err) != KindInvalidArgs {
		t.Errorf("KindOf() = %q, want invalid_args", KindOf(err))
	}
}

func TestNewTicketID_Format(t *testing.T) {
	id := NewTicketID()
	if !strings.HasPrefix(id, "TKT-") || len(id) != len("TKT-")+8 {
		t.Errorf("NewTicketID() = %q, want TKT-XXXXXXXX", id)
	}
	if id != strings.ToUpper(id) {
		t.Errorf("NewTicketID() = %q, want uppercase", id)
	}
}
