package tools

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// CreateTicketInput is the create_ticket argument schema.
type CreateTicketInput struct {
	ConversationID string `json:"conversation_id" jsonschema:"Conversation the ticket belongs to"`
	CustomerRef    string `json:"customer_ref,omitempty" jsonschema:"Customer reference the ticket is filed for"`
	Category       string `json:"category" jsonschema:"Ticket category such as billing or shipping or complaint"`
	Summary        string `json:"summary" jsonschema:"One-line summary of the issue"`
}

// ticketDesk issues support tickets with a per-(conversation, category)
// dedup key: creating the same ticket twice returns the original instead of
// opening a duplicate. The dedup key makes retries of a COMPLETED create
// harmless, but an interrupted create may or may not have registered the
// key, so the tool is still not marked retry-safe.
type ticketDesk struct {
	mu      sync.Mutex
	tickets map[string]string // dedup key -> ticket ID
}

func dedupKey(conversationID, category string) string {
	return conversationID + "|" + strings.ToLower(strings.TrimSpace(category))
}

// create returns the ticket ID and whether it already existed.
func (d *ticketDesk) create(conversationID, category string) (string, bool) {
	key := dedupKey(conversationID, category)
	d.mu.Lock()
	defer d.mu.Unlock()
	if id, ok := d.tickets[key]; ok {
		return id, true
	}
	id := NewTicketID()
	d.tickets[key] = id
	return id, false
}

// NewTicketID generates a ticket identifier of the form TKT-XXXXXXXX.
func NewTicketID() string {
	return "TKT-" + strings.ToUpper(uuid.NewString()[:8])
}

// NewCreateTicket creates the create_ticket tool.
//
// NOT retry-safe: an interrupted create may have opened the ticket already.
// Business-critical: if the customer's issue cannot even be ticketed, a
// human has to take over.
func NewCreateTicket() (*Tool, error) {
	desk := &ticketDesk{tickets: make(map[string]string)}

	return New[CreateTicketInput](
		"create_ticket",
		"Open a support ticket for the customer's issue. Duplicate requests for the same conversation and category return the existing ticket.",
		Options{RetrySafe: false, BusinessCritical: true},
		func(_ context.Context, in CreateTicketInput) (map[string]any, error) {
			if strings.TrimSpace(in.ConversationID) == "" {
				return nil, Errorf("create_ticket", KindInvalidArgs, "conversation_id is required")
			}
			if strings.TrimSpace(in.Category) == "" {
				return nil, Errorf("create_ticket", KindInvalidArgs, "category is required")
			}

			id, existed := desk.create(in.ConversationID, in.Category)
			out := map[string]any{
				"ticket_id": id,
				"category":  strings.ToLower(strings.TrimSpace(in.Category)),
				"summary":   in.Summary,
				"existing":  existed,
			}
			if in.CustomerRef != "" {
				out["customer_ref"] = in.CustomerRef
			}
			return out, nil
		},
	)
}
