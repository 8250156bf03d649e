package agent

import (
	"fmt"
	"sort"
	"strings"

	"github.com/caspar0/caspar/internal/knowledge"
)

// Response wording is deterministic. The model routes; it does not write
// customer-facing text, so an outage or a jailbreak in the model cannot
// change what the customer is told.

// answerText composes a reply from retrieved passages, best match first.
func answerText(passages []knowledge.Passage) string {
	var b strings.Builder
	b.WriteString(passages[0].Text)
	if len(passages) > 1 {
		b.WriteString("\n\nThis may also help:")
		for _, p := range passages[1:] {
			b.WriteString("\n- ")
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// clarifyText varies the phrasing by how many clarifications came before, so
// the customer is not asked the identical question twice.
func clarifyText(priorClarifies int) string {
	switch priorClarifies {
	case 0:
		return "I want to make sure I get this right. Could you tell me a bit more about what you need?"
	case 1:
		return "Sorry, I still don't quite follow. Could you rephrase that, or mention an order number if you have one?"
	default:
		return "I'm having trouble pinning this down. Could you describe the problem in one sentence, for example \"where is order TF-10234\"?"
	}
}

// toolSuccessText renders a tool's output as customer-facing text.
func toolSuccessText(tool string, output map[string]any) string {
	switch tool {
	case "order_lookup":
		return orderText(output)
	case "create_ticket":
		if id, ok := output["ticket_id"].(string); ok {
			return fmt.Sprintf("I've filed support ticket %s for you. You'll get updates by email.", id)
		}
	case "account_info":
		if name, ok := output["name"].(string); ok {
			return fmt.Sprintf("Here's what I have on file for %s:\n%s", name, renderFields(output))
		}
	}
	return "Done. Here's what I found:\n" + renderFields(output)
}

func orderText(output map[string]any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Order %v is %v.", output["order_id"], output["status"])
	if eta, ok := output["estimated_delivery"]; ok {
		fmt.Fprintf(&b, " Estimated delivery: %v.", eta)
	}
	if carrier, ok := output["carrier"]; ok {
		fmt.Fprintf(&b, " Shipped via %v.", carrier)
	}
	return b.String()
}

// renderFields lists output fields in stable order.
func renderFields(output map[string]any) string {
	keys := make([]string, 0, len(output))
	for k := range output {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "- %s: %v\n", k, output[k])
	}
	return strings.TrimRight(b.String(), "\n")
}

func toolFailureText(tool string) string {
	switch tool {
	case "order_lookup":
		return "I couldn't look up that order just now. Please double-check the order number, or I can connect you with a colleague."
	case "create_ticket":
		return "I wasn't able to file a ticket just now."
	}
	return "That operation didn't go through. Let me know if you'd like me to try something else."
}

// escalationText tells the customer they are being handed to a human.
func escalationText(position, waitMinutes int) string {
	return "I'm connecting you with a human agent. " + placeText(position, waitMinutes)
}

// queueStatusText answers a customer who writes while already in the queue.
func queueStatusText(position, waitMinutes int) string {
	return "Thanks for your patience, you're still in line for a human agent. " +
		placeText(position, waitMinutes)
}

func placeText(position, waitMinutes int) string {
	if position <= 0 {
		return "An agent is on it and will reply here."
	}
	if waitMinutes <= 0 {
		return fmt.Sprintf("You're number %d in the queue; an agent will be with you shortly.", position)
	}
	return fmt.Sprintf("You're number %d in the queue, estimated wait about %d minutes.",
		position, waitMinutes)
}

// resolutionText records the human agent's resolution in the transcript.
func resolutionText(agentID, note string) string {
	if note == "" {
		return fmt.Sprintf("Agent %s has resolved this case.", agentID)
	}
	return fmt.Sprintf("Agent %s has resolved this case: %s", agentID, note)
}
