package handoff

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/caspar0/caspar/internal/conversation"
)

// ContextPackage is the briefing handed to the human agent with a case.
// It is built once at escalation time from a snapshot of the conversation
// and never mutated afterwards, so later turns (customer messages arriving
// while the case waits in the queue) do not alter what was handed over.
type ContextPackage struct {
	ConversationID   uuid.UUID                     `json:"conversation_id"`
	CustomerRef      string                        `json:"customer_ref"`
	Trigger          conversation.EscalationReason `json:"trigger"`
	Transcript       []conversation.Turn           `json:"transcript"`
	Summary          string                        `json:"summary"`
	FrustrationTrend []float64                     `json:"frustration_trend,omitempty"`
	AttemptedTools   []conversation.ToolResult     `json:"attempted_tools,omitempty"`
	SuggestedActions []string                      `json:"suggested_actions,omitempty"`
	PackagedAt       time.Time                     `json:"packaged_at"`
}

// BuildContext assembles the context package from a conversation snapshot.
// conv must be a private copy (Store.Get already returns one).
func BuildContext(conv *conversation.Conversation, trigger conversation.EscalationReason, now time.Time) *ContextPackage {
	pkg := &ContextPackage{
		ConversationID: conv.ID,
		CustomerRef:    conv.CustomerRef,
		Trigger:        trigger,
		Transcript:     conv.Turns,
		PackagedAt:     now,
	}

	for _, t := range conv.Turns {
		if t.Role == conversation.RoleCustomer && t.Score != nil {
			pkg.FrustrationTrend = append(pkg.FrustrationTrend, t.Score.Frustration)
		}
		if t.Tool != nil {
			pkg.AttemptedTools = append(pkg.AttemptedTools, *t.Tool)
		}
	}

	pkg.Summary = summarize(conv, trigger)
	pkg.SuggestedActions = suggestActions(conv, trigger, pkg.AttemptedTools)
	return pkg
}

// summarize produces a short deterministic briefing line. Wording for the
// customer comes from the LLM elsewhere; the briefing for the human agent
// must not depend on model availability.
func summarize(conv *conversation.Conversation, trigger conversation.EscalationReason) string {
	last := ""
	for i := len(conv.Turns) - 1; i >= 0; i-- {
		if conv.Turns[i].Role == conversation.RoleCustomer {
			last = conv.Turns[i].Text
			break
		}
	}
	return fmt.Sprintf("Conversation with %s escalated (%s) after %d turns. Last customer message: %q",
		conv.CustomerRef, trigger, len(conv.Turns), truncate(last, 140))
}

// suggestActions derives next steps for the human agent from the trigger and
// what the automated agent already tried.
func suggestActions(conv *conversation.Conversation, trigger conversation.EscalationReason,
	attempted []conversation.ToolResult) []string {

	var actions []string
	switch trigger {
	case conversation.ReasonSensitiveTopic:
		actions = append(actions,
			"Review the flagged terms in the transcript before responding",
			"Follow the legal/safety escalation checklist")
	case conversation.ReasonFrustrationThreshold:
		actions = append(actions,
			"Acknowledge the customer's frustration before troubleshooting",
			"Consider a goodwill gesture per the retention policy")
	case conversation.ReasonToolFailure:
		actions = append(actions,
			"Retry the failed operation manually from the back office")
	case conversation.ReasonClarifyLoop:
		actions = append(actions,
			"The customer's intent was unclear to the agent; ask one open question")
	case conversation.ReasonMaxTurns:
		actions = append(actions,
			"Long conversation; read the summary and skim the transcript tail")
	}

	for _, tr := range attempted {
		if !tr.Success {
			actions = append(actions, fmt.Sprintf("Check %s (failed: %s)", tr.Tool, tr.ErrorKind))
		}
	}

	if conv.Escalated && conv.CaseID != "" {
		actions = append(actions, "Customer has a prior escalation in this conversation")
	}
	return actions
}

// truncate cuts s to at most n bytes, backing up to a rune boundary so a
// multibyte character is never split.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "…"
}
