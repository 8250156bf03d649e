package agent

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/caspar0/caspar/internal/conversation"
	"github.com/caspar0/caspar/internal/handoff"
)

// escalate hands the conversation to the handoff queue: it files a support
// ticket, builds the context package from the current transcript, enqueues a
// case, marks the conversation awaiting a human, and tells the customer where
// they stand in line.
//
// Escalating an already-escalated conversation reuses the existing open case.
func (a *Agent) escalate(ctx context.Context, id uuid.UUID,
	reason conversation.EscalationReason, note string) error {

	conv, err := a.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if conv.Status == conversation.StatusClosed {
		return fmt.Errorf("%w: %s", conversation.ErrClosed, id)
	}

	ticketID := a.fileTicket(ctx, conv, reason, note)

	pkg := handoff.BuildContext(conv, reason, a.now())
	c, err := a.queue.Enqueue(ctx, handoff.EnqueueRequest{
		ConversationID: conv.ID,
		CustomerRef:    conv.CustomerRef,
		TicketID:       ticketID,
		Trigger:        reason,
		Reason:         note,
		Context:        pkg,
	})
	if err != nil {
		return fmt.Errorf("enqueueing handoff case: %w", err)
	}

	if err := a.store.SetEscalation(ctx, id, c.ID); err != nil {
		return err
	}

	a.logger.Info("conversation escalated",
		"conversation", id, "case", c.ID, "reason", reason, "priority", c.Priority)

	notice := conversation.Turn{
		Role: conversation.RoleSystem,
		Text: escalationText(a.queuePlace(c.ID)),
	}
	return a.appendSystemTurn(ctx, id, notice)
}

// fileTicket creates a support ticket for the escalation. Ticket creation is
// best-effort here: a failure is logged and the case proceeds without one.
func (a *Agent) fileTicket(ctx context.Context, conv *conversation.Conversation,
	reason conversation.EscalationReason, note string) string {

	summary := note
	if summary == "" {
		summary = fmt.Sprintf("escalated: %s", reason)
	}
	out, err := a.registry.Execute(ctx, "create_ticket", map[string]any{
		"customer_ref":    conv.CustomerRef,
		"conversation_id": conv.ID.String(),
		"category":        string(reason),
		"summary":         summary,
	})
	if err != nil {
		a.logger.Warn("ticket creation failed during escalation",
			"conversation", conv.ID, "error", err)
		return ""
	}
	ticketID, _ := out["ticket_id"].(string)
	return ticketID
}

// appendQueueNotice records a queue status turn for a customer who wrote
// while awaiting a human.
func (a *Agent) appendQueueNotice(ctx context.Context, conv *conversation.Conversation) error {
	c, ok := a.queue.OpenCaseForConversation(conv.ID)
	if !ok {
		// Escalated status without an open case happens briefly around
		// resolution; fall back to a generic notice.
		return a.appendSystemTurn(ctx, conv.ID, conversation.Turn{
			Role: conversation.RoleSystem,
			Text: "A human agent will be with you shortly.",
		})
	}
	return a.appendSystemTurn(ctx, conv.ID, conversation.Turn{
		Role: conversation.RoleSystem,
		Text: queueStatusText(a.queuePlace(c.ID)),
	})
}

// queuePlace reads the case's position and estimated wait, tolerating races
// with claims and resolutions.
func (a *Agent) queuePlace(caseID string) (int, int) {
	pos, err := a.queue.Position(caseID)
	if err != nil {
		return 0, 0
	}
	wait, err := a.queue.EstimatedWait(caseID)
	if err != nil {
		return pos, 0
	}
	return pos, int(wait.Minutes())
}

// appendSystemTurn appends a system turn with the next sequence number.
func (a *Agent) appendSystemTurn(ctx context.Context, id uuid.UUID, turn conversation.Turn) error {
	conv, err := a.store.Get(ctx, id)
	if err != nil {
		return err
	}
	turn.Seq = conv.NextSeq()
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = a.now()
	}
	return a.store.AppendTurn(ctx, id, turn)
}

// ResolveCase applies a human agent's resolution: the case leaves the queue
// and the conversation either returns to the automated agent or closes.
func (a *Agent) ResolveCase(ctx context.Context, caseID, agentID string,
	outcome handoff.Outcome, note string) (*handoff.Case, error) {

	c, err := a.queue.Get(caseID)
	if err != nil {
		return nil, err
	}

	unlock := a.lock(c.ConversationID)
	defer unlock()

	resolved, err := a.queue.Resolve(ctx, caseID, agentID, outcome, note)
	if err != nil {
		return nil, err
	}

	switch outcome {
	case handoff.OutcomeResumed:
		if err := a.appendSystemTurn(ctx, c.ConversationID, conversation.Turn{
			Role: conversation.RoleSystem,
			Text: resolutionText(agentID, note),
		}); err != nil {
			return nil, err
		}
		if err := a.store.SetStatus(ctx, c.ConversationID, conversation.StatusActive); err != nil {
			return nil, err
		}

	case handoff.OutcomeClosed:
		if err := a.appendSystemTurn(ctx, c.ConversationID, conversation.Turn{
			Role: conversation.RoleSystem,
			Text: resolutionText(agentID, note),
		}); err != nil {
			return nil, err
		}
		if err := a.store.SetStatus(ctx, c.ConversationID, conversation.StatusClosed); err != nil {
			return nil, err
		}
	}

	a.logger.Info("handoff case resolved",
		"case", caseID, "conversation", c.ConversationID, "outcome", outcome)
	return resolved, nil
}
