package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/caspar0/caspar/internal/conversation"
)

// Process handles one customer message and returns the conversation with the
// resulting turns appended.
//
// The customer turn is always recorded, even when the conversation is
// awaiting a human; in that state the response is a queue status notice
// instead of agent output.
func (a *Agent) Process(ctx context.Context, id uuid.UUID, message string) (*conversation.Conversation, error) {
	if message == "" {
		return nil, fmt.Errorf("message is required")
	}

	unlock := a.lock(id)
	defer unlock()

	conv, err := a.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv.Status == conversation.StatusClosed {
		return nil, fmt.Errorf("%w: %s", conversation.ErrClosed, id)
	}

	score := a.detector.Score(message, conv.Turns)

	customerTurn := conversation.Turn{
		Seq:       conv.NextSeq(),
		Role:      conversation.RoleCustomer,
		Text:      message,
		Score:     &score,
		CreatedAt: a.now(),
	}
	if err := a.store.AppendTurn(ctx, id, customerTurn); err != nil {
		return nil, err
	}

	if conv.Status == conversation.StatusAwaitingHuman {
		if err := a.appendQueueNotice(ctx, conv); err != nil {
			return nil, err
		}
		return a.store.Get(ctx, id)
	}

	if conv.CustomerTurns()+1 >= a.cfg.MaxConversationTurns {
		if err := a.escalate(ctx, id, conversation.ReasonMaxTurns,
			"conversation exceeded the turn limit"); err != nil {
			return nil, err
		}
		return a.store.Get(ctx, id)
	}

	// The classifier sees the transcript before the new message; the message
	// and its score arrive separately.
	decision := a.decider.Classify(ctx, conv, message, score)

	if err := a.act(ctx, conv, message, decision); err != nil {
		return nil, err
	}
	return a.store.Get(ctx, id)
}

// act executes the classifier's decision.
func (a *Agent) act(ctx context.Context, conv *conversation.Conversation,
	message string, decision conversation.Decision) error {

	switch decision.Action {
	case conversation.ActionAnswer:
		return a.answer(ctx, conv, message, decision)

	case conversation.ActionInvokeTool:
		return a.invokeTool(ctx, conv, decision)

	case conversation.ActionClarify:
		return a.clarify(ctx, conv, decision)

	case conversation.ActionEscalate:
		reason := decision.Reason
		if reason == "" {
			reason = conversation.ReasonModelDirected
		}
		return a.escalate(ctx, conv.ID, reason, "")

	default:
		a.logger.Warn("unknown action, treating as clarification",
			"conversation", conv.ID, "action", decision.Action)
		return a.clarify(ctx, conv, conversation.Decision{Action: conversation.ActionClarify})
	}
}

// answer retrieves knowledge passages and composes a grounded reply.
// Retrieval failure degrades to a clarification rather than a guess.
func (a *Agent) answer(ctx context.Context, conv *conversation.Conversation,
	message string, decision conversation.Decision) error {

	retrieveCtx, cancel := context.WithTimeout(ctx, a.cfg.RetrieveTimeout)
	passages, err := a.retriever.Retrieve(retrieveCtx, message, a.cfg.RetrievalK)
	cancel()
	if err != nil {
		a.logger.Warn("retrieval failed, asking for clarification",
			"conversation", conv.ID, "error", err)
		return a.clarify(ctx, conv, conversation.Decision{Action: conversation.ActionClarify})
	}
	if len(passages) == 0 {
		return a.clarify(ctx, conv, conversation.Decision{Action: conversation.ActionClarify})
	}

	refs := make([]conversation.PassageRef, len(passages))
	for i, p := range passages {
		refs[i] = conversation.PassageRef{ID: p.ID, Score: p.Score}
	}

	turn := conversation.Turn{
		Role:     conversation.RoleAgent,
		Text:     answerText(passages),
		Decision: &decision,
		Passages: refs,
	}
	return a.commitAgentTurn(ctx, conv.ID, turn)
}

// invokeTool validates arguments against the tool schema, then executes with
// the retry policy. A schema mismatch never reaches the tool.
func (a *Agent) invokeTool(ctx context.Context, conv *conversation.Conversation,
	decision conversation.Decision) error {

	tool, err := a.registry.Get(decision.Tool)
	if err != nil {
		a.logger.Warn("decision names unknown tool", "conversation", conv.ID, "tool", decision.Tool)
		return a.clarify(ctx, conv, conversation.Decision{Action: conversation.ActionClarify})
	}

	if err := tool.Validate(decision.Args); err != nil {
		a.logger.Info("tool arguments failed schema validation, asking for clarification",
			"conversation", conv.ID, "tool", decision.Tool, "error", err)
		return a.clarify(ctx, conv, conversation.Decision{Action: conversation.ActionClarify})
	}

	result := a.executeWithRetry(ctx, tool, decision.Args)

	if !result.Success {
		turn := conversation.Turn{
			Role:     conversation.RoleAgent,
			Text:     toolFailureText(tool.Name()),
			Decision: &decision,
			Tool:     &result,
		}
		if err := a.commitAgentTurn(ctx, conv.ID, turn); err != nil {
			return err
		}

		// The retry policy has already run its course; for business-critical
		// operations the remaining failure goes to a human.
		if tool.BusinessCritical() {
			return a.escalate(ctx, conv.ID, conversation.ReasonToolFailure,
				fmt.Sprintf("%s failed after %d attempts: %s",
					tool.Name(), result.Attempts, result.Error))
		}
		return nil
	}

	turn := conversation.Turn{
		Role:     conversation.RoleAgent,
		Text:     toolSuccessText(tool.Name(), result.Output),
		Decision: &decision,
		Tool:     &result,
	}
	return a.commitAgentTurn(ctx, conv.ID, turn)
}

// clarify appends a clarification turn, or escalates when the conversation
// is stuck in a clarification loop.
func (a *Agent) clarify(ctx context.Context, conv *conversation.Conversation,
	decision conversation.Decision) error {

	if conv.TrailingClarifies() >= a.cfg.MaxClarifyTurns {
		return a.escalate(ctx, conv.ID, conversation.ReasonClarifyLoop,
			"the agent could not pin down the customer's intent")
	}

	if decision.Action != conversation.ActionClarify {
		decision = conversation.Decision{Action: conversation.ActionClarify}
	}
	turn := conversation.Turn{
		Role:     conversation.RoleAgent,
		Text:     clarifyText(conv.TrailingClarifies()),
		Decision: &decision,
	}
	return a.commitAgentTurn(ctx, conv.ID, turn)
}

// commitAgentTurn re-reads the conversation and appends the turn only if
// the conversation can still accept agent output. Results computed while the
// conversation moved to a terminal or escalated state are discarded.
func (a *Agent) commitAgentTurn(ctx context.Context, id uuid.UUID, turn conversation.Turn) error {
	conv, err := a.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if conv.Status != conversation.StatusActive {
		a.logger.Info("discarding in-flight result", "conversation", id, "status", conv.Status)
		return nil
	}

	turn.Seq = conv.NextSeq()
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = a.now()
	}
	if err := a.store.AppendTurn(ctx, id, turn); err != nil {
		// A concurrent writer may have closed the conversation between the
		// status check and the append.
		if errors.Is(err, conversation.ErrClosed) {
			a.logger.Info("discarding in-flight result", "conversation", id, "status", "closed")
			return nil
		}
		return err
	}
	return nil
}
