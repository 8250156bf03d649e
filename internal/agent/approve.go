package agent

import (
	"context"
	"fmt"

	"github.com/caspar0/caspar/internal/conversation"
	"github.com/caspar0/caspar/internal/handoff"
)

// SubmitDraft records a response drafted for an escalated conversation. The
// draft is held for review by the human agent working the case; nothing
// reaches the customer until it is approved.
func (a *Agent) SubmitDraft(ctx context.Context, caseID, submittedBy, draft string) (*handoff.Approval, error) {
	c, err := a.queue.Get(caseID)
	if err != nil {
		return nil, err
	}
	if !c.Open() {
		return nil, fmt.Errorf("%w: %s", handoff.ErrAlreadyResolved, caseID)
	}

	approval, err := a.approvals.Submit(caseID, c.ConversationID, draft, submittedBy)
	if err != nil {
		return nil, err
	}
	a.logger.Info("draft awaiting review",
		"approval", approval.ID, "case", caseID, "conversation", c.ConversationID)
	return approval, nil
}

// ApproveDraft lets the claiming human agent release a draft to the customer,
// optionally with an edited wording. The approved text is appended to the
// conversation as an agent turn.
func (a *Agent) ApproveDraft(ctx context.Context, approvalID, reviewerID, editedText string) (*handoff.Approval, error) {
	pending, err := a.approvals.Get(approvalID)
	if err != nil {
		return nil, err
	}
	if err := a.reviewerHoldsClaim(pending.CaseID, reviewerID); err != nil {
		return nil, err
	}

	unlock := a.lock(pending.ConversationID)
	defer unlock()

	approval, err := a.approvals.Approve(approvalID, reviewerID, editedText)
	if err != nil {
		return nil, err
	}

	if err := a.appendSystemTurn(ctx, approval.ConversationID, conversation.Turn{
		Role: conversation.RoleAgent,
		Text: approval.FinalText,
	}); err != nil {
		return nil, err
	}

	a.logger.Info("draft approved",
		"approval", approvalID, "case", approval.CaseID,
		"conversation", approval.ConversationID, "reviewer", reviewerID)
	return approval, nil
}

// RejectDraft discards a draft without sending anything to the customer.
func (a *Agent) RejectDraft(ctx context.Context, approvalID, reviewerID string) (*handoff.Approval, error) {
	pending, err := a.approvals.Get(approvalID)
	if err != nil {
		return nil, err
	}
	if err := a.reviewerHoldsClaim(pending.CaseID, reviewerID); err != nil {
		return nil, err
	}

	approval, err := a.approvals.Reject(approvalID, reviewerID)
	if err != nil {
		return nil, err
	}
	a.logger.Info("draft rejected",
		"approval", approvalID, "case", approval.CaseID, "reviewer", reviewerID)
	return approval, nil
}

// reviewerHoldsClaim verifies the reviewer is the human agent holding the
// claim on the case. Only the claiming agent decides drafts.
func (a *Agent) reviewerHoldsClaim(caseID, reviewerID string) error {
	c, err := a.queue.Get(caseID)
	if err != nil {
		return err
	}
	switch c.Status {
	case handoff.CaseQueued:
		return fmt.Errorf("%w: %s", handoff.ErrNotClaimed, caseID)
	case handoff.CaseResolved, handoff.CaseCanceled:
		return fmt.Errorf("%w: %s", handoff.ErrAlreadyResolved, caseID)
	}
	if c.ClaimedBy != reviewerID {
		return fmt.Errorf("%w: %s held by %s", handoff.ErrWrongAgent, caseID, c.ClaimedBy)
	}
	return nil
}
