package handoff

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/caspar0/caspar/internal/log"
)

func TestApprovals_SubmitAndApprove(t *testing.T) {
	r := NewApprovals(log.NewNop())
	convID := uuid.New()

	a, err := r.Submit("HO-AB12CD34", convID, "Your refund is on its way.", "caspar")
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if a.Status != ApprovalPending || a.Draft == "" || a.FinalText != "" {
		t.Errorf("submitted approval = %+v", a)
	}
	if pending, ok := r.PendingForCase("HO-AB12CD34"); !ok || pending.ID != a.ID {
		t.Errorf("PendingForCase() = %v, %v", pending, ok)
	}

	got, err := r.Approve(a.ID, "agent-7", "")
	if err != nil {
		t.Fatalf("Approve() error: %v", err)
	}
	if got.Status != ApprovalApproved || got.FinalText != a.Draft {
		t.Errorf("approved without edit = %+v", got)
	}
	if got.DecidedBy != "agent-7" || got.DecidedAt == nil {
		t.Errorf("decision metadata = %s/%v", got.DecidedBy, got.DecidedAt)
	}
	if _, ok := r.PendingForCase("HO-AB12CD34"); ok {
		t.Error("decided approval still pending for case")
	}
}

func TestApprovals_ApproveWithEdit(t *testing.T) {
	r := NewApprovals(log.NewNop())

	a, err := r.Submit("HO-AB12CD34", uuid.New(), "draft wording", "caspar")
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	got, err := r.Approve(a.ID, "agent-7", "softer wording")
	if err != nil {
		t.Fatalf("Approve() error: %v", err)
	}
	if got.FinalText != "softer wording" {
		t.Errorf("FinalText = %q, want the edited wording", got.FinalText)
	}
	if got.Draft != "draft wording" {
		t.Errorf("Draft = %q, original draft lost on edit", got.Draft)
	}
}

func TestApprovals_Reject(t *testing.T) {
	r := NewApprovals(log.NewNop())

	a, _ := r.Submit("HO-AB12CD34", uuid.New(), "draft", "caspar")
	got, err := r.Reject(a.ID, "agent-7")
	if err != nil {
		t.Fatalf("Reject() error: %v", err)
	}
	if got.Status != ApprovalRejected || got.FinalText != "" {
		t.Errorf("rejected approval = %+v", got)
	}

	// Rejection frees the case for a new draft.
	if _, err := r.Submit("HO-AB12CD34", uuid.New(), "second draft", "caspar"); err != nil {
		t.Errorf("Submit() after reject error: %v", err)
	}
}

func TestApprovals_Errors(t *testing.T) {
	r := NewApprovals(log.NewNop())

	if _, err := r.Get("AP-MISSING1"); !errors.Is(err, ErrApprovalNotFound) {
		t.Errorf("Get() unknown: err = %v, want ErrApprovalNotFound", err)
	}
	if _, err := r.Approve("AP-MISSING1", "agent-7", ""); !errors.Is(err, ErrApprovalNotFound) {
		t.Errorf("Approve() unknown: err = %v, want ErrApprovalNotFound", err)
	}
	if _, err := r.Submit("HO-AB12CD34", uuid.New(), "   ", "caspar"); err == nil {
		t.Error("Submit() accepted a blank draft")
	}

	a, _ := r.Submit("HO-AB12CD34", uuid.New(), "draft", "caspar")
	if _, err := r.Submit("HO-AB12CD34", uuid.New(), "another", "caspar"); !errors.Is(err, ErrApprovalPending) {
		t.Errorf("second Submit(): err = %v, want ErrApprovalPending", err)
	}

	if _, err := r.Approve(a.ID, "agent-7", ""); err != nil {
		t.Fatalf("Approve() error: %v", err)
	}
	if _, err := r.Approve(a.ID, "agent-7", ""); !errors.Is(err, ErrApprovalDecided) {
		t.Errorf("double Approve(): err = %v, want ErrApprovalDecided", err)
	}
	if _, err := r.Reject(a.ID, "agent-7"); !errors.Is(err, ErrApprovalDecided) {
		t.Errorf("Reject() after approve: err = %v, want ErrApprovalDecided", err)
	}
}
