package handoff

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/caspar0/caspar/internal/log"
)

var (
	// ErrApprovalNotFound indicates an unknown approval ID.
	ErrApprovalNotFound = errors.New("approval not found")

	// ErrApprovalDecided indicates a decision on an already-decided approval.
	ErrApprovalDecided = errors.New("approval already decided")

	// ErrApprovalPending indicates a second draft for a case whose first
	// draft is still undecided.
	ErrApprovalPending = errors.New("approval already pending for case")
)

// ApprovalStatus is the review state of a drafted response.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Approval is a drafted response held for human review before it reaches the
// customer. The reviewer may approve the draft as-is, approve it with an
// edited wording, or reject it outright. FinalText carries the approved
// wording and stays empty until approval.
type Approval struct {
	// ID has the form AP-XXXXXXXX.
	ID             string         `json:"id"`
	CaseID         string         `json:"case_id"`
	ConversationID uuid.UUID      `json:"conversation_id"`
	Draft          string         `json:"draft"`
	FinalText      string         `json:"final_text,omitempty"`
	Status         ApprovalStatus `json:"status"`
	SubmittedBy    string         `json:"submitted_by,omitempty"`
	DecidedBy      string         `json:"decided_by,omitempty"`
	SubmittedAt    time.Time      `json:"submitted_at"`
	DecidedAt      *time.Time     `json:"decided_at,omitempty"`
}

// NewApprovalID generates an approval identifier of the form AP-XXXXXXXX.
func NewApprovalID() string {
	return "AP-" + strings.ToUpper(uuid.NewString()[:8])
}

// Approvals tracks drafted responses awaiting review. At most one pending
// approval per case.
//
// Approvals is safe for concurrent use by multiple goroutines.
type Approvals struct {
	mu            sync.Mutex
	byID          map[string]*Approval
	pendingByCase map[string]string
	logger        log.Logger
	now           func() time.Time
}

// NewApprovals creates an empty approval registry.
func NewApprovals(logger log.Logger) *Approvals {
	return &Approvals{
		byID:          make(map[string]*Approval),
		pendingByCase: make(map[string]string),
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Submit records a draft for review. ErrApprovalPending if the case already
// has an undecided draft.
func (r *Approvals) Submit(caseID string, conversationID uuid.UUID, draft, submittedBy string) (*Approval, error) {
	if strings.TrimSpace(draft) == "" {
		return nil, fmt.Errorf("draft text is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.pendingByCase[caseID]; ok {
		return nil, fmt.Errorf("%w: %s has %s", ErrApprovalPending, caseID, id)
	}

	a := &Approval{
		ID:             NewApprovalID(),
		CaseID:         caseID,
		ConversationID: conversationID,
		Draft:          draft,
		Status:         ApprovalPending,
		SubmittedBy:    submittedBy,
		SubmittedAt:    r.now(),
	}
	r.byID[a.ID] = a
	r.pendingByCase[caseID] = a.ID
	r.logger.Info("draft submitted for approval", "approval", a.ID, "case", caseID)
	return a.clone(), nil
}

// Get returns a copy of the approval.
func (r *Approvals) Get(id string) (*Approval, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrApprovalNotFound, id)
	}
	return a.clone(), nil
}

// PendingForCase returns the undecided approval for a case, if any.
func (r *Approvals) PendingForCase(caseID string) (*Approval, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.pendingByCase[caseID]
	if !ok {
		return nil, false
	}
	return r.byID[id].clone(), true
}

// Approve accepts the draft. A non-empty editedText replaces the draft as the
// final wording.
func (r *Approvals) Approve(id, reviewerID, editedText string) (*Approval, error) {
	return r.decide(id, reviewerID, ApprovalApproved, editedText)
}

// Reject discards the draft.
func (r *Approvals) Reject(id, reviewerID string) (*Approval, error) {
	return r.decide(id, reviewerID, ApprovalRejected, "")
}

func (r *Approvals) decide(id, reviewerID string, status ApprovalStatus, editedText string) (*Approval, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrApprovalNotFound, id)
	}
	if a.Status != ApprovalPending {
		return nil, fmt.Errorf("%w: %s is %s", ErrApprovalDecided, id, a.Status)
	}

	now := r.now()
	a.Status = status
	a.DecidedBy = reviewerID
	a.DecidedAt = &now
	if status == ApprovalApproved {
		a.FinalText = a.Draft
		if strings.TrimSpace(editedText) != "" {
			a.FinalText = editedText
		}
	}
	delete(r.pendingByCase, a.CaseID)
	r.logger.Info("approval decided",
		"approval", id, "case", a.CaseID, "status", status, "reviewer", reviewerID)
	return a.clone(), nil
}

func (a *Approval) clone() *Approval {
	cp := *a
	if a.DecidedAt != nil {
		t := *a.DecidedAt
		cp.DecidedAt = &t
	}
	return &cp
}
