// Package handoff implements the escalation path: cases, the priority queue
// human agents pull from, and the context package handed over with each case.
//
// Queue invariants:
//   - Enqueue is idempotent per conversation: a second escalation of the same
//     conversation returns the existing open case.
//   - Claim is exclusive: exactly one agent wins a case, the rest get
//     ErrAlreadyClaimed.
//   - Ordering is FIFO within priority tiers; tiers are configurable.
package handoff

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/caspar0/caspar/internal/conversation"
)

var (
	// ErrCaseNotFound indicates an unknown case ID.
	ErrCaseNotFound = errors.New("handoff case not found")

	// ErrAlreadyClaimed indicates a claim attempt on a case another agent holds.
	ErrAlreadyClaimed = errors.New("handoff case already claimed")

	// ErrNotClaimed indicates a resolve attempt on a case nobody claimed.
	ErrNotClaimed = errors.New("handoff case not claimed")

	// ErrAlreadyResolved indicates a mutation of a resolved case.
	ErrAlreadyResolved = errors.New("handoff case already resolved")

	// ErrWrongAgent indicates a resolve attempt by an agent who does not hold
	// the claim.
	ErrWrongAgent = errors.New("handoff case claimed by another agent")
)

// CaseStatus is the lifecycle state of a handoff case.
type CaseStatus string

const (
	CaseQueued   CaseStatus = "queued"
	CaseClaimed  CaseStatus = "claimed"
	CaseResolved CaseStatus = "resolved"
	// CaseCanceled means the conversation closed (explicitly or by the
	// inactivity sweep) before a human resolved the case.
	CaseCanceled CaseStatus = "canceled"
)

// Outcome is how a human agent disposed of a case.
type Outcome string

const (
	// OutcomeResumed hands the conversation back to the automated agent.
	OutcomeResumed Outcome = "resumed"
	// OutcomeClosed ends the conversation.
	OutcomeClosed Outcome = "closed"
)

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	return o == OutcomeResumed || o == OutcomeClosed
}

// Case is one escalated conversation waiting for (or with) a human agent.
type Case struct {
	// ID has the form HO-XXXXXXXX.
	ID             string                        `json:"id"`
	ConversationID uuid.UUID                     `json:"conversation_id"`
	CustomerRef    string                        `json:"customer_ref"`
	TicketID       string                        `json:"ticket_id,omitempty"`
	Trigger        conversation.EscalationReason `json:"trigger"`
	Priority       string                        `json:"priority"`
	Reason         string                        `json:"reason,omitempty"`
	Context        *ContextPackage               `json:"context,omitempty"`
	Status         CaseStatus                    `json:"status"`
	ClaimedBy      string                        `json:"claimed_by,omitempty"`
	Outcome        Outcome                       `json:"outcome,omitempty"`
	Note           string                        `json:"note,omitempty"`
	EnqueuedAt     time.Time                     `json:"enqueued_at"`
	ClaimedAt      *time.Time                    `json:"claimed_at,omitempty"`
	ResolvedAt     *time.Time                    `json:"resolved_at,omitempty"`
}

// Open reports whether the case still needs human attention.
func (c *Case) Open() bool {
	return c.Status == CaseQueued || c.Status == CaseClaimed
}

// NewCaseID generates a case identifier of the form HO-XXXXXXXX.
func NewCaseID() string {
	return "HO-" + strings.ToUpper(uuid.NewString()[:8])
}

// clone returns a copy safe to hand to callers. The context package is shared
// intentionally: it is immutable once built.
func (c *Case) clone() *Case {
	cp := *c
	if c.ClaimedAt != nil {
		t := *c.ClaimedAt
		cp.ClaimedAt = &t
	}
	if c.ResolvedAt != nil {
		t := *c.ResolvedAt
		cp.ResolvedAt = &t
	}
	return &cp
}
