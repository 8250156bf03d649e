package handoff

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/caspar0/caspar/internal/conversation"
	"github.com/caspar0/caspar/internal/log"
)

// CaseStore journals case state so the queue survives restarts.
// The in-memory queue stays authoritative at runtime; the store is written
// through on every transition and read back once at startup.
type CaseStore interface {
	Save(ctx context.Context, c *Case) error
	LoadOpen(ctx context.Context) ([]*Case, error)
}

// Config tunes the queue.
type Config struct {
	// Tiers is the priority order, most urgent first.
	Tiers []string
	// TriggerTiers overrides the tier a trigger maps to, keyed by trigger
	// name. Triggers not listed keep the built-in mapping; an unknown tier
	// name is ignored.
	TriggerTiers map[string]string
	// WaitPerCase is the estimated handling time per case ahead in line.
	WaitPerCase time.Duration
	// VIPBoost raises the priority of gold/platinum customers by one tier.
	VIPBoost bool
	// Notifier, when set, is told about every newly queued case.
	Notifier Notifier
}

// defaults fills unset fields.
func (c Config) defaults() Config {
	if len(c.Tiers) == 0 {
		c.Tiers = []string{"urgent", "high", "medium", "low"}
	}
	if c.WaitPerCase <= 0 {
		c.WaitPerCase = 5 * time.Minute
	}
	return c
}

// Queue is the handoff queue human agents pull escalated conversations from.
//
// Queue is safe for concurrent use by multiple goroutines.
type Queue struct {
	mu     sync.Mutex
	cfg    Config
	cases  map[string]*Case     // by case ID
	byConv map[uuid.UUID]string // open case ID by conversation
	store  CaseStore            // optional write-through journal
	logger log.Logger
	now    func() time.Time
}

// NewQueue creates a queue. store may be nil for purely in-memory operation.
func NewQueue(cfg Config, store CaseStore, logger log.Logger) *Queue {
	return &Queue{
		cfg:    cfg.defaults(),
		cases:  make(map[string]*Case),
		byConv: make(map[uuid.UUID]string),
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Restore loads open cases from the journal. Call once at startup.
func (q *Queue) Restore(ctx context.Context) error {
	if q.store == nil {
		return nil
	}
	open, err := q.store.LoadOpen(ctx)
	if err != nil {
		return fmt.Errorf("loading open handoff cases: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	for _, c := range open {
		q.cases[c.ID] = c.clone()
		if c.Open() {
			q.byConv[c.ConversationID] = c.ID
		}
	}
	q.logger.Info("handoff queue restored", "open_cases", len(open))
	return nil
}

// EnqueueRequest describes an escalation to queue.
type EnqueueRequest struct {
	ConversationID uuid.UUID
	CustomerRef    string
	TicketID       string
	Trigger        conversation.EscalationReason
	Reason         string
	Context        *ContextPackage
}

// Enqueue adds a case for the conversation, or returns the existing open
// case: escalating an already-escalated conversation is a no-op.
func (q *Queue) Enqueue(ctx context.Context, req EnqueueRequest) (*Case, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if id, ok := q.byConv[req.ConversationID]; ok {
		existing := q.cases[id]
		q.logger.Debug("enqueue deduplicated", "case", id, "conversation", req.ConversationID)
		return existing.clone(), nil
	}

	c := &Case{
		ID:             NewCaseID(),
		ConversationID: req.ConversationID,
		CustomerRef:    req.CustomerRef,
		TicketID:       req.TicketID,
		Trigger:        req.Trigger,
		Priority:       derivePriority(req.Trigger, req.CustomerRef, q.cfg),
		Reason:         req.Reason,
		Context:        req.Context,
		Status:         CaseQueued,
		EnqueuedAt:     q.now(),
	}

	if err := q.journal(ctx, c); err != nil {
		return nil, err
	}

	q.cases[c.ID] = c
	q.byConv[c.ConversationID] = c.ID
	q.logger.Info("handoff case enqueued",
		"case", c.ID, "conversation", c.ConversationID,
		"trigger", c.Trigger, "priority", c.Priority)
	if q.cfg.Notifier != nil {
		q.cfg.Notifier.CaseQueued(c.clone())
	}
	return c.clone(), nil
}

// Claim atomically assigns a queued case to a human agent.
// Exactly one concurrent claimer wins; the rest get ErrAlreadyClaimed.
func (q *Queue) Claim(ctx context.Context, caseID, agentID string) (*Case, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	c, ok := q.cases[caseID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCaseNotFound, caseID)
	}
	switch c.Status {
	case CaseClaimed:
		return nil, fmt.Errorf("%w: %s held by %s", ErrAlreadyClaimed, caseID, c.ClaimedBy)
	case CaseResolved, CaseCanceled:
		return nil, fmt.Errorf("%w: %s", ErrAlreadyResolved, caseID)
	}

	now := q.now()
	updated := c.clone()
	updated.Status = CaseClaimed
	updated.ClaimedBy = agentID
	updated.ClaimedAt = &now

	if err := q.journal(ctx, updated); err != nil {
		return nil, err
	}

	q.cases[caseID] = updated
	q.logger.Info("handoff case claimed", "case", caseID, "agent", agentID)
	return updated.clone(), nil
}

// Resolve marks a claimed case resolved with the given outcome.
// Only the claiming agent may resolve.
func (q *Queue) Resolve(ctx context.Context, caseID, agentID string, outcome Outcome, note string) (*Case, error) {
	if !outcome.Valid() {
		return nil, fmt.Errorf("invalid outcome %q", outcome)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	c, ok := q.cases[caseID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCaseNotFound, caseID)
	}
	switch c.Status {
	case CaseQueued:
		return nil, fmt.Errorf("%w: %s", ErrNotClaimed, caseID)
	case CaseResolved, CaseCanceled:
		return nil, fmt.Errorf("%w: %s", ErrAlreadyResolved, caseID)
	}
	if c.ClaimedBy != agentID {
		return nil, fmt.Errorf("%w: %s held by %s", ErrWrongAgent, caseID, c.ClaimedBy)
	}

	now := q.now()
	updated := c.clone()
	updated.Status = CaseResolved
	updated.Outcome = outcome
	updated.Note = note
	updated.ResolvedAt = &now

	if err := q.journal(ctx, updated); err != nil {
		return nil, err
	}

	q.cases[caseID] = updated
	delete(q.byConv, c.ConversationID)
	q.logger.Info("handoff case resolved", "case", caseID, "agent", agentID, "outcome", outcome)
	return updated.clone(), nil
}

// CancelForConversation cancels the open case of a conversation that closed
// before a human resolved it, so stale cases do not linger in the queue.
// ok is false when the conversation has no open case.
func (q *Queue) CancelForConversation(ctx context.Context, conversationID uuid.UUID) (c *Case, ok bool, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	id, found := q.byConv[conversationID]
	if !found {
		return nil, false, nil
	}

	now := q.now()
	updated := q.cases[id].clone()
	updated.Status = CaseCanceled
	updated.ResolvedAt = &now

	if err := q.journal(ctx, updated); err != nil {
		return nil, false, err
	}

	q.cases[id] = updated
	delete(q.byConv, conversationID)
	q.logger.Info("handoff case canceled", "case", id, "conversation", conversationID)
	return updated.clone(), true, nil
}

// Get returns a copy of the case.
func (q *Queue) Get(caseID string) (*Case, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	c, ok := q.cases[caseID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCaseNotFound, caseID)
	}
	return c.clone(), nil
}

// OpenCaseForConversation returns the open case for a conversation, if any.
func (q *Queue) OpenCaseForConversation(conversationID uuid.UUID) (*Case, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	id, ok := q.byConv[conversationID]
	if !ok {
		return nil, false
	}
	return q.cases[id].clone(), true
}

// List returns open cases in serving order: priority tier, then FIFO.
func (q *Queue) List() []*Case {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.openOrderedLocked()
}

// Position returns the 1-based place of a queued case in the serving order.
// Claimed cases are position 0 (already being handled).
func (q *Queue) Position(caseID string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	c, ok := q.cases[caseID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrCaseNotFound, caseID)
	}
	if c.Status != CaseQueued {
		return 0, nil
	}

	pos := 0
	for _, open := range q.openOrderedLocked() {
		if open.Status != CaseQueued {
			continue
		}
		pos++
		if open.ID == caseID {
			return pos, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrCaseNotFound, caseID)
}

// EstimatedWait estimates how long a queued case will wait, based on the
// number of queued cases served before it.
func (q *Queue) EstimatedWait(caseID string) (time.Duration, error) {
	pos, err := q.Position(caseID)
	if err != nil {
		return 0, err
	}
	if pos <= 1 {
		return 0, nil
	}
	return time.Duration(pos-1) * q.cfg.WaitPerCase, nil
}

// openOrderedLocked returns open cases sorted by (tier, enqueue time).
// Caller holds q.mu.
func (q *Queue) openOrderedLocked() []*Case {
	var open []*Case
	for _, c := range q.cases {
		if c.Open() {
			open = append(open, c.clone())
		}
	}
	sort.SliceStable(open, func(i, j int) bool {
		ti, tj := tierIndex(q.cfg.Tiers, open[i].Priority), tierIndex(q.cfg.Tiers, open[j].Priority)
		if ti != tj {
			return ti < tj
		}
		return open[i].EnqueuedAt.Before(open[j].EnqueuedAt)
	})
	return open
}

// journal writes through to the case store, if configured.
func (q *Queue) journal(ctx context.Context, c *Case) error {
	if q.store == nil {
		return nil
	}
	if err := q.store.Save(ctx, c); err != nil {
		return fmt.Errorf("journaling case %s: %w", c.ID, err)
	}
	return nil
}
