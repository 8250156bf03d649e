package handoff

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/caspar0/caspar/internal/conversation"
	"github.com/caspar0/caspar/internal/log"
)

func testQueue(t *testing.T) *Queue {
	t.Helper()
	q := NewQueue(Config{
		Tiers:       []string{"urgent", "high", "medium", "low"},
		WaitPerCase: 5 * time.Minute,
		VIPBoost:    true,
	}, nil, log.NewNop())

	// Deterministic, strictly increasing clock so FIFO order is testable.
	var mu sync.Mutex
	tick := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	q.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick = tick.Add(time.Second)
		return tick
	}
	return q
}

func enqueue(t *testing.T, q *Queue, trigger conversation.EscalationReason, customer string) *Case {
	t.Helper()
	c, err := q.Enqueue(context.Background(), EnqueueRequest{
		ConversationID: uuid.New(),
		CustomerRef:    customer,
		Trigger:        trigger,
	})
	if err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}
	return c
}

func TestQueue_Enqueue_Idempotent(t *testing.T) {
	q := testQueue(t)
	ctx := context.Background()
	convID := uuid.New()

	first, err := q.Enqueue(ctx, EnqueueRequest{
		ConversationID: convID,
		CustomerRef:    "CUST-1000",
		Trigger:        conversation.ReasonExplicitRequest,
	})
	if err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}

	second, err := q.Enqueue(ctx, EnqueueRequest{
		ConversationID: convID,
		CustomerRef:    "CUST-1000",
		Trigger:        conversation.ReasonSensitiveTopic,
	})
	if err != nil {
		t.Fatalf("second Enqueue() error: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("second enqueue created case %s, want existing %s", second.ID, first.ID)
	}
	// The original trigger and priority stay put.
	if second.Trigger != conversation.ReasonExplicitRequest {
		t.Errorf("trigger = %s, want explicit_request", second.Trigger)
	}
	if got := q.List(); len(got) != 1 {
		t.Errorf("open cases = %d, want 1", len(got))
	}
}

func TestQueue_Enqueue_NewCaseAfterResolve(t *testing.T) {
	q := testQueue(t)
	ctx := context.Background()
	convID := uuid.New()

	first, _ := q.Enqueue(ctx, EnqueueRequest{ConversationID: convID, Trigger: conversation.ReasonExplicitRequest})
	if _, err := q.Claim(ctx, first.ID, "agent-1"); err != nil {
		t.Fatalf("Claim() error: %v", err)
	}
	if _, err := q.Resolve(ctx, first.ID, "agent-1", OutcomeResumed, "resumed"); err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}

	second, err := q.Enqueue(ctx, EnqueueRequest{ConversationID: convID, Trigger: conversation.ReasonFrustrationThreshold})
	if err != nil {
		t.Fatalf("re-Enqueue() error: %v", err)
	}
	if second.ID == first.ID {
		t.Error("re-escalation after resolve reused the resolved case")
	}
}

func TestQueue_Claim_Exclusive(t *testing.T) {
	q := testQueue(t)
	ctx := context.Background()
	c := enqueue(t, q, conversation.ReasonExplicitRequest, "CUST-1000")

	const claimers = 16
	var (
		wg   sync.WaitGroup
		wins int32
		mu   sync.Mutex
		who  string
	)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func(agent string) {
			defer wg.Done()
			got, err := q.Claim(ctx, c.ID, agent)
			if err != nil {
				if !errors.Is(err, ErrAlreadyClaimed) {
					t.Errorf("Claim(%s) unexpected error: %v", agent, err)
				}
				return
			}
			mu.Lock()
			wins++
			who = got.ClaimedBy
			mu.Unlock()
		}("agent-" + string(rune('a'+i)))
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("winners = %d, want exactly 1", wins)
	}
	got, err := q.Get(c.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.Status != CaseClaimed || got.ClaimedBy != who {
		t.Errorf("case = %s/%s, want claimed/%s", got.Status, got.ClaimedBy, who)
	}
	if got.ClaimedAt == nil {
		t.Error("ClaimedAt not set")
	}
}

func TestQueue_Claim_Errors(t *testing.T) {
	q := testQueue(t)
	ctx := context.Background()
	c := enqueue(t, q, conversation.ReasonExplicitRequest, "CUST-1000")

	if _, err := q.Claim(ctx, "HO-MISSING1", "agent-1"); !errors.Is(err, ErrCaseNotFound) {
		t.Errorf("unknown case: err = %v, want ErrCaseNotFound", err)
	}

	if _, err := q.Claim(ctx, c.ID, "agent-1"); err != nil {
		t.Fatalf("Claim() error: %v", err)
	}
	if _, err := q.Resolve(ctx, c.ID, "agent-1", OutcomeClosed, ""); err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if _, err := q.Claim(ctx, c.ID, "agent-2"); !errors.Is(err, ErrAlreadyResolved) {
		t.Errorf("resolved case: err = %v, want ErrAlreadyResolved", err)
	}
}

func TestQueue_Resolve_Errors(t *testing.T) {
	q := testQueue(t)
	ctx := context.Background()
	c := enqueue(t, q, conversation.ReasonExplicitRequest, "CUST-1000")

	if _, err := q.Resolve(ctx, c.ID, "agent-1", OutcomeResumed, ""); !errors.Is(err, ErrNotClaimed) {
		t.Errorf("unclaimed resolve: err = %v, want ErrNotClaimed", err)
	}

	if _, err := q.Claim(ctx, c.ID, "agent-1"); err != nil {
		t.Fatalf("Claim() error: %v", err)
	}
	if _, err := q.Resolve(ctx, c.ID, "agent-2", OutcomeResumed, ""); !errors.Is(err, ErrWrongAgent) {
		t.Errorf("wrong agent: err = %v, want ErrWrongAgent", err)
	}
	if _, err := q.Resolve(ctx, c.ID, "agent-1", Outcome("discarded"), ""); err == nil {
		t.Error("invalid outcome accepted")
	}

	got, err := q.Resolve(ctx, c.ID, "agent-1", OutcomeClosed, "duplicate of HO-OTHER")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if got.Status != CaseResolved || got.Outcome != OutcomeClosed || got.ResolvedAt == nil {
		t.Errorf("resolved case = %+v", got)
	}

	if _, err := q.Resolve(ctx, c.ID, "agent-1", OutcomeClosed, ""); !errors.Is(err, ErrAlreadyResolved) {
		t.Errorf("double resolve: err = %v, want ErrAlreadyResolved", err)
	}
}

func TestQueue_List_PriorityThenFIFO(t *testing.T) {
	q := testQueue(t)

	low1 := enqueue(t, q, conversation.ReasonClarifyLoop, "CUST-1000")
	explicit := enqueue(t, q, conversation.ReasonExplicitRequest, "CUST-1000")
	low2 := enqueue(t, q, conversation.ReasonMaxTurns, "CUST-1000")
	top := enqueue(t, q, conversation.ReasonSensitiveTopic, "CUST-1000")
	frustrated := enqueue(t, q, conversation.ReasonFrustrationThreshold, "CUST-1000")
	normal := enqueue(t, q, conversation.ReasonToolFailure, "CUST-1000")

	// Explicit requests share the frustration tier and both outrank tool
	// failures; within a tier, enqueue order wins.
	want := []string{top.ID, explicit.ID, frustrated.ID, normal.ID, low1.ID, low2.ID}
	got := q.List()
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, c := range got {
		if c.ID != want[i] {
			t.Errorf("order[%d] = %s (%s), want %s", i, c.ID, c.Priority, want[i])
		}
	}
}

func TestQueue_TriggerPriorities(t *testing.T) {
	q := testQueue(t)

	tests := []struct {
		trigger conversation.EscalationReason
		want    string
	}{
		{conversation.ReasonSensitiveTopic, "urgent"},
		{conversation.ReasonFrustrationThreshold, "high"},
		{conversation.ReasonExplicitRequest, "high"},
		{conversation.ReasonToolFailure, "medium"},
		{conversation.ReasonModelDirected, "medium"},
		{conversation.ReasonClarifyLoop, "low"},
		{conversation.ReasonMaxTurns, "low"},
	}
	for _, tt := range tests {
		c := enqueue(t, q, tt.trigger, "CUST-1000")
		if c.Priority != tt.want {
			t.Errorf("%s priority = %s, want %s", tt.trigger, c.Priority, tt.want)
		}
	}
}

func TestQueue_TriggerTierOverride(t *testing.T) {
	q := NewQueue(Config{
		Tiers: []string{"urgent", "high", "medium", "low"},
		TriggerTiers: map[string]string{
			"max_turns":        "urgent",
			"tool_failure":     "no-such-tier",
			"clarify_loop":     "medium",
			"explicit_request": "low",
		},
	}, nil, log.NewNop())

	tests := []struct {
		trigger conversation.EscalationReason
		want    string
	}{
		{conversation.ReasonMaxTurns, "urgent"},
		{conversation.ReasonClarifyLoop, "medium"},
		{conversation.ReasonExplicitRequest, "low"},
		// Unknown tier names fall back to the built-in mapping.
		{conversation.ReasonToolFailure, "medium"},
		// Unlisted triggers keep theirs.
		{conversation.ReasonSensitiveTopic, "urgent"},
	}
	for _, tt := range tests {
		c := enqueue(t, q, tt.trigger, "CUST-1000")
		if c.Priority != tt.want {
			t.Errorf("%s priority = %s, want %s", tt.trigger, c.Priority, tt.want)
		}
	}
}

func TestQueue_VIPBoost(t *testing.T) {
	q := testQueue(t)

	// CUST-1003 is platinum, CUST-1000 is bronze.
	regular := enqueue(t, q, conversation.ReasonToolFailure, "CUST-1000")
	vip := enqueue(t, q, conversation.ReasonToolFailure, "CUST-1003")

	if regular.Priority != "medium" {
		t.Errorf("regular priority = %s, want medium", regular.Priority)
	}
	if vip.Priority != "high" {
		t.Errorf("vip priority = %s, want high", vip.Priority)
	}

	// Already at the top tier, the boost changes nothing.
	vipSensitive := enqueue(t, q, conversation.ReasonSensitiveTopic, "CUST-1003")
	if vipSensitive.Priority != "urgent" {
		t.Errorf("vip sensitive priority = %s, want urgent", vipSensitive.Priority)
	}
}

func TestQueue_PositionAndWait(t *testing.T) {
	q := testQueue(t)
	ctx := context.Background()

	a := enqueue(t, q, conversation.ReasonExplicitRequest, "CUST-1000")
	b := enqueue(t, q, conversation.ReasonExplicitRequest, "CUST-1000")
	c := enqueue(t, q, conversation.ReasonSensitiveTopic, "CUST-1000")

	// c jumps the line on priority; a and b keep FIFO order behind it.
	cases := []struct {
		id   string
		pos  int
		wait time.Duration
	}{
		{c.ID, 1, 0},
		{a.ID, 2, 5 * time.Minute},
		{b.ID, 3, 10 * time.Minute},
	}
	for _, tc := range cases {
		pos, err := q.Position(tc.id)
		if err != nil {
			t.Fatalf("Position(%s) error: %v", tc.id, err)
		}
		if pos != tc.pos {
			t.Errorf("Position(%s) = %d, want %d", tc.id, pos, tc.pos)
		}
		wait, err := q.EstimatedWait(tc.id)
		if err != nil {
			t.Fatalf("EstimatedWait(%s) error: %v", tc.id, err)
		}
		if wait != tc.wait {
			t.Errorf("EstimatedWait(%s) = %s, want %s", tc.id, wait, tc.wait)
		}
	}

	// Claiming the head moves everyone up.
	if _, err := q.Claim(ctx, c.ID, "agent-1"); err != nil {
		t.Fatalf("Claim() error: %v", err)
	}
	if pos, _ := q.Position(c.ID); pos != 0 {
		t.Errorf("claimed Position = %d, want 0", pos)
	}
	if pos, _ := q.Position(a.ID); pos != 1 {
		t.Errorf("Position(a) after claim = %d, want 1", pos)
	}
}

func TestQueue_CancelForConversation(t *testing.T) {
	q := testQueue(t)
	ctx := context.Background()
	c := enqueue(t, q, conversation.ReasonExplicitRequest, "CUST-1000")

	got, ok, err := q.CancelForConversation(ctx, c.ConversationID)
	if err != nil {
		t.Fatalf("CancelForConversation() error: %v", err)
	}
	if !ok || got.ID != c.ID {
		t.Fatalf("CancelForConversation() = %v, %v", got, ok)
	}
	if got.Status != CaseCanceled || got.ResolvedAt == nil {
		t.Errorf("canceled case = %s/%v", got.Status, got.ResolvedAt)
	}

	// The case leaves the serving order and cannot be worked.
	if open := q.List(); len(open) != 0 {
		t.Errorf("open cases after cancel = %d, want 0", len(open))
	}
	if _, err := q.Claim(ctx, c.ID, "agent-1"); !errors.Is(err, ErrAlreadyResolved) {
		t.Errorf("Claim() on canceled case: err = %v, want ErrAlreadyResolved", err)
	}

	// Cancel is a no-op when nothing is open.
	if _, ok, err := q.CancelForConversation(ctx, c.ConversationID); err != nil || ok {
		t.Errorf("second cancel = %v, %v, want false, nil", ok, err)
	}
	if _, ok, err := q.CancelForConversation(ctx, uuid.New()); err != nil || ok {
		t.Errorf("cancel without case = %v, %v, want false, nil", ok, err)
	}
}

func TestQueue_CanceledCaseNotRestored(t *testing.T) {
	ctx := context.Background()
	store := &memCaseStore{}
	q := NewQueue(Config{}, store, log.NewNop())

	convID := uuid.New()
	if _, err := q.Enqueue(ctx, EnqueueRequest{ConversationID: convID, Trigger: conversation.ReasonToolFailure}); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}
	if _, _, err := q.CancelForConversation(ctx, convID); err != nil {
		t.Fatalf("CancelForConversation() error: %v", err)
	}

	q2 := NewQueue(Config{}, store, log.NewNop())
	if err := q2.Restore(ctx); err != nil {
		t.Fatalf("Restore() error: %v", err)
	}
	if got := q2.List(); len(got) != 0 {
		t.Errorf("restored open cases = %d, want 0", len(got))
	}
}

func TestQueue_OpenCaseForConversation(t *testing.T) {
	q := testQueue(t)
	ctx := context.Background()
	c := enqueue(t, q, conversation.ReasonExplicitRequest, "CUST-1000")

	got, ok := q.OpenCaseForConversation(c.ConversationID)
	if !ok || got.ID != c.ID {
		t.Fatalf("OpenCaseForConversation() = %v, %v", got, ok)
	}

	q.Claim(ctx, c.ID, "agent-1")
	if _, ok := q.OpenCaseForConversation(c.ConversationID); !ok {
		t.Error("claimed case should still be open")
	}

	q.Resolve(ctx, c.ID, "agent-1", OutcomeClosed, "")
	if _, ok := q.OpenCaseForConversation(c.ConversationID); ok {
		t.Error("resolved case should not be open")
	}
}

// recordingNotifier collects queued cases for assertions.
type recordingNotifier struct {
	mu    sync.Mutex
	cases []*Case
}

func (n *recordingNotifier) CaseQueued(c *Case) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cases = append(n.cases, c)
}

func (n *recordingNotifier) queued() []*Case {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*Case(nil), n.cases...)
}

func TestQueue_NotifierToldOnEnqueue(t *testing.T) {
	notifier := &recordingNotifier{}
	q := NewQueue(Config{Notifier: notifier}, nil, log.NewNop())
	ctx := context.Background()
	convID := uuid.New()

	c, err := q.Enqueue(ctx, EnqueueRequest{ConversationID: convID, Trigger: conversation.ReasonExplicitRequest})
	if err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}

	got := notifier.queued()
	if len(got) != 1 || got[0].ID != c.ID {
		t.Fatalf("notified cases = %v, want [%s]", got, c.ID)
	}

	// Deduplicated enqueues do not notify again.
	if _, err := q.Enqueue(ctx, EnqueueRequest{ConversationID: convID, Trigger: conversation.ReasonToolFailure}); err != nil {
		t.Fatalf("second Enqueue() error: %v", err)
	}
	if got := notifier.queued(); len(got) != 1 {
		t.Errorf("notifications after dedup = %d, want 1", len(got))
	}
}

type memCaseStore struct {
	mu    sync.Mutex
	cases map[string]*Case
	fail  error
}

func (s *memCaseStore) Save(_ context.Context, c *Case) error {
	if s.fail != nil {
		return s.fail
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cases == nil {
		s.cases = make(map[string]*Case)
	}
	s.cases[c.ID] = c.clone()
	return nil
}

func (s *memCaseStore) LoadOpen(_ context.Context) ([]*Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var open []*Case
	for _, c := range s.cases {
		if c.Open() {
			open = append(open, c.clone())
		}
	}
	return open, nil
}

func TestQueue_RestoreFromStore(t *testing.T) {
	ctx := context.Background()
	store := &memCaseStore{}

	q := NewQueue(Config{}, store, log.NewNop())
	convID := uuid.New()
	c, err := q.Enqueue(ctx, EnqueueRequest{ConversationID: convID, Trigger: conversation.ReasonToolFailure})
	if err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}

	// Fresh queue backed by the same store.
	q2 := NewQueue(Config{}, store, log.NewNop())
	if err := q2.Restore(ctx); err != nil {
		t.Fatalf("Restore() error: %v", err)
	}
	got, err := q2.Get(c.ID)
	if err != nil {
		t.Fatalf("Get() after restore error: %v", err)
	}
	if got.Status != CaseQueued || got.ConversationID != convID {
		t.Errorf("restored case = %+v", got)
	}
	// Idempotency index survives the restart.
	if _, ok := q2.OpenCaseForConversation(convID); !ok {
		t.Error("conversation index not rebuilt on restore")
	}
}

func TestQueue_JournalFailureRejectsMutation(t *testing.T) {
	ctx := context.Background()
	store := &memCaseStore{fail: errors.New("disk full")}
	q := NewQueue(Config{}, store, log.NewNop())

	if _, err := q.Enqueue(ctx, EnqueueRequest{ConversationID: uuid.New()}); err == nil {
		t.Fatal("Enqueue() succeeded despite journal failure")
	}
	if got := q.List(); len(got) != 0 {
		t.Errorf("failed enqueue left %d cases in the queue", len(got))
	}
}
