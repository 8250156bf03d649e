//go:build integration

package conversation_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/caspar0/caspar/internal/conversation"
	"github.com/caspar0/caspar/internal/log"
	"github.com/caspar0/caspar/internal/testutil"
)

func setupStore(t *testing.T) *conversation.PostgresStore {
	t.Helper()

	database, cleanup := testutil.SetupTestDB(t)
	t.Cleanup(cleanup)

	store, err := conversation.NewPostgresStore(database.Pool, log.NewNop())
	if err != nil {
		t.Fatalf("NewPostgresStore() error: %v", err)
	}
	return store
}

func mustCreate(t *testing.T, store *conversation.PostgresStore, customerRef string) *conversation.Conversation {
	t.Helper()
	conv := conversation.New(customerRef, time.Now().UTC().Truncate(time.Microsecond))
	if err := store.Create(context.Background(), conv); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	return conv
}

func TestPostgresStore_RoundTrip(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	conv := mustCreate(t, store, "CUST-1000")

	turns := []conversation.Turn{
		{
			Seq:  1,
			Role: conversation.RoleCustomer,
			Text: "where is my order",
			Score: &conversation.Score{
				Sentiment:   -0.2,
				Frustration: 0.3,
			},
		},
		{
			Seq:  2,
			Role: conversation.RoleAgent,
			Text: "Your order TF-10234 shipped yesterday.",
			Decision: &conversation.Decision{
				Action: conversation.ActionInvokeTool,
				Tool:   "order_lookup",
				Args:   map[string]any{"order_id": "TF-10234"},
			},
			Tool: &conversation.ToolResult{
				Tool:     "order_lookup",
				Success:  true,
				Output:   map[string]any{"status": "shipped"},
				Attempts: 1,
			},
		},
		{
			Seq:      3,
			Role:     conversation.RoleAgent,
			Text:     "Standard shipping takes 3 to 5 business days.",
			Decision: &conversation.Decision{Action: conversation.ActionAnswer},
			Passages: []conversation.PassageRef{{ID: "shipping-times", Score: 0.92}},
		},
	}
	for _, turn := range turns {
		if err := store.AppendTurn(ctx, conv.ID, turn); err != nil {
			t.Fatalf("AppendTurn(seq %d) error: %v", turn.Seq, err)
		}
	}

	got, err := store.Get(ctx, conv.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.CustomerRef != "CUST-1000" || got.Status != conversation.StatusActive {
		t.Errorf("conversation = %+v", got)
	}
	if len(got.Turns) != 3 {
		t.Fatalf("turns = %d, want 3", len(got.Turns))
	}
	if got.Turns[0].Score == nil || got.Turns[0].Score.Frustration != 0.3 {
		t.Errorf("turn 1 score = %+v", got.Turns[0].Score)
	}
	if got.Turns[1].Tool == nil || !got.Turns[1].Tool.Success {
		t.Errorf("turn 2 tool = %+v", got.Turns[1].Tool)
	}
	if got.Turns[1].Decision == nil || got.Turns[1].Decision.Tool != "order_lookup" {
		t.Errorf("turn 2 decision = %+v", got.Turns[1].Decision)
	}
	if len(got.Turns[2].Passages) != 1 || got.Turns[2].Passages[0].ID != "shipping-times" {
		t.Errorf("turn 3 passages = %+v", got.Turns[2].Passages)
	}
	if !got.LastActivityAt.After(conv.LastActivityAt) {
		t.Error("LastActivityAt not bumped by appends")
	}
}

func TestPostgresStore_SequenceGapRejected(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	conv := mustCreate(t, store, "CUST-1001")

	err := store.AppendTurn(ctx, conv.ID, conversation.Turn{
		Seq: 2, Role: conversation.RoleCustomer, Text: "hello",
	})
	if !errors.Is(err, conversation.ErrSequenceGap) {
		t.Errorf("AppendTurn(seq 2 on empty) error = %v, want ErrSequenceGap", err)
	}
}

func TestPostgresStore_ConcurrentAppendsNoGaps(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	conv := mustCreate(t, store, "CUST-1002")

	// Writers race on the same conversation; the advisory lock serializes
	// them. Each writer retries with a fresh sequence number on a gap error.
	const writers = 8
	const perWriter = 4

	var wg sync.WaitGroup
	for w := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				for {
					current, err := store.Get(ctx, conv.ID)
					if err != nil {
						t.Errorf("writer %d: Get() error: %v", w, err)
						return
					}
					err = store.AppendTurn(ctx, conv.ID, conversation.Turn{
						Seq:  current.NextSeq(),
						Role: conversation.RoleCustomer,
						Text: "message",
					})
					if err == nil {
						break
					}
					if !errors.Is(err, conversation.ErrSequenceGap) {
						t.Errorf("writer %d: AppendTurn() error: %v", w, err)
						return
					}
				}
			}
		}()
	}
	wg.Wait()

	got, err := store.Get(ctx, conv.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if len(got.Turns) != writers*perWriter {
		t.Fatalf("turns = %d, want %d", len(got.Turns), writers*perWriter)
	}
	for i, turn := range got.Turns {
		if turn.Seq != i+1 {
			t.Fatalf("turn %d has seq %d, want %d", i, turn.Seq, i+1)
		}
	}
}

func TestPostgresStore_ClosedIsTerminal(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	conv := mustCreate(t, store, "CUST-1003")

	if err := store.SetStatus(ctx, conv.ID, conversation.StatusClosed); err != nil {
		t.Fatalf("SetStatus(closed) error: %v", err)
	}

	err := store.AppendTurn(ctx, conv.ID, conversation.Turn{
		Seq: 1, Role: conversation.RoleCustomer, Text: "hello",
	})
	if !errors.Is(err, conversation.ErrClosed) {
		t.Errorf("AppendTurn on closed error = %v, want ErrClosed", err)
	}

	if err := store.SetStatus(ctx, conv.ID, conversation.StatusActive); !errors.Is(err, conversation.ErrClosed) {
		t.Errorf("SetStatus(active) on closed error = %v, want ErrClosed", err)
	}
	if err := store.SetEscalation(ctx, conv.ID, "HO-TEST0001"); !errors.Is(err, conversation.ErrClosed) {
		t.Errorf("SetEscalation on closed error = %v, want ErrClosed", err)
	}
}

func TestPostgresStore_Escalation(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	conv := mustCreate(t, store, "CUST-1004")

	if err := store.SetEscalation(ctx, conv.ID, "HO-ABCD1234"); err != nil {
		t.Fatalf("SetEscalation() error: %v", err)
	}

	got, err := store.Get(ctx, conv.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if !got.Escalated || got.CaseID != "HO-ABCD1234" || got.Status != conversation.StatusAwaitingHuman {
		t.Errorf("conversation after escalation = %+v", got)
	}
}

func TestPostgresStore_NotFound(t *testing.T) {
	store := setupStore(t)

	_, err := store.Get(context.Background(), uuid.New())
	if !errors.Is(err, conversation.ErrNotFound) {
		t.Errorf("Get(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestPostgresStore_ListInactiveSince(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	stale := mustCreate(t, store, "CUST-1005")
	mustCreate(t, store, "CUST-1006")

	cutoff := time.Now().UTC().Add(time.Minute)
	ids, err := store.ListInactiveSince(ctx, cutoff)
	if err != nil {
		t.Fatalf("ListInactiveSince() error: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("inactive = %d, want 2", len(ids))
	}

	// Closing removes a conversation from the inactive sweep.
	if err := store.SetStatus(ctx, stale.ID, conversation.StatusClosed); err != nil {
		t.Fatalf("SetStatus() error: %v", err)
	}
	ids, err = store.ListInactiveSince(ctx, cutoff)
	if err != nil {
		t.Fatalf("ListInactiveSince() error: %v", err)
	}
	if len(ids) != 1 {
		t.Errorf("inactive after close = %d, want 1", len(ids))
	}
}
