package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for tests and dev mode (serve --memory).
//
// MemoryStore is safe for concurrent use by multiple goroutines.
type MemoryStore struct {
	mu    sync.RWMutex
	convs map[uuid.UUID]*Conversation
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{convs: make(map[uuid.UUID]*Conversation)}
}

// Create persists a new conversation.
func (s *MemoryStore) Create(_ context.Context, conv *Conversation) error {
	if conv == nil {
		return fmt.Errorf("conversation is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.convs[conv.ID]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, conv.ID)
	}
	s.convs[conv.ID] = conv.Clone()
	return nil
}

// Get returns a deep copy of the conversation.
func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.convs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return conv.Clone(), nil
}

// AppendTurn appends a turn, enforcing the gapless sequence invariant.
func (s *MemoryStore) AppendTurn(_ context.Context, id uuid.UUID, turn Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if conv.Status == StatusClosed {
		return fmt.Errorf("%w: %s", ErrClosed, id)
	}
	if want := conv.NextSeq(); turn.Seq != want {
		return fmt.Errorf("%w: got %d, want %d", ErrSequenceGap, turn.Seq, want)
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	// Deep-copy so caller-held pointers cannot mutate stored state.
	copied := cloneTurns([]Turn{turn})
	conv.Turns = append(conv.Turns, copied[0])
	conv.LastActivityAt = turn.CreatedAt
	return nil
}

// SetStatus transitions the conversation status. Closed is terminal.
func (s *MemoryStore) SetStatus(_ context.Context, id uuid.UUID, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if conv.Status == StatusClosed && status != StatusClosed {
		return fmt.Errorf("%w: %s", ErrClosed, id)
	}
	conv.Status = status
	conv.LastActivityAt = time.Now().UTC()
	return nil
}

// SetEscalation marks the conversation escalated and awaiting a human.
func (s *MemoryStore) SetEscalation(_ context.Context, id uuid.UUID, caseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if conv.Status == StatusClosed {
		return fmt.Errorf("%w: %s", ErrClosed, id)
	}
	conv.Escalated = true
	conv.CaseID = caseID
	conv.Status = StatusAwaitingHuman
	conv.LastActivityAt = time.Now().UTC()
	return nil
}

// ListInactiveSince returns open conversations idle past the cutoff. Both
// active and awaiting_human conversations time out; only closed ones are
// exempt.
func (s *MemoryStore) ListInactiveSince(_ context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []uuid.UUID
	for id, conv := range s.convs {
		if conv.Status != StatusClosed && conv.LastActivityAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
