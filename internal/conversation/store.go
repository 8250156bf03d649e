package conversation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists conversations.
//
// Implementations must enforce the append invariants themselves: a turn whose
// Seq is not exactly last+1 is rejected with ErrSequenceGap, and any mutation
// of a closed conversation is rejected with ErrClosed. Callers do not get to
// bypass these by racing.
type Store interface {
	// Create persists a new conversation. ErrAlreadyExists if the ID is taken.
	Create(ctx context.Context, conv *Conversation) error

	// Get returns a deep copy of the conversation. ErrNotFound if absent.
	Get(ctx context.Context, id uuid.UUID) (*Conversation, error)

	// AppendTurn appends a turn and bumps LastActivityAt.
	// ErrSequenceGap if turn.Seq != last+1; ErrClosed on closed conversations.
	AppendTurn(ctx context.Context, id uuid.UUID, turn Turn) error

	// SetStatus transitions the conversation status.
	// ErrClosed if the conversation is already closed (closed is terminal).
	SetStatus(ctx context.Context, id uuid.UUID, status Status) error

	// SetEscalation marks the conversation escalated with the given handoff
	// case ID and moves it to awaiting_human. Idempotent for the same case.
	SetEscalation(ctx context.Context, id uuid.UUID, caseID string) error

	// ListInactiveSince returns IDs of open (active or awaiting_human)
	// conversations whose last activity is before the cutoff. Used by the
	// inactivity sweeper.
	ListInactiveSince(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error)
}
