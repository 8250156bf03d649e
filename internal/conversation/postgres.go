package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/caspar0/caspar/internal/log"
)

// querier is the common interface satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// conversationCols is the standard SELECT column list for scanConversation.
const conversationCols = `id, customer_ref, status, escalated, case_id, created_at, last_activity_at`

// turnCols is the standard SELECT column list for scanTurns.
const turnCols = `seq, role, content, decision, score, tool, passages, created_at`

// PostgresStore persists conversations in PostgreSQL.
//
// Append ordering is serialized per conversation with a transaction-scoped
// advisory lock, so concurrent appends cannot produce sequence gaps even
// across processes.
//
// PostgresStore is safe for concurrent use by multiple goroutines.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// NewPostgresStore creates a conversation store backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool, logger log.Logger) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &PostgresStore{pool: pool, logger: logger}, nil
}

// Create persists a new conversation (turns are appended separately).
func (s *PostgresStore) Create(ctx context.Context, conv *Conversation) error {
	if conv == nil {
		return fmt.Errorf("conversation is required")
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO conversations (id, customer_ref, status, escalated, case_id, created_at, last_activity_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO NOTHING`,
		conv.ID, conv.CustomerRef, string(conv.Status), conv.Escalated,
		nullable(conv.CaseID), conv.CreatedAt, conv.LastActivityAt)
	if err != nil {
		return fmt.Errorf("inserting conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, conv.ID)
	}
	return nil
}

// Get loads a conversation with its full transcript.
func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	return s.get(ctx, s.pool, id)
}

func (s *PostgresStore) get(ctx context.Context, q querier, id uuid.UUID) (*Conversation, error) {
	row := q.QueryRow(ctx,
		`SELECT `+conversationCols+` FROM conversations WHERE id = $1`, id)

	conv, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("loading conversation: %w", err)
	}

	rows, err := q.Query(ctx,
		`SELECT `+turnCols+` FROM turns WHERE conversation_id = $1 ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("loading turns: %w", err)
	}
	defer rows.Close()

	conv.Turns, err = scanTurns(rows)
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// AppendTurn appends a turn inside a transaction holding the per-conversation
// advisory lock, enforcing the gapless sequence invariant under concurrency.
func (s *PostgresStore) AppendTurn(ctx context.Context, id uuid.UUID, turn Turn) error {
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Debug("transaction rollback", "error", rbErr)
		}
	}()

	// Serialize concurrent appends for the same conversation.
	// pg_advisory_xact_lock releases automatically at commit/rollback.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, id.String()); err != nil {
		return fmt.Errorf("acquiring advisory lock: %w", err)
	}

	var status string
	var lastSeq int
	err = tx.QueryRow(ctx,
		`SELECT c.status, COALESCE(MAX(t.seq), 0)
		 FROM conversations c LEFT JOIN turns t ON t.conversation_id = c.id
		 WHERE c.id = $1 GROUP BY c.status`, id).Scan(&status, &lastSeq)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return fmt.Errorf("checking conversation state: %w", err)
	}
	if Status(status) == StatusClosed {
		return fmt.Errorf("%w: %s", ErrClosed, id)
	}
	if turn.Seq != lastSeq+1 {
		return fmt.Errorf("%w: got %d, want %d", ErrSequenceGap, turn.Seq, lastSeq+1)
	}

	decision, score, tool, passages, err := marshalTurnFields(turn)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO turns (conversation_id, seq, role, content, decision, score, tool, passages, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id, turn.Seq, string(turn.Role), turn.Text, decision, score, tool, passages, turn.CreatedAt); err != nil {
		return fmt.Errorf("inserting turn: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE conversations SET last_activity_at = $2 WHERE id = $1`,
		id, turn.CreatedAt); err != nil {
		return fmt.Errorf("updating activity: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing turn: %w", err)
	}
	return nil
}

// SetStatus transitions the conversation status. Closed is terminal.
func (s *PostgresStore) SetStatus(ctx context.Context, id uuid.UUID, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE conversations SET status = $2, last_activity_at = now()
		 WHERE id = $1 AND (status != 'closed' OR $2 = 'closed')`,
		id, string(status))
	if err != nil {
		return fmt.Errorf("updating status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.notFoundOrClosed(ctx, id)
	}
	return nil
}

// SetEscalation marks the conversation escalated and awaiting a human.
func (s *PostgresStore) SetEscalation(ctx context.Context, id uuid.UUID, caseID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE conversations
		 SET escalated = true, case_id = $2, status = 'awaiting_human', last_activity_at = now()
		 WHERE id = $1 AND status != 'closed'`,
		id, caseID)
	if err != nil {
		return fmt.Errorf("recording escalation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.notFoundOrClosed(ctx, id)
	}
	return nil
}

// ListInactiveSince returns open conversations idle past the cutoff. Both
// active and awaiting_human conversations time out; only closed ones are
// exempt.
func (s *PostgresStore) ListInactiveSince(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM conversations
		 WHERE status IN ('active', 'awaiting_human') AND last_activity_at < $1`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("listing inactive conversations: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning conversation id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversations: %w", err)
	}
	return ids, nil
}

// notFoundOrClosed distinguishes a missing row from a terminal one after an
// UPDATE matched nothing.
func (s *PostgresStore) notFoundOrClosed(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM conversations WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("checking conversation existence: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return fmt.Errorf("%w: %s", ErrClosed, id)
}

func scanConversation(row pgx.Row) (*Conversation, error) {
	var conv Conversation
	var status string
	var caseID *string
	if err := row.Scan(&conv.ID, &conv.CustomerRef, &status, &conv.Escalated,
		&caseID, &conv.CreatedAt, &conv.LastActivityAt); err != nil {
		return nil, err
	}
	conv.Status = Status(status)
	if caseID != nil {
		conv.CaseID = *caseID
	}
	return &conv, nil
}

func scanTurns(rows pgx.Rows) ([]Turn, error) {
	var turns []Turn
	for rows.Next() {
		var t Turn
		var role string
		var decision, score, tool, passages []byte
		if err := rows.Scan(&t.Seq, &role, &t.Text, &decision, &score, &tool, &passages, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		t.Role = Role(role)
		if err := unmarshalInto(decision, &t.Decision); err != nil {
			return nil, err
		}
		if err := unmarshalInto(score, &t.Score); err != nil {
			return nil, err
		}
		if err := unmarshalInto(tool, &t.Tool); err != nil {
			return nil, err
		}
		if len(passages) > 0 {
			if err := json.Unmarshal(passages, &t.Passages); err != nil {
				return nil, fmt.Errorf("decoding passages: %w", err)
			}
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating turns: %w", err)
	}
	return turns, nil
}

// marshalTurnFields encodes the optional JSONB columns, nil for absent.
func marshalTurnFields(turn Turn) (decision, score, tool, passages []byte, err error) {
	if turn.Decision != nil {
		if decision, err = json.Marshal(turn.Decision); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("encoding decision: %w", err)
		}
	}
	if turn.Score != nil {
		if score, err = json.Marshal(turn.Score); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("encoding score: %w", err)
		}
	}
	if turn.Tool != nil {
		if tool, err = json.Marshal(turn.Tool); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("encoding tool result: %w", err)
		}
	}
	if len(turn.Passages) > 0 {
		if passages, err = json.Marshal(turn.Passages); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("encoding passages: %w", err)
		}
	}
	return decision, score, tool, passages, nil
}

// unmarshalInto decodes a JSONB column into a pointer target, leaving the
// target nil when the column is NULL.
func unmarshalInto[T any](data []byte, target **T) error {
	if len(data) == 0 {
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("decoding turn field: %w", err)
	}
	*target = &v
	return nil
}

// nullable maps an empty string to SQL NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
