package handoff

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/caspar0/caspar/internal/conversation"
	"github.com/caspar0/caspar/internal/log"
)

// caseCols is the standard SELECT column list for scanning cases.
const caseCols = `id, conversation_id, customer_ref, ticket_id, trigger, priority, reason,
	context, status, claimed_by, outcome, note, enqueued_at, claimed_at, resolved_at`

// PostgresCaseStore journals handoff cases in PostgreSQL. The queue remains
// the runtime authority; this store only needs to survive restarts.
type PostgresCaseStore struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// NewPostgresCaseStore creates a case store backed by the given pool.
func NewPostgresCaseStore(pool *pgxpool.Pool, logger log.Logger) (*PostgresCaseStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &PostgresCaseStore{pool: pool, logger: logger}, nil
}

// Save upserts the full case row.
func (s *PostgresCaseStore) Save(ctx context.Context, c *Case) error {
	var contextJSON []byte
	if c.Context != nil {
		var err error
		if contextJSON, err = json.Marshal(c.Context); err != nil {
			return fmt.Errorf("encoding case context: %w", err)
		}
	}

	if _, err := s.pool.Exec(ctx,
		`INSERT INTO handoff_cases (`+caseCols+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 ON CONFLICT (id) DO UPDATE SET
		     status = $9, claimed_by = $10, outcome = $11, note = $12,
		     claimed_at = $14, resolved_at = $15`,
		c.ID, c.ConversationID, c.CustomerRef, nullString(c.TicketID),
		string(c.Trigger), c.Priority, nullString(c.Reason), contextJSON,
		string(c.Status), nullString(c.ClaimedBy), nullString(string(c.Outcome)),
		nullString(c.Note), c.EnqueuedAt, c.ClaimedAt, c.ResolvedAt); err != nil {
		return fmt.Errorf("saving case %s: %w", c.ID, err)
	}
	return nil
}

// LoadOpen returns all queued and claimed cases.
func (s *PostgresCaseStore) LoadOpen(ctx context.Context) ([]*Case, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+caseCols+` FROM handoff_cases
		 WHERE status IN ('queued', 'claimed') ORDER BY enqueued_at`)
	if err != nil {
		return nil, fmt.Errorf("loading open cases: %w", err)
	}
	defer rows.Close()

	var cases []*Case
	for rows.Next() {
		var c Case
		var trigger, status string
		var ticketID, reason, claimedBy, outcome, note *string
		var contextJSON []byte
		if err := rows.Scan(&c.ID, &c.ConversationID, &c.CustomerRef, &ticketID,
			&trigger, &c.Priority, &reason, &contextJSON, &status, &claimedBy,
			&outcome, &note, &c.EnqueuedAt, &c.ClaimedAt, &c.ResolvedAt); err != nil {
			return nil, fmt.Errorf("scanning case: %w", err)
		}

		c.Trigger = conversation.EscalationReason(trigger)
		c.Status = CaseStatus(status)
		c.TicketID = deref(ticketID)
		c.Reason = deref(reason)
		c.ClaimedBy = deref(claimedBy)
		c.Outcome = Outcome(deref(outcome))
		c.Note = deref(note)
		if len(contextJSON) > 0 {
			if err := json.Unmarshal(contextJSON, &c.Context); err != nil {
				return nil, fmt.Errorf("decoding context for case %s: %w", c.ID, err)
			}
		}
		cases = append(cases, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cases: %w", err)
	}

	s.logger.Debug("open cases loaded", "count", len(cases))
	return cases, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
