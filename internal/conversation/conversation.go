// Package conversation defines the conversation model shared by the agent,
// the handoff queue, and the HTTP API: statuses, turns, decisions, and the
// Store interface with its in-memory and PostgreSQL implementations.
//
// A conversation is an append-only sequence of turns. Turn sequence numbers
// are gapless and strictly monotonic; both store implementations reject an
// append whose sequence is not exactly last+1.
package conversation

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a conversation.
type Status string

const (
	// StatusActive means the agent is handling the conversation.
	StatusActive Status = "active"
	// StatusAwaitingHuman means the conversation escalated and sits in the
	// handoff queue. Customer messages are still recorded, but the agent
	// does not respond.
	StatusAwaitingHuman Status = "awaiting_human"
	// StatusClosed is terminal. No further mutation is accepted.
	StatusClosed Status = "closed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusAwaitingHuman, StatusClosed:
		return true
	}
	return false
}

// Terminal reports whether the status admits no further agent processing.
func (s Status) Terminal() bool {
	return s == StatusClosed
}

// Role identifies the author of a turn.
type Role string

const (
	RoleCustomer  Role = "customer"
	RoleAgent    Role = "agent"
	// RoleSystem marks turns the system injects (queue status notices,
	// escalation confirmations, resolution summaries).
	RoleSystem Role = "system"
)

// Action is the classifier's routing decision for a customer message.
type Action string

const (
	ActionAnswer     Action = "answer_from_knowledge"
	ActionInvokeTool Action = "invoke_tool"
	ActionEscalate   Action = "escalate"
	ActionClarify    Action = "clarify"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionAnswer, ActionInvokeTool, ActionEscalate, ActionClarify:
		return true
	}
	return false
}

// EscalationReason records why a conversation was handed to a human.
type EscalationReason string

const (
	// ReasonExplicitRequest: the customer asked for a human.
	ReasonExplicitRequest EscalationReason = "explicit_request"
	// ReasonFrustrationThreshold: consecutive turns exceeded the frustration threshold.
	ReasonFrustrationThreshold EscalationReason = "frustration_threshold"
	// ReasonSensitiveTopic: the detector flagged legal/safety/privacy terms.
	ReasonSensitiveTopic EscalationReason = "sensitive_topic"
	// ReasonToolFailure: a business-critical tool failed permanently.
	ReasonToolFailure EscalationReason = "tool_failure"
	// ReasonClarifyLoop: the agent asked for clarification too many times in a row.
	ReasonClarifyLoop EscalationReason = "clarify_loop"
	// ReasonMaxTurns: the conversation exceeded the configured turn cap.
	ReasonMaxTurns EscalationReason = "max_turns"
	// ReasonModelDirected: the classifier itself chose to escalate.
	ReasonModelDirected EscalationReason = "model_directed"
)

// Decision is the validated output of the intent classifier for one
// customer message.
type Decision struct {
	Action Action           `json:"action"`
	Tool   string           `json:"tool,omitempty"`
	Args   map[string]any   `json:"args,omitempty"`
	Reason EscalationReason `json:"reason,omitempty"`
}

// Score is the detector's reading of a single customer message in context.
type Score struct {
	// Sentiment is in [-1, 1]; negative is unhappy.
	Sentiment float64 `json:"sentiment"`
	// Frustration is in [0, 1].
	Frustration float64 `json:"frustration"`
	// FlaggedTerms are sensitive-topic terms found in the message.
	FlaggedTerms []string `json:"flagged_terms,omitempty"`
}

// ToolResult records a tool invocation attached to an agent turn.
type ToolResult struct {
	Tool      string         `json:"tool"`
	Args      map[string]any `json:"args,omitempty"`
	Success   bool           `json:"success"`
	Output    map[string]any `json:"output,omitempty"`
	ErrorKind string         `json:"error_kind,omitempty"`
	Error     string         `json:"error,omitempty"`
	Attempts  int            `json:"attempts,omitempty"`
	Latency   time.Duration  `json:"latency,omitempty"`
}

// PassageRef points at a knowledge passage used to compose an answer.
type PassageRef struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// Turn is one entry in the conversation transcript.
type Turn struct {
	// Seq starts at 1 and increases by exactly 1 per appended turn.
	Seq       int          `json:"seq"`
	Role      Role         `json:"role"`
	Text      string       `json:"text"`
	Decision  *Decision    `json:"decision,omitempty"`
	Score     *Score       `json:"score,omitempty"`
	Tool      *ToolResult  `json:"tool,omitempty"`
	Passages  []PassageRef `json:"passages,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// Conversation is the aggregate the state machine operates on.
type Conversation struct {
	ID          uuid.UUID `json:"id"`
	CustomerRef string    `json:"customer_ref"`
	Status      Status    `json:"status"`
	Turns       []Turn    `json:"turns"`
	// Escalated stays true even after a resumed conversation returns to
	// active, so repeat escalations can be recognized downstream.
	Escalated      bool      `json:"escalated"`
	CaseID         string    `json:"case_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// New creates an active conversation for the given customer reference.
func New(customerRef string, now time.Time) *Conversation {
	return &Conversation{
		ID:             uuid.New(),
		CustomerRef:    customerRef,
		Status:         StatusActive,
		CreatedAt:      now,
		LastActivityAt: now,
	}
}

// NextSeq returns the sequence number the next appended turn must carry.
func (c *Conversation) NextSeq() int {
	return len(c.Turns) + 1
}

// LastTurn returns the most recent turn, or nil for an empty conversation.
func (c *Conversation) LastTurn() *Turn {
	if len(c.Turns) == 0 {
		return nil
	}
	return &c.Turns[len(c.Turns)-1]
}

// TrailingClarifies counts consecutive agent clarification turns at the
// tail of the transcript, ignoring the customer turns between them.
func (c *Conversation) TrailingClarifies() int {
	count := 0
	for i := len(c.Turns) - 1; i >= 0; i-- {
		t := c.Turns[i]
		if t.Role == RoleCustomer {
			continue
		}
		if t.Role == RoleAgent && t.Decision != nil && t.Decision.Action == ActionClarify {
			count++
			continue
		}
		break
	}
	return count
}

// ConsecutiveFrustrated counts trailing customer turns whose frustration
// score strictly exceeds threshold. Turns without a score end the run.
func (c *Conversation) ConsecutiveFrustrated(threshold float64) int {
	count := 0
	for i := len(c.Turns) - 1; i >= 0; i-- {
		t := c.Turns[i]
		if t.Role != RoleCustomer {
			continue
		}
		if t.Score == nil || t.Score.Frustration <= threshold {
			break
		}
		count++
	}
	return count
}

// CustomerTurns returns the number of customer turns in the transcript.
func (c *Conversation) CustomerTurns() int {
	n := 0
	for _, t := range c.Turns {
		if t.Role == RoleCustomer {
			n++
		}
	}
	return n
}

// Clone returns a deep copy safe to hand across goroutine boundaries.
func (c *Conversation) Clone() *Conversation {
	cp := *c
	cp.Turns = cloneTurns(c.Turns)
	return &cp
}

func cloneTurns(turns []Turn) []Turn {
	if turns == nil {
		return nil
	}
	out := make([]Turn, len(turns))
	for i, t := range turns {
		out[i] = t
		if t.Decision != nil {
			d := *t.Decision
			d.Args = cloneMap(t.Decision.Args)
			out[i].Decision = &d
		}
		if t.Score != nil {
			sc := *t.Score
			sc.FlaggedTerms = append([]string(nil), t.Score.FlaggedTerms...)
			out[i].Score = &sc
		}
		if t.Tool != nil {
			tr := *t.Tool
			tr.Args = cloneMap(t.Tool.Args)
			tr.Output = cloneMap(t.Tool.Output)
			out[i].Tool = &tr
		}
		out[i].Passages = append([]PassageRef(nil), t.Passages...)
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
