// Package agent implements the conversation state machine. It receives
// customer messages, scores them, routes them through the classifier, and
// executes the resulting action: answer from knowledge, invoke a business
// tool, ask for clarification, or escalate to the handoff queue.
//
// All processing for one conversation is serialized on a per-conversation
// lock; different conversations proceed concurrently.
package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/caspar0/caspar/internal/conversation"
	"github.com/caspar0/caspar/internal/detector"
	"github.com/caspar0/caspar/internal/handoff"
	"github.com/caspar0/caspar/internal/knowledge"
	"github.com/caspar0/caspar/internal/log"
	"github.com/caspar0/caspar/internal/tools"
)

// Decider routes one customer message to an action. Implemented by
// classifier.Classifier; tests substitute deterministic deciders.
type Decider interface {
	Classify(ctx context.Context, conv *conversation.Conversation,
		message string, score conversation.Score) conversation.Decision
}

// Config tunes the agent.
type Config struct {
	// MaxClarifyTurns is how many consecutive clarifications are allowed
	// before the conversation escalates instead.
	MaxClarifyTurns int
	// MaxConversationTurns caps customer turns per conversation; beyond it
	// the conversation escalates.
	MaxConversationTurns int
	// RetrievalK is how many knowledge passages an answer draws on.
	RetrievalK int
	// RetrieveTimeout bounds one retrieval call.
	RetrieveTimeout time.Duration

	// ToolTimeout bounds a single tool invocation attempt.
	ToolTimeout time.Duration
	// ToolMaxRetries is the retry budget for transient failures of
	// retry-safe tools.
	ToolMaxRetries int
	// RetryInitialDelay and RetryMaxDelay shape the backoff between attempts.
	RetryInitialDelay time.Duration
	RetryMaxDelay     time.Duration

	// InactivityTimeout closes active conversations idle past this duration.
	InactivityTimeout time.Duration
}

func (c Config) defaults() Config {
	if c.MaxClarifyTurns == 0 {
		c.MaxClarifyTurns = 3
	}
	if c.MaxConversationTurns == 0 {
		c.MaxConversationTurns = 50
	}
	if c.RetrievalK == 0 {
		c.RetrievalK = 4
	}
	if c.RetrieveTimeout == 0 {
		c.RetrieveTimeout = 10 * time.Second
	}
	if c.ToolTimeout == 0 {
		c.ToolTimeout = 10 * time.Second
	}
	if c.ToolMaxRetries == 0 {
		c.ToolMaxRetries = 3
	}
	if c.RetryInitialDelay == 0 {
		c.RetryInitialDelay = 200 * time.Millisecond
	}
	if c.RetryMaxDelay == 0 {
		c.RetryMaxDelay = 5 * time.Second
	}
	if c.InactivityTimeout == 0 {
		c.InactivityTimeout = 30 * time.Minute
	}
	return c
}

// Agent is the conversation orchestrator.
type Agent struct {
	store     conversation.Store
	decider   Decider
	detector  *detector.Detector
	registry  *tools.Registry
	retriever knowledge.Retriever
	queue     *handoff.Queue
	approvals *handoff.Approvals
	cfg       Config
	logger    log.Logger
	now       func() time.Time

	// locks holds one *sync.Mutex per conversation, created on first use.
	locks sync.Map
}

// New creates an Agent. All dependencies are required.
func New(store conversation.Store, decider Decider, det *detector.Detector,
	registry *tools.Registry, retriever knowledge.Retriever, queue *handoff.Queue,
	cfg Config, logger log.Logger) (*Agent, error) {

	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if decider == nil {
		return nil, fmt.Errorf("decider is required")
	}
	if det == nil {
		return nil, fmt.Errorf("detector is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if retriever == nil {
		return nil, fmt.Errorf("retriever is required")
	}
	if queue == nil {
		return nil, fmt.Errorf("queue is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &Agent{
		store:     store,
		decider:   decider,
		detector:  det,
		registry:  registry,
		retriever: retriever,
		queue:     queue,
		approvals: handoff.NewApprovals(logger),
		cfg:       cfg.defaults(),
		logger:    logger.With("component", "agent"),
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// Start opens a new conversation for the customer.
func (a *Agent) Start(ctx context.Context, customerRef string) (*conversation.Conversation, error) {
	if customerRef == "" {
		return nil, fmt.Errorf("customer reference is required")
	}

	conv := conversation.New(customerRef, a.now())
	if err := a.store.Create(ctx, conv); err != nil {
		return nil, err
	}

	a.logger.Info("conversation started", "conversation", conv.ID, "customer", customerRef)
	return conv, nil
}

// Get returns the conversation with its full transcript.
func (a *Agent) Get(ctx context.Context, id uuid.UUID) (*conversation.Conversation, error) {
	return a.store.Get(ctx, id)
}

// Queue exposes the handoff queue for API handlers.
func (a *Agent) Queue() *handoff.Queue {
	return a.queue
}

// End closes the conversation. Closing is terminal.
func (a *Agent) End(ctx context.Context, id uuid.UUID) error {
	unlock := a.lock(id)
	defer unlock()

	if err := a.store.SetStatus(ctx, id, conversation.StatusClosed); err != nil {
		return err
	}
	// A conversation that closes while escalated leaves its case behind;
	// cancel it so human agents are not routed to a dead conversation.
	if c, ok, err := a.queue.CancelForConversation(ctx, id); err != nil {
		a.logger.Warn("canceling handoff case failed", "conversation", id, "error", err)
	} else if ok {
		a.logger.Info("handoff case canceled with conversation", "conversation", id, "case", c.ID)
	}
	a.logger.Info("conversation closed", "conversation", id)
	return nil
}

// lock serializes processing for one conversation and returns the unlock
// function.
func (a *Agent) lock(id uuid.UUID) func() {
	mu, _ := a.locks.LoadOrStore(id, &sync.Mutex{})
	m := mu.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}
