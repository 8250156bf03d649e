// Package classifier routes each customer message to one of four actions:
// answer from knowledge, invoke a tool, escalate, or ask for clarification.
//
// Deterministic safety rules run BEFORE the model and cannot be overridden
// by it: flagged sensitive terms and sustained frustration always escalate,
// and an explicit request for a human always escalates. The model is only
// consulted for messages the rules let through, and any model failure or
// malformed output degrades to a clarification, never to a guess.
package classifier

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"

	"github.com/caspar0/caspar/internal/conversation"
	"github.com/caspar0/caspar/internal/log"
	"github.com/caspar0/caspar/internal/tools"
)

// Config tunes the classifier.
type Config struct {
	// Model is the full Genkit model name, e.g. "googleai/gemini-2.0-flash".
	// Empty uses the Genkit default model.
	Model string

	// FrustrationThreshold is the per-turn frustration score above which a
	// customer turn counts toward the consecutive-frustration trigger.
	FrustrationThreshold float64
	// FrustrationTurns is how many consecutive frustrated turns escalate.
	FrustrationTurns int
	// SentimentThreshold is the sentiment at or below which a turn counts as
	// frustrated regardless of its frustration score.
	SentimentThreshold float64

	// Timeout bounds a single classification including retries.
	Timeout time.Duration

	// RateLimit and RateBurst bound outbound model calls.
	RateLimit rate.Limit
	RateBurst int

	Retry RetryConfig
}

func (c Config) defaults() Config {
	if c.FrustrationThreshold == 0 {
		c.FrustrationThreshold = 0.8
	}
	if c.FrustrationTurns == 0 {
		c.FrustrationTurns = 2
	}
	if c.SentimentThreshold == 0 {
		c.SentimentThreshold = -0.5
	}
	if c.Timeout == 0 {
		c.Timeout = 15 * time.Second
	}
	if c.RateLimit == 0 {
		c.RateLimit = 10
	}
	if c.RateBurst == 0 {
		c.RateBurst = 30
	}
	if c.Retry == (RetryConfig{}) {
		c.Retry = DefaultRetryConfig()
	}
	return c
}

// Classifier decides what the agent does with a customer message.
type Classifier struct {
	g        *genkit.Genkit
	registry *tools.Registry
	cfg      Config
	limiter  *rate.Limiter
	logger   log.Logger
}

// New creates a classifier backed by the given Genkit instance.
func New(g *genkit.Genkit, registry *tools.Registry, cfg Config, logger log.Logger) *Classifier {
	cfg = cfg.defaults()
	return &Classifier{
		g:        g,
		registry: registry,
		cfg:      cfg,
		limiter:  rate.NewLimiter(cfg.RateLimit, cfg.RateBurst),
		logger:   logger.With("component", "classifier"),
	}
}

// humanRequestPhrases trigger an explicit-request escalation without
// consulting the model.
var humanRequestPhrases = []string{
	"talk to a human",
	"speak to a human",
	"talk to a person",
	"speak to a person",
	"real person",
	"human agent",
	"speak to an agent",
	"talk to an agent",
	"speak to a representative",
	"talk to a representative",
	"speak to a manager",
	"talk to a manager",
	"speak to someone",
	"talk to someone",
}

// Classify returns the routing decision for message. conv is the transcript
// BEFORE the message; score is the detector's reading of the message itself.
//
// Classify never returns an error: when the model is unavailable or its
// output is unusable, the decision is a clarification.
func (c *Classifier) Classify(ctx context.Context, conv *conversation.Conversation,
	message string, score conversation.Score) conversation.Decision {

	if d, ok := c.override(conv, message, score); ok {
		return d
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	raw, err := c.generate(ctx, buildPrompt(c.registry, conv, message))
	if err != nil {
		c.logger.Warn("classification failed, asking for clarification", "error", err)
		return conversation.Decision{Action: conversation.ActionClarify}
	}

	d, err := parseDecision(raw)
	if err != nil {
		c.logger.Warn("unusable classifier output, asking for clarification",
			"error", err, "raw", truncate(raw, 200))
		return conversation.Decision{Action: conversation.ActionClarify}
	}

	return c.sanitize(d)
}

// override applies the deterministic rules that run before the model.
func (c *Classifier) override(conv *conversation.Conversation, message string,
	score conversation.Score) (conversation.Decision, bool) {

	if len(score.FlaggedTerms) > 0 {
		c.logger.Info("sensitive terms flagged, escalating",
			"conversation", conv.ID, "terms", score.FlaggedTerms)
		return conversation.Decision{
			Action: conversation.ActionEscalate,
			Reason: conversation.ReasonSensitiveTopic,
		}, true
	}

	if run := c.frustratedRun(conv, score); run >= c.cfg.FrustrationTurns {
		c.logger.Info("frustration threshold reached, escalating",
			"conversation", conv.ID, "consecutive_turns", run)
		return conversation.Decision{
			Action: conversation.ActionEscalate,
			Reason: conversation.ReasonFrustrationThreshold,
		}, true
	}

	lower := strings.ToLower(message)
	for _, phrase := range humanRequestPhrases {
		if strings.Contains(lower, phrase) {
			return conversation.Decision{
				Action: conversation.ActionEscalate,
				Reason: conversation.ReasonExplicitRequest,
			}, true
		}
	}

	return conversation.Decision{}, false
}

// frustratedRun counts trailing frustrated customer turns, current message
// included. A turn is frustrated when its frustration score exceeds the
// threshold or its sentiment is at or below the sentiment threshold.
func (c *Classifier) frustratedRun(conv *conversation.Conversation, current conversation.Score) int {
	if !c.frustrated(&current) {
		return 0
	}
	run := 1
	for i := len(conv.Turns) - 1; i >= 0; i-- {
		t := conv.Turns[i]
		if t.Role != conversation.RoleCustomer {
			continue
		}
		if !c.frustrated(t.Score) {
			break
		}
		run++
	}
	return run
}

func (c *Classifier) frustrated(s *conversation.Score) bool {
	if s == nil {
		return false
	}
	return s.Frustration > c.cfg.FrustrationThreshold || s.Sentiment <= c.cfg.SentimentThreshold
}

// sanitize validates a parsed model decision. Anything the agent cannot act
// on safely degrades to a clarification.
func (c *Classifier) sanitize(d conversation.Decision) conversation.Decision {
	switch d.Action {
	case conversation.ActionAnswer, conversation.ActionClarify:
		d.Tool, d.Args, d.Reason = "", nil, ""
		return d

	case conversation.ActionInvokeTool:
		if _, err := c.registry.Get(d.Tool); err != nil {
			c.logger.Warn("classifier chose unknown tool, asking for clarification", "tool", d.Tool)
			return conversation.Decision{Action: conversation.ActionClarify}
		}
		d.Reason = ""
		return d

	case conversation.ActionEscalate:
		if !knownReason(d.Reason) {
			d.Reason = conversation.ReasonModelDirected
		}
		d.Tool, d.Args = "", nil
		return d

	default:
		c.logger.Warn("classifier returned unknown action, asking for clarification", "action", d.Action)
		return conversation.Decision{Action: conversation.ActionClarify}
	}
}

// knownReason reports whether the model may claim this escalation reason.
// The deterministic triggers are reserved for the override rules.
func knownReason(r conversation.EscalationReason) bool {
	switch r {
	case conversation.ReasonExplicitRequest, conversation.ReasonModelDirected:
		return true
	}
	return false
}

// parseDecision decodes the model's JSON output into a Decision.
func parseDecision(raw string) (conversation.Decision, error) {
	text := stripCodeFences(strings.TrimSpace(raw))
	if text == "" {
		return conversation.Decision{}, errEmptyResponse
	}

	var d conversation.Decision
	if err := json.Unmarshal([]byte(text), &d); err != nil {
		return conversation.Decision{}, err
	}
	return d, nil
}
