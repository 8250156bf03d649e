package handoff

import (
	"github.com/caspar0/caspar/internal/conversation"
	"github.com/caspar0/caspar/internal/tools"
)

// urgency is an abstract urgency level mapped onto the configured tier list.
// 0 is most urgent. With fewer configured tiers than levels, lower levels
// collapse into the last tier.
type urgency int

const (
	urgencyTop urgency = iota
	urgencyHigh
	urgencyNormal
	urgencyLow
)

// baseUrgency maps escalation triggers to urgency levels.
//
// Safety and legal exposure outranks everything. A customer who asked for a
// person, or one visibly frustrated, outranks failed tools; failed tools
// outrank process triggers (clarify loops, turn caps).
func baseUrgency(trigger conversation.EscalationReason) urgency {
	switch trigger {
	case conversation.ReasonSensitiveTopic:
		return urgencyTop
	case conversation.ReasonFrustrationThreshold, conversation.ReasonExplicitRequest:
		return urgencyHigh
	case conversation.ReasonToolFailure, conversation.ReasonModelDirected:
		return urgencyNormal
	case conversation.ReasonClarifyLoop, conversation.ReasonMaxTurns:
		return urgencyLow
	default:
		return urgencyNormal
	}
}

// derivePriority maps a trigger and customer onto a configured tier name.
// An entry in cfg.TriggerTiers replaces the built-in mapping for that
// trigger. With VIPBoost set, gold and platinum customers move one level up.
func derivePriority(trigger conversation.EscalationReason, customerRef string, cfg Config) string {
	idx := int(baseUrgency(trigger))
	if name, ok := cfg.TriggerTiers[string(trigger)]; ok {
		if i := tierIndex(cfg.Tiers, name); i < len(cfg.Tiers) {
			idx = i
		}
	}

	if cfg.VIPBoost && idx > 0 {
		if tier, ok := tools.CustomerTier(customerRef); ok && tier.VIP() {
			idx--
		}
	}

	if idx >= len(cfg.Tiers) {
		idx = len(cfg.Tiers) - 1
	}
	return cfg.Tiers[idx]
}

// tierIndex returns the ordering rank of a tier name, unknown tiers last.
func tierIndex(tiers []string, name string) int {
	for i, t := range tiers {
		if t == name {
			return i
		}
	}
	return len(tiers)
}
