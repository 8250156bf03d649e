package handoff

import (
	"strings"

	"github.com/caspar0/caspar/internal/conversation"
	"github.com/caspar0/caspar/internal/log"
	"github.com/caspar0/caspar/internal/tools"
)

// Notifier is told about cases entering the queue so human agents can be
// alerted. Implementations must not call back into the queue.
type Notifier interface {
	CaseQueued(c *Case)
}

// HumanAgent is one entry in the notification roster.
type HumanAgent struct {
	ID        string
	Name      string
	Available bool
	Skills    []string
}

// DefaultRoster returns the built-in human agent roster used when no real
// directory is wired up.
func DefaultRoster() []HumanAgent {
	return []HumanAgent{
		{ID: "AGENT-001", Name: "Sarah Johnson", Available: true, Skills: []string{"technical", "billing"}},
		{ID: "AGENT-002", Name: "Mike Chen", Available: true, Skills: []string{"returns", "shipping"}},
		{ID: "AGENT-003", Name: "Emily Davis", Available: false, Skills: []string{"vip", "complaints"}},
	}
}

// LogNotifier announces queued cases to available roster agents via the log.
// A production deployment would swap this for a pager, chat, or dashboard
// integration; the queue only sees the Notifier interface.
type LogNotifier struct {
	roster []HumanAgent
	logger log.Logger
}

// NewLogNotifier creates a notifier over the given roster. An empty roster
// falls back to DefaultRoster.
func NewLogNotifier(logger log.Logger, roster ...HumanAgent) *LogNotifier {
	if len(roster) == 0 {
		roster = DefaultRoster()
	}
	return &LogNotifier{roster: roster, logger: logger}
}

// CaseQueued notifies every available agent with a matching skill, falling
// back to all available agents when nobody matches.
func (n *LogNotifier) CaseQueued(c *Case) {
	recipients := n.available(requiredSkill(c))
	if len(recipients) == 0 {
		recipients = n.available("")
	}
	if len(recipients) == 0 {
		n.logger.Warn("no human agents available for handoff case", "case", c.ID, "priority", c.Priority)
		return
	}

	brief := truncate(c.Reason, 100)
	for _, a := range recipients {
		n.logger.Info("human agent notified",
			"notification", newNotificationID(c.ID, a.ID),
			"agent", a.ID, "agent_name", a.Name,
			"case", c.ID, "priority", c.Priority,
			"customer", c.CustomerRef, "reason", brief)
	}
}

// available returns available agents, filtered by skill when one is given.
func (n *LogNotifier) available(skill string) []HumanAgent {
	var out []HumanAgent
	for _, a := range n.roster {
		if !a.Available {
			continue
		}
		if skill != "" && !hasSkill(a, skill) {
			continue
		}
		out = append(out, a)
	}
	return out
}

// requiredSkill picks the skill a case calls for: VIP customers route to VIP
// handlers, frustrated or sensitive conversations to complaint handlers.
func requiredSkill(c *Case) string {
	if tier, ok := tools.CustomerTier(c.CustomerRef); ok && tier.VIP() {
		return "vip"
	}
	switch c.Trigger {
	case conversation.ReasonFrustrationThreshold, conversation.ReasonSensitiveTopic:
		return "complaints"
	}
	return ""
}

func hasSkill(a HumanAgent, skill string) bool {
	for _, s := range a.Skills {
		if s == skill {
			return true
		}
	}
	return false
}

func newNotificationID(caseID, agentID string) string {
	return "NT-" + strings.TrimPrefix(caseID, "HO-") + "-" + agentID
}
