package handoff

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/caspar0/caspar/internal/conversation"
)

func sampleConversation() *conversation.Conversation {
	now := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	conv := conversation.New("CUST-1002", now)
	conv.Turns = []conversation.Turn{
		{Seq: 1, Role: conversation.RoleCustomer, Text: "where is order TF-10003",
			Score: &conversation.Score{Sentiment: -0.1, Frustration: 0.2}},
		{Seq: 2, Role: conversation.RoleAgent, Text: "let me check",
			Decision: &conversation.Decision{Action: conversation.ActionInvokeTool, Tool: "order_lookup"},
			Tool: &conversation.ToolResult{Tool: "order_lookup", Success: false,
				ErrorKind: "transient", Error: "upstream timeout", Attempts: 3}},
		{Seq: 3, Role: conversation.RoleCustomer, Text: "this is ridiculous, still nothing?!",
			Score: &conversation.Score{Sentiment: -0.8, Frustration: 0.9}},
	}
	return conv
}

func TestBuildContext(t *testing.T) {
	conv := sampleConversation()
	now := time.Date(2026, 8, 29, 9, 5, 0, 0, time.UTC)

	pkg := BuildContext(conv, conversation.ReasonFrustrationThreshold, now)

	if pkg.ConversationID != conv.ID || pkg.CustomerRef != "CUST-1002" {
		t.Errorf("identity fields = %s/%s", pkg.ConversationID, pkg.CustomerRef)
	}
	if len(pkg.Transcript) != 3 {
		t.Errorf("transcript turns = %d, want 3", len(pkg.Transcript))
	}
	if want := []float64{0.2, 0.9}; len(pkg.FrustrationTrend) != 2 ||
		pkg.FrustrationTrend[0] != want[0] || pkg.FrustrationTrend[1] != want[1] {
		t.Errorf("frustration trend = %v, want %v", pkg.FrustrationTrend, want)
	}
	if len(pkg.AttemptedTools) != 1 || pkg.AttemptedTools[0].Tool != "order_lookup" {
		t.Errorf("attempted tools = %v", pkg.AttemptedTools)
	}
	if !pkg.PackagedAt.Equal(now) {
		t.Errorf("PackagedAt = %s, want %s", pkg.PackagedAt, now)
	}
}

func TestBuildContext_Summary(t *testing.T) {
	pkg := BuildContext(sampleConversation(), conversation.ReasonFrustrationThreshold, time.Now())

	for _, want := range []string{"CUST-1002", "frustration_threshold", "3 turns", "still nothing"} {
		if !strings.Contains(pkg.Summary, want) {
			t.Errorf("summary %q missing %q", pkg.Summary, want)
		}
	}
}

func TestBuildContext_SuggestedActions(t *testing.T) {
	tests := []struct {
		name    string
		trigger conversation.EscalationReason
		want    string
	}{
		{"sensitive", conversation.ReasonSensitiveTopic, "legal/safety"},
		{"frustration", conversation.ReasonFrustrationThreshold, "frustration"},
		{"tool failure", conversation.ReasonToolFailure, "back office"},
		{"clarify loop", conversation.ReasonClarifyLoop, "open question"},
		{"max turns", conversation.ReasonMaxTurns, "transcript tail"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkg := BuildContext(sampleConversation(), tt.trigger, time.Now())
			joined := strings.Join(pkg.SuggestedActions, "\n")
			if !strings.Contains(joined, tt.want) {
				t.Errorf("actions %q missing %q", joined, tt.want)
			}
			// The failed order_lookup always earns a follow-up line.
			if !strings.Contains(joined, "order_lookup") {
				t.Errorf("actions %q missing failed-tool follow-up", joined)
			}
		})
	}
}

func TestBuildContext_PriorEscalationNoted(t *testing.T) {
	conv := sampleConversation()
	conv.Escalated = true
	conv.CaseID = "HO-DEADBEEF"

	pkg := BuildContext(conv, conversation.ReasonExplicitRequest, time.Now())
	joined := strings.Join(pkg.SuggestedActions, "\n")
	if !strings.Contains(joined, "prior escalation") {
		t.Errorf("actions %q missing prior-escalation note", joined)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate(short) = %q", got)
	}
	long := strings.Repeat("x", 150)
	got := truncate(long, 140)
	if len([]rune(got)) != 141 || !strings.HasSuffix(got, "…") {
		t.Errorf("truncate long = %d runes, suffix ok = %v", len([]rune(got)), strings.HasSuffix(got, "…"))
	}

	// The cut backs up to a rune boundary; multibyte characters never split.
	multibyte := strings.Repeat("é", 80)
	for n := 1; n < 10; n++ {
		got := truncate(multibyte, n)
		if !utf8.ValidString(got) {
			t.Errorf("truncate(multibyte, %d) = %q, invalid UTF-8", n, got)
		}
		if len(got) > n+len("…") {
			t.Errorf("truncate(multibyte, %d) = %d bytes, want at most %d", n, len(got), n+len("…"))
		}
	}
}
