package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/caspar0/caspar/internal/conversation"
	"github.com/caspar0/caspar/internal/tools"
)

// maxResponseBytes limits classifier model response size (5 KB).
const maxResponseBytes = 5 * 1024

// transcriptTail is how many recent turns the prompt includes.
const transcriptTail = 6

var errEmptyResponse = errors.New("empty classifier response")

const promptHeader = `You are the intent router for a customer-service agent. Read the recent conversation and the customer's latest message, then choose exactly one action:
- "answer_from_knowledge": the question can be answered from the knowledge base (shipping, returns, warranty, account policies).
- "invoke_tool": a registered tool can handle the request. Set "tool" and "args" matching the tool's schema.
- "escalate": the customer explicitly asks for a human, or you cannot serve them safely. Set "reason" to "explicit_request" or "model_directed".
- "clarify": the intent is ambiguous. Ask nothing here; the agent phrases the question.

Available tools:
%s

Recent conversation:
%s

Customer message:
%s

Output JSON only, no prose: {"action": "...", "tool": "...", "args": {...}, "reason": "..."}`

// buildPrompt renders the classification prompt for one customer message.
func buildPrompt(registry *tools.Registry, conv *conversation.Conversation, message string) string {
	return fmt.Sprintf(promptHeader,
		describeTools(registry),
		renderTail(conv, transcriptTail),
		strings.TrimSpace(message))
}

// describeTools renders each registered tool as name, description, and
// argument schema, one block per tool.
func describeTools(registry *tools.Registry) string {
	var b strings.Builder
	for _, name := range registry.Names() {
		t, err := registry.Get(name)
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", t.Name(), t.Description())
		if schema, err := json.Marshal(t.Schema()); err == nil {
			fmt.Fprintf(&b, "  args schema: %s\n", schema)
		}
	}
	if b.Len() == 0 {
		return "(none)"
	}
	return strings.TrimRight(b.String(), "\n")
}

// renderTail renders the last n turns as "role: text" lines.
func renderTail(conv *conversation.Conversation, n int) string {
	turns := conv.Turns
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	if len(turns) == 0 {
		return "(conversation start)"
	}
	var b strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&b, "%s: %s\n", t.Role, truncate(t.Text, 300))
	}
	return strings.TrimRight(b.String(), "\n")
}

// stripCodeFences removes ```json ... ``` wrapping from model output.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
		if idx := strings.LastIndex(s, "```"); idx != -1 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	return s
}

// truncate shortens s to at most n bytes for prompts and logs, backing up to
// a rune boundary so a multibyte character is never split.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
