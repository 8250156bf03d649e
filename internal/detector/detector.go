// Package detector scores customer messages for sentiment, frustration, and
// sensitive topics. Scoring is pure and deterministic: the same message and
// history always produce the same Score, with no model call involved. The
// agent runs the detector before the classifier so escalation overrides never
// depend on LLM availability.
package detector

import (
	"strings"
	"unicode"

	"github.com/caspar0/caspar/internal/conversation"
)

// sensitiveTerms are phrases that force an immediate escalation regardless of
// what the classifier says. Single words match whole tokens; multi-word
// phrases ("legal action") match as substrings.
var sensitiveTerms = []string{
	"lawyer",
	"lawsuit",
	"legal action",
	"sue",
	"police",
	"fraud",
	"scam",
	"stolen",
	"safety",
	"dangerous",
	"injury",
	"injured",
	"hurt",
	"discrimination",
	"harassment",
	"cancel account",
	"delete my data",
	"gdpr",
}

// negativeTerms lower sentiment when present.
var negativeTerms = map[string]float64{
	"angry":        1.0,
	"furious":      1.0,
	"terrible":     1.0,
	"awful":        1.0,
	"horrible":     1.0,
	"worst":        1.0,
	"useless":      0.8,
	"ridiculous":   0.8,
	"unacceptable": 1.0,
	"disappointed": 0.6,
	"frustrated":   0.8,
	"frustrating":  0.8,
	"annoyed":      0.6,
	"annoying":     0.6,
	"broken":       0.5,
	"wrong":        0.4,
	"late":         0.4,
	"delayed":      0.4,
	"missing":      0.5,
	"lost":         0.5,
	"bad":          0.4,
	"waste":        0.6,
	"refund":       0.3,
	"complaint":    0.5,
	"never":        0.3,
}

// positiveTerms raise sentiment when present.
var positiveTerms = map[string]float64{
	"thanks":     0.6,
	"thank":      0.6,
	"great":      0.8,
	"perfect":    1.0,
	"awesome":    1.0,
	"excellent":  1.0,
	"good":       0.5,
	"helpful":    0.7,
	"appreciate": 0.7,
	"wonderful":  0.9,
	"love":       0.8,
	"happy":      0.7,
	"solved":     0.6,
	"works":      0.4,
}

// frustrationCues are phrasings that signal mounting frustration beyond plain
// negative sentiment.
var frustrationCues = []string{
	"still",
	"again",
	"already",
	"third time",
	"second time",
	"how many times",
	"every time",
	"nobody",
	"no one",
	"fed up",
	"give up",
	"sick of",
	"tired of",
	"waiting for",
	"hours",
	"weeks",
}

// carryoverPerTurn is the frustration added for each trailing customer turn
// that was itself frustrated. Frustration compounds across a bad exchange.
const carryoverPerTurn = 0.15

// Detector scores messages against the built-in lexicons.
// The zero value is not usable; call New.
type Detector struct {
	sensitive []string
}

// New creates a Detector. Extra sensitive terms from configuration are
// appended to the built-in list.
func New(extraSensitive ...string) *Detector {
	terms := make([]string, 0, len(sensitiveTerms)+len(extraSensitive))
	terms = append(terms, sensitiveTerms...)
	for _, t := range extraSensitive {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			terms = append(terms, t)
		}
	}
	return &Detector{sensitive: terms}
}

// Score rates a single customer message in the context of recent turns.
//
// Sentiment is in [-1, 1], frustration in [0, 1]. Empty or whitespace-only
// input returns the neutral zero Score.
func (d *Detector) Score(message string, recent []conversation.Turn) conversation.Score {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return conversation.Score{}
	}

	lower := strings.ToLower(trimmed)
	words := tokenize(lower)

	var negWeight, posWeight float64
	for _, w := range words {
		negWeight += negativeTerms[w]
		posWeight += positiveTerms[w]
	}

	sentiment := 0.0
	if negWeight+posWeight > 0 {
		sentiment = clamp((posWeight-negWeight)/(posWeight+negWeight), -1, 1)
	}

	frustration := baseFrustration(trimmed, lower, negWeight)

	// Compound with the recent exchange: a message that would read as mildly
	// annoyed in isolation reads worse after several frustrated turns.
	carry := trailingFrustrated(recent)
	frustration = clamp(frustration+float64(carry)*carryoverPerTurn, 0, 1)

	return conversation.Score{
		Sentiment:    sentiment,
		Frustration:  frustration,
		FlaggedTerms: d.flagged(lower),
	}
}

// flagged returns sensitive terms present in the lowercased message.
// Single-word terms match whole tokens only, so "sue" does not fire on
// "issue"; multi-word phrases match as substrings.
func (d *Detector) flagged(lower string) []string {
	words := tokenize(lower)
	wordSet := make(map[string]bool, len(words))
	for _, w := range words {
		wordSet[w] = true
	}

	var found []string
	for _, term := range d.sensitive {
		if strings.Contains(term, " ") {
			if strings.Contains(lower, term) {
				found = append(found, term)
			}
		} else if wordSet[term] {
			found = append(found, term)
		}
	}
	return found
}

// baseFrustration scores one message in isolation.
func baseFrustration(original, lower string, negWeight float64) float64 {
	score := 0.0

	// Negative vocabulary contributes directly.
	score += min(negWeight*0.25, 0.5)

	// Frustration phrasings.
	for _, cue := range frustrationCues {
		if strings.Contains(lower, cue) {
			score += 0.1
		}
	}

	// Shouting: exclamation runs and capitalized words.
	if strings.Contains(original, "!!") {
		score += 0.15
	} else if strings.Contains(original, "!") {
		score += 0.05
	}
	if capsRatio(original) > 0.5 {
		score += 0.2
	}

	return clamp(score, 0, 1)
}

// trailingFrustrated counts trailing customer turns with frustration > 0.5.
func trailingFrustrated(recent []conversation.Turn) int {
	count := 0
	for i := len(recent) - 1; i >= 0; i-- {
		t := recent[i]
		if t.Role != conversation.RoleCustomer {
			continue
		}
		if t.Score == nil || t.Score.Frustration <= 0.5 {
			break
		}
		count++
	}
	return count
}

// capsRatio returns the fraction of letters that are uppercase.
// Messages with fewer than 6 letters are ignored (acronyms, "OK").
func capsRatio(s string) float64 {
	var letters, upper int
	for _, r := range s {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	if letters < 6 {
		return 0
	}
	return float64(upper) / float64(letters)
}

// tokenize splits on non-letter runes.
func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
