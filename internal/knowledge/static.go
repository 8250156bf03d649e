package knowledge

import (
	"context"
	"sort"
	"strings"
	"unicode"
)

// Static is an in-memory Retriever ranking passages by keyword overlap.
// Used in tests and in serve --memory mode where no database is available.
//
// Static is immutable after construction and safe for concurrent use.
type Static struct {
	passages []Passage
}

// NewStatic creates a Static retriever over the given passages.
func NewStatic(passages []Passage) *Static {
	cp := make([]Passage, len(passages))
	copy(cp, passages)
	return &Static{passages: cp}
}

// DefaultPassages is a small built-in help corpus for dev mode.
func DefaultPassages() []Passage {
	return []Passage{
		{ID: "kb-shipping-01", Text: "Standard shipping takes 3 to 5 business days. Express shipping takes 1 to 2 business days and is available at checkout."},
		{ID: "kb-shipping-02", Text: "You can track your order with the order ID from your confirmation email. Tracking updates appear once the carrier scans the package."},
		{ID: "kb-returns-01", Text: "Items can be returned within 30 days of delivery. Refunds are issued to the original payment method within 5 business days of receiving the return."},
		{ID: "kb-returns-02", Text: "To start a return, open your order history and select the item. A prepaid return label is generated automatically."},
		{ID: "kb-billing-01", Text: "If you were charged twice for the same order, the duplicate charge is usually a pending authorization that clears within 3 business days."},
		{ID: "kb-account-01", Text: "You can reset your password from the sign-in page. Password reset links expire after 24 hours."},
		{ID: "kb-account-02", Text: "Loyalty tiers are bronze, silver, gold, and platinum. Tier upgrades are applied at the start of each quarter based on the previous quarter's purchases."},
		{ID: "kb-warranty-01", Text: "All electronics carry a 12 month limited warranty covering manufacturing defects. Accidental damage is not covered."},
	}
}

// Retrieve ranks passages by token overlap with the query.
// Passages with zero overlap are not returned.
func (s *Static) Retrieve(_ context.Context, query string, k int) ([]Passage, error) {
	if k <= 0 {
		return nil, nil
	}

	queryTokens := tokens(query)
	if len(queryTokens) == 0 {
		return nil, nil
	}

	scored := make([]Passage, 0, len(s.passages))
	for _, p := range s.passages {
		score := overlap(queryTokens, tokens(p.Text))
		if score > 0 {
			scored = append(scored, Passage{ID: p.ID, Text: p.Text, Score: score})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// overlap scores how much of the query vocabulary a passage covers, in [0, 1].
func overlap(query, passage map[string]bool) float64 {
	if len(query) == 0 {
		return 0
	}
	hits := 0
	for tok := range query {
		if passage[tok] {
			hits++
		}
	}
	return float64(hits) / float64(len(query))
}

// stopwords excluded from overlap scoring.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "can": true, "do": true,
	"for": true, "how": true, "i": true, "in": true, "is": true, "it": true,
	"my": true, "of": true, "on": true, "or": true, "the": true, "to": true,
	"was": true, "what": true, "when": true, "where": true, "you": true,
}

func tokens(s string) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		if !stopwords[f] {
			set[f] = true
		}
	}
	return set
}
