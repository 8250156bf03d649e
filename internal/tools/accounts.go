package tools

import (
	"context"
	"strings"
)

// AccountInfoInput is the account_info argument schema.
type AccountInfoInput struct {
	CustomerRef string `json:"customer_ref" jsonschema:"Customer reference such as CUST-1002"`
}

// Tier is a customer loyalty tier. Gold and platinum customers get a
// priority boost when their complaints escalate.
type Tier string

const (
	TierBronze   Tier = "bronze"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
)

// VIP reports whether the tier qualifies for the escalation priority boost.
func (t Tier) VIP() bool {
	return t == TierGold || t == TierPlatinum
}

type account struct {
	Ref   string
	Name  string
	Email string
	Tier  Tier
}

// accountBook is the deterministic demo dataset, CUST-1000 through CUST-1004.
var accountBook = map[string]account{
	"CUST-1000": {Ref: "CUST-1000", Name: "Ada Moreno", Email: "ada.moreno@example.com", Tier: TierBronze},
	"CUST-1001": {Ref: "CUST-1001", Name: "Ben Osei", Email: "ben.osei@example.com", Tier: TierSilver},
	"CUST-1002": {Ref: "CUST-1002", Name: "Chiara Ricci", Email: "chiara.ricci@example.com", Tier: TierGold},
	"CUST-1003": {Ref: "CUST-1003", Name: "Dmitri Volkov", Email: "dmitri.volkov@example.com", Tier: TierPlatinum},
	"CUST-1004": {Ref: "CUST-1004", Name: "Emi Tanaka", Email: "emi.tanaka@example.com", Tier: TierSilver},
}

// CustomerTier returns the loyalty tier for a customer reference.
// Used by the handoff queue to derive case priority.
func CustomerTier(customerRef string) (Tier, bool) {
	a, ok := accountBook[strings.ToUpper(strings.TrimSpace(customerRef))]
	if !ok {
		return "", false
	}
	return a.Tier, true
}

// NewAccountInfo creates the account_info tool.
//
// Retry-safe: a read has no side effects. Not business-critical.
func NewAccountInfo() (*Tool, error) {
	return New[AccountInfoInput](
		"account_info",
		"Look up a customer's account profile: name, contact email, and loyalty tier.",
		Options{RetrySafe: true},
		func(_ context.Context, in AccountInfoInput) (map[string]any, error) {
			ref := strings.ToUpper(strings.TrimSpace(in.CustomerRef))
			if ref == "" {
				return nil, Errorf("account_info", KindInvalidArgs, "customer_ref is required")
			}
			a, ok := accountBook[ref]
			if !ok {
				return nil, Errorf("account_info", KindNotFound, "customer %s not found", ref)
			}
			return map[string]any{
				"customer_ref": a.Ref,
				"name":         a.Name,
				"email":        a.Email,
				"tier":         string(a.Tier),
			}, nil
		},
	)
}
