// Package policy holds the static investment plan and loan tables. A Policy is
// built once at startup and is read-only afterwards.
package policy

import (
	"sort"

	"github.com/eaglebank/ledger-service/shared/models"
	"github.com/shopspring/decimal"
)

// Plan describes one investment tier.
type Plan struct {
	Key  string          `json:"key"`
	Name string          `json:"name"`
	Min  decimal.Decimal `json:"min"`
	Max  decimal.Decimal `json:"max"`
	Rate decimal.Decimal `json:"rate"`
	Term string          `json:"term"`
}

// Contains reports whether amount lies within [Min, Max].
func (p Plan) Contains(amount decimal.Decimal) bool {
	return amount.GreaterThanOrEqual(p.Min) && amount.LessThanOrEqual(p.Max)
}

// Range is an inclusive amount window.
type Range struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

func (r Range) Contains(amount decimal.Decimal) bool {
	return amount.GreaterThanOrEqual(r.Min) && amount.LessThanOrEqual(r.Max)
}

// Policy is the immutable rule set consulted by ledger operations.
type Policy struct {
	plans map[string]Plan

	// ApplyRange bounds ApplyForLoan regardless of verification.
	ApplyRange Range
	// KYCOfferRange bounds the offer generated on KYC submission.
	KYCOfferRange Range
	// UnverifiedRange and VerifiedRange are the display windows reported by LoanRange.
	UnverifiedRange Range
	VerifiedRange   Range
	// LoanMinBalance is the amount at least one counter must reach to apply.
	LoanMinBalance decimal.Decimal

	// Maturity window in months, inclusive.
	MinTermMonths int
	MaxTermMonths int
}

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

// DefaultPlans are the three reference tiers.
func DefaultPlans() []Plan {
	return []Plan{
		{Key: "starter", Name: "Starter", Min: d(100), Max: d(5000), Rate: decimal.RequireFromString("0.12"), Term: "3-8 months"},
		{Key: "growth", Name: "Growth", Min: d(5001), Max: d(25000), Rate: decimal.RequireFromString("0.18"), Term: "3-8 months"},
		{Key: "elite", Name: "Elite", Min: d(25001), Max: d(100000), Rate: decimal.RequireFromString("0.28"), Term: "3-8 months"},
	}
}

// Default returns the reference policy.
func Default() *Policy {
	return New(DefaultPlans())
}

// New builds a Policy from plans; the loan tables are fixed.
func New(plans []Plan) *Policy {
	p := &Policy{
		plans:           make(map[string]Plan, len(plans)),
		ApplyRange:      Range{Min: d(2000), Max: d(15000)},
		KYCOfferRange:   Range{Min: d(3000), Max: d(15000)},
		UnverifiedRange: Range{Min: d(2000), Max: d(5000)},
		VerifiedRange:   Range{Min: d(3000), Max: d(15000)},
		LoanMinBalance:  d(200),
		MinTermMonths:   3,
		MaxTermMonths:   8,
	}
	for _, plan := range plans {
		p.plans[plan.Key] = plan
	}
	return p
}

// Plan looks up a plan by key.
func (p *Policy) Plan(key string) (Plan, bool) {
	plan, ok := p.plans[key]
	return plan, ok
}

// Plans returns every plan ordered by minimum amount.
func (p *Policy) Plans() []Plan {
	out := make([]Plan, 0, len(p.plans))
	for _, plan := range p.plans {
		out = append(out, plan)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Min.LessThan(out[j].Min) })
	return out
}

// LoanRange is the window shown to a user depending on whether they have
// submitted an id document and SSN.
func (p *Policy) LoanRange(hasSubmittedIDSSN bool) Range {
	if hasSubmittedIDSSN {
		return p.VerifiedRange
	}
	return p.UnverifiedRange
}

// LoanEligible reports whether any single counter reaches LoanMinBalance.
func (p *Policy) LoanEligible(b models.Balance) bool {
	for _, key := range models.AccountKeys {
		v, _ := b.Get(key)
		if v.GreaterThanOrEqual(p.LoanMinBalance) {
			return true
		}
	}
	return false
}

// ExpectedReturn is amount * (1 + rate), rounded to cents.
func ExpectedReturn(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(decimal.NewFromInt(1).Add(rate)).Round(2)
}
