package commission

import (
	"github.com/google/uuid"
	"github.com/nanorem/backend/internal/models"
	"github.com/nanorem/backend/internal/services/network"
	"github.com/shopspring/decimal"
)

// MinorUnitExponent is the number of decimal places of the settlement
// currency's minor unit
const MinorUnitExponent = 2

// Draft is a commission entry computed for one qualifying upline level,
// not yet written to the ledger
type Draft struct {
	PartnerID  uuid.UUID
	Level      int
	Percent    decimal.Decimal
	BaseAmount decimal.Decimal
	Amount     decimal.Decimal
}

// Calculator turns an order and an ancestor chain into commission drafts.
// It performs no I/O and is fully deterministic: the same inputs always
// produce the same drafts, which keeps the payout math exhaustively
// unit-testable.
type Calculator struct {
	rules map[int]models.CommissionRule
}

// NewCalculator builds a calculator over one rule set version
func NewCalculator(ruleList []models.CommissionRule) *Calculator {
	byLevel := make(map[int]models.CommissionRule, len(ruleList))
	for _, r := range ruleList {
		byLevel[r.Level] = r
	}
	return &Calculator{rules: byLevel}
}

// Calculate walks the ancestor chain, nearest first, and produces one draft
// per qualifying level.
//
// A level with no configured rule, or whose ancestor fails the rule's
// qualification, is forfeited: no draft is produced and the level is NOT
// reassigned to a deeper ancestor. Roll-up to the next qualifying ancestor
// is a different MLM policy and is deliberately not what this engine does.
//
// Amounts are total * percent rounded to the currency minor unit with
// banker's rounding; the residual from rounding is discarded so the order
// can never allocate more than its nominal total times the schedule.
//
// A buyer with no ancestors (the root) yields zero drafts; a buyer with
// fewer ancestors than configured levels yields fewer drafts. Neither is
// an error.
func (c *Calculator) Calculate(total decimal.Decimal, ancestors []network.Ancestor) []Draft {
	drafts := make([]Draft, 0, len(ancestors))

	for i, ancestor := range ancestors {
		level := i + 1
		rule, ok := c.rules[level]
		if !ok {
			continue
		}
		if !c.qualifies(ancestor, rule) {
			continue
		}

		amount := total.Mul(rule.Percent).Div(decimal.NewFromInt(100)).RoundBank(MinorUnitExponent)
		drafts = append(drafts, Draft{
			PartnerID:  ancestor.PartnerID,
			Level:      level,
			Percent:    rule.Percent,
			BaseAmount: total,
			Amount:     amount,
		})
	}
	return drafts
}

// PayoutCap returns the most an order of the given total can allocate
// across the rule list: the sum of every level's rounded maximum. The cap
// must be built from the same per-level rounding Calculate applies, because
// rounding individual levels can push their sum above the exact
// total * percent/100 product by a cent or two.
func PayoutCap(total decimal.Decimal, ruleList []models.CommissionRule) decimal.Decimal {
	maxPayout := decimal.Zero
	for _, r := range ruleList {
		levelMax := total.Mul(r.Percent).Div(decimal.NewFromInt(100)).RoundBank(MinorUnitExponent)
		maxPayout = maxPayout.Add(levelMax)
	}
	return maxPayout
}

func (c *Calculator) qualifies(ancestor network.Ancestor, rule models.CommissionRule) bool {
	if ancestor.Status != models.PartnerStatusActive {
		return false
	}
	if ancestor.PersonalVolume.LessThan(rule.MinPersonalVolume) {
		return false
	}
	if ancestor.ActiveDownline < rule.MinActiveDownline {
		return false
	}
	return true
}
