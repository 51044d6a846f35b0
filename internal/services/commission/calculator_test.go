package commission

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanorem/backend/internal/models"
	"github.com/nanorem/backend/internal/services/network"
)

func pct(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func activeAncestor(id uuid.UUID) network.Ancestor {
	return network.Ancestor{
		PartnerID:      id,
		Status:         models.PartnerStatusActive,
		PersonalVolume: decimal.Zero,
	}
}

func testRules(percents ...int64) []models.CommissionRule {
	rules := make([]models.CommissionRule, 0, len(percents))
	for i, p := range percents {
		rules = append(rules, models.CommissionRule{
			Level:   i + 1,
			Percent: pct(p),
		})
	}
	return rules
}

func TestCalculateThreeLevelChain(t *testing.T) {
	// Chain R -> A -> B -> C where C buys. B is level 1, A level 2, R level 3.
	r := uuid.New()
	a := uuid.New()
	b := uuid.New()

	calc := NewCalculator(testRules(10, 5, 2))
	total := decimal.NewFromInt(1000)

	drafts := calc.Calculate(total, []network.Ancestor{
		activeAncestor(b),
		activeAncestor(a),
		activeAncestor(r),
	})

	require.Len(t, drafts, 3)

	assert.Equal(t, b, drafts[0].PartnerID)
	assert.Equal(t, 1, drafts[0].Level)
	assert.True(t, drafts[0].Amount.Equal(decimal.NewFromInt(100)), "level 1 got %s", drafts[0].Amount)

	assert.Equal(t, a, drafts[1].PartnerID)
	assert.Equal(t, 2, drafts[1].Level)
	assert.True(t, drafts[1].Amount.Equal(decimal.NewFromInt(50)), "level 2 got %s", drafts[1].Amount)

	assert.Equal(t, r, drafts[2].PartnerID)
	assert.Equal(t, 3, drafts[2].Level)
	assert.True(t, drafts[2].Amount.Equal(decimal.NewFromInt(20)), "level 3 got %s", drafts[2].Amount)
}

func TestCalculateForfeitsUnqualifiedLevelWithoutShifting(t *testing.T) {
	b := uuid.New()
	a := uuid.New()
	r := uuid.New()

	suspended := activeAncestor(a)
	suspended.Status = models.PartnerStatusSuspended

	calc := NewCalculator(testRules(10, 5, 2))
	drafts := calc.Calculate(decimal.NewFromInt(1000), []network.Ancestor{
		activeAncestor(b),
		suspended,
		activeAncestor(r),
	})

	// Level 2 is forfeited. R stays at level 3 with the 2% rate: the
	// suspended partner's share never rolls up to a deeper ancestor.
	require.Len(t, drafts, 2)
	assert.Equal(t, b, drafts[0].PartnerID)
	assert.Equal(t, 1, drafts[0].Level)
	assert.Equal(t, r, drafts[1].PartnerID)
	assert.Equal(t, 3, drafts[1].Level)
	assert.True(t, drafts[1].Amount.Equal(decimal.NewFromInt(20)))
}

func TestCalculateQualificationThresholds(t *testing.T) {
	id := uuid.New()
	rule := models.CommissionRule{
		Level:             1,
		Percent:           pct(10),
		MinPersonalVolume: decimal.NewFromInt(500),
		MinActiveDownline: 2,
	}
	calc := NewCalculator([]models.CommissionRule{rule})

	failsVolume := activeAncestor(id)
	failsVolume.PersonalVolume = decimal.NewFromInt(499)
	failsVolume.ActiveDownline = 2
	assert.Empty(t, calc.Calculate(decimal.NewFromInt(100), []network.Ancestor{failsVolume}))

	failsDownline := activeAncestor(id)
	failsDownline.PersonalVolume = decimal.NewFromInt(500)
	failsDownline.ActiveDownline = 1
	assert.Empty(t, calc.Calculate(decimal.NewFromInt(100), []network.Ancestor{failsDownline}))

	qualifies := activeAncestor(id)
	qualifies.PersonalVolume = decimal.NewFromInt(500)
	qualifies.ActiveDownline = 2
	assert.Len(t, calc.Calculate(decimal.NewFromInt(100), []network.Ancestor{qualifies}), 1)
}

func TestCalculateBankersRounding(t *testing.T) {
	calc := NewCalculator(testRules(10))

	// 10% of 0.25 is 0.025, which banker's rounding takes down to 0.02.
	drafts := calc.Calculate(decimal.RequireFromString("0.25"), []network.Ancestor{activeAncestor(uuid.New())})
	require.Len(t, drafts, 1)
	assert.True(t, drafts[0].Amount.Equal(decimal.RequireFromString("0.02")), "got %s", drafts[0].Amount)

	// 10% of 0.35 is 0.035, rounded to the even neighbour 0.04.
	drafts = calc.Calculate(decimal.RequireFromString("0.35"), []network.Ancestor{activeAncestor(uuid.New())})
	require.Len(t, drafts, 1)
	assert.True(t, drafts[0].Amount.Equal(decimal.RequireFromString("0.04")), "got %s", drafts[0].Amount)
}

func TestPayoutCapCoversRoundedLevelSum(t *testing.T) {
	ruleList := testRules(20, 10, 5, 5, 5)
	total := decimal.RequireFromString("1000.15")

	// Rounding each level individually sums to 450.08, a cent above the
	// exact 450.0675 product. The cap must admit what Calculate emits.
	maxPayout := PayoutCap(total, ruleList)
	assert.True(t, maxPayout.Equal(decimal.RequireFromString("450.08")), "cap is %s", maxPayout)

	ancestors := make([]network.Ancestor, 5)
	for i := range ancestors {
		ancestors[i] = activeAncestor(uuid.New())
	}
	drafts := NewCalculator(ruleList).Calculate(total, ancestors)
	require.Len(t, drafts, 5)

	sum := decimal.Zero
	for _, d := range drafts {
		sum = sum.Add(d.Amount)
	}
	assert.True(t, sum.LessThanOrEqual(maxPayout), "drafts sum %s exceeds cap %s", sum, maxPayout)
	assert.True(t, sum.Equal(maxPayout))
}

func TestCalculateRootBuyerYieldsNoDrafts(t *testing.T) {
	calc := NewCalculator(testRules(10, 5))
	assert.Empty(t, calc.Calculate(decimal.NewFromInt(1000), nil))
}

func TestCalculateChainShorterThanSchedule(t *testing.T) {
	calc := NewCalculator(testRules(10, 5, 2))
	drafts := calc.Calculate(decimal.NewFromInt(1000), []network.Ancestor{activeAncestor(uuid.New())})
	require.Len(t, drafts, 1)
	assert.Equal(t, 1, drafts[0].Level)
}
