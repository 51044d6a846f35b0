package rules

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/nanorem/backend/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.RuleSetVersion{}, &models.CommissionRule{})
	require.NoError(t, err)

	return db
}

func levels(percents ...int64) []RuleInput {
	inputs := make([]RuleInput, 0, len(percents))
	for i, p := range percents {
		inputs = append(inputs, RuleInput{Level: i + 1, Percent: decimal.NewFromInt(p)})
	}
	return inputs
}

func TestPublishAndLookup(t *testing.T) {
	svc := NewRuleService(setupTestDB(t))

	effective := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	version, err := svc.Publish(effective, levels(20, 10, 5), "launch schedule")
	require.NoError(t, err)
	require.Len(t, version.Rules, 3)

	ruleList, err := svc.ActiveRulesAt(effective.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, ruleList, 3)
	assert.Equal(t, 1, ruleList[0].Level)
	assert.True(t, ruleList[0].Percent.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, 3, ruleList[2].Level)
}

func TestActiveRulesAtBeforeFirstVersion(t *testing.T) {
	svc := NewRuleService(setupTestDB(t))

	effective := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := svc.Publish(effective, levels(20), "")
	require.NoError(t, err)

	_, err = svc.ActiveRulesAt(effective.Add(-time.Second))
	assert.ErrorIs(t, err, ErrRuleSetMissing)
}

func TestActiveRulesAtPinsToEffectiveVersion(t *testing.T) {
	svc := NewRuleService(setupTestDB(t))

	v1From := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	v2From := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	_, err := svc.Publish(v1From, levels(20, 10), "")
	require.NoError(t, err)
	_, err = svc.Publish(v2From, levels(15, 7, 3), "mid-year revision")
	require.NoError(t, err)

	// A timestamp between the two versions still resolves to the first
	// schedule, so already confirmed orders replay identically.
	ruleList, err := svc.ActiveRulesAt(v2From.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, ruleList, 2)
	assert.True(t, ruleList[0].Percent.Equal(decimal.NewFromInt(20)))

	ruleList, err = svc.ActiveRulesAt(v2From)
	require.NoError(t, err)
	require.Len(t, ruleList, 3)
	assert.True(t, ruleList[0].Percent.Equal(decimal.NewFromInt(15)))
}

func TestPublishValidation(t *testing.T) {
	svc := NewRuleService(setupTestDB(t))
	now := time.Now()

	_, err := svc.Publish(now, nil, "")
	assert.Error(t, err)

	_, err = svc.Publish(now, []RuleInput{
		{Level: 1, Percent: decimal.NewFromInt(10)},
		{Level: 1, Percent: decimal.NewFromInt(5)},
	}, "")
	assert.ErrorContains(t, err, "duplicate rule level")

	_, err = svc.Publish(now, []RuleInput{
		{Level: 0, Percent: decimal.NewFromInt(10)},
	}, "")
	assert.ErrorContains(t, err, "invalid rule level")

	_, err = svc.Publish(now, []RuleInput{
		{Level: 1, Percent: decimal.NewFromInt(-10)},
	}, "")
	assert.ErrorContains(t, err, "negative percentage")
}

func TestMaxLevelAndTotalPercent(t *testing.T) {
	ruleList := []models.CommissionRule{
		{Level: 1, Percent: decimal.NewFromInt(20)},
		{Level: 3, Percent: decimal.NewFromInt(5)},
		{Level: 2, Percent: decimal.NewFromInt(10)},
	}

	assert.Equal(t, 3, MaxLevel(ruleList))
	assert.True(t, TotalPercent(ruleList).Equal(decimal.NewFromInt(35)))

	assert.Equal(t, 0, MaxLevel(nil))
	assert.True(t, TotalPercent(nil).IsZero())
}
