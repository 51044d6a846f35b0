package rules

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/nanorem/backend/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ErrRuleSetMissing means no rule version is effective at the requested
// time. Order confirmation must stop on this error instead of silently
// applying zero commissions.
var ErrRuleSetMissing = errors.New("no commission rule set is effective at the given time")

// RuleInput defines one level of a schedule being published
type RuleInput struct {
	Level             int             `json:"level"`
	Percent           decimal.Decimal `json:"percent"`
	MinPersonalVolume decimal.Decimal `json:"min_personal_volume"`
	MinActiveDownline int             `json:"min_active_downline"`
}

// RuleService exposes the commission payout schedule. Versions are
// immutable once published; evaluation is always pinned to a timestamp so
// past orders stay reproducible after a new schedule goes live.
type RuleService struct {
	db *gorm.DB
}

// NewRuleService creates a new rule service
func NewRuleService(db *gorm.DB) *RuleService {
	return &RuleService{db: db}
}

// ActiveRulesAt returns the rules of the version effective at ts, ordered
// by level
func (s *RuleService) ActiveRulesAt(ts time.Time) ([]models.CommissionRule, error) {
	return s.activeRulesAt(s.db, ts)
}

// ActiveRulesAtTx is ActiveRulesAt running inside an existing transaction,
// used by the order processor to keep rule lookup and ledger commit in one
// consistent view
func (s *RuleService) ActiveRulesAtTx(tx *gorm.DB, ts time.Time) ([]models.CommissionRule, error) {
	return s.activeRulesAt(tx, ts)
}

func (s *RuleService) activeRulesAt(tx *gorm.DB, ts time.Time) ([]models.CommissionRule, error) {
	var version models.RuleSetVersion
	err := tx.Where("effective_from <= ?", ts).
		Order("effective_from DESC").
		First(&version).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRuleSetMissing
		}
		return nil, fmt.Errorf("error finding rule set version: %w", err)
	}

	var ruleList []models.CommissionRule
	if err := tx.Where("version_id = ?", version.ID).Order("level ASC").Find(&ruleList).Error; err != nil {
		return nil, fmt.Errorf("error loading commission rules: %w", err)
	}
	if len(ruleList) == 0 {
		return nil, ErrRuleSetMissing
	}
	return ruleList, nil
}

// Publish writes a new immutable rule set version effective from the given
// time. Past orders are unaffected; they stay pinned to the version that
// was effective at their confirmation.
func (s *RuleService) Publish(effectiveFrom time.Time, inputs []RuleInput, notes string) (*models.RuleSetVersion, error) {
	if len(inputs) == 0 {
		return nil, errors.New("a rule set needs at least one level")
	}

	sorted := append([]RuleInput(nil), inputs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Level < sorted[j].Level })

	seen := make(map[int]bool, len(sorted))
	for _, in := range sorted {
		if in.Level < 1 {
			return nil, fmt.Errorf("invalid rule level %d", in.Level)
		}
		if seen[in.Level] {
			return nil, fmt.Errorf("duplicate rule level %d", in.Level)
		}
		seen[in.Level] = true
		if in.Percent.IsNegative() {
			return nil, fmt.Errorf("negative percentage at level %d", in.Level)
		}
	}

	version := &models.RuleSetVersion{
		EffectiveFrom: effectiveFrom,
		PublishedAt:   time.Now(),
		Notes:         notes,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(version).Error; err != nil {
			return fmt.Errorf("error creating rule set version: %w", err)
		}
		for _, in := range sorted {
			rule := models.CommissionRule{
				VersionID:         version.ID,
				Level:             in.Level,
				Percent:           in.Percent,
				MinPersonalVolume: in.MinPersonalVolume,
				MinActiveDownline: in.MinActiveDownline,
			}
			if err := tx.Create(&rule).Error; err != nil {
				return fmt.Errorf("error creating commission rule: %w", err)
			}
			version.Rules = append(version.Rules, rule)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return version, nil
}

// MaxLevel returns the highest configured level in a rule list
func MaxLevel(ruleList []models.CommissionRule) int {
	max := 0
	for _, r := range ruleList {
		if r.Level > max {
			max = r.Level
		}
	}
	return max
}

// TotalPercent sums the percentages across all levels of a rule list. The
// ledger uses it to cap what an order may ever allocate.
func TotalPercent(ruleList []models.CommissionRule) decimal.Decimal {
	total := decimal.Zero
	for _, r := range ruleList {
		total = total.Add(r.Percent)
	}
	return total
}
