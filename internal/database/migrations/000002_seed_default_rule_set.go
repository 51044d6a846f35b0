package migrations

import (
	"time"

	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/google/uuid"
	"github.com/nanorem/backend/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// seedDefaultRuleSet installs the initial five level commission plan.
// Percentages follow the standard partner agreement: 20/10/5/5/5.
func seedDefaultRuleSet() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_seed_default_rule_set",
		Migrate: func(tx *gorm.DB) error {
			var count int64
			if err := tx.Model(&models.RuleSetVersion{}).Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return nil
			}

			version := models.RuleSetVersion{
				ID:            uuid.New(),
				EffectiveFrom: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
				PublishedAt:   time.Now(),
				Notes:         "Initial five level commission plan",
			}
			if err := tx.Create(&version).Error; err != nil {
				return err
			}

			percents := []int64{20, 10, 5, 5, 5}
			for i, p := range percents {
				rule := models.CommissionRule{
					ID:        uuid.New(),
					VersionID: version.ID,
					Level:     i + 1,
					Percent:   decimal.NewFromInt(p),
				}
				if err := tx.Create(&rule).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return nil
		},
	}
}
