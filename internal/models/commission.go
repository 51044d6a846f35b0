package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RuleSetVersion is one immutable published version of the commission
// schedule. An order is always evaluated against the version effective at
// its confirmation time, so publishing a new version never changes entries
// already written for past orders.
type RuleSetVersion struct {
	ID            uuid.UUID        `gorm:"type:uuid;primary_key" json:"id"`
	EffectiveFrom time.Time        `gorm:"not null;index" json:"effective_from"`
	PublishedAt   time.Time        `json:"published_at"`
	Notes         string           `gorm:"type:text" json:"notes"`
	Rules         []CommissionRule `gorm:"foreignKey:VersionID" json:"rules"`
	CreatedAt     time.Time        `json:"created_at"`
}

func (v *RuleSetVersion) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}

// CommissionRule defines the payout for a single upline level within a
// rule set version. Level 1 is the direct sponsor.
type CommissionRule struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	VersionID uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_rule_version_level" json:"version_id"`
	Level     int       `gorm:"not null;uniqueIndex:idx_rule_version_level" json:"level"`

	Percent decimal.Decimal `gorm:"type:decimal(10,4);not null" json:"percent"`

	// Qualification thresholds evaluated against the beneficiary's state at
	// order confirmation time. Zero means no requirement.
	MinPersonalVolume decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"min_personal_volume"`
	MinActiveDownline int             `gorm:"default:0" json:"min_active_downline"`

	CreatedAt time.Time `json:"created_at"`
}

func (r *CommissionRule) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// CommissionEntryState represents the settlement state of a ledger entry
type CommissionEntryState string

const (
	CommissionStateAccrued  CommissionEntryState = "accrued"
	CommissionStatePaid     CommissionEntryState = "paid"
	CommissionStateReversed CommissionEntryState = "reversed"
)

// CommissionEntry is one row of the append-only commission ledger. Entries
// are never updated in place except for the accrued -> paid settlement
// transition; a cancellation writes a compensating entry with negated
// amount that references the original through ReversesEntryID.
type CommissionEntry struct {
	ID              uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	OrderID         uuid.UUID `gorm:"type:uuid;not null;index" json:"order_id"`
	Order           Order     `gorm:"foreignKey:OrderID" json:"-"`
	PartnerID       uuid.UUID `gorm:"type:uuid;not null;index" json:"partner_id"`
	Partner         Partner   `gorm:"foreignKey:PartnerID" json:"-"`
	SourcePartnerID uuid.UUID `gorm:"type:uuid;not null" json:"source_partner_id"`

	Level      int             `gorm:"not null" json:"level"`
	Percent    decimal.Decimal `gorm:"type:decimal(10,4);not null" json:"percent"`
	BaseAmount decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"base_amount"`
	Amount     decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`

	State CommissionEntryState `gorm:"type:varchar(20);not null;default:'accrued';index" json:"state"`

	// Set on compensating entries only: the accrued entry being cancelled
	ReversesEntryID *uuid.UUID `gorm:"type:uuid;index" json:"reverses_entry_id"`

	CreatedAt time.Time  `json:"created_at"`
	PaidAt    *time.Time `json:"paid_at"`
}

func (e *CommissionEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
