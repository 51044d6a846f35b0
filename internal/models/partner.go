package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PartnerStatus represents the lifecycle status of a partner
type PartnerStatus string

const (
	PartnerStatusActive     PartnerStatus = "active"
	PartnerStatusInactive   PartnerStatus = "inactive"
	PartnerStatusSuspended  PartnerStatus = "suspended"
	PartnerStatusTerminated PartnerStatus = "terminated"
)

// Partner represents a participant in the MLM network. Every partner except
// the designated root has exactly one sponsor. Partners are never physically
// deleted; terminated partners are retained so past commission entries keep
// a valid ancestry.
type Partner struct {
	ID         uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	TelegramID string     `gorm:"type:varchar(50);uniqueIndex;not null" json:"telegram_id"`
	FirstName  string     `gorm:"type:varchar(100);not null" json:"first_name"`
	LastName   string     `gorm:"type:varchar(100)" json:"last_name"`
	Username   string     `gorm:"type:varchar(100)" json:"username"`
	Email      string     `gorm:"type:varchar(255)" json:"email"`
	Phone      string     `gorm:"type:varchar(50)" json:"phone"`
	SponsorID  *uuid.UUID `gorm:"type:uuid;index" json:"sponsor_id"`
	Sponsor    *Partner   `gorm:"foreignKey:SponsorID" json:"-"`

	Status PartnerStatus `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`

	// Accumulated totals used by commission qualification checks
	TotalProcurement decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"total_procurement"`
	TotalCommissions decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"total_commissions"`

	JoinedAt           time.Time  `json:"joined_at"`
	LastActivityAt     time.Time  `json:"last_activity_at"`
	SubscriptionEndsAt *time.Time `json:"subscription_ends_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate sets a UUID primary key so the model works with databases
// that lack a uuid generation function
func (p *Partner) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// FullName returns the partner's display name
func (p *Partner) FullName() string {
	if p.LastName == "" {
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// IsActive reports whether the partner currently qualifies as active
func (p *Partner) IsActive() bool {
	return p.Status == PartnerStatusActive
}
