package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product represents a catalog item synchronized from the vendor shop
type Product struct {
	ID          uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	ExternalID  string          `gorm:"type:varchar(100);uniqueIndex;not null" json:"external_id"`
	Slug        string          `gorm:"type:varchar(255);uniqueIndex;not null" json:"slug"`
	Name        string          `gorm:"type:varchar(255);not null" json:"name"`
	Description string          `gorm:"type:text" json:"description"`
	Category    string          `gorm:"type:varchar(100);index" json:"category"`
	Price       decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"price"`
	IsActive    bool            `gorm:"default:true" json:"is_active"`
	SyncedAt    time.Time       `json:"synced_at"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
