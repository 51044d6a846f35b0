package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderStatus represents the lifecycle status of an order
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order represents a partner's procurement. An order is mutable only while
// pending; once confirmed the only permitted change is the transition to
// cancelled, which triggers a compensating reversal in the ledger.
type Order struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	Reference string    `gorm:"type:varchar(50);uniqueIndex;not null" json:"reference"`
	BuyerID   uuid.UUID `gorm:"type:uuid;not null;index" json:"buyer_id"`
	Buyer     Partner   `gorm:"foreignKey:BuyerID" json:"-"`

	Items       []OrderItem     `gorm:"foreignKey:OrderID" json:"items"`
	TotalAmount decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"total_amount"`
	Currency    string          `gorm:"type:varchar(3);not null;default:'RUB'" json:"currency"`
	Status      OrderStatus     `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`

	// External reference from the vendor shop (order id on nanorvs.ru)
	ExternalRef string `gorm:"type:varchar(100);index" json:"external_ref"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ConfirmedAt *time.Time `json:"confirmed_at"`
	CancelledAt *time.Time `json:"cancelled_at"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// OrderItem is a single line of an order
type OrderItem struct {
	ID        uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	OrderID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"order_id"`
	ProductID uuid.UUID       `gorm:"type:uuid;not null" json:"product_id"`
	Product   Product         `gorm:"foreignKey:ProductID" json:"-"`
	Quantity  int             `gorm:"not null" json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"unit_price"`
	CreatedAt time.Time       `json:"created_at"`
}

func (i *OrderItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
