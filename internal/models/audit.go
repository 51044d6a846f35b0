package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NetworkEventType represents the type of network mutation being audited
type NetworkEventType string

const (
	NetworkEventRegistered  NetworkEventType = "PARTNER_REGISTERED"
	NetworkEventReparented  NetworkEventType = "PARTNER_REPARENTED"
	NetworkEventSuspended   NetworkEventType = "PARTNER_SUSPENDED"
	NetworkEventReactivated NetworkEventType = "PARTNER_REACTIVATED"
	NetworkEventTerminated  NetworkEventType = "PARTNER_TERMINATED"
	NetworkEventExpired     NetworkEventType = "PARTNER_STATUS_EXPIRED"
)

// NetworkAuditLog records every mutation of the sponsorship tree. A reparent
// keeps the previous sponsor so the move stays traceable after the fact.
type NetworkAuditLog struct {
	ID                uuid.UUID        `gorm:"type:uuid;primary_key" json:"id"`
	EventType         NetworkEventType `gorm:"type:varchar(50);not null;index" json:"event_type"`
	PartnerID         uuid.UUID        `gorm:"type:uuid;not null;index" json:"partner_id"`
	PreviousSponsorID *uuid.UUID       `gorm:"type:uuid" json:"previous_sponsor_id"`
	NewSponsorID      *uuid.UUID       `gorm:"type:uuid" json:"new_sponsor_id"`
	Details           JSON             `gorm:"type:jsonb" json:"details"`
	CreatedAt         time.Time        `json:"created_at"`
}

func (l *NetworkAuditLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
