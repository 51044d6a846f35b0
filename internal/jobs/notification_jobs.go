package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/nanorem/backend/internal/models"
	"github.com/nanorem/backend/internal/queue"
	"github.com/nanorem/backend/internal/services/notify"
	"gorm.io/gorm"
)

// CommissionNotificationPayload is the payload for a commission notification job
type CommissionNotificationPayload struct {
	EntryID   uuid.UUID `json:"entry_id"`
	PartnerID uuid.UUID `json:"partner_id"`
	Amount    string    `json:"amount"`
	Level     int       `json:"level"`
}

// NewPartnerNotificationPayload is the payload for a new partner notification job
type NewPartnerNotificationPayload struct {
	PartnerID uuid.UUID `json:"partner_id"`
	SponsorID uuid.UUID `json:"sponsor_id"`
}

// NotificationJobs translates queued jobs into outbound partner messages
type NotificationJobs struct {
	db        *gorm.DB
	notifySvc *notify.NotifyService
}

// NewNotificationJobs creates the notification job handlers
func NewNotificationJobs(db *gorm.DB, notifySvc *notify.NotifyService) *NotificationJobs {
	return &NotificationJobs{db: db, notifySvc: notifySvc}
}

// RegisterNotificationJobHandlers registers the notification job handlers
func RegisterNotificationJobHandlers(q *queue.Queue, db *gorm.DB, notifySvc *notify.NotifyService) {
	handler := NewNotificationJobs(db, notifySvc)
	q.RegisterHandler(queue.JobTypeNotifyCommission, handler.ProcessCommissionNotification)
	q.RegisterHandler(queue.JobTypeNotifyNewPartner, handler.ProcessNewPartnerNotification)
}

// ProcessCommissionNotification notifies a partner about an accrued commission
func (j *NotificationJobs) ProcessCommissionNotification(ctx context.Context, job queue.Job) (interface{}, error) {
	var payload CommissionNotificationPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal commission notification payload: %w", err)
	}

	var entry models.CommissionEntry
	if err := j.db.Preload("Order").First(&entry, "id = ?", payload.EntryID).Error; err != nil {
		return nil, fmt.Errorf("failed to get commission entry: %w", err)
	}

	var partner models.Partner
	if err := j.db.First(&partner, "id = ?", entry.PartnerID).Error; err != nil {
		return nil, fmt.Errorf("failed to get partner: %w", err)
	}

	if err := j.notifySvc.CommissionAccrued(ctx, &partner, entry.Amount, entry.Level, entry.Order.Reference); err != nil {
		return nil, fmt.Errorf("failed to queue commission notification: %w", err)
	}

	log.Printf("Queued commission notification for partner %s (level %d)", partner.ID, entry.Level)
	return nil, nil
}

// ProcessNewPartnerNotification notifies a sponsor about a new signup
func (j *NotificationJobs) ProcessNewPartnerNotification(ctx context.Context, job queue.Job) (interface{}, error) {
	var payload NewPartnerNotificationPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal new partner notification payload: %w", err)
	}

	var sponsor models.Partner
	if err := j.db.First(&sponsor, "id = ?", payload.SponsorID).Error; err != nil {
		return nil, fmt.Errorf("failed to get sponsor: %w", err)
	}

	var newPartner models.Partner
	if err := j.db.First(&newPartner, "id = ?", payload.PartnerID).Error; err != nil {
		return nil, fmt.Errorf("failed to get partner: %w", err)
	}

	if err := j.notifySvc.NewPartnerJoined(ctx, &sponsor, &newPartner); err != nil {
		return nil, fmt.Errorf("failed to queue new partner notification: %w", err)
	}
	return nil, nil
}
