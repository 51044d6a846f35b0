package subscription

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nanorem/backend/internal/models"
	"gorm.io/gorm"
)

var (
	// ErrPartnerNotFound is returned when the partner does not exist
	ErrPartnerNotFound = errors.New("partner not found")
	// ErrTerminatedPartner is returned when operating on a terminated partner
	ErrTerminatedPartner = errors.New("partner is terminated")
)

// SubscriptionService manages partner subscription periods. A partner whose
// subscription lapses drops to inactive and stops qualifying for commissions
// until the subscription is renewed.
type SubscriptionService struct {
	db *gorm.DB
}

// NewSubscriptionService creates a new subscription service
func NewSubscriptionService(db *gorm.DB) *SubscriptionService {
	return &SubscriptionService{db: db}
}

// Activate extends a partner's subscription by the given duration and
// restores active status if the partner was inactive
func (s *SubscriptionService) Activate(partnerID uuid.UUID, duration time.Duration) (*models.Partner, error) {
	var partner models.Partner
	if err := s.db.First(&partner, "id = ?", partnerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPartnerNotFound
		}
		return nil, fmt.Errorf("failed to get partner: %w", err)
	}

	if partner.Status == models.PartnerStatusTerminated {
		return nil, ErrTerminatedPartner
	}

	// Extensions stack on the remaining period rather than resetting it
	base := time.Now()
	if partner.SubscriptionEndsAt != nil && partner.SubscriptionEndsAt.After(base) {
		base = *partner.SubscriptionEndsAt
	}
	endsAt := base.Add(duration)

	updates := map[string]interface{}{
		"subscription_ends_at": endsAt,
	}
	if partner.Status == models.PartnerStatusInactive {
		updates["status"] = models.PartnerStatusActive
	}

	if err := s.db.Model(&partner).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to activate subscription: %w", err)
	}

	partner.SubscriptionEndsAt = &endsAt
	if partner.Status == models.PartnerStatusInactive {
		partner.Status = models.PartnerStatusActive
	}
	return &partner, nil
}

// DaysUntilExpiry returns the whole days left on a partner's subscription.
// Partners without a subscription end date report -1.
func (s *SubscriptionService) DaysUntilExpiry(partnerID uuid.UUID) (int, error) {
	var partner models.Partner
	if err := s.db.First(&partner, "id = ?", partnerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrPartnerNotFound
		}
		return 0, fmt.Errorf("failed to get partner: %w", err)
	}

	if partner.SubscriptionEndsAt == nil {
		return -1, nil
	}

	remaining := time.Until(*partner.SubscriptionEndsAt)
	if remaining < 0 {
		return 0, nil
	}
	return int(remaining.Hours() / 24), nil
}

// ExpiringSoon lists active partners whose subscription ends within the
// given window, for reminder notifications
func (s *SubscriptionService) ExpiringSoon(window time.Duration) ([]models.Partner, error) {
	var partners []models.Partner
	deadline := time.Now().Add(window)
	err := s.db.Where(
		"status = ? AND subscription_ends_at IS NOT NULL AND subscription_ends_at BETWEEN ? AND ?",
		models.PartnerStatusActive, time.Now(), deadline,
	).Find(&partners).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list expiring partners: %w", err)
	}
	return partners, nil
}

// ExpireOverdue drops every active partner with a lapsed subscription to
// inactive and writes an audit row per partner. Returns the affected
// partners so callers can notify them.
func (s *SubscriptionService) ExpireOverdue() ([]models.Partner, error) {
	var expired []models.Partner

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where(
			"status = ? AND subscription_ends_at IS NOT NULL AND subscription_ends_at < ?",
			models.PartnerStatusActive, time.Now(),
		).Find(&expired).Error; err != nil {
			return fmt.Errorf("failed to find overdue partners: %w", err)
		}

		for i := range expired {
			if err := tx.Model(&models.Partner{}).Where("id = ?", expired[i].ID).
				Update("status", models.PartnerStatusInactive).Error; err != nil {
				return fmt.Errorf("failed to expire partner %s: %w", expired[i].ID, err)
			}
			expired[i].Status = models.PartnerStatusInactive

			audit := models.NetworkAuditLog{
				PartnerID: expired[i].ID,
				EventType: models.NetworkEventExpired,
				Details: models.JSON{
					"subscription_ends_at": expired[i].SubscriptionEndsAt,
				},
			}
			if err := tx.Create(&audit).Error; err != nil {
				return fmt.Errorf("failed to write audit log: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return expired, nil
}
