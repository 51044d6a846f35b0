package network

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nanorem/backend/internal/models"
	"github.com/nanorem/backend/internal/utils"
	"gorm.io/gorm"
)

// Sentinel errors surfaced to the order processor and the HTTP layer
var (
	ErrInvalidSponsor    = errors.New("sponsor does not exist or is terminated")
	ErrCycleDetected     = errors.New("reparenting would create a cycle in the sponsorship tree")
	ErrTerminatedPartner = errors.New("operation not permitted on a terminated partner")
	ErrPartnerNotFound   = errors.New("partner not found")
	ErrDuplicatePartner  = errors.New("partner already registered")
	ErrRootExists        = errors.New("network already has a root partner")
)

// NetworkService maintains the sponsorship forest and answers ancestry
// queries. The tree is stored as an indexed table of partner rows with a
// sponsor foreign key, validated on every write; it is never held as a
// mutable object graph.
type NetworkService struct {
	db    *gorm.DB
	locks *utils.KeyedMutex
}

// NewNetworkService creates a new network service
func NewNetworkService(db *gorm.DB) *NetworkService {
	return &NetworkService{
		db:    db,
		locks: utils.NewKeyedMutex(),
	}
}

// RegisterPartnerInput carries the fields needed to register a partner
type RegisterPartnerInput struct {
	TelegramID string
	FirstName  string
	LastName   string
	Username   string
	Email      string
	Phone      string
	SponsorID  *uuid.UUID
}

// Register creates a new active partner under the given sponsor. A nil
// sponsor is only accepted while the network is empty (bootstrap of the
// single root); afterwards every partner needs an existing, non-terminated
// sponsor.
func (s *NetworkService) Register(input RegisterPartnerInput) (*models.Partner, error) {
	var partner *models.Partner

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var existing models.Partner
		err := tx.Where("telegram_id = ?", input.TelegramID).First(&existing).Error
		if err == nil {
			return ErrDuplicatePartner
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("error checking existing partner: %w", err)
		}

		if input.SponsorID == nil {
			var count int64
			if err := tx.Model(&models.Partner{}).Count(&count).Error; err != nil {
				return fmt.Errorf("error counting partners: %w", err)
			}
			if count > 0 {
				return ErrRootExists
			}
		} else {
			var sponsor models.Partner
			if err := tx.First(&sponsor, "id = ?", *input.SponsorID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrInvalidSponsor
				}
				return fmt.Errorf("error finding sponsor: %w", err)
			}
			if sponsor.Status == models.PartnerStatusTerminated {
				return ErrInvalidSponsor
			}
		}

		now := time.Now()
		partner = &models.Partner{
			TelegramID:     input.TelegramID,
			FirstName:      input.FirstName,
			LastName:       input.LastName,
			Username:       input.Username,
			Email:          input.Email,
			Phone:          input.Phone,
			SponsorID:      input.SponsorID,
			Status:         models.PartnerStatusActive,
			JoinedAt:       now,
			LastActivityAt: now,
		}
		if err := tx.Create(partner).Error; err != nil {
			return fmt.Errorf("error creating partner: %w", err)
		}

		return s.audit(tx, models.NetworkAuditLog{
			EventType:    models.NetworkEventRegistered,
			PartnerID:    partner.ID,
			NewSponsorID: input.SponsorID,
		})
	})
	if err != nil {
		return nil, err
	}
	return partner, nil
}

// Reparent moves a partner under a new sponsor. The move is rejected when
// it would create a cycle (the new sponsor is a descendant of the partner,
// detected by walking the new sponsor's ancestor chain up to the root) or
// when either endpoint is terminated. The previous sponsor is recorded in
// the audit log so the move stays traceable.
func (s *NetworkService) Reparent(partnerID, newSponsorID uuid.UUID) error {
	unlock := s.locks.Lock(partnerID.String())
	defer unlock()

	return s.db.Transaction(func(tx *gorm.DB) error {
		if partnerID == newSponsorID {
			return ErrCycleDetected
		}

		var partner models.Partner
		if err := tx.First(&partner, "id = ?", partnerID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPartnerNotFound
			}
			return fmt.Errorf("error finding partner: %w", err)
		}

		var sponsor models.Partner
		if err := tx.First(&sponsor, "id = ?", newSponsorID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvalidSponsor
			}
			return fmt.Errorf("error finding new sponsor: %w", err)
		}

		if partner.Status == models.PartnerStatusTerminated || sponsor.Status == models.PartnerStatusTerminated {
			return ErrTerminatedPartner
		}

		// Walk the new sponsor's ancestor chain to the root; hitting the
		// partner being moved means the sponsor sits in its subtree.
		current := sponsor.SponsorID
		for current != nil {
			if *current == partnerID {
				return ErrCycleDetected
			}
			var ancestor models.Partner
			if err := tx.Select("id", "sponsor_id").First(&ancestor, "id = ?", *current).Error; err != nil {
				return fmt.Errorf("error walking ancestor chain: %w", err)
			}
			current = ancestor.SponsorID
		}

		previous := partner.SponsorID
		if err := tx.Model(&models.Partner{}).Where("id = ?", partnerID).
			Update("sponsor_id", newSponsorID).Error; err != nil {
			return fmt.Errorf("error updating sponsor: %w", err)
		}

		return s.audit(tx, models.NetworkAuditLog{
			EventType:         models.NetworkEventReparented,
			PartnerID:         partnerID,
			PreviousSponsorID: previous,
			NewSponsorID:      &newSponsorID,
		})
	})
}

// Terminate marks a partner terminated. The node and its edge stay in place
// so past orders keep their historical ancestry, but the partner may no
// longer sponsor anyone or be a reparent target. Idempotent.
func (s *NetworkService) Terminate(partnerID uuid.UUID) error {
	return s.setStatus(partnerID, models.PartnerStatusTerminated, models.NetworkEventTerminated)
}

// Suspend puts a partner on manual hold
func (s *NetworkService) Suspend(partnerID uuid.UUID) error {
	return s.setStatus(partnerID, models.PartnerStatusSuspended, models.NetworkEventSuspended)
}

// Reactivate returns a suspended or inactive partner to active status.
// Terminated partners cannot be reactivated.
func (s *NetworkService) Reactivate(partnerID uuid.UUID) error {
	return s.setStatus(partnerID, models.PartnerStatusActive, models.NetworkEventReactivated)
}

func (s *NetworkService) setStatus(partnerID uuid.UUID, status models.PartnerStatus, event models.NetworkEventType) error {
	unlock := s.locks.Lock(partnerID.String())
	defer unlock()

	return s.db.Transaction(func(tx *gorm.DB) error {
		var partner models.Partner
		if err := tx.First(&partner, "id = ?", partnerID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPartnerNotFound
			}
			return fmt.Errorf("error finding partner: %w", err)
		}

		if partner.Status == status {
			return nil
		}
		if partner.Status == models.PartnerStatusTerminated {
			return ErrTerminatedPartner
		}

		if err := tx.Model(&models.Partner{}).Where("id = ?", partnerID).
			Update("status", status).Error; err != nil {
			return fmt.Errorf("error updating status: %w", err)
		}

		return s.audit(tx, models.NetworkAuditLog{
			EventType: event,
			PartnerID: partnerID,
			Details:   models.JSON{"previous_status": string(partner.Status)},
		})
	})
}

// GetPartner looks a partner up by id
func (s *NetworkService) GetPartner(partnerID uuid.UUID) (*models.Partner, error) {
	var partner models.Partner
	if err := s.db.First(&partner, "id = ?", partnerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPartnerNotFound
		}
		return nil, fmt.Errorf("error finding partner: %w", err)
	}
	return &partner, nil
}

// GetPartnerByTelegramID looks a partner up by the external messaging id
func (s *NetworkService) GetPartnerByTelegramID(telegramID string) (*models.Partner, error) {
	var partner models.Partner
	if err := s.db.Where("telegram_id = ?", telegramID).First(&partner).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPartnerNotFound
		}
		return nil, fmt.Errorf("error finding partner: %w", err)
	}
	return &partner, nil
}

// AncestorsOf returns the ancestor chain of a partner, nearest first,
// truncated at maxDepth or the root. The partner itself is never included.
func (s *NetworkService) AncestorsOf(partnerID uuid.UUID, maxDepth int) ([]uuid.UUID, error) {
	snapshot, err := s.Snapshot(s.db)
	if err != nil {
		return nil, err
	}
	var ids []uuid.UUID
	for ancestor := range snapshot.Ancestors(partnerID, maxDepth) {
		ids = append(ids, ancestor.PartnerID)
	}
	return ids, nil
}

// RecordActivity bumps the partner's last activity timestamp
func (s *NetworkService) RecordActivity(partnerID uuid.UUID) error {
	return s.db.Model(&models.Partner{}).Where("id = ?", partnerID).
		Update("last_activity_at", time.Now()).Error
}

func (s *NetworkService) audit(tx *gorm.DB, entry models.NetworkAuditLog) error {
	if err := tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("error writing network audit log: %w", err)
	}
	return nil
}
