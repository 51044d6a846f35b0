package handlers

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nanorem/backend/internal/queue"
	"github.com/nanorem/backend/internal/services/network"
	"github.com/nanorem/backend/internal/services/subscription"
	"gorm.io/gorm"
)

// PartnerHandler handles partner lifecycle requests
type PartnerHandler struct {
	db              *gorm.DB
	networkSvc      *network.NetworkService
	subscriptionSvc *subscription.SubscriptionService
	queue           *queue.Queue
}

// NewPartnerHandler creates a new partner handler. q may be nil to skip
// sponsor notifications.
func NewPartnerHandler(db *gorm.DB, networkSvc *network.NetworkService, subscriptionSvc *subscription.SubscriptionService, q *queue.Queue) *PartnerHandler {
	return &PartnerHandler{
		db:              db,
		networkSvc:      networkSvc,
		subscriptionSvc: subscriptionSvc,
		queue:           q,
	}
}

// Register creates a new partner under a sponsor
func (h *PartnerHandler) Register(c *gin.Context) {
	var input struct {
		TelegramID string `json:"telegram_id" binding:"required"`
		FirstName  string `json:"first_name" binding:"required"`
		LastName   string `json:"last_name"`
		Username   string `json:"username"`
		Email      string `json:"email"`
		Phone      string `json:"phone"`
		SponsorID  string `json:"sponsor_id"`
	}

	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var sponsorID *uuid.UUID
	if input.SponsorID != "" {
		id, err := uuid.Parse(input.SponsorID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sponsor ID"})
			return
		}
		sponsorID = &id
	}

	partner, err := h.networkSvc.Register(network.RegisterPartnerInput{
		TelegramID: input.TelegramID,
		FirstName:  input.FirstName,
		LastName:   input.LastName,
		Username:   input.Username,
		Email:      input.Email,
		Phone:      input.Phone,
		SponsorID:  sponsorID,
	})
	if err != nil {
		status := networkErrorStatus(err)
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	if h.queue != nil && sponsorID != nil {
		if _, err := h.queue.EnqueueJob(queue.JobTypeNotifyNewPartner, map[string]interface{}{
			"partner_id": partner.ID,
			"sponsor_id": *sponsorID,
		}); err != nil {
			// Registration already succeeded; the sponsor notification is
			// best effort.
			log.Printf("failed to enqueue new partner notification: %v", err)
		}
	}

	c.JSON(http.StatusCreated, partner)
}

// Get returns a partner by id
func (h *PartnerHandler) Get(c *gin.Context) {
	partnerID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	partner, err := h.networkSvc.GetPartner(partnerID)
	if err != nil {
		c.JSON(networkErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, partner)
}

// GetByTelegramID returns a partner by the external messaging id
func (h *PartnerHandler) GetByTelegramID(c *gin.Context) {
	partner, err := h.networkSvc.GetPartnerByTelegramID(c.Param("telegram_id"))
	if err != nil {
		c.JSON(networkErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, partner)
}

// Reparent moves a partner under a new sponsor
func (h *PartnerHandler) Reparent(c *gin.Context) {
	partnerID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var input struct {
		NewSponsorID string `json:"new_sponsor_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	newSponsorID, err := uuid.Parse(input.NewSponsorID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sponsor ID"})
		return
	}

	if err := h.networkSvc.Reparent(partnerID, newSponsorID); err != nil {
		c.JSON(networkErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reparented"})
}

// Suspend puts a partner on hold
func (h *PartnerHandler) Suspend(c *gin.Context) {
	h.setStatus(c, h.networkSvc.Suspend, "suspended")
}

// Reactivate restores a suspended or inactive partner
func (h *PartnerHandler) Reactivate(c *gin.Context) {
	h.setStatus(c, h.networkSvc.Reactivate, "active")
}

// Terminate permanently removes a partner from commission qualification
func (h *PartnerHandler) Terminate(c *gin.Context) {
	h.setStatus(c, h.networkSvc.Terminate, "terminated")
}

func (h *PartnerHandler) setStatus(c *gin.Context, op func(uuid.UUID) error, status string) {
	partnerID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := op(partnerID); err != nil {
		c.JSON(networkErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}

// ActivateSubscription extends a partner's subscription period
func (h *PartnerHandler) ActivateSubscription(c *gin.Context) {
	partnerID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var input struct {
		Days int `json:"days" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	partner, err := h.subscriptionSvc.Activate(partnerID, time.Duration(input.Days)*24*time.Hour)
	if err != nil {
		switch {
		case errors.Is(err, subscription.ErrPartnerNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, subscription.ErrTerminatedPartner):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to activate subscription"})
		}
		return
	}
	c.JSON(http.StatusOK, partner)
}

// parseIDParam parses a uuid path parameter, writing the error response on
// failure
func parseIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

// networkErrorStatus maps network service errors to HTTP status codes
func networkErrorStatus(err error) int {
	switch {
	case errors.Is(err, network.ErrPartnerNotFound):
		return http.StatusNotFound
	case errors.Is(err, network.ErrDuplicatePartner),
		errors.Is(err, network.ErrRootExists),
		errors.Is(err, network.ErrCycleDetected),
		errors.Is(err, network.ErrTerminatedPartner):
		return http.StatusConflict
	case errors.Is(err, network.ErrInvalidSponsor):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
