package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nanorem/backend/internal/models"
	"github.com/nanorem/backend/internal/services/ledger"
	"github.com/nanorem/backend/internal/utils"
	"gorm.io/gorm"
)

// LedgerHandler exposes commission ledger queries and payout settlement
type LedgerHandler struct {
	db        *gorm.DB
	ledgerSvc *ledger.LedgerService
}

// NewLedgerHandler creates a new ledger handler
func NewLedgerHandler(db *gorm.DB, ledgerSvc *ledger.LedgerService) *LedgerHandler {
	return &LedgerHandler{db: db, ledgerSvc: ledgerSvc}
}

// Balance returns a partner's commission balance. The as_of query
// parameter (RFC 3339) replays the ledger up to that moment.
func (h *LedgerHandler) Balance(c *gin.Context) {
	partnerID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	asOf := time.Now()
	if raw := c.Query("as_of"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid as_of timestamp"})
			return
		}
		asOf = parsed
	}

	balance, err := h.ledgerSvc.BalanceOf(partnerID, asOf)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute balance"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"partner_id": partnerID,
		"as_of":      asOf,
		"balance":    balance,
	})
}

// Summary returns a partner's accrued, paid and reversed totals with a
// per-level breakdown
func (h *LedgerHandler) Summary(c *gin.Context) {
	partnerID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	summary, err := h.ledgerSvc.Summarize(partnerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to summarize ledger"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// OrderEntries returns all ledger entries written for an order, including
// compensating entries
func (h *LedgerHandler) OrderEntries(c *gin.Context) {
	orderID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	entries, err := h.ledgerSvc.OrderEntries(orderID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load entries"})
		return
	}
	c.JSON(http.StatusOK, entries)
}

// MarkPaid settles accrued entries as paid out. Disbursement moves real
// money, so the admin must confirm with a fresh TOTP code even though the
// session is already authenticated.
func (h *LedgerHandler) MarkPaid(c *gin.Context) {
	adminID, exists := c.Get("admin_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var input struct {
		EntryIDs []string `json:"entry_ids" binding:"required,min=1"`
		TOTPCode string   `json:"totp_code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var admin models.AdminUser
	if err := h.db.First(&admin, "id = ?", adminID).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if admin.TOTPSecret == "" || !utils.ValidateTOTPCode(admin.TOTPSecret, input.TOTPCode, utils.DefaultMFAConfig()) {
		c.JSON(http.StatusForbidden, gin.H{"error": "invalid totp code"})
		return
	}

	entryIDs := make([]uuid.UUID, 0, len(input.EntryIDs))
	for _, raw := range input.EntryIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid entry ID"})
			return
		}
		entryIDs = append(entryIDs, id)
	}

	if err := h.ledgerSvc.MarkPaid(entryIDs); err != nil {
		switch {
		case errors.Is(err, ledger.ErrEntryNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, ledger.ErrAlreadyReversed):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "paid", "count": len(entryIDs)})
}
