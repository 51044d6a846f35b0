package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nanorem/backend/internal/services/rules"
	"github.com/shopspring/decimal"
)

// RulesHandler manages the versioned commission schedule
type RulesHandler struct {
	ruleSvc *rules.RuleService
}

// NewRulesHandler creates a new rules handler
func NewRulesHandler(ruleSvc *rules.RuleService) *RulesHandler {
	return &RulesHandler{ruleSvc: ruleSvc}
}

// Active returns the rule set effective at the given time (default now)
func (h *RulesHandler) Active(c *gin.Context) {
	at := time.Now()
	if raw := c.Query("at"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid at timestamp"})
			return
		}
		at = parsed
	}

	ruleList, err := h.ruleSvc.ActiveRulesAt(at)
	if err != nil {
		if errors.Is(err, rules.ErrRuleSetMissing) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load rules"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"at": at, "rules": ruleList})
}

// Publish creates a new immutable rule set version. Orders confirmed
// before the effective time keep the version they were evaluated under.
func (h *RulesHandler) Publish(c *gin.Context) {
	var input struct {
		EffectiveFrom time.Time `json:"effective_from" binding:"required"`
		Notes         string    `json:"notes"`
		Rules         []struct {
			Level             int             `json:"level" binding:"required,min=1"`
			Percent           decimal.Decimal `json:"percent" binding:"required"`
			MinPersonalVolume decimal.Decimal `json:"min_personal_volume"`
			MinActiveDownline int             `json:"min_active_downline"`
		} `json:"rules" binding:"required,min=1"`
	}

	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	inputs := make([]rules.RuleInput, 0, len(input.Rules))
	for _, r := range input.Rules {
		inputs = append(inputs, rules.RuleInput{
			Level:             r.Level,
			Percent:           r.Percent,
			MinPersonalVolume: r.MinPersonalVolume,
			MinActiveDownline: r.MinActiveDownline,
		})
	}

	version, err := h.ruleSvc.Publish(input.EffectiveFrom, inputs, input.Notes)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, version)
}
