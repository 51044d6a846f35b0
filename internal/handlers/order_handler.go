package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nanorem/backend/internal/services/ledger"
	"github.com/nanorem/backend/internal/services/network"
	"github.com/nanorem/backend/internal/services/order"
	"github.com/nanorem/backend/internal/services/rules"
	"github.com/shopspring/decimal"
)

// OrderHandler handles order lifecycle requests
type OrderHandler struct {
	orderSvc *order.OrderService
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(orderSvc *order.OrderService) *OrderHandler {
	return &OrderHandler{orderSvc: orderSvc}
}

// Create records a new pending order
func (h *OrderHandler) Create(c *gin.Context) {
	var input struct {
		BuyerID     string `json:"buyer_id" binding:"required"`
		ExternalRef string `json:"external_ref"`
		Items       []struct {
			ProductID string          `json:"product_id"`
			Quantity  int             `json:"quantity" binding:"required,min=1"`
			UnitPrice decimal.Decimal `json:"unit_price" binding:"required"`
		} `json:"items" binding:"required,min=1"`
	}

	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	buyerID, err := uuid.Parse(input.BuyerID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid buyer ID"})
		return
	}

	items := make([]order.LineItemInput, 0, len(input.Items))
	for _, item := range input.Items {
		var productID uuid.UUID
		if item.ProductID != "" {
			productID, err = uuid.Parse(item.ProductID)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product ID"})
				return
			}
		}
		items = append(items, order.LineItemInput{
			ProductID: productID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	ord, err := h.orderSvc.Create(buyerID, items, input.ExternalRef)
	if err != nil {
		c.JSON(orderErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, ord)
}

// Confirm confirms a pending order and distributes commissions
func (h *OrderHandler) Confirm(c *gin.Context) {
	orderID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	entries, err := h.orderSvc.Confirm(orderID)
	if err != nil {
		c.JSON(orderErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "confirmed",
		"entries": entries,
	})
}

// Cancel reverses a confirmed order
func (h *OrderHandler) Cancel(c *gin.Context) {
	orderID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.orderSvc.Cancel(orderID); err != nil {
		c.JSON(orderErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

// Get loads an order with its line items
func (h *OrderHandler) Get(c *gin.Context) {
	orderID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	ord, err := h.orderSvc.Get(orderID)
	if err != nil {
		c.JSON(orderErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, ord)
}

// ListByBuyer returns a buyer's orders, newest first
func (h *OrderHandler) ListByBuyer(c *gin.Context) {
	buyerID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	orders, err := h.orderSvc.ListByBuyer(buyerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list orders"})
		return
	}
	c.JSON(http.StatusOK, orders)
}

// orderErrorStatus maps order and ledger errors to HTTP status codes
func orderErrorStatus(err error) int {
	switch {
	case errors.Is(err, order.ErrOrderNotFound), errors.Is(err, network.ErrPartnerNotFound):
		return http.StatusNotFound
	case errors.Is(err, order.ErrEmptyOrder):
		return http.StatusBadRequest
	case errors.Is(err, order.ErrNotConfirmed),
		errors.Is(err, order.ErrOrderCancelled),
		errors.Is(err, ledger.ErrDuplicateOrder),
		errors.Is(err, network.ErrTerminatedPartner):
		return http.StatusConflict
	case errors.Is(err, rules.ErrRuleSetMissing):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
