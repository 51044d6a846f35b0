package handlers

import (
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nanorem/backend/internal/services/catalog"
	"github.com/nanorem/backend/internal/services/network"
	"github.com/nanorem/backend/internal/services/order"
	"github.com/nanorem/backend/internal/utils"
	"github.com/shopspring/decimal"
)

// signatureHeader carries the hex HMAC-SHA256 of the raw request body
const signatureHeader = "X-Webhook-Signature"

// WebhookHandler receives order and catalog events from the vendor shop
type WebhookHandler struct {
	secret     string
	networkSvc *network.NetworkService
	orderSvc   *order.OrderService
	catalogSvc *catalog.CatalogService
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(secret string, networkSvc *network.NetworkService, orderSvc *order.OrderService, catalogSvc *catalog.CatalogService) *WebhookHandler {
	return &WebhookHandler{
		secret:     secret,
		networkSvc: networkSvc,
		orderSvc:   orderSvc,
		catalogSvc: catalogSvc,
	}
}

type webhookEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type webhookOrderData struct {
	OrderID         string `json:"order_id"`
	ExternalRef     string `json:"external_ref"`
	BuyerTelegramID string `json:"buyer_telegram_id"`
	Items           []struct {
		ProductID string          `json:"product_id"`
		Quantity  int             `json:"quantity"`
		UnitPrice decimal.Decimal `json:"unit_price"`
	} `json:"items"`
}

// HandleShopEvent verifies the signature and dispatches the event
func (h *WebhookHandler) HandleShopEvent(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	signature := c.GetHeader(signatureHeader)
	if signature == "" || !utils.VerifyHMAC(string(body), signature, h.secret) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	switch event.Event {
	case "order.created":
		h.handleOrderCreated(c, event.Data)
	case "order.completed":
		h.handleOrderCompleted(c, event.Data)
	case "order.cancelled":
		h.handleOrderCancelled(c, event.Data)
	case "product.updated":
		h.handleProductUpdated(c, event.Data)
	default:
		// Unknown events are acknowledged so the shop does not retry them
		log.Printf("Ignoring unknown webhook event %q", event.Event)
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
	}
}

func (h *WebhookHandler) handleOrderCreated(c *gin.Context, data json.RawMessage) {
	var payload webhookOrderData
	if err := json.Unmarshal(data, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order data"})
		return
	}

	buyer, err := h.networkSvc.GetPartnerByTelegramID(payload.BuyerTelegramID)
	if err != nil {
		c.JSON(networkErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	items := make([]order.LineItemInput, 0, len(payload.Items))
	for _, item := range payload.Items {
		var productID uuid.UUID
		if item.ProductID != "" {
			if product, err := h.catalogSvc.GetByExternalID(item.ProductID); err == nil {
				productID = product.ID
			}
		}
		items = append(items, order.LineItemInput{
			ProductID: productID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	ord, err := h.orderSvc.Create(buyer.ID, items, payload.ExternalRef)
	if err != nil {
		c.JSON(orderErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"order_id": ord.ID, "reference": ord.Reference})
}

func (h *WebhookHandler) handleOrderCompleted(c *gin.Context, data json.RawMessage) {
	orderID, ok := h.resolveOrderID(c, data)
	if !ok {
		return
	}

	if _, err := h.orderSvc.Confirm(orderID); err != nil {
		c.JSON(orderErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "confirmed"})
}

func (h *WebhookHandler) handleOrderCancelled(c *gin.Context, data json.RawMessage) {
	orderID, ok := h.resolveOrderID(c, data)
	if !ok {
		return
	}

	if err := h.orderSvc.Cancel(orderID); err != nil {
		c.JSON(orderErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

func (h *WebhookHandler) handleProductUpdated(c *gin.Context, data json.RawMessage) {
	var vp catalog.VendorProduct
	if err := json.Unmarshal(data, &vp); err != nil || vp.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product data"})
		return
	}

	if err := h.catalogSvc.SyncProduct(vp); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to sync product"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "synced"})
}

func (h *WebhookHandler) resolveOrderID(c *gin.Context, data json.RawMessage) (uuid.UUID, bool) {
	var payload webhookOrderData
	if err := json.Unmarshal(data, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order data"})
		return uuid.Nil, false
	}

	orderID, err := uuid.Parse(payload.OrderID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order ID"})
		return uuid.Nil, false
	}
	return orderID, true
}
