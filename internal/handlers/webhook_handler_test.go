package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/nanorem/backend/internal/config"
	"github.com/nanorem/backend/internal/models"
	"github.com/nanorem/backend/internal/services/catalog"
	"github.com/nanorem/backend/internal/services/ledger"
	"github.com/nanorem/backend/internal/services/network"
	"github.com/nanorem/backend/internal/services/order"
	"github.com/nanorem/backend/internal/services/rules"
	"github.com/nanorem/backend/internal/utils"
)

const testWebhookSecret = "test-webhook-secret"

type webhookTestEnv struct {
	db         *gorm.DB
	router     *gin.Engine
	networkSvc *network.NetworkService
	orderSvc   *order.OrderService
	ruleSvc    *rules.RuleService
}

func setupWebhookTest(t *testing.T) *webhookTestEnv {
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&models.Partner{},
		&models.NetworkAuditLog{},
		&models.Product{},
		&models.Order{},
		&models.OrderItem{},
		&models.RuleSetVersion{},
		&models.CommissionRule{},
		&models.CommissionEntry{},
	)
	require.NoError(t, err)

	networkSvc := network.NewNetworkService(db)
	ruleSvc := rules.NewRuleService(db)
	ledgerSvc := ledger.NewLedgerService(db)
	orderSvc := order.NewOrderService(db, networkSvc, ruleSvc, ledgerSvc, nil)
	catalogSvc := catalog.NewCatalogService(db, config.VendorConfig{BaseURL: "http://vendor.test"})

	handler := NewWebhookHandler(testWebhookSecret, networkSvc, orderSvc, catalogSvc)

	router := gin.New()
	router.POST("/api/webhooks/shop", handler.HandleShopEvent)

	return &webhookTestEnv{
		db:         db,
		router:     router,
		networkSvc: networkSvc,
		orderSvc:   orderSvc,
		ruleSvc:    ruleSvc,
	}
}

func (e *webhookTestEnv) post(t *testing.T, body []byte, signed bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/shop", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signed {
		req.Header.Set(signatureHeader, utils.SignHMAC(string(body), testWebhookSecret))
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func eventBody(t *testing.T, event string, data interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	body, err := json.Marshal(map[string]json.RawMessage{
		"event": json.RawMessage(fmt.Sprintf("%q", event)),
		"data":  raw,
	})
	require.NoError(t, err)
	return body
}

func TestWebhookRejectsMissingSignature(t *testing.T) {
	env := setupWebhookTest(t)

	w := env.post(t, []byte(`{"event":"order.created","data":{}}`), false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	env := setupWebhookTest(t)

	body := []byte(`{"event":"order.created","data":{}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/shop", bytes.NewReader(body))
	req.Header.Set(signatureHeader, utils.SignHMAC("different body", testWebhookSecret))
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhookIgnoresUnknownEvent(t *testing.T) {
	env := setupWebhookTest(t)

	w := env.post(t, eventBody(t, "order.refund_requested", map[string]string{}), true)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ignored")
}

func TestWebhookOrderCreated(t *testing.T) {
	env := setupWebhookTest(t)

	root, err := env.networkSvc.Register(network.RegisterPartnerInput{TelegramID: "111"})
	require.NoError(t, err)
	buyer, err := env.networkSvc.Register(network.RegisterPartnerInput{TelegramID: "222", SponsorID: &root.ID})
	require.NoError(t, err)

	data := map[string]interface{}{
		"external_ref":      "shop-77",
		"buyer_telegram_id": "222",
		"items": []map[string]interface{}{
			{"product_id": "vendor-1", "quantity": 2, "unit_price": "250.00"},
		},
	}

	w := env.post(t, eventBody(t, "order.created", data), true)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	orders, err := env.orderSvc.ListByBuyer(buyer.ID)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, models.OrderStatusPending, orders[0].Status)
	assert.True(t, orders[0].TotalAmount.Equal(decimal.NewFromInt(500)))
	assert.Equal(t, "shop-77", orders[0].ExternalRef)
}

func TestWebhookOrderCreatedUnknownBuyer(t *testing.T) {
	env := setupWebhookTest(t)

	data := map[string]interface{}{
		"buyer_telegram_id": "999",
		"items": []map[string]interface{}{
			{"quantity": 1, "unit_price": "100.00"},
		},
	}

	w := env.post(t, eventBody(t, "order.created", data), true)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWebhookOrderCompletedAndCancelled(t *testing.T) {
	env := setupWebhookTest(t)

	_, err := env.ruleSvc.Publish(time.Now().Add(-time.Hour), []rules.RuleInput{
		{Level: 1, Percent: decimal.NewFromInt(10)},
	}, "")
	require.NoError(t, err)

	root, err := env.networkSvc.Register(network.RegisterPartnerInput{TelegramID: "111"})
	require.NoError(t, err)
	buyer, err := env.networkSvc.Register(network.RegisterPartnerInput{TelegramID: "222", SponsorID: &root.ID})
	require.NoError(t, err)

	ord, err := env.orderSvc.Create(buyer.ID, []order.LineItemInput{
		{Quantity: 1, UnitPrice: decimal.NewFromInt(1000)},
	}, "shop-1")
	require.NoError(t, err)

	w := env.post(t, eventBody(t, "order.completed", map[string]string{"order_id": ord.ID.String()}), true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	confirmed, err := env.orderSvc.Get(ord.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusConfirmed, confirmed.Status)

	// Replaying the completion must not double-book commissions.
	w = env.post(t, eventBody(t, "order.completed", map[string]string{"order_id": ord.ID.String()}), true)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.post(t, eventBody(t, "order.cancelled", map[string]string{"order_id": ord.ID.String()}), true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	cancelled, err := env.orderSvc.Get(ord.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, cancelled.Status)
}

func TestWebhookProductUpdated(t *testing.T) {
	env := setupWebhookTest(t)

	data := map[string]interface{}{
		"id":        "vendor-42",
		"name":      "Night Repair Serum",
		"category":  "skincare",
		"price":     "85.00",
		"available": true,
	}

	w := env.post(t, eventBody(t, "product.updated", data), true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var product models.Product
	require.NoError(t, env.db.Where("external_id = ?", "vendor-42").First(&product).Error)
	assert.Equal(t, "Night Repair Serum", product.Name)
	assert.NotEmpty(t, product.Slug)
	assert.True(t, product.IsActive)
}
