package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/nanorem/backend/internal/config"
	"github.com/nanorem/backend/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.Product{})
	require.NoError(t, err)

	return db
}

func vendorServer(t *testing.T, apiKey string, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/products", r.URL.Path)
		if apiKey != "" {
			require.Equal(t, "Bearer "+apiKey, r.Header.Get("Authorization"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
}

func TestFetchVendorProducts(t *testing.T) {
	server := vendorServer(t, "key-123", `{"products":[
		{"id":"v1","name":"Day Cream","category":"skincare","price":"49.90","available":true},
		{"id":"v2","name":"Shampoo","category":"hair","price":"19.00","available":false}
	]}`)
	defer server.Close()

	svc := NewCatalogService(setupTestDB(t), config.VendorConfig{BaseURL: server.URL, APIKey: "key-123"})

	products, err := svc.FetchVendorProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "v1", products[0].ID)
	assert.True(t, products[0].Price.Equal(decimal.RequireFromString("49.90")))
	assert.False(t, products[1].Available)
}

func TestFetchVendorProductsErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	svc := NewCatalogService(setupTestDB(t), config.VendorConfig{BaseURL: server.URL})

	_, err := svc.FetchVendorProducts(context.Background())
	assert.ErrorContains(t, err, "status 502")
}

func TestSyncAllUpsertsAndDeactivates(t *testing.T) {
	db := setupTestDB(t)

	// A product the vendor no longer lists.
	stale := models.Product{
		ExternalID: "gone",
		Slug:       "old-serum",
		Name:       "Old Serum",
		Price:      decimal.NewFromInt(10),
		IsActive:   true,
	}
	require.NoError(t, db.Create(&stale).Error)

	server := vendorServer(t, "", `{"products":[
		{"id":"v1","name":"Day Cream","category":"skincare","price":"49.90","available":true}
	]}`)
	defer server.Close()

	svc := NewCatalogService(db, config.VendorConfig{BaseURL: server.URL})

	synced, err := svc.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, synced)

	fresh, err := svc.GetByExternalID("v1")
	require.NoError(t, err)
	assert.Equal(t, "day-cream", fresh.Slug)
	assert.True(t, fresh.IsActive)

	var old models.Product
	require.NoError(t, db.Where("external_id = ?", "gone").First(&old).Error)
	assert.False(t, old.IsActive)
}

func TestSyncProductUpdatesExisting(t *testing.T) {
	db := setupTestDB(t)
	svc := NewCatalogService(db, config.VendorConfig{})

	vp := VendorProduct{ID: "v1", Name: "Day Cream", Price: decimal.NewFromInt(50), Available: true}
	require.NoError(t, svc.SyncProduct(vp))

	created, err := svc.GetByExternalID("v1")
	require.NoError(t, err)
	originalSlug := created.Slug

	vp.Name = "Day Cream Deluxe"
	vp.Price = decimal.NewFromInt(60)
	require.NoError(t, svc.SyncProduct(vp))

	updated, err := svc.GetByExternalID("v1")
	require.NoError(t, err)
	assert.Equal(t, "Day Cream Deluxe", updated.Name)
	assert.True(t, updated.Price.Equal(decimal.NewFromInt(60)))
	// The slug is part of existing URLs and stays stable across renames.
	assert.Equal(t, originalSlug, updated.Slug)
}

func TestUniqueSlugOnCollision(t *testing.T) {
	db := setupTestDB(t)
	svc := NewCatalogService(db, config.VendorConfig{})

	require.NoError(t, svc.SyncProduct(VendorProduct{ID: "v1", Name: "Day Cream", Available: true}))
	require.NoError(t, svc.SyncProduct(VendorProduct{ID: "v2", Name: "Day Cream", Available: true}))

	first, err := svc.GetByExternalID("v1")
	require.NoError(t, err)
	second, err := svc.GetByExternalID("v2")
	require.NoError(t, err)

	assert.Equal(t, "day-cream", first.Slug)
	assert.Equal(t, "day-cream-2", second.Slug)
}

func TestGetBySlugAndListActive(t *testing.T) {
	db := setupTestDB(t)
	svc := NewCatalogService(db, config.VendorConfig{})

	require.NoError(t, svc.SyncProduct(VendorProduct{ID: "v1", Name: "Day Cream", Category: "skincare", Available: true}))
	require.NoError(t, svc.SyncProduct(VendorProduct{ID: "v2", Name: "Shampoo", Category: "hair", Available: true}))
	require.NoError(t, svc.SyncProduct(VendorProduct{ID: "v3", Name: "Retired", Category: "hair", Available: false}))

	product, err := svc.GetBySlug("day-cream")
	require.NoError(t, err)
	assert.Equal(t, "v1", product.ExternalID)

	_, err = svc.GetBySlug("missing")
	assert.ErrorIs(t, err, ErrProductNotFound)

	all, err := svc.ListActive("")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	hair, err := svc.ListActive("hair")
	require.NoError(t, err)
	require.Len(t, hair, 1)
	assert.Equal(t, "v2", hair[0].ExternalID)
}
