package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gosimple/slug"
	"github.com/nanorem/backend/internal/config"
	"github.com/nanorem/backend/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ErrProductNotFound is returned when a product lookup misses
var ErrProductNotFound = errors.New("product not found")

// VendorProduct is a product record as returned by the vendor shop API
type VendorProduct struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	Available   bool            `json:"available"`
}

// CatalogService keeps the local product catalog in sync with the vendor
// shop. The vendor is the source of truth; local rows only add slugs and
// track availability for order validation.
type CatalogService struct {
	db         *gorm.DB
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewCatalogService creates a new catalog service
func NewCatalogService(db *gorm.DB, cfg config.VendorConfig) *CatalogService {
	return &CatalogService{
		db:         db,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
	}
}

// FetchVendorProducts retrieves the full product list from the vendor API
func (s *CatalogService) FetchVendorProducts(ctx context.Context) ([]VendorProduct, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/products", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create vendor request: %w", err)
	}
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vendor request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vendor API returned status %d", resp.StatusCode)
	}

	var payload struct {
		Products []VendorProduct `json:"products"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode vendor response: %w", err)
	}
	return payload.Products, nil
}

// SyncAll fetches the vendor catalog and upserts every product. Products
// missing from the vendor feed are deactivated, not deleted, so existing
// order items keep a valid reference.
func (s *CatalogService) SyncAll(ctx context.Context) (int, error) {
	vendorProducts, err := s.FetchVendorProducts(ctx)
	if err != nil {
		return 0, err
	}

	synced := 0
	now := time.Now()
	seen := make(map[string]bool, len(vendorProducts))

	err = s.db.Transaction(func(tx *gorm.DB) error {
		for _, vp := range vendorProducts {
			if err := s.upsertTx(tx, vp, now); err != nil {
				return err
			}
			seen[vp.ID] = true
			synced++
		}

		var known []models.Product
		if err := tx.Where("is_active = ?", true).Find(&known).Error; err != nil {
			return fmt.Errorf("failed to list active products: %w", err)
		}
		for _, p := range known {
			if !seen[p.ExternalID] {
				if err := tx.Model(&models.Product{}).Where("id = ?", p.ID).
					Update("is_active", false).Error; err != nil {
					return fmt.Errorf("failed to deactivate product %s: %w", p.ExternalID, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return synced, nil
}

// SyncProduct upserts a single vendor product, used by webhook updates
func (s *CatalogService) SyncProduct(vp VendorProduct) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return s.upsertTx(tx, vp, time.Now())
	})
}

func (s *CatalogService) upsertTx(tx *gorm.DB, vp VendorProduct, now time.Time) error {
	var existing models.Product
	err := tx.Where("external_id = ?", vp.ID).First(&existing).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to look up product %s: %w", vp.ID, err)
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		product := models.Product{
			ExternalID:  vp.ID,
			Slug:        s.uniqueSlug(tx, vp.Name),
			Name:        vp.Name,
			Description: vp.Description,
			Category:    vp.Category,
			Price:       vp.Price,
			IsActive:    vp.Available,
			SyncedAt:    now,
		}
		if err := tx.Create(&product).Error; err != nil {
			return fmt.Errorf("failed to create product %s: %w", vp.ID, err)
		}
		return nil
	}

	updates := map[string]interface{}{
		"name":        vp.Name,
		"description": vp.Description,
		"category":    vp.Category,
		"price":       vp.Price,
		"is_active":   vp.Available,
		"synced_at":   now,
	}
	if err := tx.Model(&existing).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update product %s: %w", vp.ID, err)
	}
	return nil
}

// uniqueSlug derives a URL slug from the product name, suffixing a counter
// on collision
func (s *CatalogService) uniqueSlug(tx *gorm.DB, name string) string {
	base := slug.Make(name)
	candidate := base
	for i := 2; ; i++ {
		var count int64
		if err := tx.Model(&models.Product{}).Where("slug = ?", candidate).Count(&count).Error; err != nil {
			return candidate
		}
		if count == 0 {
			return candidate
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
}

// GetBySlug returns an active product by its slug
func (s *CatalogService) GetBySlug(productSlug string) (*models.Product, error) {
	var product models.Product
	err := s.db.Where("slug = ?", productSlug).First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &product, nil
}

// GetByExternalID returns a product by the vendor's identifier
func (s *CatalogService) GetByExternalID(externalID string) (*models.Product, error) {
	var product models.Product
	err := s.db.Where("external_id = ?", externalID).First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &product, nil
}

// ListActive returns all active products, optionally filtered by category
func (s *CatalogService) ListActive(category string) ([]models.Product, error) {
	query := s.db.Where("is_active = ?", true)
	if category != "" {
		query = query.Where("category = ?", category)
	}

	var products []models.Product
	if err := query.Order("name ASC").Find(&products).Error; err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}
