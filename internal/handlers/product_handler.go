package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nanorem/backend/internal/queue"
	"github.com/nanorem/backend/internal/services/catalog"
)

// ProductHandler serves the synchronized product catalog
type ProductHandler struct {
	catalogSvc *catalog.CatalogService
	queue      *queue.Queue
}

// NewProductHandler creates a new product handler
func NewProductHandler(catalogSvc *catalog.CatalogService, q *queue.Queue) *ProductHandler {
	return &ProductHandler{catalogSvc: catalogSvc, queue: q}
}

// List returns active products, optionally filtered by category
func (h *ProductHandler) List(c *gin.Context) {
	products, err := h.catalogSvc.ListActive(c.Query("category"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list products"})
		return
	}
	c.JSON(http.StatusOK, products)
}

// GetBySlug returns one product by its slug
func (h *ProductHandler) GetBySlug(c *gin.Context) {
	product, err := h.catalogSvc.GetBySlug(c.Param("slug"))
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get product"})
		return
	}
	c.JSON(http.StatusOK, product)
}

// TriggerSync enqueues a full catalog sync
func (h *ProductHandler) TriggerSync(c *gin.Context) {
	jobID, err := h.queue.EnqueueJob(queue.JobTypeSyncCatalog, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue sync"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID})
}
