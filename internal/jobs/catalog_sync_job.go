package jobs

import (
	"context"
	"log"

	"github.com/nanorem/backend/internal/queue"
	"github.com/nanorem/backend/internal/services/catalog"
)

// CatalogSyncJob pulls the vendor catalog into the local product table
type CatalogSyncJob struct {
	catalogSvc *catalog.CatalogService
}

// NewCatalogSyncJob creates a new catalog sync job handler
func NewCatalogSyncJob(catalogSvc *catalog.CatalogService) *CatalogSyncJob {
	return &CatalogSyncJob{catalogSvc: catalogSvc}
}

// RegisterCatalogSyncJobHandlers registers the catalog sync job handler
func RegisterCatalogSyncJobHandlers(q *queue.Queue, catalogSvc *catalog.CatalogService) {
	handler := NewCatalogSyncJob(catalogSvc)
	q.RegisterHandler(queue.JobTypeSyncCatalog, handler.ProcessCatalogSync)
}

// ProcessCatalogSync runs a full catalog sync
func (j *CatalogSyncJob) ProcessCatalogSync(ctx context.Context, job queue.Job) (interface{}, error) {
	synced, err := j.catalogSvc.SyncAll(ctx)
	if err != nil {
		return nil, err
	}

	log.Printf("Catalog sync completed: %d products", synced)
	return map[string]interface{}{"synced": synced}, nil
}
