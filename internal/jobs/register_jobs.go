package jobs

import (
	"github.com/nanorem/backend/internal/queue"
	"github.com/nanorem/backend/internal/services/catalog"
	"github.com/nanorem/backend/internal/services/notify"
	"gorm.io/gorm"
)

// RegisterAllJobHandlers registers all job handlers with the queue
func RegisterAllJobHandlers(
	q *queue.Queue,
	db *gorm.DB,
	notifySvc *notify.NotifyService,
	catalogSvc *catalog.CatalogService,
) {
	RegisterNotificationJobHandlers(q, db, notifySvc)
	RegisterCatalogSyncJobHandlers(q, catalogSvc)
}
