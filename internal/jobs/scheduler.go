package jobs

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/nanorem/backend/internal/config"
	"github.com/nanorem/backend/internal/queue"
	"github.com/nanorem/backend/internal/services/notify"
	"github.com/nanorem/backend/internal/services/subscription"
	"gorm.io/gorm"
)

// StartScheduler wires the recurring jobs and starts the scheduler in the
// background. The returned scheduler can be stopped on shutdown.
func StartScheduler(
	cfg *config.Config,
	db *gorm.DB,
	q *queue.Queue,
	subscriptionSvc *subscription.SubscriptionService,
	notifySvc *notify.NotifyService,
) *gocron.Scheduler {
	scheduler := gocron.NewScheduler(time.UTC)
	ctx := context.Background()

	subscriptionJobs := NewSubscriptionJobs(subscriptionSvc, notifySvc)
	summaryJob := NewDailySummaryJob(db, notifySvc, cfg.Telegram.AdminChatID)

	// Subscription lapses are checked hourly so a partner never keeps
	// earning for long past their paid period
	if _, err := scheduler.Every(1).Hour().Do(func() {
		subscriptionJobs.RunExpiry(ctx)
	}); err != nil {
		log.Printf("Failed to schedule subscription expiry job: %v", err)
	}

	if _, err := scheduler.Every(1).Day().At("09:00").Do(func() {
		summaryJob.RunDailySummary(ctx)
	}); err != nil {
		log.Printf("Failed to schedule daily summary job: %v", err)
	}

	syncInterval := cfg.Vendor.SyncInterval
	if syncInterval <= 0 {
		syncInterval = 360
	}
	if _, err := scheduler.Every(syncInterval).Minutes().Do(func() {
		if _, err := q.EnqueueJob(queue.JobTypeSyncCatalog, nil); err != nil {
			log.Printf("Failed to enqueue catalog sync: %v", err)
		}
	}); err != nil {
		log.Printf("Failed to schedule catalog sync job: %v", err)
	}

	scheduler.StartAsync()
	log.Printf("Job scheduler started")
	return scheduler
}
