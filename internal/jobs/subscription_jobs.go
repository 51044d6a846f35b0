package jobs

import (
	"context"
	"log"
	"time"

	"github.com/nanorem/backend/internal/services/notify"
	"github.com/nanorem/backend/internal/services/subscription"
)

// expiryWarningWindow is how far ahead of lapse partners get a reminder
const expiryWarningWindow = 3 * 24 * time.Hour

// SubscriptionJobs runs the periodic subscription maintenance passes
type SubscriptionJobs struct {
	subscriptionSvc *subscription.SubscriptionService
	notifySvc       *notify.NotifyService
}

// NewSubscriptionJobs creates the subscription job runner
func NewSubscriptionJobs(subscriptionSvc *subscription.SubscriptionService, notifySvc *notify.NotifyService) *SubscriptionJobs {
	return &SubscriptionJobs{
		subscriptionSvc: subscriptionSvc,
		notifySvc:       notifySvc,
	}
}

// RunExpiry drops partners with lapsed subscriptions to inactive and
// notifies them, then reminds partners whose subscription lapses soon
func (j *SubscriptionJobs) RunExpiry(ctx context.Context) {
	expired, err := j.subscriptionSvc.ExpireOverdue()
	if err != nil {
		log.Printf("Subscription expiry pass failed: %v", err)
		return
	}

	for i := range expired {
		if err := j.notifySvc.SubscriptionExpired(ctx, &expired[i]); err != nil {
			log.Printf("Failed to queue expiry notification for partner %s: %v", expired[i].ID, err)
		}
	}
	if len(expired) > 0 {
		log.Printf("Expired %d partner subscriptions", len(expired))
	}

	expiring, err := j.subscriptionSvc.ExpiringSoon(expiryWarningWindow)
	if err != nil {
		log.Printf("Failed to list expiring subscriptions: %v", err)
		return
	}
	for i := range expiring {
		daysLeft, err := j.subscriptionSvc.DaysUntilExpiry(expiring[i].ID)
		if err != nil {
			continue
		}
		if err := j.notifySvc.SubscriptionExpiring(ctx, &expiring[i], daysLeft); err != nil {
			log.Printf("Failed to queue expiry reminder for partner %s: %v", expiring[i].ID, err)
		}
	}
}
