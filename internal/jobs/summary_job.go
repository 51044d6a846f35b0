package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nanorem/backend/internal/models"
	"github.com/nanorem/backend/internal/services/notify"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DailySummaryJob posts a one-line health report to the admin chat
type DailySummaryJob struct {
	db          *gorm.DB
	notifySvc   *notify.NotifyService
	adminChatID int64
}

// NewDailySummaryJob creates the daily summary job runner
func NewDailySummaryJob(db *gorm.DB, notifySvc *notify.NotifyService, adminChatID int64) *DailySummaryJob {
	return &DailySummaryJob{
		db:          db,
		notifySvc:   notifySvc,
		adminChatID: adminChatID,
	}
}

// RunDailySummary aggregates the last 24 hours of network activity and
// sends it to the admin chat
func (j *DailySummaryJob) RunDailySummary(ctx context.Context) {
	since := time.Now().Add(-24 * time.Hour)

	var newPartners int64
	if err := j.db.Model(&models.Partner{}).Where("created_at >= ?", since).
		Count(&newPartners).Error; err != nil {
		log.Printf("Daily summary: partner count failed: %v", err)
		return
	}

	var confirmedOrders int64
	if err := j.db.Model(&models.Order{}).
		Where("status = ? AND confirmed_at >= ?", models.OrderStatusConfirmed, since).
		Count(&confirmedOrders).Error; err != nil {
		log.Printf("Daily summary: order count failed: %v", err)
		return
	}

	type sums struct {
		Turnover    decimal.Decimal
		Commissions decimal.Decimal
	}
	var totals sums
	if err := j.db.Model(&models.Order{}).
		Select("COALESCE(SUM(total_amount), 0) AS turnover").
		Where("status = ? AND confirmed_at >= ?", models.OrderStatusConfirmed, since).
		Scan(&totals.Turnover).Error; err != nil {
		log.Printf("Daily summary: turnover sum failed: %v", err)
		return
	}
	if err := j.db.Model(&models.CommissionEntry{}).
		Select("COALESCE(SUM(amount), 0) AS commissions").
		Where("created_at >= ? AND reverses_entry_id IS NULL", since).
		Scan(&totals.Commissions).Error; err != nil {
		log.Printf("Daily summary: commission sum failed: %v", err)
		return
	}

	text := fmt.Sprintf(
		"📊 Daily summary\nNew partners: %d\nConfirmed orders: %d\nTurnover: %s RUB\nCommissions accrued: %s RUB",
		newPartners, confirmedOrders,
		totals.Turnover.StringFixed(2), totals.Commissions.StringFixed(2),
	)

	if err := j.notifySvc.AdminSummary(ctx, j.adminChatID, text); err != nil {
		log.Printf("Failed to queue daily summary: %v", err)
	}
}
