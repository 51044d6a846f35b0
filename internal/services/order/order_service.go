package order

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/nanorem/backend/internal/models"
	"github.com/nanorem/backend/internal/queue"
	"github.com/nanorem/backend/internal/services/commission"
	"github.com/nanorem/backend/internal/services/ledger"
	"github.com/nanorem/backend/internal/services/network"
	"github.com/nanorem/backend/internal/services/rules"
	"github.com/nanorem/backend/internal/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrNotConfirmed   = errors.New("only a confirmed order can be cancelled")
	ErrOrderCancelled = errors.New("order has been cancelled")
	ErrEmptyOrder     = errors.New("order has no line items")
)

// JobEnqueuer is the slice of the job queue the processor needs for
// post-commit notifications
type JobEnqueuer interface {
	EnqueueJob(jobType queue.JobType, payload interface{}) (string, error)
}

// OrderService orchestrates the order lifecycle: pending -> confirmed ->
// cancelled. Confirmation snapshots the network, runs the calculator and
// commits the resulting entries to the ledger in one transaction; any
// failure leaves the order pending and safe to retry under the same order
// id.
type OrderService struct {
	db         *gorm.DB
	networkSvc *network.NetworkService
	ruleSvc    *rules.RuleService
	ledgerSvc  *ledger.LedgerService
	locks      *utils.KeyedMutex
	jobs       JobEnqueuer
}

// NewOrderService creates a new order service. jobs may be nil when no
// notification delivery is wanted (tests).
func NewOrderService(db *gorm.DB, networkSvc *network.NetworkService, ruleSvc *rules.RuleService, ledgerSvc *ledger.LedgerService, jobs JobEnqueuer) *OrderService {
	return &OrderService{
		db:         db,
		networkSvc: networkSvc,
		ruleSvc:    ruleSvc,
		ledgerSvc:  ledgerSvc,
		locks:      utils.NewKeyedMutex(),
		jobs:       jobs,
	}
}

// LineItemInput is one order line as supplied by the caller
type LineItemInput struct {
	ProductID uuid.UUID       `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Create records a new pending order for a buyer. The total is derived
// from the line items; the order stays owned by the processor until
// confirmed.
func (s *OrderService) Create(buyerID uuid.UUID, items []LineItemInput, externalRef string) (*models.Order, error) {
	if len(items) == 0 {
		return nil, ErrEmptyOrder
	}

	buyer, err := s.networkSvc.GetPartner(buyerID)
	if err != nil {
		return nil, err
	}
	if buyer.Status == models.PartnerStatusTerminated {
		return nil, network.ErrTerminatedPartner
	}

	total := decimal.Zero
	orderItems := make([]models.OrderItem, 0, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("invalid quantity %d", item.Quantity)
		}
		if item.UnitPrice.IsNegative() {
			return nil, errors.New("negative unit price")
		}
		line := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		total = total.Add(line)
		orderItems = append(orderItems, models.OrderItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	order := &models.Order{
		Reference:   utils.GenerateReference("ORD"),
		BuyerID:     buyerID,
		Items:       orderItems,
		TotalAmount: total,
		Status:      models.OrderStatusPending,
		ExternalRef: externalRef,
	}
	if err := s.db.Create(order).Error; err != nil {
		return nil, fmt.Errorf("error creating order: %w", err)
	}
	return order, nil
}

// Confirm moves a pending order to confirmed and distributes commissions.
//
// The whole step runs under a per-order lock and inside one transaction:
// snapshot the network, load the rule version effective now, run the pure
// calculator over the buyer's ancestor chain and append the entries to the
// ledger. If anything fails the transaction rolls back, the order remains
// pending and the call can be retried with the same order id; the ledger's
// duplicate-order guard backs up the lock against double processing.
func (s *OrderService) Confirm(orderID uuid.UUID) ([]models.CommissionEntry, error) {
	unlock := s.locks.Lock(orderID.String())
	defer unlock()

	var committed []models.CommissionEntry

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var ord models.Order
		if err := tx.First(&ord, "id = ?", orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("error loading order: %w", err)
		}

		switch ord.Status {
		case models.OrderStatusConfirmed:
			return ledger.ErrDuplicateOrder
		case models.OrderStatusCancelled:
			return ErrOrderCancelled
		}

		confirmedAt := time.Now()

		ruleList, err := s.ruleSvc.ActiveRulesAtTx(tx, confirmedAt)
		if err != nil {
			return err
		}

		snapshot, err := s.networkSvc.Snapshot(tx)
		if err != nil {
			return err
		}

		maxLevel := rules.MaxLevel(ruleList)
		ancestors := make([]network.Ancestor, 0, maxLevel)
		for ancestor := range snapshot.Ancestors(ord.BuyerID, maxLevel) {
			ancestors = append(ancestors, ancestor)
		}

		calc := commission.NewCalculator(ruleList)
		drafts := calc.Calculate(ord.TotalAmount, ancestors)

		entries := make([]models.CommissionEntry, 0, len(drafts))
		for _, d := range drafts {
			entries = append(entries, models.CommissionEntry{
				OrderID:         ord.ID,
				PartnerID:       d.PartnerID,
				SourcePartnerID: ord.BuyerID,
				Level:           d.Level,
				Percent:         d.Percent,
				BaseAmount:      d.BaseAmount,
				Amount:          d.Amount,
			})
		}

		payoutCap := commission.PayoutCap(ord.TotalAmount, ruleList)
		if err := s.ledgerSvc.CommitTx(tx, entries, payoutCap); err != nil {
			return err
		}

		if err := tx.Model(&models.Order{}).Where("id = ?", ord.ID).
			Updates(map[string]interface{}{
				"status":       models.OrderStatusConfirmed,
				"confirmed_at": confirmedAt,
			}).Error; err != nil {
			return fmt.Errorf("error confirming order: %w", err)
		}

		if err := s.applyTotals(tx, ord.BuyerID, ord.TotalAmount, entries, false); err != nil {
			return err
		}

		committed = entries
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyAccrued(committed)
	return committed, nil
}

// Cancel reverses a confirmed order: every non-reversed ledger entry gets a
// compensating entry and the order moves to cancelled. Cancellation is only
// permitted from confirmed.
func (s *OrderService) Cancel(orderID uuid.UUID) error {
	unlock := s.locks.Lock(orderID.String())
	defer unlock()

	return s.db.Transaction(func(tx *gorm.DB) error {
		var ord models.Order
		if err := tx.First(&ord, "id = ?", orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("error loading order: %w", err)
		}
		if ord.Status != models.OrderStatusConfirmed {
			return ErrNotConfirmed
		}

		var entries []models.CommissionEntry
		if err := tx.Where("order_id = ? AND reverses_entry_id IS NULL", ord.ID).Find(&entries).Error; err != nil {
			return fmt.Errorf("error loading order entries: %w", err)
		}

		if len(entries) > 0 {
			if err := s.ledgerSvc.ReverseTx(tx, ord.ID); err != nil {
				return err
			}
		}

		if err := tx.Model(&models.Order{}).Where("id = ?", ord.ID).
			Updates(map[string]interface{}{
				"status":       models.OrderStatusCancelled,
				"cancelled_at": time.Now(),
			}).Error; err != nil {
			return fmt.Errorf("error cancelling order: %w", err)
		}

		return s.applyTotals(tx, ord.BuyerID, ord.TotalAmount, entries, true)
	})
}

// Get loads an order with its line items
func (s *OrderService) Get(orderID uuid.UUID) (*models.Order, error) {
	var ord models.Order
	if err := s.db.Preload("Items").First(&ord, "id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("error loading order: %w", err)
	}
	return &ord, nil
}

// ListByBuyer returns a buyer's orders, newest first
func (s *OrderService) ListByBuyer(buyerID uuid.UUID) ([]models.Order, error) {
	var orders []models.Order
	if err := s.db.Preload("Items").Where("buyer_id = ?", buyerID).
		Order("created_at DESC").Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("error listing orders: %w", err)
	}
	return orders, nil
}

// applyTotals keeps the accumulated qualification stats in step with the
// ledger: the buyer's personal volume and each beneficiary's commission
// total move with confirmation and move back on cancellation.
func (s *OrderService) applyTotals(tx *gorm.DB, buyerID uuid.UUID, total decimal.Decimal, entries []models.CommissionEntry, reversal bool) error {
	sign := decimal.NewFromInt(1)
	if reversal {
		sign = decimal.NewFromInt(-1)
	}

	if err := tx.Model(&models.Partner{}).Where("id = ?", buyerID).
		Updates(map[string]interface{}{
			"total_procurement": gorm.Expr("total_procurement + ?", total.Mul(sign)),
			"last_activity_at":  time.Now(),
		}).Error; err != nil {
		return fmt.Errorf("error updating buyer totals: %w", err)
	}

	for _, e := range entries {
		if err := tx.Model(&models.Partner{}).Where("id = ?", e.PartnerID).
			Update("total_commissions", gorm.Expr("total_commissions + ?", e.Amount.Mul(sign))).Error; err != nil {
			return fmt.Errorf("error updating beneficiary totals: %w", err)
		}
	}
	return nil
}

func (s *OrderService) notifyAccrued(entries []models.CommissionEntry) {
	if s.jobs == nil {
		return
	}
	for _, e := range entries {
		payload := map[string]interface{}{
			"entry_id":   e.ID,
			"partner_id": e.PartnerID,
			"amount":     e.Amount.String(),
			"level":      e.Level,
		}
		if _, err := s.jobs.EnqueueJob(queue.JobTypeNotifyCommission, payload); err != nil {
			// Notification delivery is best effort; the ledger is already
			// committed at this point.
			log.Printf("failed to enqueue commission notification: %v", err)
		}
	}
}
