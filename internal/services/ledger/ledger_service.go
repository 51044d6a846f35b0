package ledger

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/nanorem/backend/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Sentinel errors surfaced to the order processor and payout callers
var (
	ErrDuplicateOrder  = errors.New("commission entries for this order already exist")
	ErrOrderNotFound   = errors.New("no commission entries exist for this order")
	ErrAlreadyReversed = errors.New("entry has been reversed and can no longer be paid")
	ErrOverAllocation  = errors.New("entries exceed the order's maximum allocatable commission")
	ErrEntryNotFound   = errors.New("commission entry not found")
)

// LedgerService is the append-only record of commission entries and their
// settlement state, and the source of truth for payouts. Balances are
// computed by folding over the entry sequence, never by mutating a stored
// balance in place.
type LedgerService struct {
	db *gorm.DB
}

// NewLedgerService creates a new ledger service
func NewLedgerService(db *gorm.DB) *LedgerService {
	return &LedgerService{db: db}
}

// Commit appends all entries for one order atomically, in its own
// transaction. See CommitTx.
func (s *LedgerService) Commit(entries []models.CommissionEntry, payoutCap decimal.Decimal) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return s.CommitTx(tx, entries, payoutCap)
	})
}

// CommitTx appends all entries for one order, or none. Every entry must
// name the same order. It fails with ErrDuplicateOrder when entries for
// that order already exist, which makes retried confirmations safe, and
// with ErrOverAllocation when the entries would exceed the payout cap, so
// a misconfigured rule set can never over-pay. The cap must account for
// per-level rounding (see commission.PayoutCap); the sum of rounded level
// amounts can exceed the exact total times the schedule's summed
// percentages by a cent or two on legitimate orders.
//
// An empty entry list is a valid commit: an order by the root simply
// allocates nothing.
func (s *LedgerService) CommitTx(tx *gorm.DB, entries []models.CommissionEntry, payoutCap decimal.Decimal) error {
	if len(entries) == 0 {
		return nil
	}

	orderID := entries[0].OrderID
	total := decimal.Zero
	for _, e := range entries {
		if e.OrderID != orderID {
			return errors.New("commit spans more than one order")
		}
		total = total.Add(e.Amount)
	}
	if total.GreaterThan(payoutCap) {
		return ErrOverAllocation
	}

	var count int64
	if err := tx.Model(&models.CommissionEntry{}).Where("order_id = ?", orderID).Count(&count).Error; err != nil {
		return fmt.Errorf("error checking for existing entries: %w", err)
	}
	if count > 0 {
		return ErrDuplicateOrder
	}

	for i := range entries {
		entries[i].State = models.CommissionStateAccrued
		if err := tx.Create(&entries[i]).Error; err != nil {
			return fmt.Errorf("error appending commission entry: %w", err)
		}
	}
	return nil
}

// Reverse appends, for every entry of the order that has not yet been
// compensated, a compensating entry with the negated amount, state
// reversed, referencing the original. It fails with ErrOrderNotFound when
// the order has no entries and is an idempotent no-op when every entry is
// already compensated.
func (s *LedgerService) Reverse(orderID uuid.UUID) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return s.ReverseTx(tx, orderID)
	})
}

// ReverseTx is Reverse inside an existing transaction
func (s *LedgerService) ReverseTx(tx *gorm.DB, orderID uuid.UUID) error {
	var entries []models.CommissionEntry
	if err := tx.Where("order_id = ?", orderID).Order("created_at ASC").Find(&entries).Error; err != nil {
		return fmt.Errorf("error loading order entries: %w", err)
	}
	if len(entries) == 0 {
		return ErrOrderNotFound
	}

	reversed := make(map[uuid.UUID]bool)
	for _, e := range entries {
		if e.ReversesEntryID != nil {
			reversed[*e.ReversesEntryID] = true
		}
	}

	for _, e := range entries {
		if e.ReversesEntryID != nil || reversed[e.ID] {
			continue
		}
		originalID := e.ID
		compensating := models.CommissionEntry{
			OrderID:         e.OrderID,
			PartnerID:       e.PartnerID,
			SourcePartnerID: e.SourcePartnerID,
			Level:           e.Level,
			Percent:         e.Percent,
			BaseAmount:      e.BaseAmount,
			Amount:          e.Amount.Neg(),
			State:           models.CommissionStateReversed,
			ReversesEntryID: &originalID,
		}
		if err := tx.Create(&compensating).Error; err != nil {
			return fmt.Errorf("error appending compensating entry: %w", err)
		}
	}
	return nil
}

// BalanceOf folds all entry amounts for a partner with created_at <= asOf.
// A compensating entry's negative amount cancels its original, so reversals
// net to zero without touching the original rows.
func (s *LedgerService) BalanceOf(partnerID uuid.UUID, asOf time.Time) (decimal.Decimal, error) {
	var entries []models.CommissionEntry
	if err := s.db.Select("amount").
		Where("partner_id = ? AND created_at <= ?", partnerID, asOf).
		Find(&entries).Error; err != nil {
		return decimal.Zero, fmt.Errorf("error loading partner entries: %w", err)
	}

	balance := decimal.Zero
	for _, e := range entries {
		balance = balance.Add(e.Amount)
	}
	return balance, nil
}

// MarkPaid transitions accrued entries to paid. It fails with
// ErrAlreadyReversed, without settling anything, if any target entry has
// been compensated since it accrued; payout processors must re-check right
// before disbursing.
func (s *LedgerService) MarkPaid(entryIDs []uuid.UUID) error {
	if len(entryIDs) == 0 {
		return nil
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		var entries []models.CommissionEntry
		if err := tx.Where("id IN ?", entryIDs).Find(&entries).Error; err != nil {
			return fmt.Errorf("error loading entries: %w", err)
		}
		if len(entries) != len(entryIDs) {
			return ErrEntryNotFound
		}

		var reversedCount int64
		if err := tx.Model(&models.CommissionEntry{}).
			Where("reverses_entry_id IN ?", entryIDs).
			Count(&reversedCount).Error; err != nil {
			return fmt.Errorf("error checking reversals: %w", err)
		}
		if reversedCount > 0 {
			return ErrAlreadyReversed
		}

		now := time.Now()
		for _, e := range entries {
			if e.State != models.CommissionStateAccrued {
				return fmt.Errorf("entry %s is %s, expected accrued", e.ID, e.State)
			}
			if err := tx.Model(&models.CommissionEntry{}).Where("id = ?", e.ID).
				Updates(map[string]interface{}{
					"state":   models.CommissionStatePaid,
					"paid_at": now,
				}).Error; err != nil {
				return fmt.Errorf("error marking entry paid: %w", err)
			}
		}
		return nil
	})
}

// OrderEntries returns all ledger rows for an order, oldest first
func (s *LedgerService) OrderEntries(orderID uuid.UUID) ([]models.CommissionEntry, error) {
	var entries []models.CommissionEntry
	if err := s.db.Where("order_id = ?", orderID).Order("created_at ASC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("error loading order entries: %w", err)
	}
	return entries, nil
}

// LevelSummary aggregates a partner's earnings at one level
type LevelSummary struct {
	Level int             `json:"level"`
	Count int             `json:"count"`
	Total decimal.Decimal `json:"total"`
}

// PartnerSummary aggregates a partner's ledger position
type PartnerSummary struct {
	PartnerID uuid.UUID       `json:"partner_id"`
	Accrued   decimal.Decimal `json:"accrued"`
	Paid      decimal.Decimal `json:"paid"`
	Reversed  decimal.Decimal `json:"reversed"`
	Balance   decimal.Decimal `json:"balance"`
	ByLevel   []LevelSummary  `json:"by_level"`
}

// Summarize folds a partner's entries into totals by state and level
func (s *LedgerService) Summarize(partnerID uuid.UUID) (*PartnerSummary, error) {
	var entries []models.CommissionEntry
	if err := s.db.Where("partner_id = ?", partnerID).Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("error loading partner entries: %w", err)
	}

	summary := &PartnerSummary{
		PartnerID: partnerID,
		Accrued:   decimal.Zero,
		Paid:      decimal.Zero,
		Reversed:  decimal.Zero,
		Balance:   decimal.Zero,
	}
	byLevel := make(map[int]*LevelSummary)

	for _, e := range entries {
		summary.Balance = summary.Balance.Add(e.Amount)
		switch e.State {
		case models.CommissionStateAccrued:
			summary.Accrued = summary.Accrued.Add(e.Amount)
		case models.CommissionStatePaid:
			summary.Paid = summary.Paid.Add(e.Amount)
		case models.CommissionStateReversed:
			summary.Reversed = summary.Reversed.Add(e.Amount)
		}

		ls, ok := byLevel[e.Level]
		if !ok {
			ls = &LevelSummary{Level: e.Level, Total: decimal.Zero}
			byLevel[e.Level] = ls
		}
		ls.Count++
		ls.Total = ls.Total.Add(e.Amount)
	}

	levels := make([]int, 0, len(byLevel))
	for level := range byLevel {
		levels = append(levels, level)
	}
	sort.Ints(levels)
	for _, level := range levels {
		summary.ByLevel = append(summary.ByLevel, *byLevel[level])
	}
	return summary, nil
}
