package ledger

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/nanorem/backend/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&models.Partner{},
		&models.Product{},
		&models.Order{},
		&models.OrderItem{},
		&models.CommissionEntry{},
	)
	require.NoError(t, err)

	return db
}

func testEntry(orderID, partnerID, buyerID uuid.UUID, level int, amount string) models.CommissionEntry {
	return models.CommissionEntry{
		OrderID:         orderID,
		PartnerID:       partnerID,
		SourcePartnerID: buyerID,
		Level:           level,
		Percent:         decimal.NewFromInt(10),
		BaseAmount:      decimal.NewFromInt(1000),
		Amount:          decimal.RequireFromString(amount),
	}
}

func TestCommitWritesAccruedEntries(t *testing.T) {
	svc := NewLedgerService(setupTestDB(t))

	orderID := uuid.New()
	buyer := uuid.New()
	sponsor := uuid.New()

	entries := []models.CommissionEntry{
		testEntry(orderID, sponsor, buyer, 1, "100.00"),
		testEntry(orderID, uuid.New(), buyer, 2, "50.00"),
	}
	err := svc.Commit(entries, decimal.NewFromInt(450))
	require.NoError(t, err)

	stored, err := svc.OrderEntries(orderID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	for _, e := range stored {
		assert.Equal(t, models.CommissionStateAccrued, e.State)
		assert.Nil(t, e.ReversesEntryID)
	}
}

func TestCommitRejectsDuplicateOrder(t *testing.T) {
	svc := NewLedgerService(setupTestDB(t))

	orderID := uuid.New()
	entries := []models.CommissionEntry{testEntry(orderID, uuid.New(), uuid.New(), 1, "100.00")}
	payoutCap := decimal.NewFromInt(450)

	require.NoError(t, svc.Commit(entries, payoutCap))

	retry := []models.CommissionEntry{testEntry(orderID, uuid.New(), uuid.New(), 1, "100.00")}
	err := svc.Commit(retry, payoutCap)
	assert.ErrorIs(t, err, ErrDuplicateOrder)

	stored, err := svc.OrderEntries(orderID)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestCommitRejectsOverAllocation(t *testing.T) {
	svc := NewLedgerService(setupTestDB(t))

	orderID := uuid.New()
	entries := []models.CommissionEntry{
		testEntry(orderID, uuid.New(), uuid.New(), 1, "300.00"),
		testEntry(orderID, uuid.New(), uuid.New(), 2, "200.00"),
	}
	err := svc.Commit(entries, decimal.NewFromInt(450))
	assert.ErrorIs(t, err, ErrOverAllocation)

	stored, err := svc.OrderEntries(orderID)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestCommitEmptyIsNoop(t *testing.T) {
	svc := NewLedgerService(setupTestDB(t))
	assert.NoError(t, svc.Commit(nil, decimal.Zero))
}

func TestReverseWritesCompensatingEntries(t *testing.T) {
	svc := NewLedgerService(setupTestDB(t))

	orderID := uuid.New()
	partner := uuid.New()
	entries := []models.CommissionEntry{testEntry(orderID, partner, uuid.New(), 1, "100.00")}
	require.NoError(t, svc.Commit(entries, decimal.NewFromInt(450)))

	require.NoError(t, svc.Reverse(orderID))

	stored, err := svc.OrderEntries(orderID)
	require.NoError(t, err)
	require.Len(t, stored, 2)

	var compensating *models.CommissionEntry
	for i := range stored {
		if stored[i].ReversesEntryID != nil {
			compensating = &stored[i]
		}
	}
	require.NotNil(t, compensating)
	assert.Equal(t, models.CommissionStateReversed, compensating.State)
	assert.True(t, compensating.Amount.Equal(decimal.RequireFromString("-100.00")))

	balance, err := svc.BalanceOf(partner, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, balance.IsZero(), "balance after reversal is %s", balance)
}

func TestReverseIsIdempotent(t *testing.T) {
	svc := NewLedgerService(setupTestDB(t))

	orderID := uuid.New()
	entries := []models.CommissionEntry{testEntry(orderID, uuid.New(), uuid.New(), 1, "100.00")}
	require.NoError(t, svc.Commit(entries, decimal.NewFromInt(450)))

	require.NoError(t, svc.Reverse(orderID))
	require.NoError(t, svc.Reverse(orderID))

	stored, err := svc.OrderEntries(orderID)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestReverseUnknownOrder(t *testing.T) {
	svc := NewLedgerService(setupTestDB(t))
	assert.ErrorIs(t, svc.Reverse(uuid.New()), ErrOrderNotFound)
}

func TestMarkPaidSettlesAccruedEntries(t *testing.T) {
	svc := NewLedgerService(setupTestDB(t))

	orderID := uuid.New()
	entries := []models.CommissionEntry{testEntry(orderID, uuid.New(), uuid.New(), 1, "100.00")}
	require.NoError(t, svc.Commit(entries, decimal.NewFromInt(450)))

	stored, err := svc.OrderEntries(orderID)
	require.NoError(t, err)
	require.Len(t, stored, 1)

	require.NoError(t, svc.MarkPaid([]uuid.UUID{stored[0].ID}))

	paid, err := svc.OrderEntries(orderID)
	require.NoError(t, err)
	assert.Equal(t, models.CommissionStatePaid, paid[0].State)
	assert.NotNil(t, paid[0].PaidAt)
}

func TestMarkPaidRejectsReversedEntry(t *testing.T) {
	svc := NewLedgerService(setupTestDB(t))

	orderID := uuid.New()
	entries := []models.CommissionEntry{testEntry(orderID, uuid.New(), uuid.New(), 1, "100.00")}
	require.NoError(t, svc.Commit(entries, decimal.NewFromInt(450)))

	stored, err := svc.OrderEntries(orderID)
	require.NoError(t, err)
	originalID := stored[0].ID

	require.NoError(t, svc.Reverse(orderID))

	err = svc.MarkPaid([]uuid.UUID{originalID})
	assert.ErrorIs(t, err, ErrAlreadyReversed)

	// The entry must still be accrued, not half-settled.
	after, err := svc.OrderEntries(orderID)
	require.NoError(t, err)
	for _, e := range after {
		if e.ID == originalID {
			assert.Equal(t, models.CommissionStateAccrued, e.State)
		}
	}
}

func TestMarkPaidUnknownEntry(t *testing.T) {
	svc := NewLedgerService(setupTestDB(t))
	err := svc.MarkPaid([]uuid.UUID{uuid.New()})
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestBalanceOfAsOfCutoff(t *testing.T) {
	db := setupTestDB(t)
	svc := NewLedgerService(db)

	partner := uuid.New()
	old := testEntry(uuid.New(), partner, uuid.New(), 1, "100.00")
	old.State = models.CommissionStateAccrued
	old.CreatedAt = time.Now().Add(-48 * time.Hour)
	require.NoError(t, db.Create(&old).Error)

	recent := testEntry(uuid.New(), partner, uuid.New(), 1, "40.00")
	recent.State = models.CommissionStateAccrued
	recent.CreatedAt = time.Now().Add(-time.Hour)
	require.NoError(t, db.Create(&recent).Error)

	// As of a day ago only the old entry counts.
	balance, err := svc.BalanceOf(partner, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("100.00")), "got %s", balance)

	balance, err = svc.BalanceOf(partner, time.Now())
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("140.00")), "got %s", balance)
}

func TestSummarize(t *testing.T) {
	svc := NewLedgerService(setupTestDB(t))

	partner := uuid.New()
	buyer := uuid.New()
	payoutCap := decimal.NewFromInt(450)

	keptOrder := uuid.New()
	require.NoError(t, svc.Commit([]models.CommissionEntry{
		testEntry(keptOrder, partner, buyer, 1, "100.00"),
	}, payoutCap))

	reversedOrder := uuid.New()
	require.NoError(t, svc.Commit([]models.CommissionEntry{
		testEntry(reversedOrder, partner, buyer, 2, "50.00"),
	}, payoutCap))
	require.NoError(t, svc.Reverse(reversedOrder))

	summary, err := svc.Summarize(partner)
	require.NoError(t, err)

	// 100 accrued, plus the 50 accrued and its -50 compensation.
	assert.True(t, summary.Accrued.Equal(decimal.RequireFromString("150.00")), "accrued %s", summary.Accrued)
	assert.True(t, summary.Reversed.Equal(decimal.RequireFromString("-50.00")), "reversed %s", summary.Reversed)
	assert.True(t, summary.Balance.Equal(decimal.RequireFromString("100.00")), "balance %s", summary.Balance)

	require.Len(t, summary.ByLevel, 2)
	assert.Equal(t, 1, summary.ByLevel[0].Level)
	assert.True(t, summary.ByLevel[0].Total.Equal(decimal.RequireFromString("100.00")))
	assert.Equal(t, 2, summary.ByLevel[1].Level)
	assert.True(t, summary.ByLevel[1].Total.IsZero())
}
