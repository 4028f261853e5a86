package testutil

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"khata/internal/ledger"
	"khata/internal/models"
)

// counter provides unique values across fixtures within a test run.
var counter atomic.Int64

func nextID() int64 {
	return counter.Add(1)
}

// NewTestTransaction builds a valid pending transaction payload with the
// given amount.
func NewTestTransaction(amount int64) models.Transaction {
	return models.Transaction{
		Date:     "2026-08-15",
		Details:  fmt.Sprintf("Test expense %d", nextID()),
		Category: "Grocery",
		Amount:   amount,
		Owner:    models.DefaultOwner,
	}
}

// AddTestTransaction records a pending transaction through the engine and
// returns it.
func AddTestTransaction(t *testing.T, svc ledger.Servicer, sourceID string, amount int64) *models.Transaction {
	t.Helper()

	tx, err := svc.AddTransaction(context.Background(), sourceID, NewTestTransaction(amount))
	if err != nil {
		t.Fatalf("failed to add test transaction: %v", err)
	}
	return tx
}

// AddPaidTestTransaction records a transaction and immediately marks it paid.
func AddPaidTestTransaction(t *testing.T, svc ledger.Servicer, sourceID string, amount int64) *models.Transaction {
	t.Helper()

	tx := AddTestTransaction(t, svc, sourceID, amount)
	if err := svc.UpdateTransactionStatus(context.Background(), sourceID, tx.ID, models.StatusPaid); err != nil {
		t.Fatalf("failed to mark test transaction paid: %v", err)
	}
	tx.Status = models.StatusPaid
	return tx
}
