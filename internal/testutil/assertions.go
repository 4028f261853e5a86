package testutil

import (
	"context"
	"errors"
	"testing"

	apperrors "khata/internal/errors"
	"khata/internal/ledger"
	"khata/internal/models"
)

// AssertAppError checks that err is an *AppError with the expected error code.
func AssertAppError(t *testing.T, err error, expectedCode string) {
	t.Helper()

	if err == nil {
		t.Fatalf("expected AppError with code %q, got nil", expectedCode)
	}

	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *AppError, got %T: %v", err, err)
	}

	if appErr.Code != expectedCode {
		t.Errorf("expected error code %q, got %q (message: %s)", expectedCode, appErr.Code, appErr.Message)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertAggregates checks a source's stored running totals.
func AssertAggregates(t *testing.T, svc ledger.Servicer, sourceID string, outstanding, total int64) {
	t.Helper()

	src, err := svc.GetSource(context.Background(), sourceID)
	if err != nil {
		t.Fatalf("failed to read source %q: %v", sourceID, err)
	}
	if src.Outstanding != outstanding {
		t.Errorf("source %q: expected outstanding %d, got %d", sourceID, outstanding, src.Outstanding)
	}
	if src.TotalOutstanding != total {
		t.Errorf("source %q: expected total outstanding %d, got %d", sourceID, total, src.TotalOutstanding)
	}
}

// AssertInvariant recomputes a source's totals from its transactions and
// checks the stored aggregates match exactly: outstanding equals the sum of
// pending amounts, total equals the sum of all amounts.
func AssertInvariant(t *testing.T, svc ledger.Servicer, sourceID string) {
	t.Helper()

	txs, err := svc.ListTransactions(context.Background(), sourceID, ledger.TransactionFilter{})
	if err != nil {
		t.Fatalf("failed to list transactions of %q: %v", sourceID, err)
	}

	var pending, total int64
	for _, tx := range txs {
		total += tx.Amount
		if tx.Status == models.StatusPending {
			pending += tx.Amount
		}
	}
	AssertAggregates(t, svc, sourceID, pending, total)
}
