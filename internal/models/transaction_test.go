package models

import (
	"testing"
	"time"

	"khata/internal/docstore"
)

func TestStatusIsValid(t *testing.T) {
	if !StatusPending.IsValid() || !StatusPaid.IsValid() {
		t.Error("expected pending and paid to be valid")
	}
	for _, s := range []Status{"", "settled", "PAID"} {
		if s.IsValid() {
			t.Errorf("expected %q to be invalid", s)
		}
	}
}

func TestValidCategory(t *testing.T) {
	if !ValidCategory("Grocery") || !ValidCategory("Utility Bills") {
		t.Error("expected known categories to validate")
	}
	if ValidCategory("grocery") || ValidCategory("") {
		t.Error("expected unknown labels to fail")
	}
}

func TestNormalize(t *testing.T) {
	tx := Transaction{}
	tx.Normalize()
	if tx.Owner != DefaultOwner {
		t.Errorf("expected owner %q, got %q", DefaultOwner, tx.Owner)
	}
	if tx.Status != StatusPending {
		t.Errorf("expected status pending, got %q", tx.Status)
	}

	tx = Transaction{Owner: "Personal", Status: StatusPaid}
	tx.Normalize()
	if tx.Owner != "Personal" || tx.Status != StatusPaid {
		t.Error("expected explicit values to survive")
	}
}

func TestTransactionDocRoundtrip(t *testing.T) {
	created := time.Date(2026, 8, 15, 10, 30, 0, 0, time.UTC)
	original := Transaction{
		ID:        "tx-1",
		SourceID:  "hdfc",
		Date:      "2026-08-15",
		Details:   "weekly groceries",
		Category:  "Grocery",
		Amount:    4250,
		Comment:   "card",
		Owner:     "Home",
		Status:    StatusPaid,
		CreatedAt: created,
	}

	got := TransactionFromDoc("hdfc", docstore.Document{Key: "tx-1", Data: original.Doc()})
	if got != original {
		t.Errorf("roundtrip mismatch:\n got %+v\nwant %+v", got, original)
	}
}

func TestTransactionFromDocDefaults(t *testing.T) {
	// Documents written before owner/status existed come back normalized.
	got := TransactionFromDoc("hdfc", docstore.Document{
		Key: "tx-2",
		Data: map[string]any{
			"date":    "2026-01-02",
			"details": "old entry",
			"amount":  float64(100), // JSON numbers decode as float64
		},
	})

	if got.Owner != DefaultOwner {
		t.Errorf("expected default owner, got %q", got.Owner)
	}
	if got.Status != StatusPending {
		t.Errorf("expected default pending status, got %q", got.Status)
	}
	if got.Amount != 100 {
		t.Errorf("expected amount 100, got %d", got.Amount)
	}
	if !got.CreatedAt.IsZero() {
		t.Errorf("expected zero created time, got %v", got.CreatedAt)
	}
}

func TestSourceDocRoundtrip(t *testing.T) {
	original := Source{ID: "hdfc", Outstanding: 150, TotalOutstanding: 400}
	got := SourceFromDoc(docstore.Document{Key: "hdfc", Data: original.Doc()})
	if got != original {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", got, original)
	}

	// Missing aggregate fields read as zero.
	empty := SourceFromDoc(docstore.Document{Key: "new", Data: map[string]any{}})
	if empty.Outstanding != 0 || empty.TotalOutstanding != 0 {
		t.Errorf("expected zero aggregates, got %+v", empty)
	}
}
