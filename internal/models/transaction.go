package models

import (
	"time"

	"khata/internal/docstore"
)

// Status is a transaction's settlement state.
type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
)

// IsValid returns true for the two supported statuses.
func (s Status) IsValid() bool {
	return s == StatusPending || s == StatusPaid
}

// Categories is the closed set of expense category labels.
var Categories = []string{
	"Grocery", "Pets", "Fuel", "Dining", "LIC/OICL",
	"Travel", "Entertainment", "Utility Bills", "Rent", "Other",
}

// Owners is the closed set of responsibility labels.
var Owners = []string{"Home", "Personal"}

// DefaultOwner is assumed when a transaction carries no owner label.
const DefaultOwner = "Home"

// ValidCategory reports whether c is one of the known category labels.
func ValidCategory(c string) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// ValidOwner reports whether o is one of the known owner labels.
func ValidOwner(o string) bool {
	for _, known := range Owners {
		if o == known {
			return true
		}
	}
	return false
}

// Transaction is one recorded expense entry. It belongs to exactly one
// source at a time; ownership transfers atomically during a move.
type Transaction struct {
	ID        string    `json:"id"`
	SourceID  string    `json:"source_id"`
	Date      string    `json:"date"` // ISO-8601 calendar date (YYYY-MM-DD)
	Details   string    `json:"details"`
	Category  string    `json:"category"`
	Amount    int64     `json:"amount"` // minor currency units, non-negative
	Comment   string    `json:"comment,omitempty"`
	Owner     string    `json:"owner"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Normalize applies the record's defaulting rules in one place: empty owner
// becomes DefaultOwner, empty status becomes pending.
func (t *Transaction) Normalize() {
	if t.Owner == "" {
		t.Owner = DefaultOwner
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
}

// Doc converts the transaction to a document field map for storage.
// CreatedAt is stored as an RFC 3339 string so it survives the JSON
// round-trip of the relational backend unchanged.
func (t Transaction) Doc() map[string]any {
	return map[string]any{
		"date":      t.Date,
		"details":   t.Details,
		"category":  t.Category,
		"amount":    t.Amount,
		"comment":   t.Comment,
		"owner":     t.Owner,
		"status":    string(t.Status),
		"createdAt": t.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// TransactionFromDoc rebuilds a transaction from a stored document,
// applying the same defaulting rules as Normalize for fields written by
// older revisions of the data.
func TransactionFromDoc(sourceID string, d docstore.Document) Transaction {
	t := Transaction{
		ID:       d.Key,
		SourceID: sourceID,
		Date:     str(d.Data["date"]),
		Details:  str(d.Data["details"]),
		Category: str(d.Data["category"]),
		Amount:   docstore.Int64(d.Data["amount"]),
		Comment:  str(d.Data["comment"]),
		Owner:    str(d.Data["owner"]),
		Status:   Status(str(d.Data["status"])),
	}
	if raw := str(d.Data["createdAt"]); raw != "" {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			t.CreatedAt = ts
		}
	}
	t.Normalize()
	return t
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
