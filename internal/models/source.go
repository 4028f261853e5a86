package models

import "khata/internal/docstore"

// Source is an aggregate root: an account or person that transactions are
// recorded against. Its two running totals are maintained incrementally by
// the ledger engine and must always equal the sums over its transaction
// sub-collection after every committed operation.
type Source struct {
	ID               string `json:"id"`
	Outstanding      int64  `json:"outstanding"`       // Σ amount where status=pending
	TotalOutstanding int64  `json:"total_outstanding"` // Σ amount over all transactions
}

// FieldOutstanding and FieldTotalOutstanding are the aggregate field names
// on a source document, shared between the engine's increment payloads and
// the repair path's overwrites.
const (
	FieldOutstanding      = "outstanding"
	FieldTotalOutstanding = "totalOutstanding"
)

// Doc converts the source to a document field map for storage.
func (s Source) Doc() map[string]any {
	return map[string]any{
		FieldOutstanding:      s.Outstanding,
		FieldTotalOutstanding: s.TotalOutstanding,
	}
}

// SourceFromDoc rebuilds a source from a stored document. Missing aggregate
// fields read as zero.
func SourceFromDoc(d docstore.Document) Source {
	return Source{
		ID:               d.Key,
		Outstanding:      docstore.Int64(d.Data[FieldOutstanding]),
		TotalOutstanding: docstore.Int64(d.Data[FieldTotalOutstanding]),
	}
}
