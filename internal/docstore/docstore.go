// Package docstore defines the document-store port the ledger engine is
// written against: collections of schemaless documents with point reads,
// atomic read-modify-write transactions, unconditional write batches,
// field-level increments, and live change subscriptions.
package docstore

import (
	"context"
	"errors"
)

// Sentinel errors returned by Store implementations.
var (
	// ErrDocumentNotFound is returned by Get when no document exists under the key.
	ErrDocumentNotFound = errors.New("docstore: document not found")
	// ErrConflict is returned by RunTransaction once the retry budget for
	// conflicting concurrent writes is exhausted.
	ErrConflict = errors.New("docstore: transaction conflict")
)

// Document is a stored document: a key plus its field map.
type Document struct {
	Key  string
	Data map[string]any
}

// Fields is a partial update payload. Values may be plain values or the
// Increment write operator.
type Fields map[string]any

// Increment is a write-time operator that adds Delta to a numeric field
// without reading it first. A missing field is treated as zero.
type Increment struct {
	Delta int64
}

// Inc returns an Increment operator for use inside a Fields payload.
func Inc(delta int64) Increment { return Increment{Delta: delta} }

// Tx is the handle passed to a RunTransaction callback. All reads must
// precede all writes; writes are staged and committed atomically, and the
// whole callback is retried when a read document was modified concurrently.
type Tx interface {
	Get(path, key string) (Document, error)
	Set(path, key string, data map[string]any)
	Update(path, key string, fields Fields)
	Delete(path, key string)
}

// Batch is the handle passed to a RunBatch callback. Batches stage
// unconditional writes only; no reads, no conflict detection.
type Batch interface {
	Set(path, key string, data map[string]any)
	Update(path, key string, fields Fields)
	Delete(path, key string)
}

// Store is the document-store contract consumed by the ledger engine.
//
// Set overwrites (or creates) the whole document. Update merges the given
// fields into the document, creating it when absent, and resolves Increment
// operators atomically. Watch delivers the full collection contents after
// every committed change until the returned stop function is called.
type Store interface {
	Get(ctx context.Context, path, key string) (Document, error)
	List(ctx context.Context, path string) ([]Document, error)
	Create(ctx context.Context, path string, data map[string]any) (string, error)
	Set(ctx context.Context, path, key string, data map[string]any) error
	Update(ctx context.Context, path, key string, fields Fields) error
	Delete(ctx context.Context, path, key string) error
	RunTransaction(ctx context.Context, fn func(tx Tx) error) error
	RunBatch(ctx context.Context, fn func(b Batch) error) error
	Watch(path string, onChange func([]Document), onError func(error)) func()
}

// Int64 coerces a document field value to int64. Numeric fields round-trip
// through JSON as float64 in some backends, so every numeric read goes
// through here.
func Int64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case float32:
		return int64(n)
	case uint:
		return int64(n)
	case uint64:
		return int64(n)
	}
	return 0
}

// ApplyFields merges a Fields payload into a document's field map,
// resolving Increment operators against the current value. Shared by the
// memory and GORM backends so both resolve increments identically.
func ApplyFields(data map[string]any, fields Fields) map[string]any {
	if data == nil {
		data = make(map[string]any, len(fields))
	}
	for k, v := range fields {
		if inc, ok := v.(Increment); ok {
			data[k] = Int64(data[k]) + inc.Delta
			continue
		}
		data[k] = v
	}
	return data
}
