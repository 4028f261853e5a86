// Package gormstore implements the docstore port on a relational database
// through GORM. Documents live in a single table keyed by (collection, key)
// with a JSON payload; atomicity comes from database transactions and
// increments are resolved under row locks, so conflicting writers on the
// same source document serialize instead of clobbering each other.
package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"khata/internal/docstore"
	"khata/internal/uuid"
)

// Compile-time contract assertion.
var _ docstore.Store = (*Store)(nil)

// row is the storage model for one document. Data is JSON text so the same
// model maps onto jsonb in postgres and plain text in sqlite.
type row struct {
	Collection string `gorm:"primaryKey;size:255"`
	Key        string `gorm:"primaryKey;size:64"`
	Data       string `gorm:"type:jsonb;not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (row) TableName() string { return "documents" }

// Store is a GORM-backed document store.
type Store struct {
	db *gorm.DB

	watchMu   sync.Mutex
	watchers  map[string]map[int]func([]docstore.Document)
	nextWatch int
}

// New creates a Store on an open GORM connection.
func New(db *gorm.DB) *Store {
	return &Store{
		db:       db,
		watchers: make(map[string]map[int]func([]docstore.Document)),
	}
}

// AutoMigrate creates the documents table. Used by the sqlite backend and
// tests; the postgres backend migrates through golang-migrate instead.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&row{})
}

// Get returns the document under path/key, or ErrDocumentNotFound.
func (s *Store) Get(ctx context.Context, path, key string) (docstore.Document, error) {
	return getDoc(s.db.WithContext(ctx), path, key, false)
}

// List returns every document in the collection.
func (s *Store) List(ctx context.Context, path string) ([]docstore.Document, error) {
	var rows []row
	if err := s.db.WithContext(ctx).Where("collection = ?", path).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list %s: %w", path, err)
	}

	docs := make([]docstore.Document, 0, len(rows))
	for _, r := range rows {
		data, err := decode(r.Data)
		if err != nil {
			return nil, err
		}
		docs = append(docs, docstore.Document{Key: r.Key, Data: data})
	}
	return docs, nil
}

// Create stores data under a freshly generated key and returns the key.
func (s *Store) Create(ctx context.Context, path string, data map[string]any) (string, error) {
	key := uuid.New()
	if err := s.Set(ctx, path, key, data); err != nil {
		return "", err
	}
	return key, nil
}

// Set overwrites (or creates) the whole document.
func (s *Store) Set(ctx context.Context, path, key string, data map[string]any) error {
	if err := upsert(s.db.WithContext(ctx), path, key, data); err != nil {
		return err
	}
	s.notify(ctx, path)
	return nil
}

// Update merges fields into the document under a row lock, creating it when
// absent. Increment operators are resolved against the locked value, which
// makes them safe without a prior read on the caller's side.
func (s *Store) Update(ctx context.Context, path, key string, fields docstore.Fields) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return mergeLocked(tx, path, key, fields)
	})
	if err != nil {
		return err
	}
	s.notify(ctx, path)
	return nil
}

// Delete removes the document. Deleting an absent document is a no-op.
func (s *Store) Delete(ctx context.Context, path, key string) error {
	if err := s.db.WithContext(ctx).Delete(&row{}, "collection = ? AND key = ?", path, key).Error; err != nil {
		return fmt.Errorf("delete %s/%s: %w", path, key, err)
	}
	s.notify(ctx, path)
	return nil
}

type stagedOp struct {
	kind   string // "set" | "update" | "delete"
	path   string
	key    string
	data   map[string]any
	fields docstore.Fields
}

type sqlTx struct {
	tx     *gorm.DB
	staged []stagedOp
}

func (t *sqlTx) Get(path, key string) (docstore.Document, error) {
	return getDoc(t.tx, path, key, true)
}

func (t *sqlTx) Set(path, key string, data map[string]any) {
	t.staged = append(t.staged, stagedOp{kind: "set", path: path, key: key, data: data})
}

func (t *sqlTx) Update(path, key string, fields docstore.Fields) {
	t.staged = append(t.staged, stagedOp{kind: "update", path: path, key: key, fields: fields})
}

func (t *sqlTx) Delete(path, key string) {
	t.staged = append(t.staged, stagedOp{kind: "delete", path: path, key: key})
}

// RunTransaction runs fn inside one database transaction. Reads inside the
// callback take row locks, so concurrent writers to the same documents block
// until commit instead of racing; staged writes apply only when fn succeeds.
func (s *Store) RunTransaction(ctx context.Context, fn func(tx docstore.Tx) error) error {
	return s.run(ctx, func(tx *gorm.DB) ([]string, error) {
		handle := &sqlTx{tx: tx}
		if err := fn(handle); err != nil {
			return nil, err
		}
		return applyStaged(tx, handle.staged)
	})
}

type sqlBatch struct {
	staged []stagedOp
}

func (b *sqlBatch) Set(path, key string, data map[string]any) {
	b.staged = append(b.staged, stagedOp{kind: "set", path: path, key: key, data: data})
}

func (b *sqlBatch) Update(path, key string, fields docstore.Fields) {
	b.staged = append(b.staged, stagedOp{kind: "update", path: path, key: key, fields: fields})
}

func (b *sqlBatch) Delete(path, key string) {
	b.staged = append(b.staged, stagedOp{kind: "delete", path: path, key: key})
}

// RunBatch applies the writes staged by fn in one database transaction.
func (s *Store) RunBatch(ctx context.Context, fn func(b docstore.Batch) error) error {
	return s.run(ctx, func(tx *gorm.DB) ([]string, error) {
		batch := &sqlBatch{}
		if err := fn(batch); err != nil {
			return nil, err
		}
		return applyStaged(tx, batch.staged)
	})
}

// run executes body in a transaction and notifies watchers of the touched
// collections after commit.
func (s *Store) run(ctx context.Context, body func(tx *gorm.DB) ([]string, error)) error {
	var touched []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var bodyErr error
		touched, bodyErr = body(tx)
		return bodyErr
	})
	if err != nil {
		return err
	}
	for _, path := range touched {
		s.notify(ctx, path)
	}
	return nil
}

func applyStaged(tx *gorm.DB, staged []stagedOp) ([]string, error) {
	touched := make(map[string]bool)
	for _, op := range staged {
		var err error
		switch op.kind {
		case "set":
			err = upsert(tx, op.path, op.key, op.data)
		case "update":
			err = mergeLocked(tx, op.path, op.key, op.fields)
		case "delete":
			err = tx.Delete(&row{}, "collection = ? AND key = ?", op.path, op.key).Error
		}
		if err != nil {
			return nil, err
		}
		touched[op.path] = true
	}

	paths := make([]string, 0, len(touched))
	for p := range touched {
		paths = append(paths, p)
	}
	return paths, nil
}

// Watch registers an in-process subscriber for the collection and delivers
// the current contents immediately. Changes made by other processes against
// the same database are not observed; the watch surface is process-local.
func (s *Store) Watch(path string, onChange func([]docstore.Document), onError func(error)) func() {
	s.watchMu.Lock()
	id := s.nextWatch
	s.nextWatch++
	if s.watchers[path] == nil {
		s.watchers[path] = make(map[int]func([]docstore.Document))
	}
	s.watchers[path][id] = onChange
	s.watchMu.Unlock()

	docs, err := s.List(context.Background(), path)
	if err != nil {
		if onError != nil {
			onError(err)
		}
	} else {
		onChange(docs)
	}

	return func() {
		s.watchMu.Lock()
		delete(s.watchers[path], id)
		s.watchMu.Unlock()
	}
}

func (s *Store) notify(ctx context.Context, path string) {
	s.watchMu.Lock()
	subs := make([]func([]docstore.Document), 0, len(s.watchers[path]))
	for _, fn := range s.watchers[path] {
		subs = append(subs, fn)
	}
	s.watchMu.Unlock()

	if len(subs) == 0 {
		return
	}

	docs, err := s.List(ctx, path)
	if err != nil {
		return
	}
	for _, fn := range subs {
		fn(docs)
	}
}

func getDoc(tx *gorm.DB, path, key string, forUpdate bool) (docstore.Document, error) {
	q := tx.Where("collection = ? AND key = ?", path, key)
	// sqlite has no FOR UPDATE and serializes writers on its own.
	if forUpdate && tx.Dialector.Name() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var r row
	if err := q.First(&r).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return docstore.Document{}, docstore.ErrDocumentNotFound
		}
		return docstore.Document{}, fmt.Errorf("get %s/%s: %w", path, key, err)
	}

	data, err := decode(r.Data)
	if err != nil {
		return docstore.Document{}, err
	}
	return docstore.Document{Key: key, Data: data}, nil
}

func upsert(tx *gorm.DB, path, key string, data map[string]any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", path, key, err)
	}

	err = tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "collection"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(&row{Collection: path, Key: key, Data: string(payload)}).Error
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", path, key, err)
	}
	return nil
}

// mergeLocked reads the current document under a row lock, applies the field
// merge (resolving increments), and writes it back within the same
// transaction.
func mergeLocked(tx *gorm.DB, path, key string, fields docstore.Fields) error {
	doc, err := getDoc(tx, path, key, true)
	if err != nil && !errors.Is(err, docstore.ErrDocumentNotFound) {
		return err
	}
	return upsert(tx, path, key, docstore.ApplyFields(doc.Data, fields))
}

func decode(payload string) (map[string]any, error) {
	var data map[string]any
	if err := json.Unmarshal([]byte(payload), &data); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return data, nil
}
