// Package memory provides an in-memory implementation of the docstore port
// used by tests and the "memory" backend. Transactions use optimistic
// concurrency: reads record per-document versions, and commit fails and
// retries when any read document changed underneath the callback.
package memory

import (
	"context"
	"maps"
	"sync"

	"khata/internal/docstore"
	"khata/internal/uuid"
)

// Compile-time contract assertion.
var _ docstore.Store = (*Store)(nil)

// maxTransactionAttempts bounds optimistic retries before giving up with
// ErrConflict.
const maxTransactionAttempts = 5

type entry struct {
	data    map[string]any
	version int64
}

// Store is a mutex-guarded in-memory document store.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]*entry
	// tombstones keeps the last version of deleted documents so a
	// delete-then-recreate still fails version checks in open transactions.
	tombstones map[string]int64

	watchMu   sync.Mutex
	watchers  map[string]map[int]func([]docstore.Document)
	nextWatch int
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		collections: make(map[string]map[string]*entry),
		tombstones:  make(map[string]int64),
		watchers:    make(map[string]map[int]func([]docstore.Document)),
	}
}

// Get returns the document under path/key, or ErrDocumentNotFound.
func (s *Store) Get(_ context.Context, path, key string) (docstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.collections[path][key]
	if !ok {
		return docstore.Document{}, docstore.ErrDocumentNotFound
	}
	return docstore.Document{Key: key, Data: maps.Clone(e.data)}, nil
}

// List returns a point-in-time snapshot of every document in the collection.
func (s *Store) List(_ context.Context, path string) ([]docstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked(path), nil
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
func (s *Store) Set(_ context.Context, path, key string, data map[string]any) error {
	s.mu.Lock()
	s.setLocked(path, key, maps.Clone(data))
	s.mu.Unlock()

	s.notify(path)
	return nil
}

// Update merges fields into the document, creating it when absent.
func (s *Store) Update(_ context.Context, path, key string, fields docstore.Fields) error {
	s.mu.Lock()
	s.updateLocked(path, key, fields)
	s.mu.Unlock()

	s.notify(path)
	return nil
}

// Delete removes the document. Deleting an absent document is a no-op.
func (s *Store) Delete(_ context.Context, path, key string) error {
	s.mu.Lock()
	s.deleteLocked(path, key)
	s.mu.Unlock()

	s.notify(path)
	return nil
}

type stagedOp struct {
	kind   string // "set" | "update" | "delete"
	path   string
	key    string
	data   map[string]any
	fields docstore.Fields
}

type memTx struct {
	store  *Store
	reads  map[[2]string]int64 // (path,key) -> version observed (0 = absent)
	staged []stagedOp
}

func (t *memTx) Get(path, key string) (docstore.Document, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	e, ok := t.store.collections[path][key]
	if !ok {
		t.reads[[2]string{path, key}] = 0
		return docstore.Document{}, docstore.ErrDocumentNotFound
	}
	t.reads[[2]string{path, key}] = e.version
	return docstore.Document{Key: key, Data: maps.Clone(e.data)}, nil
}

func (t *memTx) Set(path, key string, data map[string]any) {
	t.staged = append(t.staged, stagedOp{kind: "set", path: path, key: key, data: maps.Clone(data)})
}

func (t *memTx) Update(path, key string, fields docstore.Fields) {
	t.staged = append(t.staged, stagedOp{kind: "update", path: path, key: key, fields: fields})
}

func (t *memTx) Delete(path, key string) {
	t.staged = append(t.staged, stagedOp{kind: "delete", path: path, key: key})
}

// RunTransaction executes fn with optimistic retry-on-conflict semantics.
// Errors returned by fn abort without retry; only version conflicts retry.
func (s *Store) RunTransaction(_ context.Context, fn func(tx docstore.Tx) error) error {
	for attempt := 0; attempt < maxTransactionAttempts; attempt++ {
		tx := &memTx{store: s, reads: make(map[[2]string]int64)}
		if err := fn(tx); err != nil {
			return err
		}

		if touched, ok := s.commit(tx); ok {
			for _, path := range touched {
				s.notify(path)
			}
			return nil
		}
	}
	return docstore.ErrConflict
}

// commit verifies every read document is unchanged and applies the staged
// writes. Returns the touched collection paths and whether commit succeeded.
func (s *Store) commit(tx *memTx) ([]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for read, version := range tx.reads {
		var current int64
		if e, ok := s.collections[read[0]][read[1]]; ok {
			current = e.version
		}
		if current != version {
			return nil, false
		}
	}

	touched := make(map[string]bool)
	for _, op := range tx.staged {
		switch op.kind {
		case "set":
			s.setLocked(op.path, op.key, op.data)
		case "update":
			s.updateLocked(op.path, op.key, op.fields)
		case "delete":
			s.deleteLocked(op.path, op.key)
		}
		touched[op.path] = true
	}

	paths := make([]string, 0, len(touched))
	for p := range touched {
		paths = append(paths, p)
	}
	return paths, true
}

type memBatch struct {
	staged []stagedOp
}

func (b *memBatch) Set(path, key string, data map[string]any) {
	b.staged = append(b.staged, stagedOp{kind: "set", path: path, key: key, data: maps.Clone(data)})
}

func (b *memBatch) Update(path, key string, fields docstore.Fields) {
	b.staged = append(b.staged, stagedOp{kind: "update", path: path, key: key, fields: fields})
}

func (b *memBatch) Delete(path, key string) {
	b.staged = append(b.staged, stagedOp{kind: "delete", path: path, key: key})
}

// RunBatch stages unconditional writes in fn and applies them atomically.
// An error from fn discards the whole batch.
func (s *Store) RunBatch(_ context.Context, fn func(b docstore.Batch) error) error {
	batch := &memBatch{}
	if err := fn(batch); err != nil {
		return err
	}

	s.mu.Lock()
	touched := make(map[string]bool)
	for _, op := range batch.staged {
		switch op.kind {
		case "set":
			s.setLocked(op.path, op.key, op.data)
		case "update":
			s.updateLocked(op.path, op.key, op.fields)
		case "delete":
			s.deleteLocked(op.path, op.key)
		}
		touched[op.path] = true
	}
	s.mu.Unlock()

	for path := range touched {
		s.notify(path)
	}
	return nil
}

// Watch registers a subscriber for the collection and immediately delivers
// the current contents. The returned function stops the subscription.
func (s *Store) Watch(path string, onChange func([]docstore.Document), _ func(error)) func() {
	s.watchMu.Lock()
	id := s.nextWatch
	s.nextWatch++
	if s.watchers[path] == nil {
		s.watchers[path] = make(map[int]func([]docstore.Document))
	}
	s.watchers[path][id] = onChange
	s.watchMu.Unlock()

	s.mu.RLock()
	snapshot := s.snapshotLocked(path)
	s.mu.RUnlock()
	onChange(snapshot)

	return func() {
		s.watchMu.Lock()
		delete(s.watchers[path], id)
		s.watchMu.Unlock()
	}
}

func (s *Store) setLocked(path, key string, data map[string]any) {
	col := s.collections[path]
	if col == nil {
		col = make(map[string]*entry)
		s.collections[path] = col
	}
	version := int64(1)
	if prev, ok := col[key]; ok {
		version = prev.version + 1
	} else if buried, ok := s.tombstones[path+"/"+key]; ok {
		version = buried + 1
	}
	col[key] = &entry{data: data, version: version}
}

func (s *Store) updateLocked(path, key string, fields docstore.Fields) {
	var current map[string]any
	if e, ok := s.collections[path][key]; ok {
		current = maps.Clone(e.data)
	}
	s.setLocked(path, key, docstore.ApplyFields(current, fields))
}

func (s *Store) deleteLocked(path, key string) {
	if col, ok := s.collections[path]; ok {
		if e, ok := col[key]; ok {
			s.tombstones[path+"/"+key] = e.version
			delete(col, key)
		}
	}
}

func (s *Store) snapshotLocked(path string) []docstore.Document {
	col := s.collections[path]
	docs := make([]docstore.Document, 0, len(col))
	for key, e := range col {
		docs = append(docs, docstore.Document{Key: key, Data: maps.Clone(e.data)})
	}
	return docs
}

// notify delivers a fresh collection snapshot to every watcher of path.
func (s *Store) notify(path string) {
	s.watchMu.Lock()
	subs := make([]func([]docstore.Document), 0, len(s.watchers[path]))
	for _, fn := range s.watchers[path] {
		subs = append(subs, fn)
	}
	s.watchMu.Unlock()

	if len(subs) == 0 {
		return
	}

	s.mu.RLock()
	snapshot := s.snapshotLocked(path)
	s.mu.RUnlock()

	for _, fn := range subs {
		fn(snapshot)
	}
}
