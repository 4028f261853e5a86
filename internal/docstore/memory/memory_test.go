package memory

import (
	"context"
	"errors"
	"testing"

	"khata/internal/docstore"
)

func TestSetAndGet(t *testing.T) {
	ctx := context.Background()
	s := New()

	t.Run("roundtrip", func(t *testing.T) {
		err := s.Set(ctx, "things", "a", map[string]any{"name": "first", "n": int64(1)})
		if err != nil {
			t.Fatalf("set failed: %v", err)
		}

		doc, err := s.Get(ctx, "things", "a")
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if doc.Key != "a" || doc.Data["name"] != "first" {
			t.Errorf("unexpected document: %+v", doc)
		}
	})

	t.Run("missing_document", func(t *testing.T) {
		_, err := s.Get(ctx, "things", "missing")
		if !errors.Is(err, docstore.ErrDocumentNotFound) {
			t.Fatalf("expected ErrDocumentNotFound, got %v", err)
		}
	})

	t.Run("set_overwrites", func(t *testing.T) {
		if err := s.Set(ctx, "things", "a", map[string]any{"name": "second"}); err != nil {
			t.Fatalf("set failed: %v", err)
		}

		doc, err := s.Get(ctx, "things", "a")
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if doc.Data["name"] != "second" {
			t.Errorf("expected overwrite, got %+v", doc.Data)
		}
		if _, ok := doc.Data["n"]; ok {
			t.Error("expected old fields to be gone after Set")
		}
	})

	t.Run("returned_data_is_a_copy", func(t *testing.T) {
		doc, err := s.Get(ctx, "things", "a")
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		doc.Data["name"] = "mutated"

		again, err := s.Get(ctx, "things", "a")
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if again.Data["name"] != "second" {
			t.Error("caller mutation leaked into the store")
		}
	})
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("merges_fields", func(t *testing.T) {
		s := New()
		mustSet(t, s, "things", "a", map[string]any{"name": "x", "kept": "yes"})

		err := s.Update(ctx, "things", "a", docstore.Fields{"name": "y"})
		if err != nil {
			t.Fatalf("update failed: %v", err)
		}

		doc := mustGet(t, s, "things", "a")
		if doc.Data["name"] != "y" || doc.Data["kept"] != "yes" {
			t.Errorf("expected merge, got %+v", doc.Data)
		}
	})

	t.Run("creates_when_absent", func(t *testing.T) {
		s := New()

		err := s.Update(ctx, "things", "fresh", docstore.Fields{"name": "z"})
		if err != nil {
			t.Fatalf("update failed: %v", err)
		}
		if mustGet(t, s, "things", "fresh").Data["name"] != "z" {
			t.Error("expected upsert of absent document")
		}
	})

	t.Run("increment", func(t *testing.T) {
		s := New()
		mustSet(t, s, "counters", "c", map[string]any{"total": int64(10)})

		err := s.Update(ctx, "counters", "c", docstore.Fields{"total": docstore.Inc(-3)})
		if err != nil {
			t.Fatalf("update failed: %v", err)
		}
		if got := docstore.Int64(mustGet(t, s, "counters", "c").Data["total"]); got != 7 {
			t.Errorf("expected 7, got %d", got)
		}
	})

	t.Run("increment_missing_field_counts_from_zero", func(t *testing.T) {
		s := New()

		err := s.Update(ctx, "counters", "new", docstore.Fields{"total": docstore.Inc(5)})
		if err != nil {
			t.Fatalf("update failed: %v", err)
		}
		if got := docstore.Int64(mustGet(t, s, "counters", "new").Data["total"]); got != 5 {
			t.Errorf("expected 5, got %d", got)
		}
	})
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s := New()
	mustSet(t, s, "things", "a", map[string]any{"name": "x"})

	if err := s.Delete(ctx, "things", "a"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := s.Get(ctx, "things", "a"); !errors.Is(err, docstore.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound after delete, got %v", err)
	}

	// Absent delete is a no-op.
	if err := s.Delete(ctx, "things", "a"); err != nil {
		t.Fatalf("expected no error on double delete, got %v", err)
	}
}

func TestList(t *testing.T) {
	ctx := context.Background()
	s := New()
	mustSet(t, s, "things", "a", map[string]any{"n": int64(1)})
	mustSet(t, s, "things", "b", map[string]any{"n": int64(2)})
	mustSet(t, s, "other", "c", map[string]any{"n": int64(3)})

	docs, err := s.List(ctx, "things")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}

	empty, err := s.List(ctx, "nothing")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected empty collection, got %d", len(empty))
	}
}

func TestRunTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("commits_staged_writes", func(t *testing.T) {
		s := New()
		mustSet(t, s, "counters", "c", map[string]any{"total": int64(1)})

		err := s.RunTransaction(ctx, func(tx docstore.Tx) error {
			doc, err := tx.Get("counters", "c")
			if err != nil {
				return err
			}
			tx.Update("counters", "c", docstore.Fields{"total": docstore.Inc(docstore.Int64(doc.Data["total"]))})
			tx.Set("counters", "d", map[string]any{"total": int64(9)})
			return nil
		})
		if err != nil {
			t.Fatalf("transaction failed: %v", err)
		}

		if got := docstore.Int64(mustGet(t, s, "counters", "c").Data["total"]); got != 2 {
			t.Errorf("expected doubled counter 2, got %d", got)
		}
		if got := docstore.Int64(mustGet(t, s, "counters", "d").Data["total"]); got != 9 {
			t.Errorf("expected 9, got %d", got)
		}
	})

	t.Run("fn_error_aborts_without_writes", func(t *testing.T) {
		s := New()
		boom := errors.New("boom")

		err := s.RunTransaction(ctx, func(tx docstore.Tx) error {
			tx.Set("things", "a", map[string]any{"n": int64(1)})
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected fn error to surface, got %v", err)
		}
		if _, err := s.Get(ctx, "things", "a"); !errors.Is(err, docstore.ErrDocumentNotFound) {
			t.Fatal("expected staged write to be discarded")
		}
	})

	t.Run("retries_on_conflicting_write", func(t *testing.T) {
		s := New()
		mustSet(t, s, "counters", "c", map[string]any{"total": int64(0)})

		attempts := 0
		err := s.RunTransaction(ctx, func(tx docstore.Tx) error {
			attempts++
			if _, err := tx.Get("counters", "c"); err != nil {
				return err
			}
			if attempts == 1 {
				// Interleave a write after the read to invalidate it.
				mustSet(t, s, "counters", "c", map[string]any{"total": int64(100)})
			}
			tx.Update("counters", "c", docstore.Fields{"total": docstore.Inc(1)})
			return nil
		})
		if err != nil {
			t.Fatalf("transaction failed: %v", err)
		}
		if attempts != 2 {
			t.Errorf("expected exactly one retry, got %d attempts", attempts)
		}
		if got := docstore.Int64(mustGet(t, s, "counters", "c").Data["total"]); got != 101 {
			t.Errorf("expected 101, got %d", got)
		}
	})

	t.Run("gives_up_after_max_attempts", func(t *testing.T) {
		s := New()
		mustSet(t, s, "counters", "c", map[string]any{"total": int64(0)})

		attempts := 0
		err := s.RunTransaction(ctx, func(tx docstore.Tx) error {
			attempts++
			if _, err := tx.Get("counters", "c"); err != nil {
				return err
			}
			mustSet(t, s, "counters", "c", map[string]any{"total": int64(attempts)})
			tx.Update("counters", "c", docstore.Fields{"total": docstore.Inc(1)})
			return nil
		})
		if !errors.Is(err, docstore.ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
		if attempts != maxTransactionAttempts {
			t.Errorf("expected %d attempts, got %d", maxTransactionAttempts, attempts)
		}
	})

	t.Run("delete_then_recreate_still_conflicts", func(t *testing.T) {
		s := New()
		mustSet(t, s, "things", "a", map[string]any{"n": int64(1)})

		attempts := 0
		err := s.RunTransaction(ctx, func(tx docstore.Tx) error {
			attempts++
			if _, err := tx.Get("things", "a"); err != nil && !errors.Is(err, docstore.ErrDocumentNotFound) {
				return err
			}
			if attempts == 1 {
				// Recreating after a delete must not reset the version
				// the open transaction observed.
				if err := s.Delete(ctx, "things", "a"); err != nil {
					return err
				}
				mustSet(t, s, "things", "a", map[string]any{"n": int64(2)})
			}
			tx.Update("things", "a", docstore.Fields{"touched": true})
			return nil
		})
		if err != nil {
			t.Fatalf("transaction failed: %v", err)
		}
		if attempts != 2 {
			t.Errorf("expected the recreate to force a retry, got %d attempts", attempts)
		}
	})
}

func TestRunBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("applies_all_ops", func(t *testing.T) {
		s := New()
		mustSet(t, s, "things", "old", map[string]any{"n": int64(1)})

		err := s.RunBatch(ctx, func(b docstore.Batch) error {
			b.Set("things", "a", map[string]any{"n": int64(1)})
			b.Update("things", "a", docstore.Fields{"n": docstore.Inc(4)})
			b.Delete("things", "old")
			return nil
		})
		if err != nil {
			t.Fatalf("batch failed: %v", err)
		}

		if got := docstore.Int64(mustGet(t, s, "things", "a").Data["n"]); got != 5 {
			t.Errorf("expected 5, got %d", got)
		}
		if _, err := s.Get(ctx, "things", "old"); !errors.Is(err, docstore.ErrDocumentNotFound) {
			t.Error("expected batched delete to apply")
		}
	})

	t.Run("fn_error_discards_batch", func(t *testing.T) {
		s := New()
		boom := errors.New("boom")

		err := s.RunBatch(ctx, func(b docstore.Batch) error {
			b.Set("things", "a", map[string]any{"n": int64(1)})
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected fn error to surface, got %v", err)
		}
		if _, err := s.Get(ctx, "things", "a"); !errors.Is(err, docstore.ErrDocumentNotFound) {
			t.Fatal("expected staged write to be discarded")
		}
	})
}

func TestWatch(t *testing.T) {
	ctx := context.Background()
	s := New()
	mustSet(t, s, "things", "a", map[string]any{"n": int64(1)})

	var snapshots [][]docstore.Document
	stop := s.Watch("things", func(docs []docstore.Document) {
		snapshots = append(snapshots, docs)
	}, nil)

	if len(snapshots) != 1 || len(snapshots[0]) != 1 {
		t.Fatalf("expected an immediate snapshot of 1 document, got %+v", snapshots)
	}

	mustSet(t, s, "things", "b", map[string]any{"n": int64(2)})
	if len(snapshots) != 2 || len(snapshots[1]) != 2 {
		t.Fatalf("expected a change snapshot of 2 documents, got %d snapshots", len(snapshots))
	}

	// Writes to other collections stay silent.
	mustSet(t, s, "other", "c", map[string]any{"n": int64(3)})
	if len(snapshots) != 2 {
		t.Fatal("expected no notification for an unrelated collection")
	}

	stop()
	if err := s.Delete(ctx, "things", "a"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if len(snapshots) != 2 {
		t.Fatal("expected no notification after stopping the watch")
	}
}

func mustSet(t *testing.T, s *Store, path, key string, data map[string]any) {
	t.Helper()
	if err := s.Set(context.Background(), path, key, data); err != nil {
		t.Fatalf("set %s/%s failed: %v", path, key, err)
	}
}

func mustGet(t *testing.T, s *Store, path, key string) docstore.Document {
	t.Helper()
	doc, err := s.Get(context.Background(), path, key)
	if err != nil {
		t.Fatalf("get %s/%s failed: %v", path, key, err)
	}
	return doc
}
