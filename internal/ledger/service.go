// Package ledger implements the aggregate maintenance engine: it keeps each
// source's running totals (outstanding, total outstanding) consistent with
// the source's transaction sub-collection under every mutation, without
// re-reading the full transaction set on the hot path.
package ledger

import (
	"context"
	"errors"
	"time"

	"khata/internal/docstore"
	apperrors "khata/internal/errors"
	"khata/internal/events"
	"khata/internal/logger"
	"khata/internal/models"
	"khata/internal/uuid"
)

// sourcesCollection is the root collection of source documents, keyed by
// source name.
const sourcesCollection = "sources"

// txPath is the sub-collection of transaction documents scoped to a source.
func txPath(sourceID string) string {
	return sourcesCollection + "/" + sourceID + "/transactions"
}

// service implements Servicer on the docstore port.
type service struct {
	store  docstore.Store
	events events.Publisher
}

// NewService creates a ledger Servicer. Pass events.Noop{} when no broker is
// configured.
func NewService(store docstore.Store, publisher events.Publisher) Servicer {
	return &service{store: store, events: publisher}
}

// AddTransaction persists a new pending transaction and increments both of
// the source's aggregates in the same atomic unit. New transactions always
// start pending, so both aggregates move by the full amount. The source
// document is created on first use.
func (s *service) AddTransaction(ctx context.Context, sourceID string, in models.Transaction) (*models.Transaction, error) {
	if sourceID == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "source is required")
	}
	if in.Amount < 0 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "amount must not be negative")
	}

	tx := in
	tx.ID = uuid.New()
	tx.SourceID = sourceID
	tx.Status = models.StatusPending
	tx.CreatedAt = time.Now()
	tx.Normalize()

	// Pure increments commute, so the batch needs no prior read.
	err := s.store.RunBatch(ctx, func(b docstore.Batch) error {
		b.Set(txPath(sourceID), tx.ID, tx.Doc())
		b.Update(sourcesCollection, sourceID, docstore.Fields{
			models.FieldTotalOutstanding: docstore.Inc(tx.Amount),
			models.FieldOutstanding:      docstore.Inc(tx.Amount),
		})
		return nil
	})
	if err != nil {
		return nil, storeError(err)
	}

	s.publish(ctx, events.NewEvent(sourceID, events.OpAdd, tx.ID))
	return &tx, nil
}

// UpdateTransactionStatus flips a transaction between pending and paid,
// adjusting the source's outstanding by the transaction amount. The read of
// the current status and the writes commit in one transaction so concurrent
// flips on the same transaction serialize. Setting the current status again
// is a no-op. Total outstanding is unaffected.
func (s *service) UpdateTransactionStatus(ctx context.Context, sourceID, txID string, status models.Status) error {
	if !status.IsValid() {
		return apperrors.ErrInvalidStatus
	}

	changed := false
	err := s.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		doc, err := tx.Get(txPath(sourceID), txID)
		if err != nil {
			return notFoundOr(err, apperrors.ErrTransactionNotFound)
		}

		current := models.TransactionFromDoc(sourceID, doc)
		if current.Status == status {
			return nil
		}
		changed = true

		delta := current.Amount
		if status == models.StatusPaid {
			delta = -delta
		}

		tx.Update(txPath(sourceID), txID, docstore.Fields{"status": string(status)})
		if delta != 0 {
			tx.Update(sourcesCollection, sourceID, docstore.Fields{
				models.FieldOutstanding: docstore.Inc(delta),
			})
		}
		return nil
	})
	if err != nil {
		return storeError(err)
	}

	if changed {
		s.publish(ctx, events.NewEvent(sourceID, events.OpStatus, txID))
	}
	return nil
}

// UpdateTransaction rewrites a transaction's fields and applies the exact
// aggregate deltas implied by the amount and status changes:
//
//	pending -> pending   outstanding += newAmount - oldAmount
//	pending -> paid      outstanding -= oldAmount
//	paid    -> pending   outstanding += newAmount
//	paid    -> paid      outstanding unchanged
//
// Using the new amount when transitioning into pending makes the final
// outstanding reflect the edited value; total outstanding always moves by
// newAmount - oldAmount. Document write and deltas commit atomically.
func (s *service) UpdateTransaction(ctx context.Context, sourceID, txID string, in models.Transaction) (*models.Transaction, error) {
	if in.Amount < 0 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "amount must not be negative")
	}
	if in.Status != "" && !in.Status.IsValid() {
		return nil, apperrors.ErrInvalidStatus
	}

	var updated models.Transaction
	err := s.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		doc, err := tx.Get(txPath(sourceID), txID)
		if err != nil {
			return notFoundOr(err, apperrors.ErrTransactionNotFound)
		}
		old := models.TransactionFromDoc(sourceID, doc)

		updated = in
		updated.ID = txID
		updated.SourceID = sourceID
		updated.CreatedAt = old.CreatedAt
		if updated.Status == "" {
			updated.Status = old.Status
		}
		updated.Normalize()

		totalDelta := updated.Amount - old.Amount
		outstandingDelta := statusDelta(old.Status, old.Amount, updated.Status, updated.Amount)

		tx.Set(txPath(sourceID), txID, updated.Doc())

		fields := docstore.Fields{}
		if outstandingDelta != 0 {
			fields[models.FieldOutstanding] = docstore.Inc(outstandingDelta)
		}
		if totalDelta != 0 {
			fields[models.FieldTotalOutstanding] = docstore.Inc(totalDelta)
		}
		if len(fields) > 0 {
			tx.Update(sourcesCollection, sourceID, fields)
		}
		return nil
	})
	if err != nil {
		return nil, storeError(err)
	}

	s.publish(ctx, events.NewEvent(sourceID, events.OpUpdate, txID))
	return &updated, nil
}

// statusDelta is the four-case outstanding adjustment for an edit that may
// change amount and status at once. A status flip folded into the same edit
// is accounted for exactly once.
func statusDelta(oldStatus models.Status, oldAmount int64, newStatus models.Status, newAmount int64) int64 {
	switch {
	case oldStatus == models.StatusPending && newStatus == models.StatusPending:
		return newAmount - oldAmount
	case oldStatus == models.StatusPending && newStatus == models.StatusPaid:
		return -oldAmount
	case oldStatus == models.StatusPaid && newStatus == models.StatusPending:
		return newAmount
	default: // paid -> paid
		return 0
	}
}

// DeleteTransaction removes a transaction and reverses its aggregate
// contribution in one atomic unit. Deleting an already-absent transaction is
// a no-op, not an error.
func (s *service) DeleteTransaction(ctx context.Context, sourceID, txID string) error {
	deleted := false
	err := s.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		doc, err := tx.Get(txPath(sourceID), txID)
		if errors.Is(err, docstore.ErrDocumentNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		deleted = true

		current := models.TransactionFromDoc(sourceID, doc)
		fields := docstore.Fields{}
		if current.Amount != 0 {
			fields[models.FieldTotalOutstanding] = docstore.Inc(-current.Amount)
			if current.Status == models.StatusPending {
				fields[models.FieldOutstanding] = docstore.Inc(-current.Amount)
			}
		}

		tx.Delete(txPath(sourceID), txID)
		if len(fields) > 0 {
			tx.Update(sourcesCollection, sourceID, fields)
		}
		return nil
	})
	if err != nil {
		return storeError(err)
	}

	if deleted {
		s.publish(ctx, events.NewEvent(sourceID, events.OpDelete, txID))
	}
	return nil
}

// MoveTransaction relocates a transaction to a different source: delete plus
// decrements on the old source, a fresh-keyed create plus increments on the
// new source, all in one atomic unit spanning both aggregates. A reader
// never observes the transaction in neither or both sources. The new status
// defaults to the old one when unspecified; creation time carries over.
// Same-source moves are rejected by the handler before the engine runs.
func (s *service) MoveTransaction(ctx context.Context, oldSourceID, newSourceID, txID string, in models.Transaction) (*models.Transaction, error) {
	if newSourceID == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "target source is required")
	}
	if in.Amount < 0 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "amount must not be negative")
	}
	if in.Status != "" && !in.Status.IsValid() {
		return nil, apperrors.ErrInvalidStatus
	}

	var moved models.Transaction
	err := s.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		doc, err := tx.Get(txPath(oldSourceID), txID)
		if err != nil {
			return notFoundOr(err, apperrors.ErrTransactionNotFound)
		}
		old := models.TransactionFromDoc(oldSourceID, doc)

		moved = in
		moved.ID = uuid.New()
		moved.SourceID = newSourceID
		moved.CreatedAt = old.CreatedAt
		if moved.Status == "" {
			moved.Status = old.Status
		}
		moved.Normalize()

		// Old side: remove the document and its aggregate contribution.
		oldFields := docstore.Fields{}
		if old.Amount != 0 {
			oldFields[models.FieldTotalOutstanding] = docstore.Inc(-old.Amount)
			if old.Status == models.StatusPending {
				oldFields[models.FieldOutstanding] = docstore.Inc(-old.Amount)
			}
		}
		tx.Delete(txPath(oldSourceID), txID)
		if len(oldFields) > 0 {
			tx.Update(sourcesCollection, oldSourceID, oldFields)
		}

		// New side: recreate under a fresh key and add its contribution.
		newFields := docstore.Fields{}
		if moved.Amount != 0 {
			newFields[models.FieldTotalOutstanding] = docstore.Inc(moved.Amount)
			if moved.Status == models.StatusPending {
				newFields[models.FieldOutstanding] = docstore.Inc(moved.Amount)
			}
		}
		tx.Set(txPath(newSourceID), moved.ID, moved.Doc())
		if len(newFields) > 0 {
			tx.Update(sourcesCollection, newSourceID, newFields)
		}
		return nil
	})
	if err != nil {
		return nil, storeError(err)
	}

	s.publish(ctx, events.NewEvent(oldSourceID, events.OpMove, txID))
	s.publish(ctx, events.NewEvent(newSourceID, events.OpMove, moved.ID))
	return &moved, nil
}

// BulkUpdateTransactionStatus applies one status transition to many
// transactions of a source. Transactions already in the target status and
// ids whose document is missing are skipped; the rest commit as one batch of
// status writes plus a single net outstanding increment. Returns the number
// of transactions flipped.
//
// The accumulation reads run outside any transaction; a concurrent edit to
// one of the listed transactions between read and commit can make the net
// delta stale. That race is accepted and repaired by RecomputeSourceTotals
// (manually or on the sweeper schedule). Any read failure aborts the whole
// call before anything is written.
func (s *service) BulkUpdateTransactionStatus(ctx context.Context, sourceID string, txIDs []string, status models.Status) (int, error) {
	if !status.IsValid() {
		return 0, apperrors.ErrInvalidStatus
	}

	var delta int64
	flips := make([]string, 0, len(txIDs))
	for _, id := range txIDs {
		doc, err := s.store.Get(ctx, txPath(sourceID), id)
		if errors.Is(err, docstore.ErrDocumentNotFound) {
			continue
		}
		if err != nil {
			return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		current := models.TransactionFromDoc(sourceID, doc)
		if current.Status == status {
			continue
		}

		if status == models.StatusPaid {
			delta -= current.Amount
		} else {
			delta += current.Amount
		}
		flips = append(flips, id)
	}

	if len(flips) == 0 {
		return 0, nil
	}

	err := s.store.RunBatch(ctx, func(b docstore.Batch) error {
		for _, id := range flips {
			b.Update(txPath(sourceID), id, docstore.Fields{"status": string(status)})
		}
		if delta != 0 {
			b.Update(sourcesCollection, sourceID, docstore.Fields{
				models.FieldOutstanding: docstore.Inc(delta),
			})
		}
		return nil
	})
	if err != nil {
		return 0, storeError(err)
	}

	s.publish(ctx, events.NewEvent(sourceID, events.OpBulkStatus, ""))
	return len(flips), nil
}

// RecomputeSourceTotals rebuilds both aggregates from a full scan of the
// source's transactions and overwrites them unconditionally. This is the
// repair path for drift caused by out-of-band edits or the bulk race; the
// incremental paths above never need it.
func (s *service) RecomputeSourceTotals(ctx context.Context, sourceID string) (*models.Source, error) {
	docs, err := s.store.List(ctx, txPath(sourceID))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if len(docs) == 0 {
		if _, err := s.store.Get(ctx, sourcesCollection, sourceID); errors.Is(err, docstore.ErrDocumentNotFound) {
			return nil, apperrors.ErrSourceNotFound
		} else if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	}

	src := models.Source{ID: sourceID}
	for _, doc := range docs {
		tx := models.TransactionFromDoc(sourceID, doc)
		src.TotalOutstanding += tx.Amount
		if tx.Status == models.StatusPending {
			src.Outstanding += tx.Amount
		}
	}

	if err := s.store.Update(ctx, sourcesCollection, sourceID, docstore.Fields(src.Doc())); err != nil {
		return nil, storeError(err)
	}

	s.publish(ctx, events.NewEvent(sourceID, events.OpRecompute, ""))
	return &src, nil
}

// publish sends a change event to the external publisher. Publishing is
// best-effort: a broker failure must not fail an already-committed
// operation.
func (s *service) publish(ctx context.Context, ev events.Event) {
	if err := s.events.Publish(ctx, ev); err != nil {
		logger.Get().Warnw("failed to publish ledger event",
			"source", ev.Source,
			"op", ev.Op,
			"error", err,
		)
	}
}

// notFoundOr maps the store's not-found sentinel to the given AppError and
// wraps anything else as an internal error.
func notFoundOr(err error, notFound *apperrors.AppError) error {
	if errors.Is(err, docstore.ErrDocumentNotFound) {
		return notFound
	}
	return apperrors.Wrap(apperrors.ErrInternalServer, err)
}

// storeError maps store-level failures to the engine's error taxonomy.
// AppErrors pass through untouched.
func storeError(err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, docstore.ErrConflict) {
		return apperrors.Wrap(apperrors.ErrWriteConflict, err)
	}
	return apperrors.Wrap(apperrors.ErrWriteFailed, err)
}
