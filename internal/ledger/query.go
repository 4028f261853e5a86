package ledger

import (
	"context"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"khata/internal/docstore"
	apperrors "khata/internal/errors"
	"khata/internal/models"
)

// GetSource returns one source with its current aggregates.
func (s *service) GetSource(ctx context.Context, sourceID string) (*models.Source, error) {
	doc, err := s.store.Get(ctx, sourcesCollection, sourceID)
	if err != nil {
		return nil, notFoundOr(err, apperrors.ErrSourceNotFound)
	}
	src := models.SourceFromDoc(doc)
	return &src, nil
}

// ListSources returns every source sorted by name.
func (s *service) ListSources(ctx context.Context) ([]models.Source, error) {
	docs, err := s.store.List(ctx, sourcesCollection)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	sources := make([]models.Source, 0, len(docs))
	for _, doc := range docs {
		sources = append(sources, models.SourceFromDoc(doc))
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].ID < sources[j].ID })
	return sources, nil
}

// ListTransactions returns a source's transactions, filtered and sorted by
// date descending (newest first), matching the view the original dashboard
// renders.
func (s *service) ListTransactions(ctx context.Context, sourceID string, filter TransactionFilter) ([]models.Transaction, error) {
	docs, err := s.store.List(ctx, txPath(sourceID))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	txs := make([]models.Transaction, 0, len(docs))
	for _, doc := range docs {
		tx := models.TransactionFromDoc(sourceID, doc)
		if filter.matches(tx) {
			txs = append(txs, tx)
		}
	}
	sortByDateDesc(txs)
	return txs, nil
}

// FetchAllTransactions unions the transaction sub-collections of every
// known source. The per-source reads are independent and run in parallel;
// there is no global index to consult.
func (s *service) FetchAllTransactions(ctx context.Context) ([]models.Transaction, error) {
	sources, err := s.ListSources(ctx)
	if err != nil {
		return nil, err
	}

	var (
		mu  sync.Mutex
		all []models.Transaction
	)
	g, ctx := errgroup.WithContext(ctx)
	for _, src := range sources {
		src := src
		g.Go(func() error {
			txs, err := s.ListTransactions(ctx, src.ID, TransactionFilter{})
			if err != nil {
				return err
			}
			mu.Lock()
			all = append(all, txs...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sortByDateDesc(all)
	return all, nil
}

// SummarizeByCategory groups a source's (filtered) transactions by category
// with total and still-pending amounts, largest total first. Feeds the
// category breakdown chart.
func (s *service) SummarizeByCategory(ctx context.Context, sourceID string, filter TransactionFilter) ([]CategorySummary, error) {
	txs, err := s.ListTransactions(ctx, sourceID, filter)
	if err != nil {
		return nil, err
	}

	byCategory := make(map[string]*CategorySummary)
	for _, tx := range txs {
		cs := byCategory[tx.Category]
		if cs == nil {
			cs = &CategorySummary{Category: tx.Category}
			byCategory[tx.Category] = cs
		}
		cs.Total += tx.Amount
		cs.Count++
		if tx.Status == models.StatusPending {
			cs.Pending += tx.Amount
		}
	}

	summaries := make([]CategorySummary, 0, len(byCategory))
	for _, cs := range byCategory {
		summaries = append(summaries, *cs)
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].Total != summaries[j].Total {
			return summaries[i].Total > summaries[j].Total
		}
		return summaries[i].Category < summaries[j].Category
	})
	return summaries, nil
}

// WatchSources subscribes to live changes of the source collection.
func (s *service) WatchSources(onChange func([]models.Source), onError func(error)) func() {
	return s.store.Watch(sourcesCollection, func(docs []docstore.Document) {
		sources := make([]models.Source, 0, len(docs))
		for _, doc := range docs {
			sources = append(sources, models.SourceFromDoc(doc))
		}
		sort.Slice(sources, func(i, j int) bool { return sources[i].ID < sources[j].ID })
		onChange(sources)
	}, onError)
}

// WatchTransactions subscribes to live changes of one source's transactions.
func (s *service) WatchTransactions(sourceID string, onChange func([]models.Transaction), onError func(error)) func() {
	return s.store.Watch(txPath(sourceID), func(docs []docstore.Document) {
		txs := make([]models.Transaction, 0, len(docs))
		for _, doc := range docs {
			txs = append(txs, models.TransactionFromDoc(sourceID, doc))
		}
		sortByDateDesc(txs)
		onChange(txs)
	}, onError)
}

func (f TransactionFilter) matches(tx models.Transaction) bool {
	if f.Owner != "" && tx.Owner != f.Owner {
		return false
	}
	if f.Month != "" && !strings.HasPrefix(tx.Date, f.Month) {
		return false
	}
	if f.Status != "" && tx.Status != f.Status {
		return false
	}
	return true
}

// sortByDateDesc orders newest first. ISO dates compare lexicographically;
// creation time breaks ties so same-day entries keep a stable order.
func sortByDateDesc(txs []models.Transaction) {
	sort.Slice(txs, func(i, j int) bool {
		if txs[i].Date != txs[j].Date {
			return txs[i].Date > txs[j].Date
		}
		return txs[i].CreatedAt.After(txs[j].CreatedAt)
	})
}
