package ledger

import (
	"context"

	"khata/internal/models"
)

// TransactionFilter holds optional filter parameters for listing and
// summarizing a source's transactions.
type TransactionFilter struct {
	Owner  string        // exact owner label, empty = all
	Month  string        // YYYY-MM prefix of the date, empty = all
	Status models.Status // empty = all
}

// CategorySummary aggregates one category's share of a transaction set.
type CategorySummary struct {
	Category string `json:"category"`
	Total    int64  `json:"total"`
	Pending  int64  `json:"pending"`
	Count    int    `json:"count"`
}

// Servicer is the contract for the ledger consistency engine: every
// transaction mutation commits together with the matching aggregate delta on
// the owning source(s), as a single atomic unit.
type Servicer interface {
	AddTransaction(ctx context.Context, sourceID string, in models.Transaction) (*models.Transaction, error)
	UpdateTransaction(ctx context.Context, sourceID, txID string, in models.Transaction) (*models.Transaction, error)
	UpdateTransactionStatus(ctx context.Context, sourceID, txID string, status models.Status) error
	DeleteTransaction(ctx context.Context, sourceID, txID string) error
	MoveTransaction(ctx context.Context, oldSourceID, newSourceID, txID string, in models.Transaction) (*models.Transaction, error)
	BulkUpdateTransactionStatus(ctx context.Context, sourceID string, txIDs []string, status models.Status) (int, error)
	RecomputeSourceTotals(ctx context.Context, sourceID string) (*models.Source, error)

	GetSource(ctx context.Context, sourceID string) (*models.Source, error)
	ListSources(ctx context.Context) ([]models.Source, error)
	ListTransactions(ctx context.Context, sourceID string, filter TransactionFilter) ([]models.Transaction, error)
	FetchAllTransactions(ctx context.Context) ([]models.Transaction, error)
	SummarizeByCategory(ctx context.Context, sourceID string, filter TransactionFilter) ([]CategorySummary, error)

	WatchSources(onChange func([]models.Source), onError func(error)) func()
	WatchTransactions(sourceID string, onChange func([]models.Transaction), onError func(error)) func()
}
