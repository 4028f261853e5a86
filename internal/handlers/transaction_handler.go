package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "khata/internal/errors"
	"khata/internal/ledger"
	"khata/internal/models"
	"khata/internal/pagination"
)

// TransactionHandler handles transaction-related requests.
type TransactionHandler struct {
	ledgerService ledger.Servicer
}

// NewTransactionHandler creates a new TransactionHandler.
func NewTransactionHandler(ledgerService ledger.Servicer) *TransactionHandler {
	return &TransactionHandler{ledgerService: ledgerService}
}

// TransactionRequest represents the payload for creating or updating a
// transaction. Status is ignored on create (new transactions always start
// pending) and optional on update and move (defaults to the current status).
type TransactionRequest struct {
	Date     string `json:"date" binding:"required,iso_date"`
	Details  string `json:"details" binding:"required,max=200"`
	Category string `json:"category" binding:"required,category"`
	Amount   *int64 `json:"amount" binding:"required,gte=0"`
	Comment  string `json:"comment" binding:"max=500"`
	Owner    string `json:"owner" binding:"omitempty,owner"`
	Status   string `json:"status" binding:"omitempty,tx_status"`
}

func (r TransactionRequest) model() models.Transaction {
	return models.Transaction{
		Date:     r.Date,
		Details:  r.Details,
		Category: r.Category,
		Amount:   *r.Amount,
		Comment:  r.Comment,
		Owner:    r.Owner,
		Status:   models.Status(r.Status),
	}
}

// listQuery holds the filter and pagination query parameters for listing a
// source's transactions.
type listQuery struct {
	Owner  string `form:"owner" binding:"omitempty,owner"`
	Month  string `form:"month" binding:"omitempty,len=7"`
	Status string `form:"status" binding:"omitempty,tx_status"`
	pagination.PageRequest
}

// CreateTransaction records a new expense against a source.
func (h *TransactionHandler) CreateTransaction(c *gin.Context) {
	source, err := sourceParam(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req TransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	tx, err := h.ledgerService.AddTransaction(c.Request.Context(), source, req.model())
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"transaction": tx})
}

// ListTransactions returns a source's transactions with optional owner,
// month, and status filters.
func (h *TransactionHandler) ListTransactions(c *gin.Context) {
	source, err := sourceParam(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	txs, err := h.ledgerService.ListTransactions(c.Request.Context(), source, ledger.TransactionFilter{
		Owner:  q.Owner,
		Month:  q.Month,
		Status: models.Status(q.Status),
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, pagination.NewPageResponse(txs, q.PageRequest))
}

// UpdateTransaction rewrites a transaction's fields, adjusting the source's
// aggregates by the implied deltas.
func (h *TransactionHandler) UpdateTransaction(c *gin.Context) {
	source, err := sourceParam(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	txID := c.Param("id")

	var req TransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	tx, err := h.ledgerService.UpdateTransaction(c.Request.Context(), source, txID, req.model())
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transaction": tx})
}

// UpdateStatusRequest represents the payload for a single status change.
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required,tx_status"`
}

// UpdateTransactionStatus flips one transaction between pending and paid.
func (h *TransactionHandler) UpdateTransactionStatus(c *gin.Context) {
	source, err := sourceParam(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	txID := c.Param("id")

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	if err := h.ledgerService.UpdateTransactionStatus(c.Request.Context(), source, txID, models.Status(req.Status)); err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Status updated"})
}

// DeleteTransaction removes a transaction and reverses its aggregate
// contribution.
func (h *TransactionHandler) DeleteTransaction(c *gin.Context) {
	source, err := sourceParam(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	txID := c.Param("id")

	if err := h.ledgerService.DeleteTransaction(c.Request.Context(), source, txID); err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Transaction deleted"})
}

// MoveTransactionRequest represents the payload for relocating a transaction
// to another source, optionally editing its fields in the same step.
type MoveTransactionRequest struct {
	TargetSource string `json:"target_source" binding:"required"`
	TransactionRequest
}

// MoveTransaction relocates a transaction to a different source. Moving to
// the same source is rejected here: it degenerates to a normal update and
// the engine does not special-case it.
func (h *TransactionHandler) MoveTransaction(c *gin.Context) {
	source, err := sourceParam(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	txID := c.Param("id")

	var req MoveTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	if req.TargetSource == source {
		respondWithError(c, apperrors.ErrSameSourceMove)
		return
	}

	tx, err := h.ledgerService.MoveTransaction(c.Request.Context(), source, req.TargetSource, txID, req.model())
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transaction": tx})
}

// BulkStatusRequest represents the payload for a bulk status change.
type BulkStatusRequest struct {
	IDs    []string `json:"ids" binding:"required,min=1"`
	Status string   `json:"status" binding:"required,tx_status"`
}

// BulkUpdateTransactionStatus applies one status transition to many
// transactions of a source in a single batch.
func (h *TransactionHandler) BulkUpdateTransactionStatus(c *gin.Context) {
	source, err := sourceParam(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req BulkStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	updated, err := h.ledgerService.BulkUpdateTransactionStatus(c.Request.Context(), source, req.IDs, models.Status(req.Status))
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

// ListAllTransactions returns the flat union of every source's transactions,
// the feed behind the analytics view.
func (h *TransactionHandler) ListAllTransactions(c *gin.Context) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	txs, err := h.ledgerService.FetchAllTransactions(c.Request.Context())
	if err != nil {
		respondWithError(c, err)
		return
	}

	filtered := txs[:0:0]
	for _, tx := range txs {
		if q.Owner != "" && tx.Owner != q.Owner {
			continue
		}
		if q.Month != "" && (len(tx.Date) < 7 || tx.Date[:7] != q.Month) {
			continue
		}
		if q.Status != "" && tx.Status != models.Status(q.Status) {
			continue
		}
		filtered = append(filtered, tx)
	}

	c.JSON(http.StatusOK, pagination.NewPageResponse(filtered, q.PageRequest))
}
