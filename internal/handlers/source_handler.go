package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "khata/internal/errors"
	"khata/internal/ledger"
	"khata/internal/models"
)

// SourceHandler handles source-level requests: aggregate listings, category
// summaries, and the manual repair operation.
type SourceHandler struct {
	ledgerService ledger.Servicer
}

// NewSourceHandler creates a new SourceHandler.
func NewSourceHandler(ledgerService ledger.Servicer) *SourceHandler {
	return &SourceHandler{ledgerService: ledgerService}
}

// ListSources returns every source with its running totals.
func (h *SourceHandler) ListSources(c *gin.Context) {
	sources, err := h.ledgerService.ListSources(c.Request.Context())
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sources": sources})
}

// GetSource returns one source with its running totals.
func (h *SourceHandler) GetSource(c *gin.Context) {
	source, err := sourceParam(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	src, err := h.ledgerService.GetSource(c.Request.Context(), source)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"source": src})
}

// RecomputeSourceTotals rebuilds a source's aggregates from a full scan of
// its transactions. Manual repair path for drift caused by out-of-band
// edits.
func (h *SourceHandler) RecomputeSourceTotals(c *gin.Context) {
	source, err := sourceParam(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	src, err := h.ledgerService.RecomputeSourceTotals(c.Request.Context(), source)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"source": src})
}

// summaryQuery holds the filter parameters for the category summary.
type summaryQuery struct {
	Owner  string `form:"owner" binding:"omitempty,owner"`
	Month  string `form:"month" binding:"omitempty,len=7"`
	Status string `form:"status" binding:"omitempty,tx_status"`
}

// SummarizeByCategory returns a source's per-category totals for the chart
// view.
func (h *SourceHandler) SummarizeByCategory(c *gin.Context) {
	source, err := sourceParam(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var q summaryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	summaries, err := h.ledgerService.SummarizeByCategory(c.Request.Context(), source, ledger.TransactionFilter{
		Owner:  q.Owner,
		Month:  q.Month,
		Status: models.Status(q.Status),
	})
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": summaries})
}

// ListCategories returns the closed set of category labels.
func (h *SourceHandler) ListCategories(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"categories": models.Categories})
}

// ListOwners returns the closed set of owner labels.
func (h *SourceHandler) ListOwners(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"owners": models.Owners})
}
