package http

import (
	"context"
	"log"
	"net/http"
	"strconv"

	"pocketmoney/internal/domain/transaction"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// TransactionLister reads a child's synced ledger.
type TransactionLister interface {
	ListByKidID(ctx context.Context, kidID string, limit, offset int) ([]*transaction.Transaction, error)
	CountByKidID(ctx context.Context, kidID string) (int64, error)
}

type transactionsResponse struct {
	Transactions []*transaction.Transaction `json:"transactions"`
	Total        int64                      `json:"total"`
	Limit        int                        `json:"limit"`
	Offset       int                        `json:"offset"`
}

type TransactionsHandler struct {
	transactions TransactionLister
}

func NewTransactionsHandler(transactions TransactionLister) *TransactionsHandler {
	return &TransactionsHandler{transactions: transactions}
}

// HandleList serves GET /api/bank/transactions?kidId=&limit=&offset=, newest first.
func (h *TransactionsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	query := r.URL.Query()
	kidID := query.Get("kidId")
	if kidID == "" {
		writeError(w, http.StatusBadRequest, "kidId is required")
		return
	}

	// Parse pagination parameters
	limit := defaultPageSize
	offset := 0

	if limitStr := query.Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = min(parsed, maxPageSize)
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if parsed, err := strconv.Atoi(offsetStr); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	txns, err := h.transactions.ListByKidID(r.Context(), kidID, limit, offset)
	if err != nil {
		log.Printf("Error listing transactions for kid %s: %v", kidID, err)
		writeError(w, http.StatusInternalServerError, "Failed to list transactions")
		return
	}

	total, err := h.transactions.CountByKidID(r.Context(), kidID)
	if err != nil {
		log.Printf("Error counting transactions for kid %s: %v", kidID, err)
		writeError(w, http.StatusInternalServerError, "Failed to list transactions")
		return
	}

	if txns == nil {
		txns = []*transaction.Transaction{}
	}

	writeJSON(w, http.StatusOK, transactionsResponse{
		Transactions: txns,
		Total:        total,
		Limit:        limit,
		Offset:       offset,
	})
}
