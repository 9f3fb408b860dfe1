package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"pocketmoney/internal/domain/banking"
)

const maxBodyBytes = 1 << 20

// Syncer runs a sync batch for a selection.
type Syncer interface {
	Sync(ctx context.Context, sel banking.Selection) (*banking.SyncResult, error)
}

type syncRequest struct {
	ConnectionID string `json:"connectionId"`
	KidID        string `json:"kidId"`
	SyncAll      bool   `json:"syncAll"`
}

type BankSyncHandler struct {
	syncer  Syncer
	timeout time.Duration
}

// NewBankSyncHandler bounds each sync by timeout so a sync-all cannot outlive the response. Zero means no bound.
func NewBankSyncHandler(syncer Syncer, timeout time.Duration) *BankSyncHandler {
	return &BankSyncHandler{syncer: syncer, timeout: timeout}
}

// HandleSync serves POST /api/bank/sync.
func (h *BankSyncHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var req syncRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			log.Printf("Error decoding sync request: %v", err)
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	sel, err := banking.NewSelection(req.ConnectionID, req.KidID, req.SyncAll)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing connectionId, kidId, or syncAll")
		return
	}

	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	result, err := h.syncer.Sync(ctx, sel)
	if err != nil {
		if errors.Is(err, banking.ErrInvalidSelection) {
			writeError(w, http.StatusBadRequest, "Missing connectionId, kidId, or syncAll")
			return
		}
		log.Printf("Error syncing %s: %v", sel, err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch connections")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
}
