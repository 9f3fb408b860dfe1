package http

import (
	"log"
	"net/http"

	"pocketmoney/internal/domain/connection"
)

type ConnectionsHandler struct {
	auth AuthFlow
}

func NewConnectionsHandler(auth AuthFlow) *ConnectionsHandler {
	return &ConnectionsHandler{auth: auth}
}

// HandleList serves GET /api/bank/connections?kidId=. Tokens never leave the process.
func (h *ConnectionsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	kidID := r.URL.Query().Get("kidId")
	if kidID == "" {
		writeError(w, http.StatusBadRequest, "kidId is required")
		return
	}

	conns, err := h.auth.ListConnections(r.Context(), kidID)
	if err != nil {
		log.Printf("Error listing connections for kid %s: %v", kidID, err)
		writeError(w, http.StatusInternalServerError, "Failed to list connections")
		return
	}
	if conns == nil {
		conns = []*connection.BankConnection{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"connections": conns})
}
