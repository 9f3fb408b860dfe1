package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/go-playground/validator/v10"

	"pocketmoney/internal/domain/banking"
	"pocketmoney/internal/domain/connection"
)

// AuthFlow is the part of banking.AuthService the handlers use.
type AuthFlow interface {
	GetAuthURL(kidID, redirectURI string) (*banking.AuthURL, error)
	ExchangeCode(ctx context.Context, code, state, redirectURI string) (*banking.ConnectionSummary, error)
	RefreshConnection(ctx context.Context, connectionID string) error
	ListConnections(ctx context.Context, kidID string) ([]*connection.BankConnection, error)
}

var errInvalidAction = errors.New("invalid action")

// authAction is one variant of the POST /api/bank/auth body.
type authAction interface {
	missingMessage() string
}

type getAuthURLAction struct {
	KidID       string `json:"kidId" validate:"required"`
	RedirectURI string `json:"redirectUri" validate:"required"`
}

type exchangeCodeAction struct {
	Code        string `json:"code" validate:"required"`
	State       string `json:"state" validate:"required"`
	RedirectURI string `json:"redirectUri" validate:"required"`
}

type refreshTokenAction struct {
	ConnectionID string `json:"connectionId" validate:"required"`
}

func (getAuthURLAction) missingMessage() string   { return "Missing kidId or redirectUri" }
func (exchangeCodeAction) missingMessage() string { return "Missing code, state, or redirectUri" }
func (refreshTokenAction) missingMessage() string { return "Missing connectionId" }

// decodeAuthAction reads the action tag and decodes the matching variant.
func decodeAuthAction(body []byte) (authAction, error) {
	var envelope struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode request: %w", err)
	}

	var action authAction
	switch envelope.Action {
	case "get-auth-url":
		action = &getAuthURLAction{}
	case "exchange-code":
		action = &exchangeCodeAction{}
	case "refresh-token":
		action = &refreshTokenAction{}
	default:
		return nil, errInvalidAction
	}

	if err := json.Unmarshal(body, action); err != nil {
		return nil, fmt.Errorf("failed to decode %s request: %w", envelope.Action, err)
	}
	return action, nil
}

type exchangeCodeResponse struct {
	Success    bool                       `json:"success"`
	Connection *banking.ConnectionSummary `json:"connection"`
}

type BankAuthHandler struct {
	auth     AuthFlow
	validate *validator.Validate
}

func NewBankAuthHandler(auth AuthFlow) *BankAuthHandler {
	return &BankAuthHandler{auth: auth, validate: validator.New()}
}

// HandleAuth serves POST /api/bank/auth.
func (h *BankAuthHandler) HandleAuth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	action, err := decodeAuthAction(body)
	if errors.Is(err, errInvalidAction) {
		writeError(w, http.StatusBadRequest, "Invalid action")
		return
	}
	if err != nil {
		log.Printf("Error decoding bank auth request: %v", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.validate.Struct(action); err != nil {
		writeError(w, http.StatusBadRequest, action.missingMessage())
		return
	}

	switch a := action.(type) {
	case *getAuthURLAction:
		h.getAuthURL(w, a)
	case *exchangeCodeAction:
		h.exchangeCode(w, r, a)
	case *refreshTokenAction:
		h.refreshToken(w, r, a)
	default:
		writeError(w, http.StatusBadRequest, "Invalid action")
	}
}

func (h *BankAuthHandler) getAuthURL(w http.ResponseWriter, a *getAuthURLAction) {
	authURL, err := h.auth.GetAuthURL(a.KidID, a.RedirectURI)
	if err != nil {
		h.writeAuthError(w, err, a.missingMessage())
		return
	}
	writeJSON(w, http.StatusOK, authURL)
}

func (h *BankAuthHandler) exchangeCode(w http.ResponseWriter, r *http.Request, a *exchangeCodeAction) {
	summary, err := h.auth.ExchangeCode(r.Context(), a.Code, a.State, a.RedirectURI)
	if err != nil {
		h.writeAuthError(w, err, a.missingMessage())
		return
	}
	writeJSON(w, http.StatusOK, exchangeCodeResponse{Success: true, Connection: summary})
}

func (h *BankAuthHandler) refreshToken(w http.ResponseWriter, r *http.Request, a *refreshTokenAction) {
	if err := h.auth.RefreshConnection(r.Context(), a.ConnectionID); err != nil {
		h.writeAuthError(w, err, a.missingMessage())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *BankAuthHandler) writeAuthError(w http.ResponseWriter, err error, missing string) {
	var exchangeErr *banking.TokenExchangeError

	switch {
	case errors.Is(err, banking.ErrMissingParameters):
		writeError(w, http.StatusBadRequest, missing)
	case errors.Is(err, banking.ErrInvalidState):
		writeError(w, http.StatusBadRequest, "Invalid state")
	case errors.As(err, &exchangeErr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Token exchange failed", Details: exchangeErr.Details})
	case errors.Is(err, connection.ErrConnectionNotFound):
		writeError(w, http.StatusNotFound, "Connection not found")
	case errors.Is(err, banking.ErrNoRefreshToken):
		writeError(w, http.StatusBadRequest, "No refresh token available")
	case errors.Is(err, banking.ErrTokenRefreshFailed):
		writeError(w, http.StatusBadRequest, "Token refresh failed")
	case errors.Is(err, banking.ErrStoreConnection):
		log.Printf("Error storing bank connection: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to store connection")
	default:
		log.Printf("Bank auth error: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
