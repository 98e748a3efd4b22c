package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/rumor-ml/commons.systems/banksync/internal/firestore"
	"github.com/rumor-ml/commons.systems/banksync/internal/middleware"
)

// FirestoreReader is the read side of the Firestore client, split out for
// dependency injection
type FirestoreReader interface {
	GetTransactions(ctx context.Context, userID string) ([]*firestore.Transaction, error)
	GetAccounts(ctx context.Context, userID string) ([]*firestore.Account, error)
	ListSyncSessions(ctx context.Context, userID string) ([]*firestore.SyncSession, error)
}

// APIHandler handles API requests
type APIHandler struct {
	fsClient FirestoreReader
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(fsClient FirestoreReader) *APIHandler {
	return &APIHandler{fsClient: fsClient}
}

// GetTransactions handles GET /api/transactions
func (h *APIHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	transactions, err := h.fsClient.GetTransactions(r.Context(), userID)
	if err != nil {
		http.Error(w, "Failed to fetch transactions", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(transactions); err != nil {
		log.Printf("ERROR: Failed to encode transactions for user %s: %v", userID, err)
		return
	}
}

// GetAccounts handles GET /api/accounts
func (h *APIHandler) GetAccounts(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	accounts, err := h.fsClient.GetAccounts(r.Context(), userID)
	if err != nil {
		http.Error(w, "Failed to fetch accounts", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(accounts); err != nil {
		log.Printf("ERROR: Failed to encode accounts for user %s: %v", userID, err)
		return
	}
}

// GetSessions handles GET /api/sessions
func (h *APIHandler) GetSessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	sessions, err := h.fsClient.ListSyncSessions(r.Context(), userID)
	if err != nil {
		http.Error(w, "Failed to fetch sessions", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(sessions); err != nil {
		log.Printf("ERROR: Failed to encode sessions for user %s: %v", userID, err)
		return
	}
}
