package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/rumor-ml/commons.systems/banksync/internal/bog"
	"github.com/rumor-ml/commons.systems/banksync/internal/domain"
	"github.com/rumor-ml/commons.systems/banksync/internal/firestore"
	"github.com/rumor-ml/commons.systems/banksync/internal/middleware"
	"github.com/rumor-ml/commons.systems/banksync/internal/streaming"
	syncer "github.com/rumor-ml/commons.systems/banksync/internal/sync"
)

// defaultLookback bounds a sync started without an explicit from date
const defaultLookback = 30 * 24 * time.Hour

// SessionStore is the session and publishing side of the Firestore client
type SessionStore interface {
	CreateSyncSession(ctx context.Context, session *firestore.SyncSession) error
	UpdateSyncSession(ctx context.Context, session *firestore.SyncSession) error
	GetSyncSession(ctx context.Context, sessionID string) (*firestore.SyncSession, error)
	PublishResult(ctx context.Context, result *domain.SyncResult, userID string) (int, error)
}

// SyncHandlers handles sync-related requests. A fresh engine is built per
// run so concurrent sessions never share progress hooks.
type SyncHandlers struct {
	store    SessionStore
	hub      *streaming.StreamHub
	source   syncer.Source
	accounts []bog.Account
	skip     func(accountID string) bool
}

// NewSyncHandlers creates a new sync handlers instance
func NewSyncHandlers(store SessionStore, hub *streaming.StreamHub, source syncer.Source, accounts []bog.Account, skip func(string) bool) *SyncHandlers {
	return &SyncHandlers{
		store:    store,
		hub:      hub,
		source:   source,
		accounts: accounts,
		skip:     skip,
	}
}

// StartSync handles POST /api/sync/start. Optional form values "from" and
// "to" (YYYY-MM-DD) bound the statement window; from defaults to 30 days
// back, to defaults to now.
func (h *SyncHandlers) StartSync(w http.ResponseWriter, r *http.Request) {
	authInfo, ok := middleware.GetAuth(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	from := time.Now().Add(-defaultLookback)
	if v := r.FormValue("from"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			http.Error(w, "Invalid from date (expected YYYY-MM-DD)", http.StatusBadRequest)
			return
		}
		from = parsed
	}

	var to time.Time
	if v := r.FormValue("to"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			http.Error(w, "Invalid to date (expected YYYY-MM-DD)", http.StatusBadRequest)
			return
		}
		to = parsed
	}

	sessionID := uuid.New().String()
	session := &firestore.SyncSession{
		ID:           sessionID,
		UserID:       authInfo.UserID,
		Status:       firestore.SyncSessionStatusProcessing,
		AccountCount: len(h.accounts),
		Stats:        make(map[string]any),
		CreatedAt:    time.Now(),
	}

	if err := h.store.CreateSyncSession(r.Context(), session); err != nil {
		log.Printf("ERROR: Failed to create sync session: %v", err)
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	go h.runSession(session, from, to)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	fmt.Fprintf(w, `{"sessionId":%q}`, sessionID)
}

// runSession executes one sync in the background and keeps the session
// document and the SSE stream in step with it.
func (h *SyncHandlers) runSession(session *firestore.SyncSession, from, to time.Time) {
	ctx := context.Background()

	engine := syncer.NewEngine(h.source, h.skip)
	processed := 0
	engine.OnAccount = func(account bog.Account, records int) {
		processed++
		h.hub.Broadcast(session.ID, streaming.NewAccountEvent(streaming.AccountEvent{
			ID:        account.ID,
			SessionID: session.ID,
			Currency:  account.Currency,
			Status:    "synced",
			Metadata:  map[string]interface{}{"records": records},
		}))
		h.hub.Broadcast(session.ID, streaming.NewProgressEvent(streaming.ProgressEvent{
			AccountID:  account.ID,
			Processed:  processed,
			Total:      len(h.accounts),
			Percentage: float64(processed) / float64(len(h.accounts)) * 100,
			Status:     "processing",
		}))
	}

	result, stats, err := engine.Run(ctx, h.accounts, from, to)
	if err != nil {
		log.Printf("ERROR: Sync session %s failed: %v", session.ID, err)
		session.Status = firestore.SyncSessionStatusError
		session.Error = err.Error()
		if updateErr := h.store.UpdateSyncSession(ctx, session); updateErr != nil {
			log.Printf("ERROR: Failed to update failed session %s: %v", session.ID, updateErr)
		}
		h.hub.Broadcast(session.ID, streaming.NewErrorEvent(streaming.ErrorEvent{Message: err.Error()}))
		return
	}

	published, err := h.store.PublishResult(ctx, result, session.UserID)
	if err != nil {
		log.Printf("ERROR: Failed to publish result of session %s: %v", session.ID, err)
		session.Status = firestore.SyncSessionStatusError
		session.Error = err.Error()
		if updateErr := h.store.UpdateSyncSession(ctx, session); updateErr != nil {
			log.Printf("ERROR: Failed to update failed session %s: %v", session.ID, updateErr)
		}
		h.hub.Broadcast(session.ID, streaming.NewErrorEvent(streaming.ErrorEvent{Message: err.Error()}))
		return
	}

	now := time.Now()
	session.Status = firestore.SyncSessionStatusCompleted
	session.CompletedAt = &now
	session.Stats = map[string]any{
		"accountsSynced":       stats.AccountsSynced,
		"accountsSkipped":      stats.AccountsSkipped,
		"recordsFetched":       stats.RecordsFetched,
		"transactionsProduced": stats.TransactionsProduced,
		"transactionsMerged":   stats.TransactionsMerged,
		"transactionsWritten":  published,
	}
	if err := h.store.UpdateSyncSession(ctx, session); err != nil {
		log.Printf("ERROR: Failed to update completed session %s: %v", session.ID, err)
	}

	h.hub.Broadcast(session.ID, streaming.NewCompleteEvent(map[string]string{"status": "completed"}))
}

// CancelSync handles POST /api/sync/{id}/cancel
func (h *SyncHandlers) CancelSync(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	authInfo, ok := middleware.GetAuth(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	session, err := h.store.GetSyncSession(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	if session.UserID != authInfo.UserID {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	session.Status = firestore.SyncSessionStatusCancelled
	if err := h.store.UpdateSyncSession(r.Context(), session); err != nil {
		http.Error(w, "Failed to cancel session", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"cancelled"}`)
}

// StreamSync handles GET /api/sync/{id}/stream as Server-Sent Events
func (h *SyncHandlers) StreamSync(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	authInfo, ok := middleware.GetAuth(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	session, err := h.store.GetSyncSession(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	if session.UserID != authInfo.UserID {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	client := h.hub.Register(r.Context(), sessionID)
	defer h.hub.Unregister(sessionID, client)

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if err := writeSSE(w, streaming.NewHeartbeatEvent()); err != nil {
				return
			}
			flusher.Flush()
		case event, ok := <-client.Events:
			if !ok {
				return
			}
			if err := writeSSE(w, event); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, event streaming.SSEEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
