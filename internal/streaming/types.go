package streaming

import (
	"encoding/json"
	"time"
)

// EventType represents the type of SSE event
type EventType string

const (
	EventTypeSession     EventType = "session"
	EventTypeProgress    EventType = "progress"
	EventTypeAccount     EventType = "account"
	EventTypeTransaction EventType = "transaction"
	EventTypeComplete    EventType = "complete"
	EventTypeError       EventType = "error"
	EventTypeHeartbeat   EventType = "heartbeat"
)

// SSEEvent represents a Server-Sent Event. The payload is private; use the
// typed constructors and accessors so type and payload cannot disagree.
type SSEEvent struct {
	Type      EventType
	Timestamp time.Time
	data      interface{}
}

// Data returns the untyped event payload
func (e SSEEvent) Data() interface{} { return e.data }

// MarshalJSON emits the payload under the "data" key
func (e SSEEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type      EventType   `json:"type"`
		Timestamp time.Time   `json:"timestamp"`
		Data      interface{} `json:"data"`
	}{e.Type, e.Timestamp, e.data})
}

func newEvent(t EventType, data interface{}) SSEEvent {
	return SSEEvent{Type: t, Timestamp: time.Now().UTC(), data: data}
}

// NewSessionEvent wraps a session state change
func NewSessionEvent(data SessionEvent) SSEEvent { return newEvent(EventTypeSession, data) }

// NewProgressEvent wraps a sync progress update
func NewProgressEvent(data ProgressEvent) SSEEvent { return newEvent(EventTypeProgress, data) }

// NewAccountEvent wraps an account sync status change
func NewAccountEvent(data AccountEvent) SSEEvent { return newEvent(EventTypeAccount, data) }

// NewTransactionEvent wraps a converted transaction
func NewTransactionEvent(data TransactionEvent) SSEEvent { return newEvent(EventTypeTransaction, data) }

// NewCompleteEvent signals that a sync session finished
func NewCompleteEvent(data interface{}) SSEEvent { return newEvent(EventTypeComplete, data) }

// NewErrorEvent signals a failed sync session
func NewErrorEvent(data ErrorEvent) SSEEvent { return newEvent(EventTypeError, data) }

// NewHeartbeatEvent keeps idle SSE connections alive
func NewHeartbeatEvent() SSEEvent { return newEvent(EventTypeHeartbeat, nil) }

// SessionData extracts the payload of a session event
func (e SSEEvent) SessionData() (SessionEvent, bool) {
	data, ok := e.data.(SessionEvent)
	return data, ok
}

// ProgressData extracts the payload of a progress event
func (e SSEEvent) ProgressData() (ProgressEvent, bool) {
	data, ok := e.data.(ProgressEvent)
	return data, ok
}

// AccountData extracts the payload of an account event
func (e SSEEvent) AccountData() (AccountEvent, bool) {
	data, ok := e.data.(AccountEvent)
	return data, ok
}

// TransactionData extracts the payload of a transaction event
func (e SSEEvent) TransactionData() (TransactionEvent, bool) {
	data, ok := e.data.(TransactionEvent)
	return data, ok
}

// ErrorData extracts the payload of an error event
func (e SSEEvent) ErrorData() (ErrorEvent, bool) {
	data, ok := e.data.(ErrorEvent)
	return data, ok
}

// SessionEvent represents a sync session state event
type SessionEvent struct {
	ID          string                 `json:"id"`
	Status      string                 `json:"status"`
	Stats       map[string]interface{} `json:"stats"`
	CompletedAt *time.Time             `json:"completedAt,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

// ProgressEvent represents sync progress across accounts
type ProgressEvent struct {
	AccountID  string  `json:"accountId"`
	Title      string  `json:"title"`
	Processed  int     `json:"processed"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
	Status     string  `json:"status"`
}

// AccountEvent represents an account being synced
type AccountEvent struct {
	ID        string                 `json:"id"`
	SessionID string                 `json:"sessionId"`
	Title     string                 `json:"title"`
	Currency  string                 `json:"currency"`
	Status    string                 `json:"status"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// TransactionEvent represents a converted transaction
type TransactionEvent struct {
	ID       string  `json:"id"`
	Date     string  `json:"date"`
	Comment  string  `json:"comment"`
	Sum      float64 `json:"sum"`
	Category string  `json:"category,omitempty"`
}

// ErrorEvent represents an error during a sync run
type ErrorEvent struct {
	Message   string `json:"message"`
	AccountID string `json:"accountId,omitempty"`
}
