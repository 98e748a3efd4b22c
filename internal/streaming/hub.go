package streaming

import (
	"context"
	"log"
	"sync"
	"time"
)

// Client represents a connected SSE client
type Client struct {
	Events chan SSEEvent
}

// NewClient creates a new SSE client
func NewClient() *Client {
	return &Client{
		Events: make(chan SSEEvent, 10),
	}
}

// critical events must reach clients before the broadcaster shuts down
func critical(event SSEEvent) bool {
	return event.Type == EventTypeComplete || event.Type == EventTypeError
}

const (
	// sessionDeadline bounds how long a critical event waits for space in
	// the session channel; clientDeadline bounds the per-client send.
	sessionDeadline = 100 * time.Millisecond
	clientDeadline  = 50 * time.Millisecond
)

// deliver places an event into ch. Critical events wait up to deadline for
// space; the rest are dropped immediately when ch is full. done, when
// non-nil, aborts the wait. Reports whether the event was delivered.
func deliver(ch chan<- SSEEvent, event SSEEvent, deadline time.Duration, done <-chan struct{}) bool {
	if critical(event) {
		select {
		case ch <- event:
			return true
		case <-done:
			return false
		case <-time.After(deadline):
			return false
		}
	}
	select {
	case ch <- event:
		return true
	case <-done:
		return false
	default:
		return false
	}
}

// SessionBroadcaster broadcasts events to multiple clients for a single sync session
type SessionBroadcaster struct {
	mu       sync.RWMutex
	clients  map[*Client]bool
	events   chan SSEEvent
	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	stopped  bool
}

// NewSessionBroadcaster creates a new session broadcaster
func NewSessionBroadcaster(ctx context.Context) *SessionBroadcaster {
	ctx, cancel := context.WithCancel(ctx)
	return &SessionBroadcaster{
		clients: make(map[*Client]bool),
		events:  make(chan SSEEvent, 100),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Register adds a client to the broadcaster
func (b *SessionBroadcaster) Register(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[client] = true
	log.Printf("INFO: Client registered, total clients: %d", len(b.clients))
}

// Unregister removes a client from the broadcaster
func (b *SessionBroadcaster) Unregister(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[client]; ok {
		delete(b.clients, client)
		// Stop() already closes all client channels
		if !b.stopped {
			close(client.Events)
		}
		log.Printf("INFO: Client unregistered, total clients: %d", len(b.clients))
	}
}

// ClientCount returns the number of connected clients
func (b *SessionBroadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Broadcast sends an event to all registered clients. Critical events get
// a delivery deadline; anything else is dropped when the channel is full.
func (b *SessionBroadcaster) Broadcast(event SSEEvent) {
	b.mu.RLock()
	if b.stopped {
		b.mu.RUnlock()
		return
	}
	b.mu.RUnlock()

	if deliver(b.events, event, sessionDeadline, b.ctx.Done()) {
		return
	}
	if b.ctx.Err() != nil {
		return
	}
	if critical(event) {
		log.Printf("ERROR: Failed to send critical event type %s - clients may hang. Channel capacity: %d", event.Type, cap(b.events))
	} else {
		log.Printf("WARN: Event channel full, dropping event type: %s", event.Type)
	}
}

// Stop stops the broadcaster and cleans up resources
func (b *SessionBroadcaster) Stop() {
	b.stopOnce.Do(func() {
		b.mu.Lock()
		b.stopped = true
		for client := range b.clients {
			close(client.Events)
			delete(b.clients, client)
		}
		b.mu.Unlock()
		b.cancel()
		close(b.events)
	})
}

// Start starts broadcasting events to all clients. The broadcaster stops
// itself shortly after a complete or error event.
func (b *SessionBroadcaster) Start() {
	go func() {
		defer b.Stop()
		for {
			select {
			case <-b.ctx.Done():
				return
			case event, ok := <-b.events:
				if !ok {
					return
				}
				b.broadcastToClients(event)

				if critical(event) {
					time.Sleep(100 * time.Millisecond)
					return
				}
			}
		}
	}()
}

// broadcastToClients fans an event out to every registered client, one
// bounded send each.
func (b *SessionBroadcaster) broadcastToClients(event SSEEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for client := range b.clients {
		if deliver(client.Events, event, clientDeadline, nil) {
			continue
		}
		if critical(event) {
			log.Printf("ERROR: Failed to send critical event type %s to client - client may hang. Channel capacity: %d", event.Type, cap(client.Events))
		} else {
			log.Printf("WARN: Client channel full, skipping event type: %s", event.Type)
		}
	}
}

// StreamHub manages broadcasters for multiple sync sessions
type StreamHub struct {
	mu           sync.RWMutex
	broadcasters map[string]*SessionBroadcaster
}

// NewStreamHub creates a new stream hub
func NewStreamHub() *StreamHub {
	return &StreamHub{
		broadcasters: make(map[string]*SessionBroadcaster),
	}
}

// Register registers a client for a session and returns the client
func (h *StreamHub) Register(ctx context.Context, sessionID string) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	client := NewClient()

	broadcaster, exists := h.broadcasters[sessionID]
	if !exists {
		broadcaster = NewSessionBroadcaster(ctx)
		h.broadcasters[sessionID] = broadcaster
		broadcaster.Start()
		log.Printf("INFO: Created new broadcaster for session %s", sessionID)
	}

	broadcaster.Register(client)
	return client
}

// Unregister removes a client from a session
func (h *StreamHub) Unregister(sessionID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	broadcaster, exists := h.broadcasters[sessionID]
	if !exists {
		return
	}

	broadcaster.Unregister(client)

	if broadcaster.ClientCount() == 0 {
		log.Printf("INFO: Last client disconnected from session %s, stopping broadcaster", sessionID)
		broadcaster.Stop()
		delete(h.broadcasters, sessionID)
	}
}

// Broadcast sends an event to all clients of a session
func (h *StreamHub) Broadcast(sessionID string, event SSEEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	broadcaster, exists := h.broadcasters[sessionID]
	if !exists {
		log.Printf("WARN: Attempted to broadcast to non-existent session %s", sessionID)
		return
	}

	broadcaster.Broadcast(event)
}

// IsRunning checks if a session broadcaster exists
func (h *StreamHub) IsRunning(sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, exists := h.broadcasters[sessionID]
	return exists
}
