package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raaihank/numsieve/internal/pipeline"
)

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypeRunStarted is sent when a run enters the running state
	EventTypeRunStarted EventType = "run_started"
	// EventTypeRunProgress carries a progress snapshot of a running run
	EventTypeRunProgress EventType = "run_progress"
	// EventTypeRunFinished is sent once per run with its terminal state
	EventTypeRunFinished EventType = "run_finished"
	// EventTypeConnection represents connection events
	EventTypeConnection EventType = "connection"
	// EventTypePong answers a client ping
	EventTypePong EventType = "pong"
)

// Event represents a WebSocket event sent to clients
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	RunID     string    `json:"run_id,omitempty"`
}

// RunEvent is the payload of every run_* event
type RunEvent struct {
	RunID       string            `json:"run_id"`
	Mode        string            `json:"mode"`
	Tag         string            `json:"tag"`
	Progress    pipeline.Progress `json:"progress"`
	HadAnyMatch bool              `json:"had_any_match"`
	Error       string            `json:"error,omitempty"`
}

// ConnectionEvent represents WebSocket connection events
type ConnectionEvent struct {
	Action    string `json:"action"` // "connected", "disconnected"
	ClientID  string `json:"client_id"`
	ClientIP  string `json:"client_ip"`
	UserAgent string `json:"user_agent,omitempty"`
	Message   string `json:"message,omitempty"`
}

// ClientMessage represents messages sent from clients to server
type ClientMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// SubscriptionRequest narrows what a client receives. Empty lists mean
// everything.
type SubscriptionRequest struct {
	Events []EventType `json:"events"`
	RunIDs []string    `json:"run_ids,omitempty"`
}

// Client represents a WebSocket client connection
type Client struct {
	ID          string
	Conn        *websocket.Conn
	Send        chan Event
	ConnectedAt time.Time
	IP          string
	UserAgent   string

	mu           sync.RWMutex
	subscription *SubscriptionRequest
	lastPing     time.Time
}

// Subscribe replaces the client's subscription
func (c *Client) Subscribe(sub *SubscriptionRequest) {
	c.mu.Lock()
	c.subscription = sub
	c.mu.Unlock()
}

// Wants reports whether event passes the client's subscription
func (c *Client) Wants(event Event) bool {
	c.mu.RLock()
	sub := c.subscription
	c.mu.RUnlock()

	if sub == nil {
		return true
	}
	if len(sub.Events) > 0 && !containsEvent(sub.Events, event.Type) {
		return false
	}
	// run filters only apply to run events
	if len(sub.RunIDs) > 0 && event.RunID != "" && !containsString(sub.RunIDs, event.RunID) {
		return false
	}
	return true
}

// LastPing returns when the client last answered a ping
func (c *Client) LastPing() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastPing
}

func (c *Client) touch() {
	c.mu.Lock()
	c.lastPing = time.Now()
	c.mu.Unlock()
}

func containsEvent(list []EventType, v EventType) bool {
	for _, e := range list {
		if e == v {
			return true
		}
	}
	return false
}

func containsString(list []string, v string) bool {
	for _, e := range list {
		if e == v {
			return true
		}
	}
	return false
}
