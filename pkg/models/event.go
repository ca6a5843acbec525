package models

// EventType identifies an outbound observer event
type EventType string

const (
	EventLog          EventType = "log"
	EventProgress     EventType = "progress"
	EventOrders       EventType = "orders"
	EventSyncComplete EventType = "sync-complete"
	EventSessions     EventType = "sessions"
)

// Progress reports card-generation progress
type Progress struct {
	Generated int    `json:"generated"`
	Total     int    `json:"total"`
	Status    string `json:"status"`
}

// Event is one message delivered to observers
type Event struct {
	Type      EventType      `json:"type"`
	SessionID string         `json:"sessionId,omitempty"`
	Message   string         `json:"message,omitempty"`
	Progress  *Progress      `json:"progress,omitempty"`
	Orders    []ScrapedOrder `json:"orders,omitempty"`
	Sessions  []SessionInfo  `json:"sessions,omitempty"`
}
