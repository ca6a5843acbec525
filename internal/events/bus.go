package events

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/hypercart/pkg/models"
)

// DefaultBuffer is the per-subscriber channel capacity
const DefaultBuffer = 256

// Bus fans events out to observers. Publish never blocks: a subscriber whose
// buffer is full misses the event.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]chan models.Event
	logger *zap.Logger
}

// NewBus creates an event bus
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		subs:   make(map[string]chan models.Event),
		logger: logger,
	}
}

// Subscribe registers an observer. The returned cancel func closes the channel.
func (b *Bus) Subscribe(buffer int) (string, <-chan models.Event, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	id := uuid.New().String()
	ch := make(chan models.Event, buffer)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return id, ch, cancel
}

// Publish delivers evt to every subscriber
func (b *Bus) Publish(evt models.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			b.logger.Warn("⚠️ Event buffer full, dropping event",
				zap.String("subscriber", id),
				zap.String("type", string(evt.Type)))
		}
	}
}

// Subscribers returns the number of live observers
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Log publishes a human-readable log line and mirrors it to the process log
func (b *Bus) Log(sessionID, msg string) {
	b.logger.Info(msg, zap.String("session_id", sessionID))
	b.Publish(models.Event{Type: models.EventLog, SessionID: sessionID, Message: msg})
}

// Sessions publishes a full session-list snapshot
func (b *Bus) Sessions(list []models.SessionInfo) {
	b.Publish(models.Event{Type: models.EventSessions, Sessions: list})
}

// Emitter is a session-scoped view of the bus used by automation engines
type Emitter struct {
	bus       *Bus
	sessionID string
}

// ForSession returns an emitter tagging every event with sessionID
func (b *Bus) ForSession(sessionID string) *Emitter {
	return &Emitter{bus: b, sessionID: sessionID}
}

// Log emits a log line
func (e *Emitter) Log(msg string) {
	e.bus.Log(e.sessionID, msg)
}

// Progress emits card-generation progress
func (e *Emitter) Progress(generated, total int, status string) {
	e.bus.Publish(models.Event{
		Type:      models.EventProgress,
		SessionID: e.sessionID,
		Progress:  &models.Progress{Generated: generated, Total: total, Status: status},
	})
}

// Orders emits a scraped-order batch
func (e *Emitter) Orders(orders []models.ScrapedOrder) {
	e.bus.Publish(models.Event{Type: models.EventOrders, SessionID: e.sessionID, Orders: orders})
}

// SyncComplete emits the crawler's queue-empty signal
func (e *Emitter) SyncComplete() {
	e.bus.Publish(models.Event{Type: models.EventSyncComplete, SessionID: e.sessionID})
}
