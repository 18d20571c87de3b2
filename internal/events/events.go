package events

import (
	"context"
	"sync"
	"time"

	"clickrewards-api/internal/models"
)

// EventType represents the type of event.
type EventType string

const (
	// EventPurchaseApproved is emitted after a purchase approval commits.
	EventPurchaseApproved EventType = "purchase.approved"
	// EventPurchaseRejected is emitted after a purchase rejection commits.
	EventPurchaseRejected EventType = "purchase.rejected"
	// EventAdClicked is emitted after a credited ad click commits.
	EventAdClicked EventType = "ad.clicked"
	// EventCheckoutCreated is emitted when a withdrawal request is filed.
	EventCheckoutCreated EventType = "checkout.created"
	// EventCheckoutResolved is emitted on complete/reject/cancel.
	EventCheckoutResolved EventType = "checkout.resolved"
	// EventReferralRecorded is emitted when a referral edge is created.
	EventReferralRecorded EventType = "referral.recorded"
)

// Event represents an event in the system. Events are observational only:
// they are published after the owning transaction commits and never carry
// state the core depends on.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      interface{}
}

// PurchaseEventData accompanies purchase lifecycle events.
type PurchaseEventData struct {
	Purchase   models.Purchase
	AdminID    string
	BonusCents int64
}

// AdClickedData accompanies ad click events.
type AdClickedData struct {
	AccountID    string
	AdID         string
	EarningCents int64
}

// CheckoutEventData accompanies checkout lifecycle events.
type CheckoutEventData struct {
	Checkout models.Checkout
}

// ReferralRecordedData accompanies referral events.
type ReferralRecordedData struct {
	Referral models.Referral
}

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Manager manages event handlers and event publishing.
type Manager struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	enabled  bool
}

// NewManager creates a new event manager.
func NewManager(enabled bool) *Manager {
	return &Manager{
		handlers: make(map[EventType][]Handler),
		enabled:  enabled,
	}
}

// Subscribe subscribes a handler to a specific event type.
func (m *Manager) Subscribe(eventType EventType, handler Handler) {
	if !m.enabled {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.handlers[eventType] = append(m.handlers[eventType], handler)
}

// Publish publishes an event to all subscribed handlers. Handlers run
// asynchronously so a slow consumer never blocks a request.
func (m *Manager) Publish(ctx context.Context, eventType EventType, data interface{}) {
	if !m.enabled {
		return
	}

	m.mu.RLock()
	handlers := m.handlers[eventType]
	m.mu.RUnlock()

	if len(handlers) == 0 {
		return
	}

	event := Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}

	for _, handler := range handlers {
		go func(h Handler) {
			if err := h(ctx, event); err != nil {
				_ = err
			}
		}(handler)
	}
}

// Shutdown shuts down the event manager.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.enabled = false
	m.handlers = make(map[EventType][]Handler)
}
