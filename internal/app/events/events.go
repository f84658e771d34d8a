// Package events carries the structured events every mutating treasury
// operation emits. Off-chain indexers and bots subscribe to the bus for
// notification and reconciliation.
package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-network/treasury/internal/app/domain/currency"
	"github.com/custodia-network/treasury/internal/app/domain/identity"
)

// Type classifies a treasury event.
type Type string

const (
	TypeAdminPendingSet     Type = "admin.pending_set"
	TypeAdminAccepted       Type = "admin.accepted"
	TypeReviewerPendingSet  Type = "reviewer.pending_set"
	TypeReviewerAccepted    Type = "reviewer.accepted"
	TypeAllowlistInit       Type = "allowlist.initialized"
	TypeAllowlistAdded      Type = "allowlist.currency_added"
	TypeAllowlistRemoved    Type = "allowlist.currency_removed"
	TypeUserRegistered      Type = "user.registered"
	TypeUserWithdrawal      Type = "user.withdrawal"
	TypeLegacyFeeCurrency   Type = "payment.legacy_fee_currency_set"
	TypeFeeCollectorSet     Type = "payment.fee_collector_set"
	TypeFeePaid             Type = "payment.fee_paid"
	TypeRecipientsPaid      Type = "payment.recipients_paid"
	TypeDeposit             Type = "ledger.deposit"
	TypeGroupCreated        Type = "group.created"
	TypeGroupMigrated       Type = "group.migrated"
	TypePoolCreated         Type = "pool.created"
	TypePoolClaimed         Type = "pool.claimed"
	TypePoolExhausted       Type = "pool.exhausted"
	TypeProposalCreated     Type = "dao.proposal_created"
	TypeVoteCast            Type = "dao.vote_cast"
)

// Event is one emitted treasury occurrence. Fields not relevant to the
// operation are left zero.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	Actor   identity.Identity `json:"actor,omitempty"`
	Subject identity.Identity `json:"subject,omitempty"`

	GroupID string `json:"group_id,omitempty"`
	RefID   string `json:"ref_id,omitempty"`

	Currency currency.Ref `json:"currency,omitempty"`
	Amount   int64        `json:"amount,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

// String renders the event as JSON for logs.
func (e Event) String() string {
	data, _ := json.Marshal(e)
	return string(data)
}

// Handler processes events as they are published.
type Handler func(Event)

// Filter decides whether a subscribed handler sees an event.
type Filter func(Event) bool

// Bus is the publication interface mutating services depend on.
type Bus interface {
	Publish(event Event)
	Subscribe(handler Handler) func()
	SubscribeFiltered(filter Filter, handler Handler) func()
	Recent(n int) []Event
	RecentByType(t Type, n int) []Event
}

// RingBus is a thread-safe fixed-size event bus retaining the most recent
// events for queries.
type RingBus struct {
	mu       sync.RWMutex
	events   []Event
	size     int
	head     int
	count    int
	handlers []handlerEntry
	nextID   int64
}

type handlerEntry struct {
	id      int64
	filter  Filter
	handler Handler
}

var _ Bus = (*RingBus)(nil)

// NewRingBus creates a bus retaining up to size events.
func NewRingBus(size int) *RingBus {
	if size <= 0 {
		size = 1000
	}
	return &RingBus{
		events: make([]Event, size),
		size:   size,
	}
}

// Publish records the event and notifies subscribers.
func (b *RingBus) Publish(event Event) {
	b.mu.Lock()
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	b.events[b.head] = event
	b.head = (b.head + 1) % b.size
	if b.count < b.size {
		b.count++
	}

	handlers := make([]handlerEntry, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.Unlock()

	// Notify handlers outside the lock
	for _, h := range handlers {
		if h.filter == nil || h.filter(event) {
			h.handler(event)
		}
	}
}

// Subscribe registers a handler for all events and returns its unsubscribe
// function.
func (b *RingBus) Subscribe(handler Handler) func() {
	return b.SubscribeFiltered(nil, handler)
}

// SubscribeFiltered registers a handler gated by a filter.
func (b *RingBus) SubscribeFiltered(filter Filter, handler Handler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers = append(b.handlers, handlerEntry{id: id, filter: filter, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, h := range b.handlers {
			if h.id == id {
				b.handlers = append(b.handlers[:i], b.handlers[i+1:]...)
				return
			}
		}
	}
}

// Recent returns the most recent N events in reverse chronological order.
func (b *RingBus) Recent(n int) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n <= 0 || b.count == 0 {
		return nil
	}
	if n > b.count {
		n = b.count
	}

	result := make([]Event, n)
	for i := 0; i < n; i++ {
		idx := (b.head - 1 - i + b.size) % b.size
		result[i] = b.events[idx]
	}
	return result
}

// RecentByType returns the most recent N events of one type.
func (b *RingBus) RecentByType(t Type, n int) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n <= 0 || b.count == 0 {
		return nil
	}

	var result []Event
	for i := 0; i < b.count && len(result) < n; i++ {
		idx := (b.head - 1 - i + b.size) % b.size
		if b.events[idx].Type == t {
			result = append(result, b.events[idx])
		}
	}
	return result
}

// Count returns the number of retained events.
func (b *RingBus) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// NopBus discards all events. Services default to it when no bus is wired.
type NopBus struct{}

var _ Bus = NopBus{}

func (NopBus) Publish(Event) {}

func (NopBus) Subscribe(Handler) func() { return func() {} }

func (NopBus) SubscribeFiltered(Filter, Handler) func() { return func() {} }

func (NopBus) Recent(int) []Event { return nil }

func (NopBus) RecentByType(Type, int) []Event { return nil }
