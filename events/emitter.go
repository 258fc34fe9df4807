package events

import (
	"log"
	"sync"
)

// EventType labels what happened.
type EventType string

const (
	EventBlockCommit   EventType = "block_commit"
	EventTxExecuted    EventType = "tx_executed"
	EventTokenTransfer EventType = "token_transfer"

	EventPunkAssigned EventType = "punk_assigned" // admin initial assignment
	EventMarketLive   EventType = "market_live"   // init flag set
	EventPunkClaimed  EventType = "punk_claimed"  // post-init free mint
	EventPunkTransfer EventType = "punk_transfer"
	EventAdminChanged EventType = "admin_changed"

	EventPunkOffered        EventType = "punk_offered"
	EventPunkOfferWithdrawn EventType = "punk_offer_withdrawn"
	EventPunkBought         EventType = "punk_bought"

	EventBidEntered   EventType = "bid_entered"
	EventBidWithdrawn EventType = "bid_withdrawn"
	EventBidAccepted  EventType = "bid_accepted"

	EventWithdrawal EventType = "withdrawal"
)

// Event carries a typed payload emitted after a state change.
type Event struct {
	Type        EventType      `json:"type"`
	TxID        string         `json:"tx_id"`
	BlockHeight int64          `json:"block_height"`
	Data        map[string]any `json:"data"`
}

// Handler is a callback invoked for matching events.
type Handler func(Event)

// Emitter is a simple pub/sub broker. Subscribe before Emit.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	allSubs  []Handler
}

// NewEmitter creates an Emitter with no subscribers.
func NewEmitter() *Emitter {
	return &Emitter{handlers: make(map[EventType][]Handler)}
}

// Subscribe registers h to be called whenever typ is emitted.
func (e *Emitter) Subscribe(typ EventType, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[typ] = append(e.handlers[typ], h)
}

// SubscribeAll registers h to be called for every emitted event, regardless
// of type. Used by streaming consumers such as the websocket feed.
func (e *Emitter) SubscribeAll(h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.allSubs = append(e.allSubs, h)
}

// Emit delivers ev to all subscribers for ev.Type synchronously.
// Each handler is guarded by panic recovery so a misbehaving subscriber
// cannot crash the node or halt block production.
func (e *Emitter) Emit(ev Event) {
	e.mu.RLock()
	handlers := make([]Handler, 0, len(e.handlers[ev.Type])+len(e.allSubs))
	handlers = append(handlers, e.handlers[ev.Type]...)
	handlers = append(handlers, e.allSubs...)
	e.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[events] handler panicked for %s: %v", ev.Type, r)
				}
			}()
			h(ev)
		}()
	}
}
