package indexer

import (
	"testing"

	"github.com/tolelom/punkchain/events"
)

func newTestIndexer(t *testing.T) (*Indexer, *events.Emitter) {
	t.Helper()
	emitter := events.NewEmitter()
	idx, err := New(t.TempDir()+"/index.db", emitter)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx, emitter
}

// TestHoldingsFollowOwnershipEvents verifies the holdings table tracks
// assignment and transfer events, including overwrites.
func TestHoldingsFollowOwnershipEvents(t *testing.T) {
	idx, emitter := newTestIndexer(t)

	emitter.Emit(events.Event{
		Type: events.EventPunkAssigned,
		Data: map[string]any{"punk_index": uint64(3), "owner": "alice"},
	})
	emitter.Emit(events.Event{
		Type: events.EventPunkClaimed,
		Data: map[string]any{"punk_index": uint64(7), "owner": "alice"},
	})

	ids, err := idx.PunksByOwner("alice")
	if err != nil {
		t.Fatalf("PunksByOwner: %v", err)
	}
	if len(ids) != 2 || ids[0] != 3 || ids[1] != 7 {
		t.Errorf("alice holdings: got %v want [3 7]", ids)
	}

	// Transfer events carry the recipient under "to".
	emitter.Emit(events.Event{
		Type: events.EventPunkTransfer,
		Data: map[string]any{"punk_index": uint64(3), "from": "alice", "to": "bob"},
	})

	ids, _ = idx.PunksByOwner("alice")
	if len(ids) != 1 || ids[0] != 7 {
		t.Errorf("alice after transfer: got %v want [7]", ids)
	}
	ids, _ = idx.PunksByOwner("bob")
	if len(ids) != 1 || ids[0] != 3 {
		t.Errorf("bob after transfer: got %v want [3]", ids)
	}
}

// TestTradeHistory verifies trade rows are recorded for sales and accepted
// bids, queryable per punk and market-wide.
func TestTradeHistory(t *testing.T) {
	idx, emitter := newTestIndexer(t)

	emitter.Emit(events.Event{
		Type:        events.EventPunkBought,
		TxID:        "tx1",
		BlockHeight: 1,
		Data: map[string]any{
			"punk_index": uint64(4), "seller": "alice", "buyer": "bob", "price": "20",
		},
	})
	emitter.Emit(events.Event{
		Type:        events.EventBidAccepted,
		TxID:        "tx2",
		BlockHeight: 2,
		Data: map[string]any{
			"punk_index": uint64(4), "seller": "bob", "buyer": "carol", "price": "35",
		},
	})
	emitter.Emit(events.Event{
		Type:        events.EventPunkBought,
		TxID:        "tx3",
		BlockHeight: 3,
		Data: map[string]any{
			"punk_index": uint64(9), "seller": "dave", "buyer": "erin", "price": "5",
		},
	})

	trades, err := idx.TradesForPunk(4, 10)
	if err != nil {
		t.Fatalf("TradesForPunk: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("punk 4 trades: got %d want 2", len(trades))
	}
	// Newest first.
	if trades[0].Kind != "bid" || trades[0].Price != "35" || trades[0].Buyer != "carol" {
		t.Errorf("latest trade: %+v", trades[0])
	}
	if trades[1].Kind != "sale" || trades[1].Price != "20" {
		t.Errorf("earlier trade: %+v", trades[1])
	}

	all, err := idx.RecentTrades(10)
	if err != nil {
		t.Fatalf("RecentTrades: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("recent trades: got %d want 3", len(all))
	}

	// The sale also updated holdings.
	ids, _ := idx.PunksByOwner("carol")
	if len(ids) != 1 || ids[0] != 4 {
		t.Errorf("carol holdings: got %v want [4]", ids)
	}
}

// TestMalformedEventsIgnored: events without the expected fields must not
// corrupt the index or panic.
func TestMalformedEventsIgnored(t *testing.T) {
	idx, emitter := newTestIndexer(t)

	emitter.Emit(events.Event{Type: events.EventPunkAssigned, Data: map[string]any{}})
	emitter.Emit(events.Event{
		Type: events.EventPunkBought,
		Data: map[string]any{"punk_index": uint64(1)}, // no parties
	})

	trades, err := idx.RecentTrades(10)
	if err != nil {
		t.Fatalf("RecentTrades: %v", err)
	}
	if len(trades) != 0 {
		t.Errorf("malformed trade recorded: %v", trades)
	}
}
