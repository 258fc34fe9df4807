// Package indexer maintains a SQLite secondary index over committed
// marketplace events so observers can query holdings by owner and trade
// history without scanning full chain state.
package indexer

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/tolelom/punkchain/events"
)

const schema = `
CREATE TABLE IF NOT EXISTS holdings (
	punk_index   INTEGER PRIMARY KEY,
	owner        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS holdings_owner ON holdings(owner);

CREATE TABLE IF NOT EXISTS trades (
	id           TEXT PRIMARY KEY,
	punk_index   INTEGER NOT NULL,
	seller       TEXT NOT NULL,
	buyer        TEXT NOT NULL,
	price        TEXT NOT NULL,
	kind         TEXT NOT NULL,
	block_height INTEGER NOT NULL,
	tx_id        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS trades_punk ON trades(punk_index);
`

// Trade is one completed sale, either a direct purchase or an accepted bid.
// Price is a decimal string so ether-scale amounts survive SQLite.
type Trade struct {
	ID          string `json:"id"`
	PunkIndex   uint64 `json:"punk_index"`
	Seller      string `json:"seller"`
	Buyer       string `json:"buyer"`
	Price       string `json:"price"`
	Kind        string `json:"kind"` // "sale" | "bid"
	BlockHeight int64  `json:"block_height"`
	TxID        string `json:"tx_id"`
}

// Indexer subscribes to chain events and updates the SQLite lookup tables.
type Indexer struct {
	db *sql.DB
}

// New opens (or creates) the index database at path and subscribes to all
// ownership-changing and trade events.
func New(path string, emitter *events.Emitter) (*Indexer, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open index db %q: %w", path, err)
	}
	// modernc.org/sqlite serialises writes; a single connection avoids
	// SQLITE_BUSY under concurrent event delivery.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index schema: %w", err)
	}

	idx := &Indexer{db: db}
	emitter.Subscribe(events.EventPunkAssigned, idx.onOwnershipChange)
	emitter.Subscribe(events.EventPunkClaimed, idx.onOwnershipChange)
	emitter.Subscribe(events.EventPunkTransfer, idx.onOwnershipChange)
	emitter.Subscribe(events.EventPunkBought, idx.onTrade("sale"))
	emitter.Subscribe(events.EventBidAccepted, idx.onTrade("bid"))
	return idx, nil
}

// Close releases the underlying database.
func (idx *Indexer) Close() error {
	return idx.db.Close()
}

// PunksByOwner returns all punk indexes currently held by owner, ascending.
func (idx *Indexer) PunksByOwner(owner string) ([]uint64, error) {
	rows, err := idx.db.Query(`SELECT punk_index FROM holdings WHERE owner = ? ORDER BY punk_index`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// TradesForPunk returns the trade history of one punk, newest first.
func (idx *Indexer) TradesForPunk(punkIndex uint64, limit int) ([]Trade, error) {
	return idx.queryTrades(
		`SELECT id, punk_index, seller, buyer, price, kind, block_height, tx_id
		 FROM trades WHERE punk_index = ? ORDER BY block_height DESC LIMIT ?`,
		punkIndex, limit)
}

// RecentTrades returns the most recent trades across the whole market.
func (idx *Indexer) RecentTrades(limit int) ([]Trade, error) {
	return idx.queryTrades(
		`SELECT id, punk_index, seller, buyer, price, kind, block_height, tx_id
		 FROM trades ORDER BY block_height DESC LIMIT ?`,
		limit)
}

func (idx *Indexer) queryTrades(query string, args ...any) ([]Trade, error) {
	rows, err := idx.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []Trade
	for rows.Next() {
		var t Trade
		if err := rows.Scan(&t.ID, &t.PunkIndex, &t.Seller, &t.Buyer, &t.Price, &t.Kind, &t.BlockHeight, &t.TxID); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// ---- event handlers ----

func (idx *Indexer) onOwnershipChange(ev events.Event) {
	punkIndex, ok := asIndex(ev.Data["punk_index"])
	if !ok {
		return
	}
	owner, _ := ev.Data["owner"].(string)
	if owner == "" {
		// transfer events carry the recipient under "to"
		owner, _ = ev.Data["to"].(string)
	}
	if owner == "" {
		return
	}
	idx.setHolding(punkIndex, owner)
}

func (idx *Indexer) onTrade(kind string) events.Handler {
	return func(ev events.Event) {
		punkIndex, ok := asIndex(ev.Data["punk_index"])
		if !ok {
			return
		}
		seller, _ := ev.Data["seller"].(string)
		buyer, _ := ev.Data["buyer"].(string)
		price, _ := ev.Data["price"].(string)
		if seller == "" || buyer == "" {
			return
		}
		idx.setHolding(punkIndex, buyer)
		_, err := idx.db.Exec(
			`INSERT INTO trades (id, punk_index, seller, buyer, price, kind, block_height, tx_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), punkIndex, seller, buyer, price, kind, ev.BlockHeight, ev.TxID)
		if err != nil {
			// The chain is the source of truth; a failed index write only
			// degrades queries.
			fmt.Printf("[indexer] record trade: %v\n", err)
		}
	}
}

func (idx *Indexer) setHolding(punkIndex uint64, owner string) {
	_, err := idx.db.Exec(
		`INSERT INTO holdings (punk_index, owner) VALUES (?, ?)
		 ON CONFLICT(punk_index) DO UPDATE SET owner = excluded.owner`,
		punkIndex, owner)
	if err != nil {
		fmt.Printf("[indexer] update holding: %v\n", err)
	}
}

// asIndex normalises the punk index out of event data, which may arrive as
// uint64 (in-process emit) or float64 (after a JSON round-trip).
func asIndex(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint64:
		return n, true
	case int64:
		return uint64(n), true
	case int:
		return uint64(n), true
	case float64:
		return uint64(n), true
	default:
		return 0, false
	}
}
