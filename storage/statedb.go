package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/holiman/uint256"

	"github.com/tolelom/punkchain/core"
	"github.com/tolelom/punkchain/crypto"
)

// registerPrefix records a state-key prefix into statePrefixes so that
// ComputeRoot() always covers it.  All prefix constants must be declared
// via this function; manually editing statePrefixes is not required.
func registerPrefix(p string) string {
	statePrefixes = append(statePrefixes, p)
	return p
}

// statePrefixes is populated automatically by registerPrefix() below.
// ComputeRoot() iterates these prefixes to build the full world-state view.
var statePrefixes []string

var (
	prefixAccount = registerPrefix("acct:")
	prefixPunk    = registerPrefix("punk:")
	prefixOffer   = registerPrefix("offer:")
	prefixBid     = registerPrefix("bid:")
	prefixPending = registerPrefix("pend:")
	prefixMarket  = registerPrefix("mkt:")
)

// marketKey is the singleton key for the marketplace metadata record.
const marketKey = "mkt:info"

// punkKey zero-pads the index so lexicographic DB iteration matches numeric
// order across the full [0, TotalPunks) range.
func punkKey(prefix string, idx uint64) string {
	return fmt.Sprintf("%s%05d", prefix, idx)
}

type stateSnapshot struct {
	dirty   map[string][]byte
	deleted map[string]bool
}

// StateDB implements core.State on top of a DB with in-memory write buffer,
// snapshot/rollback, and deterministic state-root computation.
type StateDB struct {
	db        DB
	dirty     map[string][]byte
	deleted   map[string]bool
	snapshots []stateSnapshot
}

// NewStateDB creates a StateDB backed by db.
func NewStateDB(db DB) *StateDB {
	return &StateDB{
		db:      db,
		dirty:   make(map[string][]byte),
		deleted: make(map[string]bool),
	}
}

// ---- internal helpers ----

func (s *StateDB) get(key string) ([]byte, error) {
	if s.deleted[key] {
		return nil, core.ErrNotFound
	}
	if v, ok := s.dirty[key]; ok {
		return v, nil
	}
	return s.db.Get([]byte(key))
}

func (s *StateDB) set(key string, val []byte) {
	delete(s.deleted, key)
	s.dirty[key] = val
}

func (s *StateDB) del(key string) {
	delete(s.dirty, key)
	s.deleted[key] = true
}

// ---- Account ----

func (s *StateDB) GetAccount(address string) (*core.Account, error) {
	data, err := s.get(prefixAccount + address)
	if errors.Is(err, core.ErrNotFound) {
		return &core.Account{Address: address, Balance: uint256.NewInt(0)}, nil // zero-value account
	}
	if err != nil {
		return nil, err
	}
	var acc core.Account
	if err := json.Unmarshal(data, &acc); err != nil {
		return nil, err
	}
	if acc.Balance == nil {
		acc.Balance = uint256.NewInt(0)
	}
	return &acc, nil
}

func (s *StateDB) SetAccount(acc *core.Account) error {
	if acc.Balance == nil {
		acc.Balance = uint256.NewInt(0)
	}
	data, err := json.Marshal(acc)
	if err != nil {
		return err
	}
	s.set(prefixAccount+acc.Address, data)
	return nil
}

// ---- Punk ownership ----

// GetPunkOwner returns the owner pubkey hex, or "" for an unassigned punk.
func (s *StateDB) GetPunkOwner(idx uint64) (string, error) {
	data, err := s.get(punkKey(prefixPunk, idx))
	if errors.Is(err, core.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// SetPunkOwner records the owner; an empty owner removes the entry so the
// punk reads back as unassigned.
func (s *StateDB) SetPunkOwner(idx uint64, owner string) error {
	key := punkKey(prefixPunk, idx)
	if owner == "" {
		s.del(key)
		return nil
	}
	s.set(key, []byte(owner))
	return nil
}

// ---- Offer book ----

func (s *StateDB) GetOffer(idx uint64) (*core.PunkOffer, error) {
	data, err := s.get(punkKey(prefixOffer, idx))
	if errors.Is(err, core.ErrNotFound) {
		return &core.PunkOffer{PunkIndex: idx, MinPrice: uint256.NewInt(0)}, nil
	}
	if err != nil {
		return nil, err
	}
	var offer core.PunkOffer
	if err := json.Unmarshal(data, &offer); err != nil {
		return nil, err
	}
	if offer.MinPrice == nil {
		offer.MinPrice = uint256.NewInt(0)
	}
	return &offer, nil
}

func (s *StateDB) SetOffer(offer *core.PunkOffer) error {
	data, err := json.Marshal(offer)
	if err != nil {
		return err
	}
	s.set(punkKey(prefixOffer, offer.PunkIndex), data)
	return nil
}

// ---- Bid book ----

func (s *StateDB) GetBid(idx uint64) (*core.PunkBid, error) {
	data, err := s.get(punkKey(prefixBid, idx))
	if errors.Is(err, core.ErrNotFound) {
		return &core.PunkBid{PunkIndex: idx, Amount: uint256.NewInt(0)}, nil
	}
	if err != nil {
		return nil, err
	}
	var bid core.PunkBid
	if err := json.Unmarshal(data, &bid); err != nil {
		return nil, err
	}
	if bid.Amount == nil {
		bid.Amount = uint256.NewInt(0)
	}
	return &bid, nil
}

func (s *StateDB) SetBid(bid *core.PunkBid) error {
	data, err := json.Marshal(bid)
	if err != nil {
		return err
	}
	s.set(punkKey(prefixBid, bid.PunkIndex), data)
	return nil
}

// ---- Escrow ledger ----

func (s *StateDB) GetPending(address string) (*uint256.Int, error) {
	data, err := s.get(prefixPending + address)
	if errors.Is(err, core.ErrNotFound) {
		return uint256.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	amount := new(uint256.Int)
	if err := json.Unmarshal(data, amount); err != nil {
		return nil, err
	}
	return amount, nil
}

// SetPending stores the pending-withdrawal balance; a zero amount removes
// the entry.
func (s *StateDB) SetPending(address string, amount *uint256.Int) error {
	key := prefixPending + address
	if amount == nil || amount.IsZero() {
		s.del(key)
		return nil
	}
	data, err := json.Marshal(amount)
	if err != nil {
		return err
	}
	s.set(key, data)
	return nil
}

// ---- Marketplace singleton ----

func (s *StateDB) GetMarket() (*core.MarketInfo, error) {
	data, err := s.get(marketKey)
	if errors.Is(err, core.ErrNotFound) {
		return &core.MarketInfo{RemainingToAssign: core.TotalPunks}, nil
	}
	if err != nil {
		return nil, err
	}
	var info core.MarketInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (s *StateDB) SetMarket(info *core.MarketInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	s.set(marketKey, data)
	return nil
}

// ---- Snapshot / Rollback / Commit ----

// Snapshot saves the current write buffer and returns a snapshot ID.
func (s *StateDB) Snapshot() (int, error) {
	snap := stateSnapshot{
		dirty:   make(map[string][]byte, len(s.dirty)),
		deleted: make(map[string]bool, len(s.deleted)),
	}
	for k, v := range s.dirty {
		cp := make([]byte, len(v))
		copy(cp, v)
		snap.dirty[k] = cp
	}
	for k, v := range s.deleted {
		snap.deleted[k] = v
	}
	s.snapshots = append(s.snapshots, snap)
	return len(s.snapshots) - 1, nil
}

// RevertToSnapshot restores the write buffer to a previously saved snapshot.
// The snapshot maps are deep-copied so that subsequent writes cannot corrupt them.
func (s *StateDB) RevertToSnapshot(id int) error {
	if id < 0 || id >= len(s.snapshots) {
		return fmt.Errorf("invalid snapshot id %d", id)
	}
	snap := s.snapshots[id]

	dirty := make(map[string][]byte, len(snap.dirty))
	for k, v := range snap.dirty {
		cp := make([]byte, len(v))
		copy(cp, v)
		dirty[k] = cp
	}
	deleted := make(map[string]bool, len(snap.deleted))
	for k, v := range snap.deleted {
		deleted[k] = v
	}

	s.dirty = dirty
	s.deleted = deleted
	s.snapshots = s.snapshots[:id]
	return nil
}

// ComputeRoot returns the deterministic hash of the complete world state.
// It merges all persisted state entries (scanned from DB by the known state
// prefixes) with the current write buffer, then hashes the sorted key-value
// pairs using length-prefix encoding.  It does NOT flush or modify state,
// so it is safe to call before signing a block.
func (s *StateDB) ComputeRoot() string {
	// Step 1: collect all persisted state entries from DB.
	merged := make(map[string][]byte)
	for _, prefix := range statePrefixes {
		it := s.db.NewIterator([]byte(prefix))
		for it.Next() {
			k := string(it.Key())
			v := make([]byte, len(it.Value()))
			copy(v, it.Value())
			merged[k] = v
		}
		it.Release()
	}

	// Step 2: apply in-memory write buffer (uncommitted changes this block).
	for k, v := range s.dirty {
		merged[k] = v
	}

	// Step 3: exclude deleted keys.
	for k := range s.deleted {
		delete(merged, k)
	}

	// Step 4: sort keys for determinism.
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	// Step 5: length-prefix encode each key-value pair and hash.
	var buf bytes.Buffer
	var lenBuf [4]byte
	for _, k := range keys {
		v := merged[k]
		kb := []byte(k)
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(kb)))
		buf.Write(lenBuf[:])
		buf.Write(kb)
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(v)))
		buf.Write(lenBuf[:])
		buf.Write(v)
	}
	return crypto.Hash(buf.Bytes())
}

// Commit atomically flushes the write buffer to the underlying DB via a
// WriteBatch and then clears it. Call ComputeRoot() before signing the block,
// then call Commit() after the block is safely stored.
func (s *StateDB) Commit() error {
	batch := s.db.NewBatch()
	for k, v := range s.dirty {
		batch.Set([]byte(k), v)
	}
	for k := range s.deleted {
		batch.Delete([]byte(k))
	}
	if err := batch.Write(); err != nil {
		return err
	}
	s.dirty = make(map[string][]byte)
	s.deleted = make(map[string]bool)
	s.snapshots = nil
	return nil
}
