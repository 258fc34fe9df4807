package core

import "github.com/holiman/uint256"

// TotalPunks is the fixed supply. Every valid punk index lies in
// [0, TotalPunks). Supply is created at genesis and never changes.
const TotalPunks = 10_000

// ValidPunkIndex reports whether idx is a real punk.
func ValidPunkIndex(idx uint64) bool {
	return idx < TotalPunks
}

// Account holds a participant's native-token balance, punk count, and
// replay-protection nonce. Address is the hex-encoded ed25519 public key.
type Account struct {
	Address string       `json:"address"` // pubkey hex
	Balance *uint256.Int `json:"balance"`
	Punks   uint64       `json:"punks"` // number of punks owned
	Nonce   uint64       `json:"nonce"`
}

// Spendable returns the account's native balance, never nil.
func (a *Account) Spendable() *uint256.Int {
	if a.Balance == nil {
		a.Balance = uint256.NewInt(0)
	}
	return a.Balance
}

// PunkOffer is a standing sell offer on one punk. A cleared offer is kept as
// an inactive record rather than deleted, mirroring how ownership changes
// must explicitly invalidate the offer. OnlySellTo restricts acceptance to a
// single buyer when non-empty.
type PunkOffer struct {
	Active     bool         `json:"active"`
	PunkIndex  uint64       `json:"punk_index"`
	Seller     string       `json:"seller"` // pubkey hex
	MinPrice   *uint256.Int `json:"min_price"`
	OnlySellTo string       `json:"only_sell_to,omitempty"` // pubkey hex, empty → anyone
}

// PunkBid is the single standing bid on one punk. The bid amount was debited
// from the bidder's spendable balance when the bid was entered and is held
// here until the bid is accepted, withdrawn, or outbid.
type PunkBid struct {
	Active    bool         `json:"active"`
	PunkIndex uint64       `json:"punk_index"`
	Bidder    string       `json:"bidder"` // pubkey hex
	Amount    *uint256.Int `json:"amount"`
}

// MarketInfo is the marketplace-wide singleton: the admin identity, the
// one-way initial-assignment flag, and the count of punks still unassigned.
type MarketInfo struct {
	Admin             string `json:"admin"` // pubkey hex
	AllAssigned       bool   `json:"all_assigned"`
	RemainingToAssign uint64 `json:"remaining_to_assign"`
}

// State is the full chain state interface. Implementations must be
// snapshot-able so the executor can roll back failed transactions.
type State interface {
	// Accounts
	GetAccount(address string) (*Account, error)
	SetAccount(account *Account) error

	// Punk ownership: owner == "" means unassigned.
	GetPunkOwner(idx uint64) (string, error)
	SetPunkOwner(idx uint64, owner string) error

	// Offer book (missing record → inactive zero-value offer)
	GetOffer(idx uint64) (*PunkOffer, error)
	SetOffer(offer *PunkOffer) error

	// Bid book (missing record → inactive zero-value bid)
	GetBid(idx uint64) (*PunkBid, error)
	SetBid(bid *PunkBid) error

	// Escrow ledger (missing record → zero)
	GetPending(address string) (*uint256.Int, error)
	SetPending(address string, amount *uint256.Int) error

	// Marketplace singleton
	GetMarket() (*MarketInfo, error)
	SetMarket(info *MarketInfo) error

	// Snapshot / rollback / commit
	Snapshot() (int, error)
	RevertToSnapshot(id int) error
	// ComputeRoot returns the deterministic state root from the current write
	// buffer without flushing. Call this before signing a block.
	ComputeRoot() string
	// Commit flushes the write buffer to the underlying DB and clears it.
	// Always call ComputeRoot() first to obtain the root for the block header.
	Commit() error
}
