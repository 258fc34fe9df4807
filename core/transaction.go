package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"github.com/tolelom/punkchain/crypto"
)

// TxType identifies the kind of operation a transaction performs.
type TxType string

const (
	// Native token economy
	TxTransfer TxType = "transfer"

	// Initialization controller / ownership registry
	TxSetInitialOwner   TxType = "set_initial_owner"
	TxSetInitialOwners  TxType = "set_initial_owners"
	TxAllOwnersAssigned TxType = "all_initial_owners_assigned"
	TxClaimPunk         TxType = "claim_punk" // free mint once the market is live
	TxTransferPunk      TxType = "transfer_punk"
	TxTransferPunks     TxType = "transfer_punks"
	TxSetMarketAdmin    TxType = "set_market_admin"

	// Offer book
	TxOfferPunk          TxType = "offer_punk"
	TxOfferPunkToAddress TxType = "offer_punk_to_address"
	TxPunkNotForSale     TxType = "punk_no_longer_for_sale"
	TxBuyPunk            TxType = "buy_punk"

	// Bid book
	TxEnterBid    TxType = "enter_bid"
	TxAcceptBid   TxType = "accept_bid"
	TxWithdrawBid TxType = "withdraw_bid"

	// Escrow ledger
	TxWithdraw        TxType = "withdraw"
	TxSweepWithdrawal TxType = "sweep_withdrawal"
)

// Transaction is the atomic unit of work on the chain.
// From holds the sender's full hex-encoded ed25519 public key (64 chars).
// Value is the attached native-token payment (the msg.value analog) consumed
// by payable operations such as buy_punk and enter_bid.
// Signature covers all fields except Signature itself.
type Transaction struct {
	ID        string          `json:"id"`
	ChainID   string          `json:"chain_id"`
	Type      TxType          `json:"type"`
	From      string          `json:"from"` // hex-encoded ed25519 public key
	Nonce     uint64          `json:"nonce"`
	Fee       uint64          `json:"fee"`
	Value     *uint256.Int    `json:"value,omitempty"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"`
}

// AttachedValue returns the attached payment, never nil.
func (tx *Transaction) AttachedValue() *uint256.Int {
	if tx.Value == nil {
		return uint256.NewInt(0)
	}
	return tx.Value
}

// signingBody holds the fields that are covered by the signature.
type signingBody struct {
	ChainID   string          `json:"chain_id"`
	Type      TxType          `json:"type"`
	From      string          `json:"from"`
	Nonce     uint64          `json:"nonce"`
	Fee       uint64          `json:"fee"`
	Value     *uint256.Int    `json:"value,omitempty"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Hash returns a deterministic hash of the transaction (sans Signature).
// Returns an empty string if marshalling fails (which cannot happen in practice).
func (tx *Transaction) Hash() string {
	body := signingBody{
		ChainID:   tx.ChainID,
		Type:      tx.Type,
		From:      tx.From,
		Nonce:     tx.Nonce,
		Fee:       tx.Fee,
		Value:     tx.Value,
		Timestamp: tx.Timestamp,
		Payload:   tx.Payload,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}

// Sign computes the signature and sets ID.
func (tx *Transaction) Sign(priv crypto.PrivateKey) {
	hash := tx.Hash()
	tx.Signature = crypto.Sign(priv, []byte(hash))
	tx.ID = hash
}

// Verify checks the signature and that From is a valid public key.
func (tx *Transaction) Verify() error {
	if tx.From == "" {
		return errors.New("missing from field")
	}
	pub, err := crypto.PubKeyFromHex(tx.From)
	if err != nil {
		return fmt.Errorf("invalid from (must be ed25519 pubkey hex): %w", err)
	}
	return crypto.Verify(pub, []byte(tx.Hash()), tx.Signature)
}

// NewTransaction creates an unsigned transaction with the current timestamp.
func NewTransaction(chainID string, typ TxType, from string, nonce, fee uint64, payload any) (*Transaction, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Transaction{
		ChainID:   chainID,
		Type:      typ,
		From:      from,
		Nonce:     nonce,
		Fee:       fee,
		Timestamp: time.Now().UnixNano(),
		Payload:   raw,
	}, nil
}

// ---- Payload types ----

// TransferPayload transfers native tokens.
type TransferPayload struct {
	To     string       `json:"to"`
	Amount *uint256.Int `json:"amount"`
}

// SetInitialOwnerPayload assigns one punk during (or after) setup. Admin only.
type SetInitialOwnerPayload struct {
	To        string `json:"to"` // recipient pubkey hex
	PunkIndex uint64 `json:"punk_index"`
}

// SetInitialOwnersPayload is the batched assignment form. To and PunkIndexes
// are parallel slices; the whole batch applies atomically or not at all.
type SetInitialOwnersPayload struct {
	To          []string `json:"to"`
	PunkIndexes []uint64 `json:"punk_indexes"`
}

// AllOwnersAssignedPayload flips the one-way initial-assignment flag.
// The payload carries no fields; the type exists for symmetry.
type AllOwnersAssignedPayload struct{}

// ClaimPunkPayload mints an unassigned punk to the caller, free of charge.
type ClaimPunkPayload struct {
	PunkIndex uint64 `json:"punk_index"`
}

// TransferPunkPayload moves a punk to a new owner.
type TransferPunkPayload struct {
	To        string `json:"to"` // recipient pubkey hex
	PunkIndex uint64 `json:"punk_index"`
}

// TransferPunksPayload is the batched transfer form (parallel slices,
// all-or-nothing).
type TransferPunksPayload struct {
	To          []string `json:"to"`
	PunkIndexes []uint64 `json:"punk_indexes"`
}

// SetMarketAdminPayload replaces the market admin. Admin only.
type SetMarketAdminPayload struct {
	NewAdmin string `json:"new_admin"` // pubkey hex
}

// OfferPunkPayload lists a punk for sale to anyone at or above MinPrice.
type OfferPunkPayload struct {
	PunkIndex uint64       `json:"punk_index"`
	MinPrice  *uint256.Int `json:"min_price"`
}

// OfferPunkToAddressPayload lists a punk for sale to a single permitted buyer.
type OfferPunkToAddressPayload struct {
	PunkIndex  uint64       `json:"punk_index"`
	MinPrice   *uint256.Int `json:"min_price"`
	OnlySellTo string       `json:"only_sell_to"` // pubkey hex
}

// PunkNotForSalePayload withdraws the active offer on a punk.
type PunkNotForSalePayload struct {
	PunkIndex uint64 `json:"punk_index"`
}

// BuyPunkPayload purchases an actively offered punk. The payment rides the
// transaction's Value field.
type BuyPunkPayload struct {
	PunkIndex uint64 `json:"punk_index"`
}

// EnterBidPayload places a bid on a punk. The bid amount rides the
// transaction's Value field and is escrowed while the bid is active.
type EnterBidPayload struct {
	PunkIndex uint64 `json:"punk_index"`
}

// AcceptBidPayload accepts the active bid on a punk, provided the bid is at
// least MinPrice.
type AcceptBidPayload struct {
	PunkIndex uint64       `json:"punk_index"`
	MinPrice  *uint256.Int `json:"min_price"`
}

// WithdrawBidPayload cancels the caller's active bid and refunds it.
type WithdrawBidPayload struct {
	PunkIndex uint64 `json:"punk_index"`
}

// WithdrawPayload drains the caller's entire pending-withdrawal balance.
type WithdrawPayload struct{}

// SweepWithdrawalPayload (admin only) forces payout of the named account's
// pending balance to that same account.
type SweepWithdrawalPayload struct {
	Address string `json:"address"` // pubkey hex
}
