package wallet

import (
	"github.com/holiman/uint256"

	"github.com/tolelom/punkchain/core"
	"github.com/tolelom/punkchain/crypto"
)

// Wallet holds a key pair and provides transaction-building helpers.
type Wallet struct {
	priv crypto.PrivateKey
	pub  crypto.PublicKey
}

// New creates a Wallet from an existing private key.
func New(priv crypto.PrivateKey) *Wallet {
	return &Wallet{priv: priv, pub: priv.Public()}
}

// Generate creates a Wallet with a freshly generated key pair.
func Generate() (*Wallet, error) {
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return New(priv), nil
}

// PrivKey returns the raw private key (handle with care).
func (w *Wallet) PrivKey() crypto.PrivateKey {
	return w.priv
}

// PubKey returns the hex-encoded ed25519 public key (used as "from" address).
func (w *Wallet) PubKey() string {
	return w.pub.Hex()
}

// Address returns the short human-readable address (first 20 bytes of SHA-256(pubkey)).
func (w *Wallet) Address() string {
	return w.pub.Address()
}

// NewTx creates a signed transaction. chainID must match the target network.
// nonce should match the account's current nonce.
func (w *Wallet) NewTx(chainID string, typ core.TxType, nonce, fee uint64, payload any) (*core.Transaction, error) {
	tx, err := core.NewTransaction(chainID, typ, w.pub.Hex(), nonce, fee, payload)
	if err != nil {
		return nil, err
	}
	tx.Sign(w.priv)
	return tx, nil
}

// NewPayableTx creates a signed transaction carrying a native-token payment.
// The value must be attached before signing since the signature covers it.
func (w *Wallet) NewPayableTx(chainID string, typ core.TxType, nonce, fee uint64, value *uint256.Int, payload any) (*core.Transaction, error) {
	tx, err := core.NewTransaction(chainID, typ, w.pub.Hex(), nonce, fee, payload)
	if err != nil {
		return nil, err
	}
	tx.Value = value
	tx.Sign(w.priv)
	return tx, nil
}

// Transfer creates a signed native-token transfer transaction.
func (w *Wallet) Transfer(chainID, to string, amount *uint256.Int, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxTransfer, nonce, fee, core.TransferPayload{
		To:     to,
		Amount: amount,
	})
}

// ClaimPunk creates a signed free-claim transaction for an unassigned punk.
func (w *Wallet) ClaimPunk(chainID string, punkIndex, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxClaimPunk, nonce, fee, core.ClaimPunkPayload{
		PunkIndex: punkIndex,
	})
}

// TransferPunk creates a signed punk transfer transaction.
func (w *Wallet) TransferPunk(chainID, to string, punkIndex, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxTransferPunk, nonce, fee, core.TransferPunkPayload{
		To:        to,
		PunkIndex: punkIndex,
	})
}

// OfferPunk creates a signed open sell offer at minPrice.
func (w *Wallet) OfferPunk(chainID string, punkIndex uint64, minPrice *uint256.Int, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxOfferPunk, nonce, fee, core.OfferPunkPayload{
		PunkIndex: punkIndex,
		MinPrice:  minPrice,
	})
}

// BuyPunk creates a signed purchase carrying payment as the tx value.
func (w *Wallet) BuyPunk(chainID string, punkIndex uint64, payment *uint256.Int, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewPayableTx(chainID, core.TxBuyPunk, nonce, fee, payment, core.BuyPunkPayload{
		PunkIndex: punkIndex,
	})
}

// EnterBid creates a signed bid carrying the bid amount as the tx value.
func (w *Wallet) EnterBid(chainID string, punkIndex uint64, amount *uint256.Int, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewPayableTx(chainID, core.TxEnterBid, nonce, fee, amount, core.EnterBidPayload{
		PunkIndex: punkIndex,
	})
}

// Withdraw creates a signed claim of the wallet's entire pending balance.
func (w *Wallet) Withdraw(chainID string, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxWithdraw, nonce, fee, core.WithdrawPayload{})
}
